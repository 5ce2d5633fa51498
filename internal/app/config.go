package app

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/yungbote/evidence-backend/internal/data/db"
	"github.com/yungbote/evidence-backend/internal/ingestion/batch"
	"github.com/yungbote/evidence-backend/internal/ingestion/costguard"
	"github.com/yungbote/evidence-backend/internal/ingestion/dedup"
	"github.com/yungbote/evidence-backend/internal/platform/envutil"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type Config struct {
	ServiceName string `yaml:"service_name"`
	Environment string `yaml:"environment"`
	HTTPAddr    string `yaml:"http_addr"`
	// MetricsAddr serves /metrics on a separate listener as well; empty
	// keeps it on the ops server only.
	MetricsAddr string `yaml:"metrics_addr"`

	Metadata      MetadataConfig      `yaml:"metadata"`
	ObjectStorage ObjectStorageConfig `yaml:"object_storage"`
	Vector        VectorConfig        `yaml:"vector"`
	OpenAI        OpenAIConfig        `yaml:"openai"`
	Redis         RedisConfig         `yaml:"redis"`
	Neo4j         Neo4jConfig         `yaml:"neo4j"`
	Kafka         KafkaConfig         `yaml:"kafka"`
	GCP           GCPConfig           `yaml:"gcp"`
	Ingest        IngestConfig        `yaml:"ingest"`
	Consistency   ConsistencyConfig   `yaml:"consistency"`
}

type MetadataConfig struct {
	Driver     string `yaml:"driver"`
	URL        string `yaml:"url"`
	Host       string `yaml:"host"`
	Port       string `yaml:"port"`
	User       string `yaml:"user"`
	Password   string `yaml:"password"`
	Name       string `yaml:"name"`
	SSLMode    string `yaml:"sslmode"`
	SQLitePath string `yaml:"sqlite_path"`
}

type ObjectStorageConfig struct {
	Mode         string `yaml:"mode"`
	EmulatorHost string `yaml:"emulator_host"`
}

type VectorConfig struct {
	URL              string `yaml:"url"`
	CollectionPrefix string `yaml:"collection_prefix"`
	VectorDim        int    `yaml:"vector_dim"`
	Distance         string `yaml:"distance"`
}

type OpenAIConfig struct {
	APIKey       string  `yaml:"api_key"`
	BaseURL      string  `yaml:"base_url"`
	EmbedModel   string  `yaml:"embed_model"`
	SummaryModel string  `yaml:"summary_model"`
	EmbeddingRPS float64 `yaml:"embedding_rps"`
}

type RedisConfig struct {
	Addr            string `yaml:"addr"`
	Password        string `yaml:"password"`
	DB              int    `yaml:"db"`
	DedupTTLSeconds int    `yaml:"dedup_ttl_seconds"`
}

type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

type KafkaConfig struct {
	Brokers      []string `yaml:"brokers"`
	Topic        string   `yaml:"topic"`
	GroupID      string   `yaml:"group_id"`
	ResultsTopic string   `yaml:"results_topic"`
}

func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0 && k.Topic != ""
}

type GCPConfig struct {
	ProjectID          string `yaml:"project_id"`
	DocumentAILocation string `yaml:"documentai_location"`
	DocumentAIProcess  string `yaml:"documentai_processor_id"`
	DocumentAIVersion  string `yaml:"documentai_processor_version"`
	SpeechLanguage     string `yaml:"speech_language"`
	VisionEnabled      bool   `yaml:"vision_enabled"`
	SpeechEnabled      bool   `yaml:"speech_enabled"`
	VideoEnabled       bool   `yaml:"video_enabled"`
}

type IngestConfig struct {
	MaxBytes           int64  `yaml:"max_bytes"`
	BatchConcurrency   int    `yaml:"batch_concurrency"`
	ItemTimeoutSeconds int    `yaml:"item_timeout_seconds"`
	EmbedConcurrency   int    `yaml:"embed_concurrency"`
	TempDir            string `yaml:"temp_dir"`
	ChatTimezone       string `yaml:"chat_timezone"`
}

func (c IngestConfig) ItemTimeout() time.Duration {
	return time.Duration(c.ItemTimeoutSeconds) * time.Second
}

type ConsistencyConfig struct {
	MetadataAttempts    int `yaml:"metadata_attempts"`
	IndexAttempts       int `yaml:"index_attempts"`
	IndexDeleteAttempts int `yaml:"index_delete_attempts"`
	TxLogCapacity       int `yaml:"txlog_capacity"`
}

func defaultConfig() Config {
	return Config{
		ServiceName: "evidence-ingestor",
		Environment: "development",
		HTTPAddr:    ":8080",
		Metadata: MetadataConfig{
			Driver:     db.DriverPostgres,
			Host:       "localhost",
			Port:       "5432",
			User:       "postgres",
			Name:       "evidence",
			SSLMode:    "disable",
			SQLitePath: "evidence.db",
		},
		Vector:        VectorConfig{CollectionPrefix: "evidence", VectorDim: 1536, Distance: "Cosine"},
		Redis:         RedisConfig{DedupTTLSeconds: int(dedup.DefaultTTL / time.Second)},
		Neo4j:         Neo4jConfig{User: "neo4j"},
		Kafka:         KafkaConfig{GroupID: "evidence-ingestor"},
		GCP: GCPConfig{
			DocumentAILocation: "us",
			SpeechLanguage:     "en-US",
			VisionEnabled:      true,
			SpeechEnabled:      true,
			VideoEnabled:       true,
		},
		Ingest: IngestConfig{
			MaxBytes:           costguard.DefaultMaxBytes,
			BatchConcurrency:   batch.DefaultConcurrency,
			ItemTimeoutSeconds: int(batch.DefaultItemTimeout / time.Second),
			ChatTimezone:       "UTC",
		},
		Consistency: ConsistencyConfig{MetadataAttempts: 5, IndexAttempts: 3, IndexDeleteAttempts: 2, TxLogCapacity: 256},
	}
}

// LoadConfig layers CONFIG_FILE (optional YAML) over the defaults and the
// environment over both.
func LoadConfig(log *logger.Logger) (Config, error) {
	cfg := defaultConfig()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config file %s: %w", path, err)
		}
		log.Info("Loaded config file", "path", path)
	}
	applyEnv(&cfg)
	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	cfg.ServiceName = envutil.String("SERVICE_NAME", cfg.ServiceName)
	cfg.Environment = envutil.String("ENVIRONMENT", cfg.Environment)
	cfg.HTTPAddr = envutil.String("HTTP_ADDR", cfg.HTTPAddr)
	cfg.MetricsAddr = envutil.String("METRICS_ADDR", cfg.MetricsAddr)

	m := &cfg.Metadata
	m.Driver = envutil.String("METADATA_DB_DRIVER", m.Driver)
	m.URL = envutil.String("METADATA_DB_URL", m.URL)
	m.Host = envutil.String("POSTGRES_HOST", m.Host)
	m.Port = envutil.String("POSTGRES_PORT", m.Port)
	m.User = envutil.String("POSTGRES_USER", m.User)
	m.Password = envutil.String("POSTGRES_PASSWORD", m.Password)
	m.Name = envutil.String("POSTGRES_NAME", m.Name)
	m.SSLMode = envutil.String("POSTGRES_SSLMODE", m.SSLMode)
	m.SQLitePath = envutil.String("SQLITE_PATH", m.SQLitePath)

	cfg.ObjectStorage.Mode = envutil.String("OBJECT_STORAGE_MODE", cfg.ObjectStorage.Mode)
	cfg.ObjectStorage.EmulatorHost = envutil.String("STORAGE_EMULATOR_HOST", cfg.ObjectStorage.EmulatorHost)

	v := &cfg.Vector
	v.URL = envutil.String("QDRANT_URL", v.URL)
	v.CollectionPrefix = envutil.String("QDRANT_COLLECTION_PREFIX", v.CollectionPrefix)
	v.VectorDim = envutil.Int("QDRANT_VECTOR_DIM", v.VectorDim)
	v.Distance = envutil.String("QDRANT_DISTANCE", v.Distance)

	o := &cfg.OpenAI
	o.APIKey = envutil.String("OPENAI_API_KEY", o.APIKey)
	o.BaseURL = envutil.String("OPENAI_BASE_URL", o.BaseURL)
	o.EmbedModel = envutil.String("OPENAI_EMBED_MODEL", o.EmbedModel)
	o.SummaryModel = envutil.String("OPENAI_SUMMARY_MODEL", o.SummaryModel)
	o.EmbeddingRPS = envutil.Float("EMBEDDING_RPS", o.EmbeddingRPS)

	r := &cfg.Redis
	r.Addr = envutil.String("REDIS_ADDR", r.Addr)
	r.Password = envutil.String("REDIS_PASSWORD", r.Password)
	r.DB = envutil.Int("REDIS_DB", r.DB)
	r.DedupTTLSeconds = envutil.Int("DEDUP_CACHE_TTL_SECONDS", r.DedupTTLSeconds)

	n := &cfg.Neo4j
	n.URI = envutil.String("NEO4J_URI", n.URI)
	n.User = envutil.String("NEO4J_USER", n.User)
	n.Password = envutil.String("NEO4J_PASSWORD", n.Password)
	n.Database = envutil.String("NEO4J_DATABASE", n.Database)

	k := &cfg.Kafka
	k.Brokers = envutil.List("KAFKA_BROKERS", k.Brokers)
	k.Topic = envutil.String("KAFKA_TOPIC", k.Topic)
	k.GroupID = envutil.String("KAFKA_GROUP_ID", k.GroupID)
	k.ResultsTopic = envutil.String("KAFKA_RESULTS_TOPIC", k.ResultsTopic)

	g := &cfg.GCP
	g.ProjectID = envutil.String("GCP_PROJECT_ID", g.ProjectID)
	g.DocumentAILocation = envutil.String("DOCUMENTAI_LOCATION", g.DocumentAILocation)
	g.DocumentAIProcess = envutil.String("DOCUMENTAI_PROCESSOR_ID", g.DocumentAIProcess)
	g.DocumentAIVersion = envutil.String("DOCUMENTAI_PROCESSOR_VERSION", g.DocumentAIVersion)
	g.SpeechLanguage = envutil.String("SPEECH_LANGUAGE_CODE", g.SpeechLanguage)
	g.VisionEnabled = envutil.Bool("GCP_VISION_ENABLED", g.VisionEnabled)
	g.SpeechEnabled = envutil.Bool("GCP_SPEECH_ENABLED", g.SpeechEnabled)
	g.VideoEnabled = envutil.Bool("GCP_VIDEO_ENABLED", g.VideoEnabled)

	i := &cfg.Ingest
	i.MaxBytes = envutil.Int64("INGEST_MAX_BYTES", i.MaxBytes)
	i.BatchConcurrency = envutil.Int("INGEST_BATCH_CONCURRENCY", i.BatchConcurrency)
	i.ItemTimeoutSeconds = envutil.Int("INGEST_ITEM_TIMEOUT_SECONDS", i.ItemTimeoutSeconds)
	i.EmbedConcurrency = envutil.Int("INGEST_EMBED_CONCURRENCY", i.EmbedConcurrency)
	i.TempDir = envutil.String("INGEST_TEMP_DIR", i.TempDir)
	i.ChatTimezone = envutil.String("CHAT_TIMEZONE", i.ChatTimezone)

	c := &cfg.Consistency
	c.MetadataAttempts = envutil.Int("CONSISTENCY_METADATA_ATTEMPTS", c.MetadataAttempts)
	c.IndexAttempts = envutil.Int("CONSISTENCY_INDEX_ATTEMPTS", c.IndexAttempts)
	c.IndexDeleteAttempts = envutil.Int("CONSISTENCY_INDEX_DELETE_ATTEMPTS", c.IndexDeleteAttempts)
	c.TxLogCapacity = envutil.Int("TXLOG_CAPACITY", c.TxLogCapacity)
}

func (c Config) validate() error {
	switch c.Metadata.Driver {
	case db.DriverPostgres, db.DriverSQLite:
	default:
		return fmt.Errorf("invalid METADATA_DB_DRIVER=%q; expected %q or %q", c.Metadata.Driver, db.DriverPostgres, db.DriverSQLite)
	}
	if c.Ingest.BatchConcurrency <= 0 {
		return fmt.Errorf("INGEST_BATCH_CONCURRENCY must be positive, got %d", c.Ingest.BatchConcurrency)
	}
	if c.Ingest.ItemTimeoutSeconds <= 0 {
		return fmt.Errorf("INGEST_ITEM_TIMEOUT_SECONDS must be positive, got %d", c.Ingest.ItemTimeoutSeconds)
	}
	if c.Ingest.MaxBytes <= 0 {
		return fmt.Errorf("INGEST_MAX_BYTES must be positive, got %d", c.Ingest.MaxBytes)
	}
	for name, n := range map[string]int{
		"CONSISTENCY_METADATA_ATTEMPTS":     c.Consistency.MetadataAttempts,
		"CONSISTENCY_INDEX_ATTEMPTS":        c.Consistency.IndexAttempts,
		"CONSISTENCY_INDEX_DELETE_ATTEMPTS": c.Consistency.IndexDeleteAttempts,
	} {
		if n <= 0 {
			return fmt.Errorf("%s must be positive, got %d", name, n)
		}
	}
	if _, err := time.LoadLocation(c.Ingest.ChatTimezone); err != nil {
		return fmt.Errorf("invalid CHAT_TIMEZONE=%q: %w", c.Ingest.ChatTimezone, err)
	}
	return nil
}
