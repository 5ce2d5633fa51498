package app

import (
	"context"
	"fmt"
	"strings"

	goredis "github.com/redis/go-redis/v9"

	"github.com/yungbote/evidence-backend/internal/data/db"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
	"github.com/yungbote/evidence-backend/internal/platform/neo4jdb"
	"github.com/yungbote/evidence-backend/internal/platform/openai"
	"github.com/yungbote/evidence-backend/internal/platform/redisx"
)

// Clients holds every backend connection. Optional ones are nil when not
// configured or unreachable at start-up.
type Clients struct {
	Metadata *db.Service
	Index    evidenceIndex
	Storage  *gcp.ObjectStorage

	OpenAI openai.Client
	Redis  *goredis.Client
	Neo4j  *neo4jdb.Client

	GcpVision   gcp.Vision
	GcpSpeech   gcp.Speech
	GcpVideo    gcp.Video
	GcpDocument gcp.Document
}

func wireClients(ctx context.Context, log *logger.Logger, cfg Config) (c Clients, err error) {
	log.Info("Wiring clients...")
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	// Mandatory: metadata, vector index, object storage.
	m := cfg.Metadata
	c.Metadata, err = db.Open(log, db.Config{
		Driver:     m.Driver,
		URL:        m.URL,
		Host:       m.Host,
		Port:       m.Port,
		User:       m.User,
		Password:   m.Password,
		Name:       m.Name,
		SSLMode:    m.SSLMode,
		SQLitePath: m.SQLitePath,
	})
	if err != nil {
		return c, fmt.Errorf("init metadata db: %w", err)
	}
	if err = db.AutoMigrateAll(c.Metadata.DB()); err != nil {
		return c, fmt.Errorf("metadata db automigrate: %w", err)
	}

	idx, err := resolveVectorIndex(log, cfg)
	if err != nil {
		return c, err
	}
	c.Index = instrumentIndex(idx)

	c.Storage, err = resolveObjectStorage(ctx, log, cfg)
	if err != nil {
		return c, err
	}

	// Optional: each disables one capability when absent.
	if strings.TrimSpace(cfg.OpenAI.APIKey) != "" {
		c.OpenAI, err = openai.NewClient(log, openai.Config{
			APIKey:       cfg.OpenAI.APIKey,
			BaseURL:      cfg.OpenAI.BaseURL,
			EmbedModel:   cfg.OpenAI.EmbedModel,
			SummaryModel: cfg.OpenAI.SummaryModel,
		}, nil)
		if err != nil {
			return c, fmt.Errorf("init openai client: %w", err)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; embeddings fall back to placeholder vectors and summaries to templates")
	}

	if rdb, rerr := redisx.New(ctx, log, redisx.Config{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB}); rerr != nil {
		log.Warn("Redis unavailable; duplicate lookups go to the metadata store", "error", rerr)
	} else {
		c.Redis = rdb
	}

	if nc, nerr := neo4jdb.New(ctx, log, neo4jdb.Config{
		URI:      cfg.Neo4j.URI,
		User:     cfg.Neo4j.User,
		Password: cfg.Neo4j.Password,
		Database: cfg.Neo4j.Database,
	}); nerr != nil {
		log.Warn("Neo4j unavailable; person graph disabled", "error", nerr)
	} else {
		c.Neo4j = nc
	}

	g := cfg.GCP
	if g.VisionEnabled {
		if v, verr := gcp.NewVision(ctx, log); verr != nil {
			log.Warn("Vision unavailable; image evidence will not be OCR'd", "error", verr)
		} else {
			c.GcpVision = v
		}
	}
	if g.SpeechEnabled {
		if s, serr := gcp.NewSpeech(ctx, log); serr != nil {
			log.Warn("Speech unavailable; audio evidence will not be transcribed", "error", serr)
		} else {
			c.GcpSpeech = s
		}
	}
	if g.VideoEnabled {
		if v, verr := gcp.NewVideo(ctx, log); verr != nil {
			log.Warn("Video Intelligence unavailable; video evidence will not be transcribed", "error", verr)
		} else {
			c.GcpVideo = v
		}
	}
	if g.ProjectID != "" && g.DocumentAIProcess != "" {
		d, derr := gcp.NewDocument(ctx, log, gcp.DocumentConfig{
			ProjectID:        g.ProjectID,
			Location:         g.DocumentAILocation,
			ProcessorID:      g.DocumentAIProcess,
			ProcessorVersion: g.DocumentAIVersion,
		})
		if derr != nil {
			log.Warn("Document AI unavailable; scanned PDFs will be rejected as empty", "error", derr)
		} else {
			c.GcpDocument = d
		}
	}

	return c, nil
}

func (c *Clients) Close() {
	if c == nil {
		return
	}
	if c.GcpDocument != nil {
		_ = c.GcpDocument.Close()
	}
	if c.GcpVideo != nil {
		_ = c.GcpVideo.Close()
	}
	if c.GcpSpeech != nil {
		_ = c.GcpSpeech.Close()
	}
	if c.GcpVision != nil {
		_ = c.GcpVision.Close()
	}
	if c.Neo4j != nil {
		_ = c.Neo4j.Close(context.Background())
	}
	if c.Redis != nil {
		_ = c.Redis.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Metadata != nil {
		_ = c.Metadata.Close()
	}
}
