package app

import (
	"fmt"
	"time"

	"github.com/yungbote/evidence-backend/internal/consistency"
	"github.com/yungbote/evidence-backend/internal/data/graph"
	"github.com/yungbote/evidence-backend/internal/ingestion/analysis"
	"github.com/yungbote/evidence-backend/internal/ingestion/batch"
	"github.com/yungbote/evidence-backend/internal/ingestion/costguard"
	"github.com/yungbote/evidence-backend/internal/ingestion/dedup"
	"github.com/yungbote/evidence-backend/internal/ingestion/parser"
	"github.com/yungbote/evidence-backend/internal/ingestion/pipeline"
	"github.com/yungbote/evidence-backend/internal/ingestion/trigger"
	"github.com/yungbote/evidence-backend/internal/platform/gcp"
	"github.com/yungbote/evidence-backend/internal/platform/kafkax"
	"github.com/yungbote/evidence-backend/internal/platform/logger"
)

type Services struct {
	Consistency *consistency.Manager
	Dedup       *dedup.Index
	PersonGraph *graph.PersonGraph
	Parsers     *parser.Registry
	Embedder    *analysis.Embedder
	Summarizer  *analysis.Summarizer
	Pipeline    *pipeline.Orchestrator
	Batch       *batch.Driver
	Trigger     *trigger.Handler

	// Nil unless KAFKA_BROKERS and KAFKA_TOPIC are set.
	Consumer *kafkax.Consumer
	Producer *kafkax.Producer
}

func wireServices(log *logger.Logger, cfg Config, clients Clients, repos Repos) (Services, error) {
	log.Info("Wiring services...")
	var s Services

	s.Embedder = analysis.NewEmbedder(log, clients.OpenAI, cfg.Vector.VectorDim, cfg.OpenAI.EmbeddingRPS)
	if clients.OpenAI != nil {
		s.Summarizer = analysis.NewSummarizer(log, clients.OpenAI)
	}

	s.Dedup = dedup.New(log, repos.Records, clients.Redis, time.Duration(cfg.Redis.DedupTTLSeconds)*time.Second)
	if clients.Neo4j != nil {
		s.PersonGraph = graph.NewPersonGraph(clients.Neo4j, log)
	}

	opts := consistency.DefaultOptions()
	opts.MetadataPolicy.MaxAttempts = cfg.Consistency.MetadataAttempts
	opts.IndexPolicy.MaxAttempts = cfg.Consistency.IndexAttempts
	opts.IndexDeletePolicy.MaxAttempts = cfg.Consistency.IndexDeleteAttempts
	opts.TxLogCapacity = cfg.Consistency.TxLogCapacity
	opts.Embedder = s.Embedder
	opts.Listeners = []consistency.Listener{s.Dedup}
	if s.PersonGraph != nil {
		opts.Listeners = append(opts.Listeners, s.PersonGraph)
	}
	s.Consistency = consistency.New(log, repos.Records, clients.Index, opts)

	s.Parsers = wireParsers(log, cfg, clients)

	deps := pipeline.Deps{
		Storage:  clients.Storage,
		Parsers:  s.Parsers,
		Guard:    costguard.New(cfg.Ingest.MaxBytes, costguard.KindLimitsFromEnv()),
		Dedup:    s.Dedup,
		Tagger:   analysis.NewTagger(analysis.DefaultKeywords),
		Persons:  analysis.PersonExtractor{},
		Embedder: s.Embedder,
		Persist:  s.Consistency,
	}
	if s.PersonGraph != nil {
		deps.Graph = s.PersonGraph
	}
	if s.Summarizer != nil {
		deps.Summarizer = s.Summarizer
	}
	orch, err := pipeline.New(log, deps, pipeline.Options{
		EmbedConcurrency: cfg.Ingest.EmbedConcurrency,
		TempDir:          cfg.Ingest.TempDir,
	})
	if err != nil {
		return s, fmt.Errorf("init pipeline: %w", err)
	}
	s.Pipeline = orch

	s.Batch = batch.New(log, s.Pipeline, batch.Options{
		Concurrency: cfg.Ingest.BatchConcurrency,
		ItemTimeout: cfg.Ingest.ItemTimeout(),
	})

	var pub trigger.Publisher
	if cfg.Kafka.Enabled() && cfg.Kafka.ResultsTopic != "" {
		s.Producer = kafkax.NewProducer(log, cfg.Kafka.Brokers, cfg.Kafka.ResultsTopic)
		pub = s.Producer
	}
	s.Trigger = trigger.New(log, s.Batch, pub)
	if cfg.Kafka.Enabled() {
		s.Consumer = kafkax.NewConsumer(log, kafkax.Config{
			Brokers: cfg.Kafka.Brokers,
			Topic:   cfg.Kafka.Topic,
			GroupID: cfg.Kafka.GroupID,
		}, s.Trigger.HandleMessage)
	} else {
		log.Warn("KAFKA_BROKERS/KAFKA_TOPIC not set; storage events are not consumed")
	}

	return s, nil
}

// wireParsers registers every built-in parser. Parsers backed by a missing
// cloud client stay registered and fail per item, so the file type is still
// recognised and reported.
func wireParsers(log *logger.Logger, cfg Config, clients Clients) *parser.Registry {
	loc, err := time.LoadLocation(cfg.Ingest.ChatTimezone)
	if err != nil {
		loc = time.UTC
	}
	return parser.NewRegistry(
		parser.ChatParser{Location: loc},
		parser.PDFParser{OCR: clients.GcpDocument, Log: log},
		parser.OfficeParser{},
		parser.ImageParser{Vision: clients.GcpVision},
		parser.AudioParser{Speech: clients.GcpSpeech, Config: gcp.SpeechConfig{LanguageCode: cfg.GCP.SpeechLanguage}},
		parser.VideoParser{Video: clients.GcpVideo, LanguageCode: cfg.GCP.SpeechLanguage},
	)
}

func (s *Services) Close() {
	if s == nil {
		return
	}
	if s.Pipeline != nil {
		s.Pipeline.Close()
	}
	if s.Producer != nil {
		_ = s.Producer.Close()
	}
}
