// Package bootstrap wires configuration, infrastructure adapters and
// use cases into a running application. Both binaries build their
// dependency graph here so the CLI and the worker share one wiring.
package bootstrap

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/pamin/idms/internal/config"
	"github.com/pamin/idms/internal/core/ports"
	"github.com/pamin/idms/internal/core/usecase"
	"github.com/pamin/idms/internal/hashing"
	"github.com/pamin/idms/internal/infrastructure/archive"
	"github.com/pamin/idms/internal/infrastructure/classifier/rules"
	"github.com/pamin/idms/internal/infrastructure/extractor/pdfocr"
	"github.com/pamin/idms/internal/infrastructure/ledger"
	"github.com/pamin/idms/internal/infrastructure/queue/nats"
	"github.com/pamin/idms/internal/infrastructure/repository/postgres"
	"github.com/pamin/idms/internal/infrastructure/resilience"
	"github.com/pamin/idms/internal/infrastructure/session"
	"github.com/pamin/idms/internal/infrastructure/vector/qdrant"
	"github.com/pamin/idms/internal/infrastructure/vectorindex"
	"github.com/pamin/idms/internal/naming"
	"github.com/pamin/idms/internal/observability/audit"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Pipeline  ports.PipelineRunner
	Review    ports.ReviewManager
	Rebuilder ports.IndexRebuilder
	Extractor ports.ContentExtractor
	Audit     *audit.Trail

	closeFn func()
}

type Option func(*settings)

type settings struct {
	lockObserver func(time.Duration)
}

// WithLockObserver forwards index lock wait times to a metrics sink.
// The worker uses this; the CLI runs without it.
func WithLockObserver(observe func(time.Duration)) Option {
	return func(s *settings) { s.lockObserver = observe }
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger, opts ...Option) (*App, error) {
	if logger == nil {
		logger = slog.Default()
	}
	var st settings
	for _, opt := range opts {
		opt(&st)
	}

	hasher := hashing.SHA256{}
	extractor := pdfocr.New(
		hasher,
		pdfocr.WithOCRCommands(cfg.TesseractCmd, cfg.PdftoppmCmd),
		pdfocr.WithOCRDPI(cfg.OCRDPI),
	)

	ruleset, err := rules.LoadRuleset(cfg.RulesetPath)
	if err != nil {
		return nil, fmt.Errorf("load ruleset: %w", err)
	}
	classifier, err := rules.NewClassifier(ruleset, rules.DefaultScoring())
	if err != nil {
		return nil, fmt.Errorf("build classifier: %w", err)
	}

	var indexOpts []vectorindex.Option
	if st.lockObserver != nil {
		indexOpts = append(indexOpts, vectorindex.WithLockObserver(st.lockObserver))
	}
	index := vectorindex.NewWriter(cfg.IndexPath, cfg.IndexLockPath, cfg.EmbeddingModel, cfg.LockTimeout, indexOpts...)

	docLedger := ledger.New(cfg.LedgerPath)

	var db *sql.DB
	var relational ports.RelationalSink
	if cfg.EnablePostgres {
		db, err = postgres.OpenDB(cfg.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		sink := postgres.NewSink(db)
		if err := sink.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("ensure postgres schema: %w", err)
		}
		relational = sink
	}

	var vector ports.VectorSink
	if cfg.EnableQdrant {
		vector = qdrant.New(cfg.QdrantURL, cfg.QdrantCollection, cfg.QdrantAPIKey)
	}

	trail := audit.NewTrail(cfg.AuditLogPath)

	pipeline := usecase.NewPipeline(
		usecase.Settings{
			InboxDir:        cfg.InboxDir,
			ReviewDir:       cfg.ReviewDir,
			ArchiveDir:      cfg.ArchiveDir,
			ReviewThreshold: cfg.ReviewThreshold,
			EmbeddingModel:  cfg.EmbeddingModel,
			BatchWorkers:    cfg.BatchWorkers,
		},
		extractor,
		classifier,
		naming.New(),
		archive.New(),
		index,
		docLedger,
		relational,
		vector,
		trail,
		logger,
	)

	review := usecase.NewReview(
		cfg.ReviewDir,
		session.NewStore(cfg.SessionPath),
		hasher,
		pipeline,
		logger,
	)

	rebuilder := usecase.NewRebuilder(docLedger, extractor, index, logger)

	return &App{
		Config:    cfg,
		Logger:    logger,
		Pipeline:  pipeline,
		Review:    review,
		Rebuilder: rebuilder,
		Extractor: extractor,
		Audit:     trail,

		closeFn: func() {
			if db != nil {
				_ = db.Close()
			}
		},
	}, nil
}

// OpenQueue connects to NATS with retry and circuit breaking around
// publishes. Only the worker and the ingest command call this; every
// other command runs without a broker.
func (a *App) OpenQueue() (*nats.Queue, error) {
	executor := resilience.NewExecutor(resilience.DefaultPolicy(), a.Logger)
	return nats.NewWithOptions(a.Config.NATSURL, a.Config.NATSSubject, nats.Options{
		Executor: executor,
		Logger:   a.Logger,
	})
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
