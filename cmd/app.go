package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/kozaktomas/facegate/internal/attendance"
	"github.com/kozaktomas/facegate/internal/capture"
	"github.com/kozaktomas/facegate/internal/config"
	"github.com/kozaktomas/facegate/internal/logger"
	"github.com/kozaktomas/facegate/internal/matcher"
	"github.com/kozaktomas/facegate/internal/metrics"
	"github.com/kozaktomas/facegate/internal/registry"
	"github.com/kozaktomas/facegate/internal/session"
	"github.com/kozaktomas/facegate/internal/store"
	"github.com/kozaktomas/facegate/internal/store/csvfile"
	"github.com/kozaktomas/facegate/internal/store/postgres"
)

// app is the wired system every command runs against.
type app struct {
	cfg     *config.Config
	backend store.Backend
	orch    *session.Orchestrator
	encoder *capture.EncoderClient // nil when ENCODER_URL is empty
	log     zerolog.Logger
}

// openApp loads the configuration, opens the storage backend and restores the
// registry and ledger from it.
func openApp(ctx context.Context) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	log := logger.Init(logger.Options{Level: cfg.Log.Level, Pretty: cfg.Log.Pretty})

	backend, pool, err := openBackend(ctx, cfg)
	if err != nil {
		return nil, err
	}

	a, err := wire(ctx, cfg, backend, pool, log)
	if err != nil {
		return nil, errors.Join(err, backend.Close())
	}
	return a, nil
}

// openBackend returns the configured backend and, for PostgreSQL, its pool.
func openBackend(ctx context.Context, cfg *config.Config) (store.Backend, *postgres.Pool, error) {
	switch cfg.Storage.Backend {
	case config.BackendPostgres:
		s, err := postgres.Open(ctx, &cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		return s, s.Pool(), nil
	default:
		s, err := csvfile.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, nil, err
		}
		return s, nil, nil
	}
}

func wire(ctx context.Context, cfg *config.Config, backend store.Backend, pool *postgres.Pool, log zerolog.Logger) (*app, error) {
	reg := registry.New(backend, registry.WithDim(cfg.Registry.Dim))
	if err := reg.Load(ctx); err != nil {
		return nil, err
	}
	ledger := attendance.New(backend)
	if err := ledger.Load(ctx); err != nil {
		return nil, err
	}

	m, err := newMatcher(cfg, reg, pool)
	if err != nil {
		return nil, err
	}
	metrics.MembersEnrolled.Set(float64(reg.Len()))

	a := &app{
		cfg:     cfg,
		backend: backend,
		orch: session.New(reg, m, ledger,
			session.WithCaptureTimeout(cfg.Capture.Timeout),
			session.WithLogger(log),
		),
		log: log,
	}
	if cfg.Capture.EncoderURL != "" {
		a.encoder = capture.NewEncoderClient(cfg.Capture.EncoderURL, capture.WithMaxSide(cfg.Capture.MaxSide))
	}

	log.Debug().
		Str("backend", cfg.Storage.Backend).
		Str("index", cfg.Match.Index).
		Int("members", reg.Len()).
		Int("open_sessions", len(ledger.OpenSessions())).
		Msg("state restored")
	return a, nil
}

func newMatcher(cfg *config.Config, reg *registry.Registry, pool *postgres.Pool) (*matcher.Matcher, error) {
	var opts []matcher.Option
	switch cfg.Match.Index {
	case config.IndexHNSW:
		opts = append(opts, matcher.WithIndex(matcher.NewHNSWIndex(reg), cfg.Match.Candidates, cfg.Match.MinIndexSize))
	case config.IndexPgvector:
		if pool == nil {
			return nil, errors.New("pgvector index requires the postgres backend")
		}
		opts = append(opts, matcher.WithIndex(postgres.NewVectorIndex(pool), cfg.Match.Candidates, cfg.Match.MinIndexSize))
	}
	return matcher.New(cfg.Match.Threshold, opts...)
}

// Close releases the storage backend.
func (a *app) Close() error {
	return a.backend.Close()
}

// captureSource picks the capturer for --encoding or --image.
func (a *app) captureSource(encodingPath, imagePath string) (capture.Capturer, error) {
	switch {
	case encodingPath != "" && imagePath != "":
		return nil, errors.New("use either --encoding or --image, not both")
	case encodingPath != "":
		return capture.FileSource{Path: encodingPath}, nil
	case imagePath != "":
		if a.encoder == nil {
			return nil, fmt.Errorf("--image needs a face encoder: %w", capture.ErrCaptureUnavailable)
		}
		return a.encoder.Capturer(capture.ImageFile(imagePath)), nil
	default:
		return nil, errors.New("either --encoding or --image is required")
	}
}
