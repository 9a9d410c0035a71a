package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"rnseaudit/internal/merkle"
	"rnseaudit/internal/telemetry"
)

// ErrAlreadyRegistered is returned when a run ID already has a registration.
// Registrations are write-once.
var ErrAlreadyRegistered = errors.New("commitment already registered")

// Registration is a pre-registered commitment: what a publisher announces
// before disclosing the log.
type Registration struct {
	RunID        string        `json:"run_id"`
	Profile      string        `json:"profile"`
	BatchSize    int           `json:"batch_size"`
	Policy       string        `json:"policy"`
	Roots        []merkle.Hash `json:"roots"`
	Head         merkle.Hash   `json:"head"`
	RegisteredAt time.Time     `json:"registered_at"`
}

// RegistrationFor builds the registration of a committed manifest.
func RegistrationFor(m Manifest, at time.Time) (Registration, error) {
	if m.Commitment == nil {
		return Registration{}, fmt.Errorf("run %s has no commitment", m.RunID)
	}
	return Registration{
		RunID:        m.RunID,
		Profile:      m.Profile,
		BatchSize:    m.Commitment.BatchSize,
		Policy:       string(m.Commitment.Policy),
		Roots:        m.Commitment.Roots(),
		Head:         m.Commitment.Head,
		RegisteredAt: at.UTC(),
	}, nil
}

func (r Registration) Validate() error {
	var errs []error
	if r.RunID == "" {
		errs = append(errs, errors.New("run_id is required"))
	}
	if r.BatchSize <= 0 {
		errs = append(errs, errors.New("batch_size must be > 0"))
	}
	if _, err := merkle.ParsePadPolicy(r.Policy); err != nil {
		errs = append(errs, err)
	}
	if merkle.HeadOf(r.Roots) != r.Head {
		errs = append(errs, errors.New("head does not chain the roots"))
	}
	if r.RegisteredAt.IsZero() {
		errs = append(errs, errors.New("registered_at is required"))
	}
	return errors.Join(errs...)
}

// Registry stores registrations.
type Registry interface {
	// Register stores r. It fails with ErrAlreadyRegistered if r.RunID exists.
	Register(ctx context.Context, r Registration) error
	// Lookup returns the registration of runID or ErrNotFound.
	Lookup(ctx context.Context, runID string) (Registration, error)
	// List returns all registrations ordered by run ID.
	List(ctx context.Context) ([]Registration, error)
	Close() error
}

// Backend names.
const (
	BackendFile   = "file"
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
)

// OpenRegistry opens the registry backend under dir.
func OpenRegistry(backend, dir string, logger *slog.Logger, m *telemetry.Metrics) (Registry, error) {
	var (
		reg Registry
		err error
	)
	switch backend {
	case BackendFile, "":
		backend = BackendFile
		reg, err = NewFileRegistry(filepath.Join(dir, "registry"))
	case BackendBadger:
		cfg := DefaultBadgerConfig()
		cfg.Path = filepath.Join(dir, "registry.badger")
		cfg.Logger = logger
		reg, err = OpenBadgerRegistry(cfg)
	case BackendSQLite:
		reg, err = OpenSQLiteRegistry(filepath.Join(dir, "registry.db"))
	default:
		return nil, fmt.Errorf("unknown registry backend %q (expected file|badger|sqlite)", backend)
	}
	if err != nil {
		return nil, err
	}
	return Instrument(reg, backend, logger, m), nil
}

type instrumented struct {
	Registry
	backend string
	logger  *slog.Logger
	metrics *telemetry.Metrics
}

// Instrument wraps reg with logging and metrics.
func Instrument(reg Registry, backend string, logger *slog.Logger, m *telemetry.Metrics) Registry {
	return &instrumented{Registry: reg, backend: backend, logger: telemetry.OrDiscard(logger), metrics: m}
}

func (i *instrumented) Register(ctx context.Context, r Registration) error {
	err := i.Registry.Register(ctx, r)
	i.metrics.ObserveRegistryOp(i.backend, "register", err)
	if err == nil {
		i.logger.Info("commitment registered",
			slog.String("backend", i.backend),
			slog.String("run_id", r.RunID),
			slog.String("head", r.Head.String()),
			slog.Int("batches", len(r.Roots)),
		)
	}
	return err
}

func (i *instrumented) Lookup(ctx context.Context, runID string) (Registration, error) {
	r, err := i.Registry.Lookup(ctx, runID)
	i.metrics.ObserveRegistryOp(i.backend, "lookup", err)
	return r, err
}

func (i *instrumented) List(ctx context.Context) ([]Registration, error) {
	rs, err := i.Registry.List(ctx)
	i.metrics.ObserveRegistryOp(i.backend, "list", err)
	return rs, err
}
