package ledger

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
)

// NewRunID returns a fresh, time-ordered run identifier.
func NewRunID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate run id: %w", err)
	}
	return id.String(), nil
}

// Manifest is the persistent metadata of one run.
//
// RunID and CreatedAt are operational metadata. They never enter any digest:
// two runs with the same seeds and params have different manifests but the same
// log digest and head.
type Manifest struct {
	RunID     string      `json:"run_id"`
	Profile   string      `json:"profile"`
	CreatedAt time.Time   `json:"created_at"`
	Seeds     []string    `json:"seeds"`
	Ticks     int         `json:"ticks"`
	Params    core.Params `json:"params"`
	Records   int         `json:"records"`
	Accepted  int         `json:"accepted"`
	Digest    string      `json:"digest"`
	// Commitment is nil when the run was not committed.
	Commitment *merkle.Commitment `json:"commitment"`
}

// SeedValues parses the hex seeds back into integers.
func (m Manifest) SeedValues() ([]uint64, error) {
	out := make([]uint64, len(m.Seeds))
	for i, s := range m.Seeds {
		var v uint64
		if _, err := fmt.Sscanf(s, "0x%x", &v); err != nil {
			return nil, fmt.Errorf("seed %d %q: %w", i, s, err)
		}
		out[i] = v
	}
	return out, nil
}

// FormatSeeds renders seeds the way manifests store them.
func FormatSeeds(seeds []uint64) []string {
	out := make([]string, len(seeds))
	for i, s := range seeds {
		out[i] = fmt.Sprintf("0x%016x", s)
	}
	return out
}

func (m Manifest) Validate() error {
	var errs []error
	if _, err := uuid.Parse(m.RunID); err != nil {
		errs = append(errs, fmt.Errorf("run_id must be a UUID: %w", err))
	}
	if m.Profile != core.ProfileVersion {
		errs = append(errs, fmt.Errorf("unsupported profile %q (want %q)", m.Profile, core.ProfileVersion))
	}
	if m.CreatedAt.IsZero() {
		errs = append(errs, errors.New("created_at is required"))
	}
	if len(m.Seeds) == 0 {
		errs = append(errs, errors.New("seeds are required"))
	}
	if _, err := m.SeedValues(); err != nil {
		errs = append(errs, err)
	}
	if m.Ticks < 0 {
		errs = append(errs, errors.New("ticks must be >= 0"))
	}
	if err := m.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if m.Records != len(m.Seeds)*m.Ticks {
		errs = append(errs, fmt.Errorf("records = %d, want seeds*ticks = %d", m.Records, len(m.Seeds)*m.Ticks))
	}
	if m.Accepted < 0 || m.Accepted > m.Records {
		errs = append(errs, fmt.Errorf("accepted %d out of range [0,%d]", m.Accepted, m.Records))
	}
	if len(strings.TrimSpace(m.Digest)) != 64 {
		errs = append(errs, errors.New("digest must be a hex SHA-256"))
	}
	if c := m.Commitment; c != nil {
		if c.BatchSize <= 0 {
			errs = append(errs, errors.New("commitment batch_size must be > 0"))
		}
		if merkle.HeadOf(c.Roots()) != c.Head {
			errs = append(errs, errors.New("commitment head does not chain its roots"))
		}
	}
	return errors.Join(errs...)
}
