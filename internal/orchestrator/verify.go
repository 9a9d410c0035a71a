package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/core"
	"rnseaudit/internal/merkle"
)

// Claim is what a publisher committed to: the log bytes, and optionally the
// head digest and batch roots published ahead of the data.
type Claim struct {
	Log   []byte
	Head  *merkle.Hash
	Roots []merkle.Hash
}

// Verification is the outcome of recomputing a run and comparing it with a
// claim.
type Verification struct {
	Match bool `json:"match"`
	// Digest is the digest of the recomputed log; ClaimedDigest is the digest of
	// the claimed log bytes.
	Digest        string `json:"digest"`
	ClaimedDigest string `json:"claimed_digest"`
	// FirstDifference is the 1-based line number of the first differing line,
	// or 0 when the logs are identical.
	FirstDifference int `json:"first_difference"`
	// HeadMatch is true when no head was claimed or the claimed head matches.
	HeadMatch bool `json:"head_match"`
	// RootMismatch lists indices of claimed roots that differ from the
	// recomputed ones (including roots missing on either side).
	RootMismatch []int `json:"root_mismatch,omitempty"`
}

// Verify recomputes req and compares it byte-exactly with claim.
//
// A mismatch is reported through the Verification, not as an error. Errors are
// reserved for requests that cannot be recomputed at all.
func (o *Orchestrator) Verify(ctx context.Context, req Request, claim Claim) (v *Verification, err error) {
	defer func() { o.metrics.ObserveVerification(v != nil && v.Match, err) }()

	if (claim.Head != nil || len(claim.Roots) > 0) && req.BatchSize == 0 {
		return nil, fmt.Errorf("%w: verifying a head or roots requires a batch size", core.ErrInvalidParams)
	}

	res, err := o.withoutSink().RunSerial(ctx, req)
	if err != nil && !errors.Is(err, core.ErrMerkleBatchIncomplete) {
		return nil, err
	}
	err = nil

	v = &Verification{
		Digest:          res.Digest,
		ClaimedDigest:   audit.Digest(claim.Log),
		FirstDifference: audit.FirstDifference(res.Log, claim.Log),
		HeadMatch:       true,
	}
	if claim.Head != nil {
		v.HeadMatch = res.Commitment != nil && res.Commitment.Head == *claim.Head
	}
	if len(claim.Roots) > 0 {
		var roots []merkle.Hash
		if res.Commitment != nil {
			roots = res.Commitment.Roots()
		}
		n := max(len(roots), len(claim.Roots))
		for i := 0; i < n; i++ {
			if i >= len(roots) || i >= len(claim.Roots) || roots[i] != claim.Roots[i] {
				v.RootMismatch = append(v.RootMismatch, i)
			}
		}
	}
	v.Match = v.FirstDifference == 0 && v.Digest == v.ClaimedDigest && v.HeadMatch && len(v.RootMismatch) == 0

	if v.Match {
		o.logger.Info("verification passed", slog.String("digest", v.Digest))
	} else {
		o.logger.Warn("verification failed",
			slog.String("digest", v.Digest),
			slog.String("claimed_digest", v.ClaimedDigest),
			slog.Int("first_difference", v.FirstDifference),
			slog.Bool("head_match", v.HeadMatch),
			slog.Int("root_mismatches", len(v.RootMismatch)),
		)
	}
	return v, nil
}

// Reproduce runs req twice, once in parallel and once serially, and reports
// whether both produced the same log.
func (o *Orchestrator) Reproduce(ctx context.Context, req Request) (bool, *Result, error) {
	par, err := o.Run(ctx, req)
	if err != nil && !errors.Is(err, core.ErrMerkleBatchIncomplete) {
		return false, nil, err
	}
	ser, err := o.withoutSink().RunSerial(ctx, req)
	if err != nil && !errors.Is(err, core.ErrMerkleBatchIncomplete) {
		return false, nil, err
	}
	return par.Digest == ser.Digest && audit.FirstDifference(par.Log, ser.Log) == 0, par, nil
}

// withoutSink returns a copy of o that does not write logs, so recomputations
// never touch the published output.
func (o *Orchestrator) withoutSink() *Orchestrator {
	cp := *o
	cp.sink = nil
	return &cp
}
