package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rnseaudit/internal/ledger"
	"rnseaudit/internal/merkle"
	"rnseaudit/internal/orchestrator"
)

type verifyReport struct {
	RunID string `json:"run_id,omitempty"`
	*orchestrator.Verification
	Registered *bool `json:"registered_head_match,omitempty"`
}

func (a *app) verifyCommand() *cobra.Command {
	var (
		flags   runFlags
		runID   string
		logPath string
		head    string
	)
	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Recompute a run and compare it byte-exactly with a published log",
		Long: "Recompute a run from its seeds and params and compare the log digest, " +
			"the batch roots and the head. With --run-id the seeds and params come from " +
			"the stored manifest; with --log they come from configuration and flags.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (runID == "") == (logPath == "") {
				return invalidInvocationf("exactly one of --run-id or --log is required")
			}
			var (
				req    orchestrator.Request
				claim  orchestrator.Claim
				report verifyReport
			)
			if runID != "" {
				st, err := a.store()
				if err != nil {
					return err
				}
				m, err := st.LoadManifest(runID)
				if err != nil {
					return err
				}
				// The stored bytes are the claim; a tampered log is a mismatch, not a load error.
				log, err := os.ReadFile(st.LogPath(runID))
				if err != nil {
					return fmt.Errorf("read log of run %s: %w", runID, err)
				}
				seeds, err := m.SeedValues()
				if err != nil {
					return err
				}
				req = orchestrator.Request{Seeds: seeds, Ticks: m.Ticks, Params: m.Params}
				claim.Log = log
				if c := m.Commitment; c != nil {
					req.BatchSize, req.Policy = c.BatchSize, c.Policy
					h := c.Head
					claim.Head, claim.Roots = &h, c.Roots()
				}
				report.RunID = runID
			} else {
				cfg := a.cfg
				if err := flags.apply(cmd, &cfg); err != nil {
					return err
				}
				log, err := os.ReadFile(logPath)
				if err != nil {
					return invalidInvocationf("--log: %v", err)
				}
				req = requestFor(cfg)
				claim.Log = log
			}
			if head != "" {
				h, err := merkle.ParseHash(head)
				if err != nil {
					return invalidInvocationf("--head: %v", err)
				}
				if req.BatchSize == 0 {
					return invalidInvocationf("--head needs a batch size")
				}
				claim.Head = &h
			}

			o := orchestrator.New(orchestrator.WithLogger(a.logger), orchestrator.WithMetrics(a.metrics))
			v, err := o.Verify(cmd.Context(), req, claim)
			if err != nil {
				return err
			}
			report.Verification = v

			if runID != "" && claim.Head != nil {
				match, err := a.checkRegistered(cmd, runID, *claim.Head)
				if err != nil {
					return err
				}
				report.Registered = match
				if match != nil && !*match {
					v.Match = false
				}
			}
			if err := a.printJSON(report); err != nil {
				return err
			}
			if !v.Match {
				return fmt.Errorf("%w: first differing line %d", errMismatch, v.FirstDifference)
			}
			return nil
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&runID, "run-id", "", "verify a stored run")
	cmd.Flags().StringVar(&logPath, "log", "", "verify a log file against configuration and flags")
	cmd.Flags().StringVar(&head, "head", "", "published head digest (hex) to check")
	return cmd
}

// checkRegistered compares the registered head of runID with head. It returns
// nil when the run was never registered.
func (a *app) checkRegistered(cmd *cobra.Command, runID string, head merkle.Hash) (*bool, error) {
	reg, err := a.openRegistry()
	if err != nil {
		return nil, err
	}
	defer reg.Close()
	r, err := reg.Lookup(cmd.Context(), runID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	match := r.Head == head
	return &match, nil
}
