package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"rnseaudit/internal/core"
	"rnseaudit/internal/ledger"
	"rnseaudit/internal/orchestrator"
)

type runSummary struct {
	RunID          string  `json:"run_id,omitempty"`
	Profile        string  `json:"profile"`
	Streams        int     `json:"streams"`
	Records        int     `json:"records"`
	Accepted       int     `json:"accepted"`
	AcceptanceRate float64 `json:"acceptance_rate"`
	Digest         string  `json:"digest"`
	Batches        int     `json:"batches,omitempty"`
	Head           string  `json:"head,omitempty"`
	Log            string  `json:"log,omitempty"`
	Registry       string  `json:"registry,omitempty"`
}

func (a *app) runCommand() *cobra.Command {
	var (
		flags    runFlags
		out      string
		noLedger bool
		register bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Generate the audit log of a run and persist it",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := a.cfg
			if err := flags.apply(cmd, &cfg); err != nil {
				return err
			}
			if register && noLedger {
				return invalidInvocationf("--register needs the ledger; drop --no-ledger")
			}
			if register && cfg.Commit.BatchSize == 0 {
				return invalidInvocationf("--register needs --batch-size > 0")
			}

			opts := []orchestrator.Option{
				orchestrator.WithLogger(a.logger),
				orchestrator.WithMetrics(a.metrics),
				orchestrator.WithMaxParallel(cfg.Run.MaxParallel),
			}
			if out != "" {
				opts = append(opts, orchestrator.WithSink(ledger.AtomicFile{Path: out}))
			}
			req := requestFor(cfg)
			res, err := orchestrator.New(opts...).Run(cmd.Context(), req)
			if err != nil {
				if errors.Is(err, core.ErrMerkleBatchIncomplete) {
					return fmt.Errorf("%w (use --policy pad or a batch size dividing %d records)", err, len(req.Seeds)*req.Ticks)
				}
				return err
			}

			sum := runSummary{
				Profile:        core.ProfileVersion,
				Streams:        len(req.Seeds),
				Records:        len(res.Lines),
				Accepted:       res.Accepted,
				AcceptanceRate: res.AcceptanceRate(),
				Digest:         res.Digest,
				Log:            out,
			}
			if res.Commitment != nil {
				sum.Batches = len(res.Commitment.Batches)
				sum.Head = res.Commitment.Head.String()
			}
			if noLedger {
				return a.printJSON(sum)
			}

			m, err := a.persist(req, res)
			if err != nil {
				return err
			}
			sum.RunID = m.RunID
			if register {
				if _, err := a.registerRun(cmd, m); err != nil {
					return err
				}
				sum.Registry = a.cfg.Ledger.Registry
			}
			return a.printJSON(sum)
		},
	}
	flags.register(cmd)
	cmd.Flags().StringVar(&out, "out", "", "also write the audit log to this file")
	cmd.Flags().BoolVar(&noLedger, "no-ledger", false, "do not persist the run")
	cmd.Flags().BoolVar(&register, "register", false, "pre-register the run's commitment in the registry")
	return cmd
}

func (a *app) persist(req orchestrator.Request, res *orchestrator.Result) (ledger.Manifest, error) {
	st, err := a.store()
	if err != nil {
		return ledger.Manifest{}, err
	}
	id, err := ledger.NewRunID()
	if err != nil {
		return ledger.Manifest{}, err
	}
	m := ledger.Manifest{
		RunID:      id,
		Profile:    core.ProfileVersion,
		CreatedAt:  time.Now().UTC(),
		Seeds:      ledger.FormatSeeds(req.Seeds),
		Ticks:      req.Ticks,
		Params:     req.Params,
		Records:    len(res.Lines),
		Accepted:   res.Accepted,
		Digest:     res.Digest,
		Commitment: res.Commitment,
	}
	if err := st.SaveRun(m, res.Log); err != nil {
		return ledger.Manifest{}, fmt.Errorf("persist run: %w", err)
	}
	a.logger.Info("run persisted", slog.String("run_id", id), slog.String("dir", st.Dir()))
	return m, nil
}

func (a *app) registerRun(cmd *cobra.Command, m ledger.Manifest) (ledger.Registration, error) {
	r, err := ledger.RegistrationFor(m, time.Now())
	if err != nil {
		return ledger.Registration{}, invalidInvocationf("%v", err)
	}
	reg, err := a.openRegistry()
	if err != nil {
		return ledger.Registration{}, err
	}
	defer reg.Close()
	if err := reg.Register(cmd.Context(), r); err != nil {
		return ledger.Registration{}, err
	}
	return r, nil
}
