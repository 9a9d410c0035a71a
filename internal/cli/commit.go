package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"rnseaudit/internal/audit"
	"rnseaudit/internal/merkle"
)

// readLog reads a log file and checks that it is canonical.
func readLog(path string) ([]byte, [][]byte, error) {
	log, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, invalidInvocationf("--log: %v", err)
	}
	lines, err := audit.SplitLines(log)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	for i, l := range lines {
		if _, err := audit.ParseLine(l); err != nil {
			return nil, nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
	}
	return log, lines, nil
}

func (a *app) commitCommand() *cobra.Command {
	var (
		logPath   string
		runID     string
		batchSize int
		policy    string
	)
	cmd := &cobra.Command{
		Use:   "commit",
		Short: "Compute or pre-register the Merkle commitment of a log",
		Long: "With --log, compute the batch roots and head of a log file and print them " +
			"without revealing the log. With --run-id, register the stored run's " +
			"commitment in the registry.",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (runID == "") == (logPath == "") {
				return invalidInvocationf("exactly one of --run-id or --log is required")
			}
			if runID != "" {
				st, err := a.store()
				if err != nil {
					return err
				}
				m, err := st.LoadManifest(runID)
				if err != nil {
					return err
				}
				if m.Commitment == nil {
					return invalidInvocationf("run %s was not committed; rerun with --batch-size", runID)
				}
				r, err := a.registerRun(cmd, m)
				if err != nil {
					return err
				}
				return a.printJSON(r)
			}

			r := a.cfg.Commit.BatchSize
			if cmd.Flags().Changed("batch-size") {
				r = batchSize
			}
			p := a.cfg.Commit.Policy
			if cmd.Flags().Changed("policy") {
				p = policy
			}
			pol, err := merkle.ParsePadPolicy(p)
			if err != nil {
				return invalidInvocationf("--policy: %v", err)
			}
			_, lines, err := readLog(logPath)
			if err != nil {
				return err
			}
			com, err := merkle.Commit(lines, r, pol)
			if err != nil {
				return err
			}
			return a.printJSON(com)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "log file to commit")
	cmd.Flags().StringVar(&runID, "run-id", "", "stored run to register")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Merkle batch size R")
	cmd.Flags().StringVar(&policy, "policy", "", "partial final batch policy: strict|pad")
	return cmd
}

type proofReport struct {
	Line  int                `json:"line"`
	Batch int                `json:"batch"`
	Leaf  merkle.Hash        `json:"leaf"`
	Root  merkle.Hash        `json:"root"`
	Head  merkle.Hash        `json:"head"`
	Proof []merkle.ProofStep `json:"proof"`
}

func (a *app) proveCommand() *cobra.Command {
	var (
		logPath   string
		line      int
		batchSize int
		policy    string
	)
	cmd := &cobra.Command{
		Use:   "prove",
		Short: "Print the inclusion proof of one log line under its batch root",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if logPath == "" {
				return invalidInvocationf("--log is required")
			}
			r := a.cfg.Commit.BatchSize
			if cmd.Flags().Changed("batch-size") {
				r = batchSize
			}
			p := a.cfg.Commit.Policy
			if cmd.Flags().Changed("policy") {
				p = policy
			}
			pol, err := merkle.ParsePadPolicy(p)
			if err != nil {
				return invalidInvocationf("--policy: %v", err)
			}
			_, lines, err := readLog(logPath)
			if err != nil {
				return err
			}
			if line < 1 || line > len(lines) {
				return invalidInvocationf("--line must be in [1,%d]", len(lines))
			}
			com, err := merkle.Commit(lines, r, pol)
			if err != nil {
				return err
			}
			idx := line - 1
			batch := idx / r
			leaves, err := merkle.BatchLeaves(lines, com, batch)
			if err != nil {
				return err
			}
			proof, err := merkle.Proof(leaves, idx%r)
			if err != nil {
				return err
			}
			rep := proofReport{
				Line:  line,
				Batch: batch,
				Leaf:  leaves[idx%r],
				Root:  com.Batches[batch].Root,
				Head:  com.Head,
				Proof: proof,
			}
			if !merkle.VerifyProof(rep.Root, rep.Leaf, proof) {
				return fmt.Errorf("internal error: proof of line %d does not verify", line)
			}
			return a.printJSON(rep)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "log file")
	cmd.Flags().IntVar(&line, "line", 0, "1-based line number to prove")
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "Merkle batch size R")
	cmd.Flags().StringVar(&policy, "policy", "", "partial final batch policy: strict|pad")
	return cmd
}
