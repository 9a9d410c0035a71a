package cli

import (
	"bytes"

	"github.com/spf13/cobra"

	"rnseaudit/internal/galaxy"
)

func (a *app) galaxyCommand() *cobra.Command {
	var (
		logPath string
		runID   string
	)
	cmd := &cobra.Command{
		Use:   "galaxy",
		Short: "Summarize the accretion walk of a log as a rotation curve",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if (runID == "") == (logPath == "") {
				return invalidInvocationf("exactly one of --run-id or --log is required")
			}
			var log []byte
			if runID != "" {
				st, err := a.store()
				if err != nil {
					return err
				}
				if log, _, err = st.LoadLog(runID); err != nil {
					return err
				}
			} else {
				var err error
				if log, _, err = readLog(logPath); err != nil {
					return err
				}
			}
			cloud, err := galaxy.FromLog(bytes.NewReader(log))
			if err != nil {
				return err
			}
			rc, err := galaxy.Analyze(cloud)
			if err != nil {
				return err
			}
			return a.printJSON(rc)
		},
	}
	cmd.Flags().StringVar(&logPath, "log", "", "log file")
	cmd.Flags().StringVar(&runID, "run-id", "", "stored run")
	return cmd
}
