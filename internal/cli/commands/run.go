package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbase/internal/journal"
	"github.com/leapstack-labs/leapbase/internal/workflow"
)

// NewRunCommand creates the run command, which executes a workflow file.
func NewRunCommand() *cobra.Command {
	var noJournal bool

	cmd := &cobra.Command{
		Use:   "run <workflow.yaml>",
		Short: "Execute a workflow file",
		Long: `Execute the steps of a workflow file in order against the configured
sources. With transactional: true in the file, a failing step rolls back
every change the workflow made.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}

			wf, err := workflow.Load(args[0])
			if err != nil {
				return err
			}

			loader, cache, err := rt.OpenStack()
			if err != nil {
				return err
			}

			orch := workflow.NewOrchestrator(cache, loader, rt.Logger)
			orch.SetOutput(cmd.OutOrStdout())

			if !noJournal {
				j, err := journal.Open(rt.Config.JournalPath, rt.Logger)
				if err != nil {
					return err
				}
				defer j.Close()
				orch.SetRecorder(j)
			}

			started := time.Now()
			results, err := orch.Run(cmd.Context(), wf)
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Workflow %s: %d steps completed in %s\n",
				wf.Name, len(results), time.Since(started).Round(time.Millisecond))
			return nil
		},
	}

	cmd.Flags().BoolVar(&noJournal, "no-journal", false, "Skip recording the run in the journal")
	return cmd
}

// NewRunsCommand creates the runs command, which lists journal history.
func NewRunsCommand() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "runs",
		Short: "List recorded workflow runs",
		RunE: func(cmd *cobra.Command, _ []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}

			j, err := journal.Open(rt.Config.JournalPath, rt.Logger)
			if err != nil {
				return err
			}
			defer j.Close()

			runs, err := j.Runs(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderRuns(cmd.OutOrStdout(), runs)
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of runs to show")
	return cmd
}
