package commands

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbase/internal/request"
	"github.com/leapstack-labs/leapbase/pkg/core"
)

// NewTablesCommand creates the tables command, which lists the tables
// present on a source and whether the schema defines them.
func NewTablesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "tables <source>",
		Short: "List tables on a source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}

			loader, cache, err := rt.OpenStack()
			if err != nil {
				return err
			}
			defer cache.Clear()

			alias := args[0]
			res, err := request.NewExecutor(loader, cache, rt.Logger).
				Execute(cmd.Context(), &core.Request{Action: core.ActionListTables, Model: alias})
			if err != nil {
				return err
			}
			s, err := loader.Load(alias)
			if err != nil {
				return err
			}

			t := table.NewWriter()
			t.SetOutputMirror(cmd.OutOrStdout())
			t.SetStyle(table.StyleLight)
			t.AppendHeader(table.Row{"Table", "In Schema"})
			for _, name := range res.Tables {
				inSchema := "no"
				if _, ok := s.Table(name); ok {
					inSchema = "yes"
				}
				t.AppendRow(table.Row{name, inSchema})
			}
			t.Render()
			return nil
		},
	}
}
