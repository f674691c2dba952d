package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbase/pkg/core"
	"github.com/leapstack-labs/leapbase/pkg/validate"
)

// NewValidateCommand creates the validate command. Without arguments it
// checks every configured source's schema file; given a source, table
// and JSON record it validates the record against the table's rules.
func NewValidateCommand() *cobra.Command {
	var update bool

	cmd := &cobra.Command{
		Use:   "validate [source table record-json]",
		Short: "Validate schema files or a record",
		Args:  cobra.MatchAll(cobra.MinimumNArgs(0), cobra.MaximumNArgs(3)),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}
			loader, _, err := rt.OpenStack()
			if err != nil {
				return err
			}

			if len(args) == 0 {
				ok := true
				for alias := range rt.Config.Sources {
					if _, err := loader.Load(alias); err != nil {
						ok = false
						_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %v\n", alias, err)
						continue
					}
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: ok\n", alias)
				}
				if !ok {
					return fmt.Errorf("schema validation failed")
				}
				return nil
			}
			if len(args) != 3 {
				return fmt.Errorf("record validation needs <source> <table> <record-json>")
			}

			s, err := loader.Load(args[0])
			if err != nil {
				return err
			}
			var rec core.Record
			if err := json.Unmarshal([]byte(args[2]), &rec); err != nil {
				return fmt.Errorf("invalid record JSON: %w", err)
			}

			v := validate.New(s, rt.Logger)
			var verrs core.ValidationErrors
			if update {
				verrs = v.ValidateUpdate(args[1], rec)
			} else {
				verrs = v.ValidateInsert(args[1], rec)
			}
			if verrs != nil {
				return verrs
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}

	cmd.Flags().BoolVar(&update, "update", false, "Validate as a partial update instead of an insert")
	return cmd
}
