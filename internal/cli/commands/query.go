package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/leapstack-labs/leapbase/internal/request"
	"github.com/leapstack-labs/leapbase/pkg/core"
)

// NewQueryCommand creates the query command, which reads rows from one
// source.
func NewQueryCommand() *cobra.Command {
	var (
		whereJSON string
		fields    []string
		order     string
		limit     int
		autoJoin  bool
		format    string
	)

	cmd := &cobra.Command{
		Use:   "query <source> <table> [table...]",
		Short: "Query rows from a source",
		Long: `Read rows from one or more tables of a configured source. Conditions
are given as a JSON condition tree, e.g.:

  leapbase query app users --where '{"active": true, "age": {"gte": 18}}'

Multiple tables combined with --auto-join are joined along the foreign
keys declared in the source's schema.`,
		Args: cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := RuntimeFrom(cmd)
			if err != nil {
				return err
			}

			var where core.ConditionTree
			if whereJSON != "" {
				if err := json.Unmarshal([]byte(whereJSON), &where); err != nil {
					return fmt.Errorf("invalid --where condition: %w", err)
				}
			}

			schemas, cache, err := rt.OpenStack()
			if err != nil {
				return err
			}
			defer cache.Clear()

			req := &core.Request{
				Action:   core.ActionRead,
				Model:    args[0],
				Tables:   args[1:],
				Fields:   fields,
				Where:    where,
				AutoJoin: autoJoin,
				Limit:    limit,
			}
			if order != "" {
				req.Order = order
			}

			res, err := request.NewExecutor(schemas, cache, rt.Logger).Execute(cmd.Context(), req)
			if err != nil {
				return err
			}
			return renderRecords(cmd.OutOrStdout(), fields, res.Records, format)
		},
	}

	cmd.Flags().StringVar(&whereJSON, "where", "", "Condition tree as JSON")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "Fields to return (default all)")
	cmd.Flags().StringVar(&order, "order", "", "Order by, e.g. \"name\" or \"created_at DESC\"")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of rows (0 for all)")
	cmd.Flags().BoolVar(&autoJoin, "auto-join", false, "Join extra tables along declared foreign keys")
	cmd.Flags().StringVar(&format, "format", "table", "Output format (table|json)")
	return cmd
}
