package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/alexanderramin/dax/internal/cli/formatter"
	"github.com/alexanderramin/dax/internal/dataaccess"
)

func newExecCmd(app *App) *cobra.Command {
	var params paramFlags

	cmd := &cobra.Command{
		Use:     "exec SQL",
		Short:   "Run a statement that returns no rows",
		Example: `  dax exec "UPDATE accounts SET balance = balance - :amount WHERE id = :id" -p id=acct-1 -p amount=25`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := params.params()
			if err != nil {
				return err
			}
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			err = app.withQueryable(ctx, func(ctx context.Context, q dataaccess.Queryable) error {
				return q.Execute(ctx, args[0], p)
			})
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.Success("OK"))
			return nil
		},
	}

	params.register(cmd)
	return cmd
}

func newScalarCmd(app *App) *cobra.Command {
	var params paramFlags

	cmd := &cobra.Command{
		Use:   "scalar SQL",
		Short: "Print the first column of the first row",
		Long: `Print the first column of the first row. Remaining columns and rows are
ignored. NULL is printed when the query returns no rows or a NULL value.`,
		Example: `  dax scalar "SELECT COUNT(*) FROM accounts"`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := params.params()
			if err != nil {
				return err
			}
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			var (
				value any
				ok    bool
			)
			err = app.withQueryable(ctx, func(ctx context.Context, q dataaccess.Queryable) error {
				var err error
				value, ok, err = dataaccess.ExecuteScalar[any](ctx, q, args[0], p)
				return err
			})
			if err != nil {
				return err
			}
			if !ok {
				value = nil
			}
			fmt.Fprintln(cmd.OutOrStdout(), formatter.FormatValue(value))
			return nil
		},
	}

	params.register(cmd)
	return cmd
}
