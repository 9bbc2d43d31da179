package cli

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/alexanderramin/dax/internal/cli/formatter"
	"github.com/alexanderramin/dax/internal/dataaccess"
)

// errDryRun makes WithinTx roll back a --rollback run.
var errDryRun = errors.New("rolled back on request")

type txRun struct {
	statements []string
	params     any
	opts       []dataaccess.TxOption
	rollback   bool
	format     string
}

func newTxCmd(app *App) *cobra.Command {
	var (
		params    paramFlags
		format    formatFlag
		isolation isolationFlag
		deferred  bool
		rollback  bool
	)

	cmd := &cobra.Command{
		Use:   "tx SQL...",
		Short: "Run statements in one transaction",
		Long: `Run every argument as a statement inside one transaction and commit at
the end. If any statement fails, the transaction is rolled back and nothing
is committed. Rows returned by a statement are printed as they complete.

Parameters apply to every statement.`,
		Example: `  dax tx --isolation serializable \
    "UPDATE accounts SET balance = balance - 10 WHERE id = 'a'" \
    "UPDATE accounts SET balance = balance + 10 WHERE id = 'b'"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := params.params()
			if err != nil {
				return err
			}
			run := txRun{
				statements: args,
				params:     p,
				rollback:   rollback,
				format:     format.resolve(app),
				opts:       []dataaccess.TxOption{dataaccess.WithIsolation(isolation.level)},
			}
			if cmd.Flags().Changed("deferred") {
				run.opts = append(run.opts, dataaccess.WithDeferred(deferred))
			}

			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			if app.ReadOnly {
				return withConnection(ctx, app.Factory, func(ctx context.Context, c *dataaccess.Connection[dataaccess.ReadOnly]) error {
					return runTx(ctx, out, c, run)
				})
			}
			return withConnection(ctx, app.Factory, func(ctx context.Context, c *dataaccess.Connection[dataaccess.ReadWrite]) error {
				return runTx(ctx, out, c, run)
			})
		},
	}

	params.register(cmd)
	cmd.Flags().Var(&format, "format", "output format: table or tsv (default: table on a terminal)")
	cmd.Flags().Var(&isolation, "isolation", "isolation level, e.g. read-committed or serializable")
	cmd.Flags().BoolVar(&deferred, "deferred", false, "defer lock acquisition to the first statement (engines that support it)")
	cmd.Flags().BoolVar(&rollback, "rollback", false, "roll back instead of committing")
	return cmd
}

func runTx[K dataaccess.Kind](ctx context.Context, out io.Writer, uow dataaccess.UnitOfWork[K], run txRun) error {
	var id string
	err := uow.WithinTx(ctx, func(ctx context.Context, tx *dataaccess.Transaction[K]) error {
		id = tx.ID().String()
		for _, stmt := range run.statements {
			if err := printRows(ctx, out, tx, stmt, run.params, run.format); err != nil {
				return err
			}
		}
		if run.rollback {
			return errDryRun
		}
		return nil
	}, run.opts...)

	switch {
	case errors.Is(err, errDryRun):
		fmt.Fprintln(out, formatter.Dim("rolled back transaction "+id))
		return nil
	case err != nil:
		return err
	}
	fmt.Fprintln(out, formatter.Success("committed transaction "+id))
	return nil
}
