package cli

import (
	"context"
	"fmt"
	"io"
	"slices"

	"github.com/spf13/cobra"

	"github.com/alexanderramin/dax/internal/cli/formatter"
	"github.com/alexanderramin/dax/internal/dataaccess"
)

func newQueryCmd(app *App) *cobra.Command {
	var (
		params paramFlags
		format formatFlag
		stream bool
		single bool
	)

	cmd := &cobra.Command{
		Use:   "query SQL",
		Short: "Run a query and print its rows",
		Long: `Run a query and print its rows. Rows are buffered and printed as a
table on a terminal or as tab-separated values otherwise.

With --stream, rows are printed as tab-separated lines as they are read,
without buffering. With --single, the query must return exactly one row.`,
		Example: `  dax query "SELECT * FROM accounts WHERE owner = :owner" -p owner=alice
  dax query --stream "SELECT id FROM events"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if stream && single {
				return fmt.Errorf("--stream and --single are mutually exclusive")
			}
			p, err := params.params()
			if err != nil {
				return err
			}
			ctx, cancel := app.commandContext(cmd)
			defer cancel()

			out := cmd.OutOrStdout()
			return app.withQueryable(ctx, func(ctx context.Context, q dataaccess.Queryable) error {
				switch {
				case stream:
					return streamRows(ctx, out, q, args[0], p)
				case single:
					return printSingle(ctx, out, q, args[0], p, format.resolve(app))
				default:
					return printRows(ctx, out, q, args[0], p, format.resolve(app))
				}
			})
		},
	}

	params.register(cmd)
	cmd.Flags().Var(&format, "format", "output format: table or tsv (default: table on a terminal)")
	cmd.Flags().BoolVar(&stream, "stream", false, "print rows as they are read")
	cmd.Flags().BoolVar(&single, "single", false, "require exactly one row and print it as name/value pairs")
	return cmd
}

// readAll drains a reader into display rows.
func readAll(r *dataaccess.Reader) ([]string, [][]string, error) {
	cols, err := r.Columns()
	if err != nil {
		return nil, nil, err
	}
	var rows [][]string
	values := make([]any, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for r.Next() {
		if err := r.Scan(dest...); err != nil {
			return nil, nil, err
		}
		rows = append(rows, formatter.FormatRow(values))
	}
	return cols, rows, r.Err()
}

func printRows(ctx context.Context, out io.Writer, q dataaccess.Queryable, query string, params any, format string) error {
	r, err := q.ExecuteReader(ctx, query, params)
	if err != nil {
		return err
	}
	defer r.Close()

	cols, rows, err := readAll(r)
	if err != nil {
		return err
	}
	writeResult(out, cols, rows, format)
	return nil
}

func writeResult(out io.Writer, cols []string, rows [][]string, format string) {
	if len(cols) == 0 {
		fmt.Fprintln(out, formatter.Success("OK"))
		return
	}
	if format == formatTSV {
		fmt.Fprint(out, formatter.RenderTSV(cols, rows))
		return
	}
	fmt.Fprint(out, formatter.RenderTable(cols, rows))
	fmt.Fprintln(out, formatter.Dim(formatter.RowCount(len(rows))))
}

func streamRows(ctx context.Context, out io.Writer, q dataaccess.Queryable, query string, params any) error {
	s, err := dataaccess.QueryUnbuffered[[]any](ctx, q, query, params)
	if err != nil {
		return err
	}
	defer s.Close()

	cols, err := s.Columns()
	if err != nil {
		return err
	}
	fmt.Fprint(out, formatter.TSVLine(cols))
	for row, err := range s.All() {
		if err != nil {
			return err
		}
		fmt.Fprint(out, formatter.TSVLine(formatter.FormatRow(row)))
	}
	return nil
}

func printSingle(ctx context.Context, out io.Writer, q dataaccess.Queryable, query string, params any, format string) error {
	row, err := dataaccess.QuerySingle[map[string]any](ctx, q, query, params)
	if err != nil {
		return err
	}
	names := make([]string, 0, len(row))
	for name := range row {
		names = append(names, name)
	}
	slices.Sort(names)

	rows := make([][]string, len(names))
	for i, name := range names {
		rows[i] = []string{name, formatter.FormatValue(row[name])}
	}
	if format == formatTSV {
		fmt.Fprint(out, formatter.RenderTSV([]string{"column", "value"}, rows))
		return nil
	}
	fmt.Fprint(out, formatter.RenderTable([]string{"column", "value"}, rows))
	return nil
}
