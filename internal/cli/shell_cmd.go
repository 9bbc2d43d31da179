package cli

import (
	"context"
	"errors"
	"fmt"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/alexanderramin/dax/internal/dataaccess"
)

func newShellCmd(app *App) *cobra.Command {
	return &cobra.Command{
		Use:   "shell",
		Short: "Interactive SQL shell on one connection",
		Long: `Start an interactive shell. Statements run on a single connection, so
\begin, \commit and \rollback control one transaction across several
statements. Quitting with a transaction open asks whether to commit it.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShell(cmd, app)
		},
	}
}

func runShell(cmd *cobra.Command, app *App) error {
	if app.ReadOnly {
		return runShellKind[dataaccess.ReadOnly](cmd, app)
	}
	return runShellKind[dataaccess.ReadWrite](cmd, app)
}

func runShellKind[K dataaccess.Kind](cmd *cobra.Command, app *App) (err error) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	conn, err := dataaccess.Open[K](app.Factory)
	if err != nil {
		return err
	}
	defer func() {
		err = errors.Join(err, conn.Close())
	}()
	if err := conn.Open(ctx); err != nil {
		return fmt.Errorf("connecting: %w", err)
	}

	model := newShellModel(ctx, conn, shellOptions{
		engine:      app.Config.Driver,
		timeout:     app.Config.Timeout,
		history:     loadShellHistory(),
		saveHistory: appendShellHistory,
	})

	p := tea.NewProgram(model,
		tea.WithContext(ctx),
		tea.WithInput(cmd.InOrStdin()),
		tea.WithOutput(cmd.OutOrStdout()),
	)
	final, err := p.Run()
	if err != nil {
		return fmt.Errorf("running shell: %w", err)
	}
	if m, ok := final.(shellModel[K]); ok && m.tx != nil {
		return m.tx.Close()
	}
	return nil
}
