package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/mattn/go-isatty"

	"github.com/alexanderramin/dax/internal/cli"
	"github.com/alexanderramin/dax/internal/config"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	app := &cli.App{
		Config: config.Load(),
	}

	// Detect interactive terminal for shell-only entrypoint.
	app.IsInteractive = func() bool {
		return isTerminal(os.Stdin)
	}
	app.IsTerminalOutput = func() bool {
		return isTerminal(os.Stdout)
	}

	return cli.NewRootCmd(app).ExecuteContext(ctx)
}

func isTerminal(f *os.File) bool {
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
