package cli

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/alexanderramin/dax/internal/dataaccess"
)

var errMixedParams = errors.New("use either --param or --arg, not both")

var (
	_ pflag.Value = (*isolationFlag)(nil)
	_ pflag.Value = (*formatFlag)(nil)
)

// paramFlags collects statement parameters from the command line.
type paramFlags struct {
	named      []string
	positional []string
}

func (p *paramFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&p.named, "param", "p", nil, "named parameter as name=value (repeatable)")
	cmd.Flags().StringArrayVar(&p.positional, "arg", nil, "positional parameter (repeatable)")
}

// params returns nil, a map of named values or a slice of positional values.
func (p *paramFlags) params() (any, error) {
	if len(p.named) > 0 && len(p.positional) > 0 {
		return nil, errMixedParams
	}
	if len(p.positional) > 0 {
		args := make([]any, len(p.positional))
		for i, v := range p.positional {
			args[i] = parseLiteral(v)
		}
		return args, nil
	}
	if len(p.named) == 0 {
		return nil, nil
	}

	named := make(map[string]any, len(p.named))
	for _, kv := range p.named {
		name, value, ok := strings.Cut(kv, "=")
		name = strings.TrimLeft(strings.TrimSpace(name), "@:$")
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q: expected name=value", kv)
		}
		named[name] = parseLiteral(value)
	}
	return named, nil
}

// parseLiteral types a command-line value: null, integers, floats and
// booleans are recognized; anything else is text. Single quotes force text.
func parseLiteral(s string) any {
	if len(s) >= 2 && s[0] == '\'' && s[len(s)-1] == '\'' {
		return s[1 : len(s)-1]
	}
	switch strings.ToLower(s) {
	case "null":
		return nil
	case "true":
		return true
	case "false":
		return false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return n
	}
	if strings.ContainsAny(s, ".eE") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
	}
	return s
}

// isolationFlag is a pflag.Value over dataaccess isolation levels.
type isolationFlag struct {
	level dataaccess.IsolationLevel
}

func (f *isolationFlag) String() string {
	if f.level == dataaccess.LevelDefault {
		return "default"
	}
	return strings.ToLower(strings.ReplaceAll(f.level.String(), " ", "-"))
}

func (f *isolationFlag) Set(s string) error {
	level, err := dataaccess.ParseIsolationLevel(s)
	if err != nil {
		return err
	}
	f.level = level
	return nil
}

func (f *isolationFlag) Type() string { return "level" }

// Output formats.
const (
	formatTable = "table"
	formatTSV   = "tsv"
)

// formatFlag is a pflag.Value restricted to the output formats.
type formatFlag struct {
	value string
}

func (f *formatFlag) String() string { return f.value }

func (f *formatFlag) Set(s string) error {
	switch s = strings.ToLower(s); s {
	case formatTable, formatTSV:
		f.value = s
		return nil
	default:
		return fmt.Errorf("unknown format %q (want %s or %s)", s, formatTable, formatTSV)
	}
}

func (f *formatFlag) Type() string { return "format" }

// resolve returns the explicit format, or table on a terminal and TSV
// otherwise.
func (f *formatFlag) resolve(app *App) string {
	if f.value != "" {
		return f.value
	}
	if app.IsTerminalOutput != nil && app.IsTerminalOutput() {
		return formatTable
	}
	return formatTSV
}
