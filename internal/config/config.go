package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/alexanderramin/dax/internal/dataaccess"
	"github.com/alexanderramin/dax/internal/db"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// Config holds the process configuration of the dax command.
type Config struct {
	// Driver names the engine, see db.Lookup.
	Driver string
	// DSN is the read-write target.
	DSN string
	// ReadOnlyDSN is the read-only target. Empty means DSN.
	ReadOnlyDSN string

	LogLevel  slog.Level
	LogFormat string

	// Timeout bounds each command. Zero means no timeout.
	Timeout time.Duration
}

// Default returns a Config with sensible defaults: a SQLite database at
// ~/.dax/dax.db, warnings and errors logged as text, no timeout.
func Default() Config {
	dsn := "dax.db"
	if home, err := os.UserHomeDir(); err == nil {
		dsn = filepath.Join(home, ".dax", "dax.db")
	}
	return Config{
		Driver:    "sqlite",
		DSN:       dsn,
		LogLevel:  slog.LevelWarn,
		LogFormat: FormatText,
	}
}

// Load reads configuration from environment variables, falling back to
// defaults for any unset or invalid values.
func Load() Config {
	cfg := Default()

	if v := os.Getenv("DAX_DRIVER"); v != "" {
		cfg.Driver = v
	}
	if v := os.Getenv("DAX_DSN"); v != "" {
		cfg.DSN = v
	}
	if v := os.Getenv("DAX_READONLY_DSN"); v != "" {
		cfg.ReadOnlyDSN = v
	}
	if v := os.Getenv("DAX_LOG_LEVEL"); v != "" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(v)); err == nil {
			cfg.LogLevel = level
		}
	}
	if v := strings.ToLower(os.Getenv("DAX_LOG_FORMAT")); v == FormatText || v == FormatJSON {
		cfg.LogFormat = v
	}
	if v := os.Getenv("DAX_TIMEOUT_MS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			cfg.Timeout = time.Duration(n) * time.Millisecond
		}
	}

	return cfg
}

// Logger builds the logger described by the configuration, writing to w.
func (c Config) Logger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.LogLevel}
	if c.LogFormat == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// Factory registers the read-write and read-only targets with a new
// dataaccess.Factory.
func (c Config) Factory(logger *slog.Logger) (*dataaccess.Factory, error) {
	engine, err := db.Lookup(c.Driver)
	if err != nil {
		return nil, fmt.Errorf("resolving driver: %w", err)
	}
	if c.DSN == "" {
		return nil, fmt.Errorf("no dsn configured for driver %s", engine.Name())
	}

	readOnly := c.ReadOnlyDSN
	if readOnly == "" {
		readOnly = c.DSN
	}

	f := dataaccess.NewFactory(dataaccess.WithLogger(logger))
	f.Register(dataaccess.ReadWrite{}, dataaccess.Target{Engine: engine, DSN: c.DSN})
	f.Register(dataaccess.ReadOnly{}, dataaccess.Target{Engine: engine, DSN: readOnly})
	return f, nil
}
