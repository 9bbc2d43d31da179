package cli

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
)

const maxHistoryLines = 500

// shellHistoryPath returns the path to the shell history file, honoring
// DAX_HISTORY. Empty means history is not persisted.
func shellHistoryPath() string {
	if v, ok := os.LookupEnv("DAX_HISTORY"); ok {
		return v
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".dax", "shell_history")
}

func loadShellHistory() []string {
	path := shellHistoryPath()
	if path == "" {
		return nil
	}
	return loadHistoryFromPath(path)
}

// loadHistoryFromPath returns the most recent non-blank lines of the file,
// or nil if it cannot be read. Statements are stored one per line.
func loadHistoryFromPath(path string) []string {
	f, err := os.Open(path)
	if err != nil {
		return nil
	}
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) > maxHistoryLines {
		lines = lines[len(lines)-maxHistoryLines:]
	}
	return lines
}

func appendShellHistory(line string) {
	if path := shellHistoryPath(); path != "" {
		appendHistoryToPath(path, line)
	}
}

// appendHistoryToPath appends one line, creating the file and its directory
// as needed. Errors are ignored; history is best-effort.
func appendHistoryToPath(path, line string) {
	line = strings.Join(strings.Fields(line), " ")
	if line == "" {
		return
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return
	}
	defer f.Close()
	_, _ = f.WriteString(line + "\n")
}
