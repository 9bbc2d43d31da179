package formatter

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFormatValue(t *testing.T) {
	when := time.Date(2026, 2, 7, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		input any
		want  string
	}{
		{"nil", nil, "NULL"},
		{"bytes", []byte("abc"), "abc"},
		{"string", "x", "x"},
		{"int64", int64(-42), "-42"},
		{"float64", 1.5, "1.5"},
		{"bool", true, "true"},
		{"time", when, "2026-02-07T12:00:00Z"},
		{"other", int32(7), "7"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatValue(tt.input))
		})
	}
}

func TestFormatRow(t *testing.T) {
	assert.Equal(t, []string{"1", "NULL", "a"}, FormatRow([]any{int64(1), nil, []byte("a")}))
}

func TestRowCount(t *testing.T) {
	assert.Equal(t, "(0 rows)", RowCount(0))
	assert.Equal(t, "(1 row)", RowCount(1))
	assert.Equal(t, "(12 rows)", RowCount(12))
}

func TestRenderTable(t *testing.T) {
	out := RenderTable([]string{"id", "owner"}, [][]string{{"1", "alice"}, {"22", "bob"}})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	assert.Len(t, lines, 4)
	assert.Contains(t, lines[0], "id")
	assert.Contains(t, lines[0], "owner")
	assert.Contains(t, lines[2], "alice")
	assert.Equal(t, strings.Index(lines[2], "alice"), strings.Index(lines[3], "bob"), "columns are aligned")

	assert.Empty(t, RenderTable(nil, nil))
}

func TestRenderTSV(t *testing.T) {
	out := RenderTSV([]string{"a", "b"}, [][]string{{"1", "two\tthree"}, {"x\ny", `back\slash`}})
	assert.Equal(t, "a\tb\n1\ttwo\\tthree\nx\\ny\tback\\\\slash\n", out)
	assert.Equal(t, "1\t2\n", TSVLine([]string{"1", "2"}))
}

func TestFormatShellWelcome(t *testing.T) {
	out := FormatShellWelcome("sqlite", "read_write")
	assert.Contains(t, out, "dax")
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "read_write")
	assert.Contains(t, out, `\begin`)
}

func TestFormatShellHelp(t *testing.T) {
	out := FormatShellHelp()
	assert.Contains(t, out, "COMMANDS")
	assert.Contains(t, out, "TRANSACTIONS")
	assert.Contains(t, out, `\rollback`)
	assert.Contains(t, out, "repeatable-read")
}

func TestFormatShellStatus(t *testing.T) {
	assert.Contains(t, FormatShellStatus("open", ""), "no transaction")
	assert.Contains(t, FormatShellStatus("open", "abc"), "abc")
}

func TestError(t *testing.T) {
	assert.Contains(t, Error(errors.New("boom")), "error: boom")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "1.5s", FormatDuration(1500*time.Millisecond))
	assert.Equal(t, "12µs", FormatDuration(12*time.Microsecond))
}
