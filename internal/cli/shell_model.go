package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/huh"
	"github.com/charmbracelet/lipgloss"

	"github.com/alexanderramin/dax/internal/cli/formatter"
	"github.com/alexanderramin/dax/internal/dataaccess"
)

// shellMode tracks which interaction mode the shell is in.
type shellMode int

const (
	modePrompt  shellMode = iota // Normal statement input.
	modeConfirm                  // Commit-or-rollback form on exit.
)

const maxCellWidth = 40

// shellModel is the bubbletea Model for the interactive SQL shell. All
// statements run on one connection; between \begin and \commit or
// \rollback they run on the open transaction instead.
type shellModel[K dataaccess.Kind] struct {
	// bubbletea components
	input  textinput.Model
	form   *huh.Form
	commit *bool // bound to the confirm form
	width  int

	// database
	conn    *dataaccess.Connection[K]
	tx      *dataaccess.Transaction[K]
	engine  string
	ctx     context.Context
	timeout time.Duration

	mode shellMode

	// history
	history     []string
	historyIdx  int
	saveHistory func(string)

	// lifecycle
	quitting bool
	farewell string
}

type shellOptions struct {
	engine      string
	timeout     time.Duration
	history     []string
	saveHistory func(string)
}

func newShellModel[K dataaccess.Kind](ctx context.Context, conn *dataaccess.Connection[K], opts shellOptions) shellModel[K] {
	ti := textinput.New()
	ti.Focus()
	ti.Prompt = ""
	ti.CharLimit = 4096
	ti.ShowSuggestions = true
	ti.SetSuggestions(metaCommands)
	ti.KeyMap.NextSuggestion = key.NewBinding(key.WithKeys("ctrl+n"))
	ti.KeyMap.PrevSuggestion = key.NewBinding(key.WithKeys("ctrl+p"))

	return shellModel[K]{
		input:       ti,
		conn:        conn,
		engine:      opts.engine,
		ctx:         ctx,
		timeout:     opts.timeout,
		history:     opts.history,
		historyIdx:  len(opts.history),
		saveHistory: opts.saveHistory,
	}
}

var metaCommands = []string{`\begin`, `\commit`, `\rollback`, `\status`, `\help`, `\clear`, `\q`}

// ── bubbletea interface ──────────────────────────────────────────────────────

func (m shellModel[K]) Init() tea.Cmd {
	return tea.Batch(
		textinput.Blink,
		tea.Println(formatter.FormatShellWelcome(m.engine, m.conn.Kind().Name())),
	)
}

func (m shellModel[K]) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.input.Width = msg.Width - lipgloss.Width(m.promptPrefix()) - 1
		if m.form != nil {
			m.form = m.form.WithWidth(msg.Width)
		}
		return m, nil

	case tea.KeyMsg:
		if msg.Type == tea.KeyCtrlC {
			var cmd tea.Cmd
			if m.mode == modeConfirm {
				cmd = m.finish(false)
			} else {
				cmd = m.quit()
			}
			return m, cmd
		}
		if m.mode == modeConfirm {
			return m.updateConfirm(msg)
		}
		return m.updatePrompt(msg)
	}

	if m.mode == modeConfirm && m.form != nil {
		return m.updateConfirm(msg)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m shellModel[K]) View() string {
	if m.quitting {
		if m.farewell != "" {
			return m.farewell + "\n" + formatter.Dim("Goodbye.") + "\n"
		}
		return formatter.Dim("Goodbye.") + "\n"
	}
	if m.mode == modeConfirm && m.form != nil {
		return m.form.View()
	}
	return m.promptPrefix() + m.input.View()
}

func (m *shellModel[K]) promptPrefix() string {
	name := formatter.StylePurple.Render("dax")
	if m.conn.Kind().ReadOnly() {
		name += formatter.Dim(" (ro)")
	}
	if m.tx != nil {
		return name + " " + formatter.StyleYellow.Render("tx") + " " + formatter.Dim("❯") + " "
	}
	return name + " " + formatter.Dim("❯") + " "
}

// ── prompt mode ──────────────────────────────────────────────────────────────

func (m shellModel[K]) updatePrompt(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEnter:
		input := strings.TrimSpace(m.input.Value())
		m.input.Reset()
		if input == "" {
			return m, nil
		}
		m.addHistory(input)
		output, cmd := m.executeCommand(input)
		var cmds []tea.Cmd
		if output != "" {
			cmds = append(cmds, tea.Println(output))
		}
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)

	case tea.KeyUp:
		m.historyUp()
		return m, nil

	case tea.KeyDown:
		m.historyDown()
		return m, nil

	default:
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
}

// executeCommand runs one line of input and returns the text to print.
func (m *shellModel[K]) executeCommand(input string) (string, tea.Cmd) {
	if !strings.HasPrefix(input, `\`) {
		switch strings.ToLower(input) {
		case "exit", "quit":
			return "", m.quit()
		}
		return m.runStatement(input), nil
	}

	fields := strings.Fields(input)
	switch strings.ToLower(fields[0]) {
	case `\q`, `\quit`:
		return "", m.quit()
	case `\begin`:
		return m.begin(fields[1:]), nil
	case `\commit`:
		return m.end("commit"), nil
	case `\rollback`:
		return m.end("rollback"), nil
	case `\status`:
		return m.status(), nil
	case `\help`, `\?`:
		return formatter.FormatShellHelp(), nil
	case `\clear`:
		return "", tea.ClearScreen
	default:
		return formatter.Error(fmt.Errorf("unknown command %s, try \\help", fields[0])), nil
	}
}

func (m *shellModel[K]) statementContext() (context.Context, context.CancelFunc) {
	if m.timeout > 0 {
		return context.WithTimeout(m.ctx, m.timeout)
	}
	return context.WithCancel(m.ctx)
}

// queryable is the open transaction, or the connection when there is none.
func (m *shellModel[K]) queryable() dataaccess.Queryable {
	if m.tx != nil {
		return m.tx
	}
	return m.conn
}

func (m *shellModel[K]) runStatement(query string) string {
	ctx, cancel := m.statementContext()
	defer cancel()

	start := time.Now()
	r, err := m.queryable().ExecuteReader(ctx, query, nil)
	if err != nil {
		return formatter.Error(err)
	}
	defer r.Close()

	cols, rows, err := readAll(r)
	if err != nil {
		return formatter.Error(err)
	}
	elapsed := formatter.Dim(formatter.FormatDuration(time.Since(start)))
	if len(cols) == 0 {
		return formatter.Success("OK") + " " + elapsed
	}
	return renderResultTable(cols, rows) + "\n" + formatter.Dim(formatter.RowCount(len(rows))) + " " + elapsed
}

// begin parses "\begin [level] [deferred|immediate]".
func (m *shellModel[K]) begin(args []string) string {
	var opts []dataaccess.TxOption
	for _, arg := range args {
		switch strings.ToLower(arg) {
		case "deferred":
			opts = append(opts, dataaccess.WithDeferred(true))
		case "immediate":
			opts = append(opts, dataaccess.WithDeferred(false))
		default:
			level, err := dataaccess.ParseIsolationLevel(arg)
			if err != nil {
				return formatter.Error(err)
			}
			opts = append(opts, dataaccess.WithIsolation(level))
		}
	}

	ctx, cancel := m.statementContext()
	defer cancel()
	tx, err := m.conn.BeginTx(ctx, opts...)
	if err != nil {
		return formatter.Error(err)
	}
	m.tx = tx
	return formatter.Dim("begun transaction ") + formatter.StyleYellow.Render(tx.ID().String())
}

// end commits or rolls back the open transaction. The transaction is kept
// when it is still active after a failure, e.g. a commit that timed out.
func (m *shellModel[K]) end(op string) string {
	if m.tx == nil {
		return formatter.Error(errors.New("no transaction in progress"))
	}
	ctx, cancel := m.statementContext()
	defer cancel()

	var err error
	if op == "commit" {
		err = m.tx.Commit(ctx)
	} else {
		err = m.tx.Rollback(ctx)
	}
	if err != nil && !errors.Is(err, dataaccess.ErrTransactionState) && !errors.Is(err, dataaccess.ErrInvalidState) {
		return formatter.Error(err)
	}

	id := m.tx.ID().String()
	_ = m.tx.Close()
	m.tx = nil
	if err != nil {
		return formatter.Error(err)
	}
	if op == "commit" {
		return formatter.Success("committed transaction " + id)
	}
	return formatter.Dim("rolled back transaction " + id)
}

func (m *shellModel[K]) status() string {
	if m.tx == nil {
		return formatter.FormatShellStatus(m.conn.State().String(), "")
	}
	desc := m.tx.ID().String()
	if level := m.tx.Isolation(); level != dataaccess.LevelDefault {
		desc += " " + strings.ToLower(level.String())
	}
	if m.tx.ReadOnly() {
		desc += " read-only"
	}
	return formatter.FormatShellStatus(m.conn.State().String(), desc)
}

// quit exits the shell, first asking what to do with an open transaction.
func (m *shellModel[K]) quit() tea.Cmd {
	if m.tx == nil {
		m.quitting = true
		return tea.Quit
	}
	return m.startConfirm()
}

// ── confirm mode ─────────────────────────────────────────────────────────────

func (m *shellModel[K]) startConfirm() tea.Cmd {
	m.commit = new(bool)
	*m.commit = true
	m.form = huh.NewForm(
		huh.NewGroup(
			huh.NewConfirm().
				Title("Commit the open transaction?").
				Description("Choosing no rolls it back.").
				Affirmative("Commit").
				Negative("Roll back").
				Value(m.commit),
		),
	).WithTheme(daxHuhTheme()).WithShowHelp(false)
	if m.width > 0 {
		m.form = m.form.WithWidth(m.width)
	}
	m.mode = modeConfirm
	return m.form.Init()
}

func (m shellModel[K]) updateConfirm(msg tea.Msg) (tea.Model, tea.Cmd) {
	// Escape returns to the prompt with the transaction still open.
	if keyMsg, ok := msg.(tea.KeyMsg); ok && keyMsg.Type == tea.KeyEsc {
		m.mode = modePrompt
		m.form = nil
		return m, tea.Println(formatter.Dim("Cancelled."))
	}

	form, cmd := m.form.Update(msg)
	if f, ok := form.(*huh.Form); ok {
		m.form = f
	}
	if m.form.State == huh.StateCompleted {
		done := m.finish(*m.commit)
		return m, tea.Batch(cmd, done)
	}
	return m, cmd
}

// finish ends the open transaction and quits.
func (m *shellModel[K]) finish(commit bool) tea.Cmd {
	if m.tx != nil {
		if commit {
			m.farewell = m.end("commit")
		} else {
			m.farewell = m.end("rollback")
		}
	}
	m.mode = modePrompt
	m.form = nil
	m.quitting = true
	return tea.Quit
}

// ── history ──────────────────────────────────────────────────────────────────

func (m *shellModel[K]) addHistory(line string) {
	if line == "" {
		return
	}
	m.history = append(m.history, line)
	m.historyIdx = len(m.history)
	if m.saveHistory != nil {
		m.saveHistory(line)
	}
}

func (m *shellModel[K]) historyUp() {
	if m.historyIdx > 0 {
		m.historyIdx--
		m.input.SetValue(m.history[m.historyIdx])
		m.input.CursorEnd()
	}
}

func (m *shellModel[K]) historyDown() {
	if m.historyIdx < len(m.history)-1 {
		m.historyIdx++
		m.input.SetValue(m.history[m.historyIdx])
		m.input.CursorEnd()
	} else {
		m.historyIdx = len(m.history)
		m.input.SetValue("")
	}
}

// ── rendering ────────────────────────────────────────────────────────────────

// renderResultTable renders a static bubbles table sized to its rows.
func renderResultTable(cols []string, rows [][]string) string {
	columns := make([]table.Column, len(cols))
	for i, c := range cols {
		w := lipgloss.Width(c)
		for _, r := range rows {
			w = max(w, lipgloss.Width(r[i]))
		}
		columns[i] = table.Column{Title: c, Width: min(w, maxCellWidth)}
	}
	tableRows := make([]table.Row, len(rows))
	for i, r := range rows {
		tableRows[i] = table.Row(r)
	}

	styles := table.DefaultStyles()
	styles.Header = styles.Header.Foreground(formatter.ColorHeader).Bold(true)
	styles.Cell = styles.Cell.Foreground(formatter.ColorFg)
	styles.Selected = lipgloss.NewStyle()

	t := table.New(
		table.WithColumns(columns),
		table.WithRows(tableRows),
		table.WithStyles(styles),
		table.WithFocused(false),
		table.WithHeight(len(rows)+1),
	)
	return t.View()
}

// daxHuhTheme returns a huh theme matching the shell palette.
func daxHuhTheme() *huh.Theme {
	t := huh.ThemeBase()

	t.Focused.Title = lipgloss.NewStyle().Foreground(formatter.ColorHeader).Bold(true)
	t.Focused.Description = lipgloss.NewStyle().Foreground(formatter.ColorDim)
	t.Focused.FocusedButton = lipgloss.NewStyle().Foreground(formatter.ColorFg).Background(formatter.ColorHeader).Padding(0, 1)
	t.Focused.BlurredButton = lipgloss.NewStyle().Foreground(formatter.ColorDim).Padding(0, 1)

	t.Blurred.Title = lipgloss.NewStyle().Foreground(formatter.ColorDim)

	return t
}
