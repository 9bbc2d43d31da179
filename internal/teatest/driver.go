// Package teatest drives bubbletea models synchronously in tests.
//
// A Driver stands in for tea.Program: it calls Update directly and drains
// the returned Cmds on the test goroutine, so a test can type a line, press
// Enter and assert on the model right after. Lines the model prints with
// tea.Println are recorded and available from Printed.
//
// Cmds that block, such as cursor blink timers, are run with a short
// timeout and dropped if they do not return.
package teatest

import (
	"fmt"
	"reflect"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

// MaxDrainDepth bounds how many chained Cmds one message may produce.
const MaxDrainDepth = 100

// cmdTimeout separates Cmds that compute a message (statements, form
// transitions) from timer Cmds that would block for hundreds of
// milliseconds.
const cmdTimeout = 10 * time.Millisecond

// Driver is a synchronous harness for a tea.Model.
type Driver struct {
	T     *testing.T
	Model tea.Model

	// Quitting is set once tea.Quit has been drained. The runtime normally
	// consumes tea.QuitMsg itself, so the driver records it here.
	Quitting bool

	printed []string
}

// Option configures the Driver during construction.
type Option func(*Driver)

// New creates a Driver for model. Call DrainInit to run the model's Init.
func New(t *testing.T, model tea.Model, opts ...Option) *Driver {
	t.Helper()
	d := &Driver{T: t, Model: model}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// WithSize delivers a WindowSizeMsg before anything else.
func WithSize(w, h int) Option {
	return func(d *Driver) {
		d.T.Helper()
		d.Model, _ = d.Model.Update(tea.WindowSizeMsg{Width: w, Height: h})
	}
}

// DrainInit runs the model's Init command and everything it leads to.
func (d *Driver) DrainInit() {
	d.T.Helper()
	d.drain(d.Model.Init(), 0)
}

// Send dispatches msg through Update and drains the resulting Cmds.
// Messages sent after the model quit are dropped.
func (d *Driver) Send(msg tea.Msg) {
	d.T.Helper()
	if d.Quitting {
		return
	}
	var cmd tea.Cmd
	d.Model, cmd = d.Model.Update(msg)
	d.drain(cmd, 0)
}

// PressKey sends a single character.
func (d *Driver) PressKey(r rune) {
	d.T.Helper()
	d.Send(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{r}})
}

// PressEnter sends Enter.
func (d *Driver) PressEnter() {
	d.T.Helper()
	d.Send(tea.KeyMsg{Type: tea.KeyEnter})
}

// PressEsc sends Escape.
func (d *Driver) PressEsc() {
	d.T.Helper()
	d.Send(tea.KeyMsg{Type: tea.KeyEsc})
}

// PressCtrlC sends Ctrl+C.
func (d *Driver) PressCtrlC() {
	d.T.Helper()
	d.Send(tea.KeyMsg{Type: tea.KeyCtrlC})
}

// PressUp sends the Up arrow.
func (d *Driver) PressUp() {
	d.T.Helper()
	d.Send(tea.KeyMsg{Type: tea.KeyUp})
}

// PressDown sends the Down arrow.
func (d *Driver) PressDown() {
	d.T.Helper()
	d.Send(tea.KeyMsg{Type: tea.KeyDown})
}

// Type sends s one character at a time.
func (d *Driver) Type(s string) {
	d.T.Helper()
	for _, r := range s {
		d.PressKey(r)
	}
}

// Submit types line and presses Enter.
func (d *Driver) Submit(line string) {
	d.T.Helper()
	d.Type(line)
	d.PressEnter()
}

// View returns the model's current rendering.
func (d *Driver) View() string {
	return d.Model.View()
}

// Printed returns everything the model printed above its view, one entry
// per tea.Println call.
func (d *Driver) Printed() []string {
	return d.printed
}

// LastPrinted returns the most recent printed entry, or "" if none.
func (d *Driver) LastPrinted() string {
	if len(d.printed) == 0 {
		return ""
	}
	return d.printed[len(d.printed)-1]
}

func (d *Driver) drain(cmd tea.Cmd, depth int) {
	d.T.Helper()
	if cmd == nil {
		return
	}
	if depth >= MaxDrainDepth {
		d.T.Logf("teatest: drain depth limit (%d) reached", MaxDrainDepth)
		return
	}

	msg := runWithTimeout(cmd)
	switch {
	case msg == nil, isCursorBlink(msg):
		return
	case d.recordPrint(msg):
		return
	}

	switch msg := msg.(type) {
	case tea.BatchMsg:
		for _, sub := range msg {
			d.drain(sub, depth+1)
		}
	case tea.QuitMsg:
		d.Quitting = true
		d.Model, _ = d.Model.Update(msg)
	default:
		var next tea.Cmd
		d.Model, next = d.Model.Update(msg)
		d.drain(next, depth+1)
	}
}

// recordPrint captures tea.Println output. The message type is unexported,
// so its body is read through reflection.
func (d *Driver) recordPrint(msg tea.Msg) bool {
	v := reflect.ValueOf(msg)
	if v.Kind() != reflect.Struct || v.Type().Name() != "printLineMessage" {
		return false
	}
	if body := v.FieldByName("messageBody"); body.IsValid() && body.Kind() == reflect.String {
		d.printed = append(d.printed, body.String())
	}
	return true
}

func runWithTimeout(cmd tea.Cmd) tea.Msg {
	ch := make(chan tea.Msg, 1)
	go func() {
		ch <- cmd()
	}()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(cmdTimeout):
		return nil
	}
}

// isCursorBlink matches the unexported blink messages of bubbles/cursor,
// which chain into timer Cmds.
func isCursorBlink(msg tea.Msg) bool {
	name := strings.ToLower(fmt.Sprintf("%T", msg))
	return strings.Contains(name, "blink")
}
