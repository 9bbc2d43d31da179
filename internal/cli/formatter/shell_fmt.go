package formatter

import (
	"fmt"
	"strings"
)

// FormatShellWelcome renders the welcome banner shown on shell startup.
func FormatShellWelcome(engine, kind string) string {
	var b strings.Builder

	logo := StylePurple.Render("  dax")
	b.WriteString("\n")
	b.WriteString(logo + StyleDim.Render(" · "+engine+" · "+kind) + "\n")
	b.WriteString(StyleDim.Render("  ─────────────────────────────") + "\n")
	b.WriteString("\n")
	b.WriteString(StyleDim.Render("  Type SQL and press Enter. Statements run on one connection.") + "\n")
	b.WriteString("\n")
	b.WriteString("  " + StyleGreen.Render(`\begin`) + StyleDim.Render("         Start a transaction") + "\n")
	b.WriteString("  " + StyleGreen.Render(`\commit`) + StyleDim.Render("        Commit it") + "\n")
	b.WriteString("  " + StyleGreen.Render(`\help`) + StyleDim.Render("          Show all commands") + "\n")
	b.WriteString("  " + StyleGreen.Render(`\q`) + StyleDim.Render("             Quit") + "\n")
	b.WriteString("\n")

	return b.String()
}

// helpCategory groups commands under a section header for the help display.
type helpCategory struct {
	title    string
	commands [][]string
}

// renderHelpCategory renders a single category section with header and command rows.
func renderHelpCategory(cat helpCategory) string {
	var b strings.Builder
	b.WriteString("\n " + StyleHeader.Render(strings.ToUpper(cat.title)) + "\n")
	for _, c := range cat.commands {
		b.WriteString(fmt.Sprintf("  %-32s %s\n",
			StyleGreen.Render(c[0]),
			StyleDim.Render(c[1])))
	}
	return b.String()
}

// FormatShellHelp renders the categorized command reference.
func FormatShellHelp() string {
	categories := []helpCategory{
		{
			title: "Statements",
			commands: [][]string{
				{"<sql>", "Run a statement; rows are shown as a table"},
				{`\status`, "Show the connection and transaction state"},
			},
		},
		{
			title: "Transactions",
			commands: [][]string{
				{`\begin [level] [deferred|immediate]`, "Begin a transaction"},
				{`\commit`, "Commit the open transaction"},
				{`\rollback`, "Roll back the open transaction"},
			},
		},
		{
			title: "Utilities",
			commands: [][]string{
				{`\help`, "Show this command reference"},
				{`\clear`, "Clear the screen"},
				{`\q`, "Quit (asks before discarding a transaction)"},
			},
		},
	}

	var b strings.Builder
	for _, cat := range categories {
		b.WriteString(renderHelpCategory(cat))
	}

	b.WriteString("\n" + StyleDim.Render(
		"Levels: read-uncommitted, read-committed, repeatable-read, serializable.\n"+
			"Up/Down browse history."))

	return RenderBox("Commands", b.String())
}

// FormatShellStatus renders the one-line summary for \status.
func FormatShellStatus(state, tx string) string {
	if tx == "" {
		return StyleDim.Render("connection ") + StyleFg.Render(state) + StyleDim.Render(", no transaction")
	}
	return StyleDim.Render("connection ") + StyleFg.Render(state) + StyleDim.Render(", transaction ") + StyleYellow.Render(tx)
}
