// Package tui holds the terminal presentation helpers for the chat REPL.
package tui

import (
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/muesli/termenv"
	"golang.org/x/term"

	"github.com/atelierlabs/concierge/pkg/domain"
)

// PrintBanner outputs the ASCII art banner.
func PrintBanner(version string) {
	p := termenv.ColorProfile()
	s1 := termenv.String("                      _                      ").Foreground(p.Color("#818cf8"))
	s2 := termenv.String("  ___ ___  _ __   ___(_) ___ _ __ __ _  ___  ").Foreground(p.Color("#a78bfa"))
	s3 := termenv.String(" / __/ _ \\| '_ \\ / __| |/ _ \\ '__/ _` |/ _ \\ ").Foreground(p.Color("#c084fc"))
	s4 := termenv.String("| (_| (_) | | | | (__| |  __/ | | (_| |  __/ ").Foreground(p.Color("#e879f9"))
	s5 := termenv.String(" \\___\\___/|_| |_|\\___|_|\\___|_|  \\__, |\\___| ").Foreground(p.Color("#f472b6"))
	s6 := termenv.String("                                 |___/       ").Foreground(p.Color("#fb7185"))

	fmt.Println()
	fmt.Println(s1)
	fmt.Println(s2)
	fmt.Println(s3)
	fmt.Println(s4)
	fmt.Println(s5)
	fmt.Println(s6)
	fmt.Printf("  v%s\n\n", version)
}

// Interactive reports whether stdout is a terminal.
func Interactive() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}

// NewRenderer returns a function that renders markdown for the terminal.
// Outside a terminal it degrades to plain passthrough.
func NewRenderer() func(string) (string, error) {
	if !Interactive() {
		return func(md string) (string, error) { return md, nil }
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
	)
	if err != nil {
		return func(md string) (string, error) { return md, nil }
	}
	return func(markdown string) (string, error) {
		return r.Render(markdown)
	}
}

// RenderReply formats a structured reply as markdown.
func RenderReply(reply domain.Reply) string {
	var b strings.Builder
	b.WriteString(reply.Text)
	b.WriteString("\n")

	if len(reply.Options) > 0 {
		b.WriteString("\n")
		for i, opt := range reply.Options {
			fmt.Fprintf(&b, "%d. %s\n", i+1, opt)
		}
	}

	for _, tbl := range reply.Tables {
		b.WriteString("\n")
		b.WriteString(renderTable(tbl))
	}

	if reply.Stage != "" {
		fmt.Fprintf(&b, "\n*stage: %s*\n", reply.Stage)
	}
	return b.String()
}

func renderTable(tbl domain.Table) string {
	var b strings.Builder
	b.WriteString("| " + strings.Join(tbl.Columns, " | ") + " |\n")
	b.WriteString("|" + strings.Repeat(" --- |", len(tbl.Columns)) + "\n")
	for _, row := range tbl.Rows {
		cells := make([]string, len(row))
		for i, v := range row {
			cells[i] = fmt.Sprintf("%v", v)
		}
		b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
	}
	return b.String()
}
