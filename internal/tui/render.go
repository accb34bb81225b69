// Package tui renders DuckType conversations in a terminal.
package tui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/ducktype/ducktype/internal/client"
	"golang.org/x/term"
)

const (
	defaultWidth = 80
	minWrap      = 40
)

// Width is the terminal width of fd, or 80 when fd is not a terminal.
func Width(fd int) int {
	w, _, err := term.GetSize(fd)
	if err != nil || w <= 0 {
		return defaultWidth
	}
	return w
}

type Renderer struct {
	out io.Writer
	md  *glamour.TermRenderer
}

// NewRenderer wraps markdown at width minus a margin. style is a glamour standard style
// name; empty picks one from the terminal background.
func NewRenderer(out io.Writer, width int, style string) (*Renderer, error) {
	wrap := width - 10
	if wrap < minWrap {
		wrap = minWrap
	}
	opts := []glamour.TermRendererOption{glamour.WithWordWrap(wrap)}
	if style == "" {
		opts = append(opts, glamour.WithAutoStyle())
	} else {
		opts = append(opts, glamour.WithStandardStyle(style))
	}
	md, err := glamour.NewTermRenderer(opts...)
	if err != nil {
		return nil, err
	}
	return &Renderer{out: out, md: md}, nil
}

// Markdown prints md rendered, or raw when rendering fails.
func (r *Renderer) Markdown(md string) {
	s, err := r.md.Render(md)
	if err != nil {
		s = md + "\n"
	}
	fmt.Fprint(r.out, s)
}

func (r *Renderer) Info(format string, args ...any) {
	fmt.Fprintf(r.out, format+"\n", args...)
}

func ConversationList(list []client.Conversation) string {
	if len(list) == 0 {
		return "_No conversations yet. Start one with `/new`._\n"
	}
	var b strings.Builder
	b.WriteString("## Conversations\n\n")
	for _, c := range list {
		fmt.Fprintf(&b, "- **%s** `%s` (%d messages, updated %s)\n",
			c.Title, c.ID, len(c.Messages), c.UpdatedAt.Local().Format("Jan 2 15:04"))
	}
	return b.String()
}

func ConversationDetail(c *client.Conversation) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	for _, m := range c.Messages {
		fmt.Fprintf(&b, "**You:** %s\n\n", m.User)
		b.WriteString(Questions(m.AI.Items()))
		b.WriteString("\n")
	}
	if c.AhaMoment != nil {
		fmt.Fprintf(&b, "> **Aha moment:** %s\n", c.AhaMoment.Text)
	}
	return b.String()
}

func Questions(qs []string) string {
	var b strings.Builder
	for _, q := range qs {
		fmt.Fprintf(&b, "🦆 %s\n\n", q)
	}
	return b.String()
}

func Prompts(ps []string) string {
	var b strings.Builder
	b.WriteString("## Not sure where to start?\n\n")
	for i, p := range ps {
		fmt.Fprintf(&b, "%d. %s\n", i+1, p)
	}
	return b.String()
}
