package tui

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/ducktype/ducktype/internal/client"
	"github.com/ducktype/ducktype/internal/conversation"
)

// MaxInsightLen is a UI convention only; the server stores longer text.
const MaxInsightLen = 300

// API is the subset of *client.Client the REPL drives.
type API interface {
	ListConversations(ctx context.Context) ([]client.Conversation, error)
	CreateConversation(ctx context.Context, title string) (string, error)
	GetConversation(ctx context.Context, id string) (*client.Conversation, error)
	SetInsight(ctx context.Context, id, text string) (*client.Insight, error)
	Rename(ctx context.Context, id, title string) (string, error)
	DeleteConversation(ctx context.Context, id string) error
	AppendMessage(ctx context.Context, id, user string, ai conversation.Reply) (*client.Message, error)
	Ask(ctx context.Context, turns []client.Turn) ([]string, error)
	StarterPrompts(ctx context.Context, summaries []string) ([]string, error)
}

var errQuit = errors.New("quit")

const helpText = "## Commands\n\n" +
	"- `/list` list conversations\n" +
	"- `/new [title]` start a conversation\n" +
	"- `/open <id>` open a conversation\n" +
	"- `/aha <text>` record the aha moment\n" +
	"- `/title <text>` rename the open conversation\n" +
	"- `/delete [id]` delete a conversation (the open one by default)\n" +
	"- `/prompts` suggest conversation starters\n" +
	"- `/exit` quit\n\n" +
	"Anything else is sent to the duck.\n"

type REPL struct {
	api     API
	r       *Renderer
	current *client.Conversation
}

func NewREPL(api API, r *Renderer) *REPL {
	return &REPL{api: api, r: r}
}

// Run reads commands from in until /exit or EOF.
func (p *REPL) Run(ctx context.Context, in io.Reader, prompt io.Writer) error {
	p.r.Markdown("# DuckType\n\nExplain your problem to the duck. Type `/help` for commands.\n")
	sc := bufio.NewScanner(in)
	for {
		fmt.Fprint(prompt, "\n> ")
		if !sc.Scan() {
			return sc.Err()
		}
		if err := p.Handle(ctx, sc.Text()); err != nil {
			if errors.Is(err, errQuit) {
				return nil
			}
			p.r.Info("error: %v", err)
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

// Handle executes one input line.
func (p *REPL) Handle(ctx context.Context, line string) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	if !strings.HasPrefix(line, "/") {
		return p.ask(ctx, line)
	}

	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "/exit", "/quit":
		return errQuit
	case "/help":
		p.r.Markdown(helpText)
	case "/list":
		list, err := p.api.ListConversations(ctx)
		if err != nil {
			return err
		}
		p.r.Markdown(ConversationList(list))
	case "/new":
		id, err := p.api.CreateConversation(ctx, arg)
		if err != nil {
			return err
		}
		return p.open(ctx, id)
	case "/open":
		if arg == "" {
			return errors.New("usage: /open <id>")
		}
		return p.open(ctx, arg)
	case "/aha":
		if err := p.requireOpen(); err != nil {
			return err
		}
		if arg == "" {
			return errors.New("usage: /aha <text>")
		}
		if n := utf8.RuneCountInString(arg); n > MaxInsightLen {
			p.r.Info("warning: aha moment is %d characters, more than %d", n, MaxInsightLen)
		}
		insight, err := p.api.SetInsight(ctx, p.current.ID, arg)
		if err != nil {
			return err
		}
		p.current.AhaMoment = insight
		p.r.Info("aha moment saved")
	case "/title":
		if err := p.requireOpen(); err != nil {
			return err
		}
		if arg == "" {
			return errors.New("usage: /title <text>")
		}
		title, err := p.api.Rename(ctx, p.current.ID, arg)
		if err != nil {
			return err
		}
		p.current.Title = title
		p.r.Info("renamed to %q", title)
	case "/delete":
		id := arg
		if id == "" {
			if err := p.requireOpen(); err != nil {
				return err
			}
			id = p.current.ID
		}
		if err := p.api.DeleteConversation(ctx, id); err != nil {
			return err
		}
		if p.current != nil && p.current.ID == id {
			p.current = nil
		}
		p.r.Info("deleted %s", id)
	case "/prompts":
		prompts, err := p.api.StarterPrompts(ctx, p.summaries(ctx))
		if err != nil {
			return err
		}
		p.r.Markdown(Prompts(prompts))
	default:
		return fmt.Errorf("unknown command %s, try /help", cmd)
	}
	return nil
}

func (p *REPL) requireOpen() error {
	if p.current == nil {
		return errors.New("no open conversation, use /new or /open <id>")
	}
	return nil
}

func (p *REPL) open(ctx context.Context, id string) error {
	c, err := p.api.GetConversation(ctx, id)
	if err != nil {
		return err
	}
	p.current = c
	p.r.Markdown(ConversationDetail(c))
	return nil
}

// ask sends the open conversation plus text to the duck and stores the exchange. Without an
// open conversation one is created first.
func (p *REPL) ask(ctx context.Context, text string) error {
	if p.current == nil {
		id, err := p.api.CreateConversation(ctx, "")
		if err != nil {
			return err
		}
		c, err := p.api.GetConversation(ctx, id)
		if err != nil {
			return err
		}
		p.current = c
	}

	turns := make([]client.Turn, 0, len(p.current.Messages)*2+1)
	for _, m := range p.current.Messages {
		turns = append(turns, client.Turn{Role: "user", Content: m.User})
		if items := m.AI.Items(); len(items) > 0 {
			turns = append(turns, client.Turn{Role: "model", Content: strings.Join(items, "\n")})
		}
	}
	turns = append(turns, client.Turn{Role: "user", Content: text})

	questions, err := p.api.Ask(ctx, turns)
	if err != nil {
		return err
	}
	m, err := p.api.AppendMessage(ctx, p.current.ID, text, conversation.ListReply(questions...))
	if err != nil {
		return err
	}
	p.current.Messages = append(p.current.Messages, *m)
	p.r.Markdown(Questions(questions))
	return nil
}

// summaries describes recent conversations for the starter prompt retry.
func (p *REPL) summaries(ctx context.Context) []string {
	list, err := p.api.ListConversations(ctx)
	if err != nil {
		return nil
	}
	const maxSummaries = 5
	out := make([]string, 0, maxSummaries)
	for _, c := range list {
		if len(out) == maxSummaries {
			break
		}
		s := c.Title
		if c.AhaMoment != nil {
			s += ": " + c.AhaMoment.Text
		} else if len(c.Messages) > 0 {
			s += ": " + c.Messages[len(c.Messages)-1].User
		}
		out = append(out, s)
	}
	return out
}
