// Package terminal is the interactive front end of the MentorAI client. It
// reads commands and questions from a LineReader, drives a chat controller and
// prints whatever the controller state says.
package terminal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"mentor-ai/internal/chat"
	"mentor-ai/internal/domain"
)

const (
	prompt     = "mentor> "
	dateLayout = "2006-01-02 15:04"
)

// Controller is the subset of chat.Controller the REPL drives.
type Controller interface {
	Subscribe(fn func(chat.State))
	State() chat.State
	NewChat()
	SelectConversation(id string)
	SendMessage(ctx context.Context, text string)
	ClearChat()
	DeleteConversation(id string)
}

// REPL is the read-eval-print loop over a chat controller.
type REPL struct {
	ctrl   Controller
	in     LineReader
	out    io.Writer
	render Renderer
	logger *slog.Logger

	wasLoading bool
}

// Option configures a REPL.
type Option func(*REPL)

// WithRenderer sets how assistant answers are printed. Defaults to plain text.
func WithRenderer(r Renderer) Option {
	return func(p *REPL) {
		if r != nil {
			p.render = r
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(p *REPL) {
		if logger != nil {
			p.logger = logger
		}
	}
}

// New returns a REPL reading from in and writing to out.
func New(ctrl Controller, in LineReader, out io.Writer, opts ...Option) (*REPL, error) {
	if ctrl == nil {
		return nil, errors.New("terminal: controller must not be nil")
	}
	if in == nil {
		return nil, errors.New("terminal: line reader must not be nil")
	}
	if out == nil {
		return nil, errors.New("terminal: output must not be nil")
	}
	p := &REPL{
		ctrl:   ctrl,
		in:     in,
		out:    out,
		render: PlainRenderer,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.logger = p.logger.With("component", "terminal")
	ctrl.Subscribe(p.onState)
	return p, nil
}

// Run reads input until EOF, Ctrl-C or /quit. The controller must already be
// initialized.
func (p *REPL) Run(ctx context.Context) error {
	p.printBanner()
	p.printTranscript(p.ctrl.State())

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := p.in.Prompt(prompt)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, liner.ErrPromptAborted) {
				p.println(dimStyle.Render("Goodbye."))
				return nil
			}
			return fmt.Errorf("terminal: read input: %w", err)
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := p.handleCommand(line); quit {
				p.println(dimStyle.Render("Goodbye."))
				return nil
			}
			continue
		}
		p.ask(ctx, line)
	}
}

func (p *REPL) ask(ctx context.Context, text string) {
	p.ctrl.SendMessage(ctx, text)

	state := p.ctrl.State()
	if state.Error != "" {
		p.logger.Debug("ask failed", "kind", state.ErrorKind)
		p.println(errorStyle.Render(state.Error))
		return
	}
	if state.Active == nil || len(state.Active.Messages) == 0 {
		return
	}
	last := state.Active.Messages[len(state.Active.Messages)-1]
	if last.IsUser {
		return
	}
	p.printAnswer(last.Text)
}

// onState reports the start of a request. It runs on the goroutine that
// called SendMessage, so no locking is needed.
func (p *REPL) onState(s chat.State) {
	if s.Loading && !p.wasLoading {
		p.println(dimStyle.Render("Thinking..."))
	}
	p.wasLoading = s.Loading
}

func (p *REPL) handleCommand(line string) (quit bool) {
	fields := strings.Fields(line)
	cmd, arg := strings.ToLower(fields[0]), ""
	if len(fields) > 1 {
		arg = strings.Join(fields[1:], " ")
	}

	switch cmd {
	case "/quit", "/exit", "/q":
		return true
	case "/help", "/h", "/?":
		p.printHelp()
	case "/new":
		p.ctrl.NewChat()
		p.println(dimStyle.Render("Started a new conversation."))
	case "/list", "/ls":
		p.printList(p.ctrl.State())
	case "/open":
		id, err := p.resolve(arg)
		if err != nil {
			p.println(errorStyle.Render(err.Error()))
			return false
		}
		p.ctrl.SelectConversation(id)
		p.printTranscript(p.ctrl.State())
	case "/delete", "/rm":
		id, err := p.resolve(arg)
		if err != nil {
			p.println(errorStyle.Render(err.Error()))
			return false
		}
		p.ctrl.DeleteConversation(id)
		p.println(dimStyle.Render("Conversation deleted."))
		p.printTranscript(p.ctrl.State())
	case "/clear":
		p.ctrl.ClearChat()
		p.println(dimStyle.Render("Chat cleared."))
	case "/history":
		p.printTranscript(p.ctrl.State())
	default:
		p.println(errorStyle.Render(fmt.Sprintf("Unknown command %s. Type /help for commands.", cmd)))
	}
	return false
}

// resolve maps a 1-based list position or a conversation id to an id.
func (p *REPL) resolve(arg string) (string, error) {
	if arg == "" {
		return "", errors.New("usage: /open <number|id> or /delete <number|id>")
	}
	convs := p.ctrl.State().Conversations
	if n, err := strconv.Atoi(arg); err == nil {
		if n < 1 || n > len(convs) {
			return "", fmt.Errorf("no conversation #%d, use /list to see conversations", n)
		}
		return convs[n-1].ID, nil
	}
	for _, c := range convs {
		if c.ID == arg {
			return c.ID, nil
		}
	}
	return "", fmt.Errorf("no conversation %q, use /list to see conversations", arg)
}

func (p *REPL) printBanner() {
	p.println(titleStyle.Render("MentorAI") + dimStyle.Render(" - ask about math, science, history, languages and more."))
	p.println(dimStyle.Render("Type /help for commands."))
}

func (p *REPL) printHelp() {
	p.println(titleStyle.Render("Commands"))
	for _, row := range [][2]string{
		{"/new", "start a new conversation"},
		{"/list", "list conversations"},
		{"/open <n|id>", "switch to a conversation"},
		{"/delete <n|id>", "delete a conversation"},
		{"/clear", "discard the current conversation and start fresh"},
		{"/history", "show the current conversation"},
		{"/help", "show this help"},
		{"/quit", "exit"},
	} {
		p.println(fmt.Sprintf("  %-16s %s", row[0], dimStyle.Render(row[1])))
	}
}

func (p *REPL) printList(s chat.State) {
	if len(s.Conversations) == 0 {
		p.println(dimStyle.Render("No conversations yet."))
		return
	}
	activeID := s.ActiveID()
	for i, c := range s.Conversations {
		marker := " "
		if c.ID == activeID {
			marker = "*"
		}
		p.println(fmt.Sprintf("%s %2d. %s %s", marker, i+1, c.Title,
			dimStyle.Render(fmt.Sprintf("(%d messages, %s, %s)", len(c.Messages), c.CreatedAt.Local().Format(dateLayout), c.ID))))
	}
}

func (p *REPL) printTranscript(s chat.State) {
	if s.Active == nil {
		return
	}
	p.println(titleStyle.Render(s.Active.Title))
	if len(s.Active.Messages) == 0 {
		p.println(dimStyle.Render("Ask a question to get started."))
		return
	}
	for _, m := range s.Active.Messages {
		p.printMessage(m)
	}
}

func (p *REPL) printMessage(m domain.Message) {
	if m.IsUser {
		p.println(userStyle.Render("You: ") + m.Text)
		return
	}
	p.printAnswer(m.Text)
}

func (p *REPL) printAnswer(text string) {
	p.println(assistantStyle.Render("MentorAI:"))
	p.println(strings.TrimRight(p.render(text), "\n"))
}

func (p *REPL) println(s string) {
	_, _ = fmt.Fprintln(p.out, s)
}
