// Package chat is the terminal front end: it streams agent replies, shows the
// tool trace of each turn and keeps the rendered transcript.
package chat

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"weather-chatbot/internal/agent/agent"
)

var QuickPrompts = []string{
	"What is the current weather in Madrid?",
	"Give me the 3 day forecast for Barcelona.",
	"How is the air quality in Valencia right now?",
}

// Turn is one rendered exchange as shown to the user.
type Turn struct {
	User      string                 `yaml:"user"`
	Assistant string                 `yaml:"assistant"`
	Details   []agent.ToolTraceEntry `yaml:"details,omitempty"`
}

// Session is the part of agent.Session the REPL needs.
type Session interface {
	Send(ctx context.Context, input string) (*agent.TurnStream, error)
	Reset()
}

type REPL struct {
	session Session
	in      io.Reader
	out     io.Writer
	log     logrus.FieldLogger
	turns   []Turn
}

func NewREPL(session Session, in io.Reader, out io.Writer, log logrus.FieldLogger) *REPL {
	return &REPL{
		session: session,
		in:      in,
		out:     out,
		log:     log,
	}
}

// Run reads one question per line until EOF, /quit or ctx is done. Input is
// read on its own goroutine so cancellation does not wait for a line.
func (r *REPL) Run(ctx context.Context) error {
	r.printf("Weather chatbot. Ask about any city, /examples for ideas, /quit to leave.\n")

	readCtx, stopReading := context.WithCancel(ctx)
	defer stopReading()
	lines, readErr := r.readLines(readCtx)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		r.printf("> ")

		var line string
		select {
		case <-ctx.Done():
			r.printf("\n")
			return ctx.Err()
		case next, ok := <-lines:
			if !ok {
				r.printf("\n")
				return <-readErr
			}
			line = strings.TrimSpace(next)
		}

		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			quit, prompt := r.command(line)
			if quit {
				return nil
			}
			if prompt == "" {
				continue
			}
			r.printf("%s\n", prompt)
			line = prompt
		}

		r.turn(ctx, line)
	}
}

// readLines scans r.in until EOF or ctx is done. The error channel receives
// the scanner error once lines is closed.
func (r *REPL) readLines(ctx context.Context) (<-chan string, <-chan error) {
	lines := make(chan string)
	errc := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r.in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				errc <- ctx.Err()
				return
			}
		}
		errc <- scanner.Err()
	}()
	return lines, errc
}

func (r *REPL) Turns() []Turn {
	return append([]Turn(nil), r.turns...)
}

// command handles a slash command. It returns the quick prompt to send, if
// the command selected one.
func (r *REPL) command(line string) (quit bool, prompt string) {
	switch line {
	case "/quit", "/exit":
		return true, ""
	case "/reset":
		r.session.Reset()
		r.turns = nil
		r.printf("Conversation cleared.\n")
	case "/history":
		if err := r.writeTranscript(); err != nil {
			r.log.WithError(err).Error("failed to write transcript")
		}
	case "/examples":
		for i, p := range QuickPrompts {
			r.printf("  /%d  %s\n", i+1, p)
		}
	default:
		for i, p := range QuickPrompts {
			if line == fmt.Sprintf("/%d", i+1) {
				return false, p
			}
		}
		r.printf("Unknown command %s. Commands: /examples /1 /2 /3 /history /reset /quit\n", line)
	}
	return false, ""
}

func (r *REPL) turn(ctx context.Context, input string) {
	stream, err := r.session.Send(ctx, input)
	if err != nil {
		r.log.WithError(err).Error("turn failed")
		r.printf("Sorry, I could not answer that right now. Please try again.\n")
		return
	}

	var partial strings.Builder
	for fragment := range stream.Text() {
		partial.WriteString(fragment)
		r.printf("%s", fragment)
	}
	r.printf("\n")

	details := stream.Trace()
	r.renderDetails(details)

	r.turns = append(r.turns, Turn{
		User:      input,
		Assistant: strings.TrimSpace(partial.String()),
		Details:   details,
	})
}

func (r *REPL) renderDetails(details []agent.ToolTraceEntry) {
	if len(details) == 0 {
		return
	}
	r.printf("Tool details (%d)\n", len(details))
	for _, d := range details {
		switch d.Kind {
		case agent.TraceKindToolCall:
			r.printf("  Tool call: %s\n", d.Name)
		case agent.TraceKindToolReturn:
			r.printf("  Tool return: %s\n", d.Name)
		case agent.TraceKindDiagnostic:
			r.printf("  Diagnostic: %s\n", d.Name)
		}
		if d.Payload != nil {
			r.printf("%s\n", indent(formatPayload(d.Payload), "    "))
		}
	}
}

func (r *REPL) writeTranscript() error {
	if len(r.turns) == 0 {
		r.printf("No turns yet.\n")
		return nil
	}
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(r.turns); err != nil {
		return err
	}
	return enc.Close()
}

func (r *REPL) printf(format string, args ...any) {
	fmt.Fprintf(r.out, format, args...)
}

func formatPayload(payload any) string {
	if s, ok := payload.(string); ok {
		return s
	}
	b, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", payload)
	}
	return string(b)
}

func indent(s, prefix string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = prefix + l
	}
	return strings.Join(lines, "\n")
}
