package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"

	"github.com/couchrishi/sahabat/internal/agentapi"
)

const orchestratorAuthor = "sahabat_orchestrator"

// Turn statuses, in the order a turn moves through them.
const (
	statusThinking = "thinking"
	statusRouting  = "routing"
	statusWriting  = "writing"
	statusComplete = "complete"
	statusError    = "error"
)

// turnPrinter renders one chat turn: a status line per transition and the
// specialist's text as it arrives.
type turnPrinter struct {
	out      io.Writer
	status   string
	streamed bool
	midLine  bool
	final    string
}

func newTurnPrinter(out io.Writer) *turnPrinter {
	return &turnPrinter{out: out}
}

func (p *turnPrinter) setStatus(status, text string) {
	if p.midLine {
		fmt.Fprintln(p.out)
		p.midLine = false
	}
	p.status = status

	c := color.New(color.FgYellow)
	switch status {
	case statusWriting:
		c = color.New(color.FgCyan)
	case statusComplete:
		c = color.New(color.FgGreen)
	case statusError:
		c = color.New(color.FgRed)
	}
	c.Fprintf(p.out, "[%s] %s\n", status, text)
}

func (p *turnPrinter) begin() {
	p.setStatus(statusThinking, "Thinking...")
}

// handle renders one agent event.
func (p *turnPrinter) handle(ev *agentapi.Event) error {
	if ev.Author == orchestratorAuthor {
		switch {
		case ev.Actions != nil && ev.Actions.TransferToAgent != "":
			p.setStatus(statusRouting, fmt.Sprintf("Routing to the %s Agent...", agentLabel(ev.Actions.TransferToAgent)))
		case p.status == statusThinking:
			p.setStatus(statusRouting, "Talking to the Sahabat Router...")
		}
		return nil
	}

	if p.status != statusWriting {
		p.setStatus(statusWriting, "Writing...")
	}

	if ev.Partial {
		text := ev.Text()
		fmt.Fprint(p.out, text)
		p.streamed = true
		p.midLine = text != "" && !strings.HasSuffix(text, "\n")
		return nil
	}

	if !ev.IsFinal() {
		return nil
	}
	p.final = ev.Text()
	if !p.streamed && p.final != "" {
		fmt.Fprintln(p.out, p.final)
	}
	if ev.Content != nil {
		for _, part := range ev.Content.Parts {
			if part.InlineData != nil {
				color.New(color.Faint).Fprintf(p.out, "(%s, %d bytes)\n", part.InlineData.MIMEType, len(part.InlineData.Data))
			}
		}
	}
	return nil
}

func (p *turnPrinter) finish() {
	p.setStatus(statusComplete, "Complete")
}

func (p *turnPrinter) fail() {
	p.setStatus(statusError, "Failed")
}

// agentLabel turns "specialist_text" into "Text".
func agentLabel(name string) string {
	label := strings.TrimPrefix(name, "specialist_")
	if label == "" {
		return name
	}
	return strings.ToUpper(label[:1]) + label[1:]
}
