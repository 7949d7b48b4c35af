package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/engine"
	"github.com/Veraticus/parcel/internal/executor"
	"github.com/Veraticus/parcel/internal/model"
)

// Pipeline is the part of the engine the chat drives.
type Pipeline interface {
	Submit(ctx context.Context, in model.RawInput) (engine.ExtractionOutcome, error)
	Decide(ctx context.Context, req engine.ConfirmationRequest) (engine.ExecutionOutcome, error)
	Pending(ctx context.Context, sessionID string) (model.PendingOperation, bool)
}

const chatHelp = `Describe what you want in plain words, e.g. "add client Jane Doe jane@example.com".
  confirm | yes          apply the open proposal
  reject  | no           discard it
  edit field=value ...   change fields, then apply
  merge | skip | replace resolve a conflict with an existing record
  pending                show the open proposal
  help                   show this help
  quit                   leave`

// Chat is a line-oriented conversation with the pipeline for one session.
type Chat struct {
	pipeline  Pipeline
	reader    *LineReader
	out       io.Writer
	now       func() time.Time
	onPending func(bool)
	session   string
}

// NewChat creates a chat reading from in and writing to out.
func NewChat(p Pipeline, in io.Reader, out io.Writer, session string) *Chat {
	return &Chat{
		pipeline: p,
		reader:   NewLineReader(in),
		out:      out,
		now:      time.Now,
		session:  session,
	}
}

// OnPendingChange registers fn to learn, after every line, whether a
// proposal is waiting for a decision.
func (c *Chat) OnPendingChange(fn func(bool)) {
	c.onPending = fn
}

// Run reads commands until quit, end of input or ctx ends.
func (c *Chat) Run(ctx context.Context) error {
	c.println(TitleStyle.Render("parcel") + " " + FormatInfo("type help for commands"))

	for {
		c.print(FormatPrompt("you"))
		text, err := c.reader.ReadLine(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, ErrInputCancelled) {
				c.println("")
				return nil
			}
			return fmt.Errorf("failed to read input: %w", err)
		}
		if done := c.Handle(ctx, text); done {
			return nil
		}
		if c.onPending != nil {
			_, ok := c.pipeline.Pending(ctx, c.session)
			c.onPending(ok)
		}
	}
}

// Handle processes one line and reports whether the chat should end.
func (c *Chat) Handle(ctx context.Context, text string) bool {
	text = strings.TrimSpace(text)
	if text == "" {
		return false
	}

	word, rest, _ := strings.Cut(text, " ")
	switch strings.ToLower(word) {
	case "quit", "exit":
		c.println(FormatInfo("See you later!"))
		return true
	case "help", "?":
		c.println(chatHelp)
		return false
	case "pending":
		if op, ok := c.pipeline.Pending(ctx, c.session); ok {
			c.println(RenderProposal(op))
		} else {
			c.println(FormatInfo("Nothing is waiting for confirmation."))
		}
		return false
	case "edit":
		overrides, err := ParseOverrides(rest)
		if err != nil {
			c.println(FormatError(err.Error()))
			return false
		}
		c.decide(ctx, engine.ConfirmationRequest{Decision: engine.DecisionConfirm, Overrides: overrides})
		return false
	case "merge", "skip", "replace":
		if rest == "" {
			res, _ := executor.ParseResolution(word)
			c.decide(ctx, engine.ConfirmationRequest{Decision: engine.DecisionConfirm, Resolution: res})
			return false
		}
	}

	if rest == "" {
		if d, err := engine.ParseDecision(word); err == nil {
			c.decide(ctx, engine.ConfirmationRequest{Decision: d})
			return false
		}
	}

	c.submit(ctx, text)
	return false
}

func (c *Chat) submit(ctx context.Context, text string) {
	outcome, err := c.pipeline.Submit(ctx, model.RawInput{
		Text:       text,
		Source:     model.SourceChat,
		SessionID:  c.session,
		ReceivedAt: c.now(),
	})
	if err != nil {
		c.println(FormatError(userMessage(err)))
		return
	}

	if !outcome.IsProposal() {
		c.println(FormatQuestion(outcome.Message))
		return
	}
	if outcome.Superseded != nil {
		c.println(FormatInfo("Replaced the earlier " + strings.ToLower(outcome.Superseded.Kind.Title()) + " proposal."))
	}
	c.println(RenderProposal(*outcome.Proposal))
	c.println(outcome.Message)
	c.println(FormatInfo("Reply confirm, reject or edit field=value."))
}

func (c *Chat) decide(ctx context.Context, req engine.ConfirmationRequest) {
	op, ok := c.pipeline.Pending(ctx, c.session)
	if !ok {
		c.println(FormatWarning("Nothing is waiting for confirmation."))
		return
	}
	req.OperationID = op.ID

	outcome, err := c.pipeline.Decide(ctx, req)
	if outcome.FollowUp != nil {
		c.println(FormatWarning(outcome.Message))
		c.println(RenderProposal(*outcome.FollowUp))
		c.println(FormatInfo("Reply merge, skip, replace or reject."))
		return
	}

	switch {
	case err != nil && outcome.Message != "":
		c.println(FormatError(outcome.Message))
	case err != nil:
		c.println(FormatError(userMessage(err)))
	case req.Decision == engine.DecisionReject:
		c.println(FormatInfo(outcome.Message))
	default:
		c.println(FormatSuccess(outcome.Message))
	}
}

// ParseOverrides reads "field=value" pairs. A value runs until the next
// token containing '=', so "name=Jane Doe email=j@x.com" yields two fields.
func ParseOverrides(s string) (map[string]string, error) {
	overrides := make(map[string]string)
	var field string
	for _, tok := range strings.Fields(s) {
		if k, v, ok := strings.Cut(tok, "="); ok && k != "" {
			field = strings.ToLower(k)
			overrides[field] = v
			continue
		}
		if field == "" {
			return nil, fmt.Errorf("expected field=value, got %q", tok)
		}
		overrides[field] = strings.TrimSpace(overrides[field] + " " + tok)
	}
	if len(overrides) == 0 {
		return nil, fmt.Errorf("edit needs at least one field=value")
	}
	return overrides, nil
}

func userMessage(err error) string {
	var ue *common.UserError
	if errors.As(err, &ue) {
		return ue.UserMessage
	}
	if errors.Is(err, common.ErrSessionBusy) {
		return "Still working on your last message."
	}
	return err.Error()
}

func (c *Chat) print(s string) {
	_, _ = fmt.Fprint(c.out, s)
}

func (c *Chat) println(s string) {
	_, _ = fmt.Fprintln(c.out, s)
}
