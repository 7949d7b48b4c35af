// Package clarify turns validation failures, uncertain extractions and
// refused decisions into specific messages for the user.
package clarify

import (
	"fmt"
	"strings"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/validate"
)

// Responder builds user-facing messages. Every message names the fields at
// fault and shows acceptable input.
type Responder struct {
	examples map[string]string
}

// New creates a responder using the validator's field examples.
func New() *Responder {
	return &Responder{examples: validate.Examples}
}

// ExplainErrors describes every field error in one message.
func (r *Responder) ExplainErrors(errs []model.FieldError) string {
	switch len(errs) {
	case 0:
		return "Everything looks fine, but nothing was proposed. Try rephrasing the request, for example: " + r.examples[validate.FieldOperation]
	case 1:
		e := errs[0]
		if e.Field == validate.FieldOperation {
			return fmt.Sprintf("I couldn't tell what you want to do: %s. Try something like: %s", e.Message, r.example(e))
		}
		return fmt.Sprintf("I couldn't use the %s: %s. Try something like: %s", label(e.Field), e.Message, r.example(e))
	}

	var sb strings.Builder
	sb.WriteString("I need a few fixes before I can continue:")
	for _, e := range errs {
		fmt.Fprintf(&sb, "\n  - %s: %s", label(e.Field), e.Message)
		if ex := r.example(e); ex != "" {
			fmt.Fprintf(&sb, " (e.g. %s)", ex)
		}
	}
	return sb.String()
}

// ExplainLowConfidence asks the user to double-check a proposal built from an
// uncertain extraction.
func (r *Responder) ExplainLowConfidence(cand model.Candidate, op model.PendingOperation, low []string) string {
	var sb strings.Builder
	if len(low) == 0 {
		fmt.Fprintf(&sb, "I'm not fully sure I understood. I read this as %s:\n", strings.ToLower(op.Kind.Title()))
	} else {
		labels := make([]string, len(low))
		for i, f := range low {
			labels[i] = label(f)
		}
		fmt.Fprintf(&sb, "Please double-check the %s. I read this as %s:\n",
			joinWords(labels), strings.ToLower(op.Kind.Title()))
	}
	sb.WriteString(op.PreviewText())
	writeWarnings(&sb, op.Warnings)
	if cand.Path == model.PathPattern {
		sb.WriteString("\n(Read with the basic parser; the smart parser was unavailable.)")
	}
	sb.WriteString("\n")
	sb.WriteString(decisionHint(op))
	return sb.String()
}

// ExplainProposal presents a confident proposal for confirmation.
func (r *Responder) ExplainProposal(op model.PendingOperation) string {
	var sb strings.Builder
	sb.WriteString(op.PreviewText())
	writeWarnings(&sb, op.Warnings)
	sb.WriteString("\n")
	sb.WriteString(decisionHint(op))
	return sb.String()
}

// ExplainConflict describes a collision with an existing record and the
// choices for resolving it.
func (r *Responder) ExplainConflict(entity model.Entity, c model.Conflict) string {
	return fmt.Sprintf("A %s with %s %s already exists (record #%d). "+
		"Reply merge to fill in its missing details, replace to overwrite it with the new details, or skip to leave it as it is.",
		entity, label(c.Field), c.Value, c.RecordID)
}

// ExplainConfirmation explains why a decision was refused.
func (r *Responder) ExplainConfirmation(err *common.ConfirmationFailure) string {
	switch err.Reason {
	case common.ReasonExpired:
		return "That proposal expired before it was confirmed, so nothing was changed. Send the request again for a fresh proposal."
	case common.ReasonNotPending:
		return fmt.Sprintf("That proposal is already %s, so there is nothing left to decide.", err.Status)
	default:
		return "I can't find that proposal. It may have been replaced by a newer request; send the request again if needed."
	}
}

// ExplainResult summarizes an execution for the user.
func (r *Responder) ExplainResult(op model.PendingOperation, res model.ExecutionResult) string {
	if !res.Success {
		if res.Error == "" {
			return fmt.Sprintf("%s failed. Nothing was changed.", op.Kind.Title())
		}
		return fmt.Sprintf("%s failed: %s", op.Kind.Title(), res.Error)
	}

	var msg string
	switch {
	case op.Kind.Action() == model.ActionFind && len(res.RecordIDs) == 0:
		msg = fmt.Sprintf("No %s matched.", op.Kind.Entity())
	case op.Kind.Action() == model.ActionFind:
		refs := make([]string, len(res.RecordIDs))
		for i, id := range res.RecordIDs {
			refs[i] = fmt.Sprintf("#%d", id)
		}
		msg = fmt.Sprintf("Found %d %s: %s.", len(refs), plural(op.Kind.Entity(), len(refs)), strings.Join(refs, ", "))
	default:
		msg = fmt.Sprintf("Done: %s, record #%d.", strings.ToLower(op.Kind.Title()), res.RecordID)
	}
	for _, w := range res.Warnings {
		if op.Kind.Action() == model.ActionFind && len(res.RecordIDs) == 0 && strings.HasPrefix(w, "no ") {
			continue
		}
		msg += "\nNote: " + w
	}
	return msg
}

func (r *Responder) example(e model.FieldError) string {
	if e.Example != "" {
		return e.Example
	}
	return r.examples[e.Field]
}

func decisionHint(op model.PendingOperation) string {
	return fmt.Sprintf("Reply confirm to go ahead or reject to cancel (expires %s).", op.ExpiresAt.Format("15:04:05"))
}

func writeWarnings(sb *strings.Builder, warnings []string) {
	for _, w := range warnings {
		sb.WriteString("\nNote: ")
		sb.WriteString(w)
	}
}

func label(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}

func plural(e model.Entity, n int) string {
	if n == 1 {
		return string(e)
	}
	if e == model.EntityProperty {
		return "properties"
	}
	return string(e) + "s"
}

// joinWords renders ["a","b","c"] as "a, b and c".
func joinWords(words []string) string {
	switch len(words) {
	case 0:
		return ""
	case 1:
		return words[0]
	}
	return strings.Join(words[:len(words)-1], ", ") + " and " + words[len(words)-1]
}
