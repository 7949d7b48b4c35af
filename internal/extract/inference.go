package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/Veraticus/parcel/internal/common"
	"github.com/Veraticus/parcel/internal/llm"
	"github.com/Veraticus/parcel/internal/model"
	"github.com/Veraticus/parcel/internal/service"
)

// InferenceExtractor asks an inference service to structure the text.
type InferenceExtractor struct {
	inferrer service.Inferrer
	logger   *slog.Logger
	system   string
}

// NewInferenceExtractor creates an extractor backed by inferrer.
func NewInferenceExtractor(inferrer service.Inferrer, logger *slog.Logger) *InferenceExtractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &InferenceExtractor{inferrer: inferrer, logger: logger, system: buildSystemPrompt()}
}

// inferenceReply is the JSON shape the model is asked to produce.
type inferenceReply struct {
	Confidence      *float64           `json:"confidence"`
	Fields          json.RawMessage    `json:"fields"`
	FieldConfidence map[string]float64 `json:"field_confidence"`
	Operation       string             `json:"operation"`
	Target          any                `json:"target"`
}

// Extract implements Extractor. Every failure is an *common.ExtractionFailure.
func (e *InferenceExtractor) Extract(ctx context.Context, in model.RawInput, history []model.Exchange) (model.Candidate, error) {
	raw, err := e.inferrer.Complete(ctx, e.system, buildMessages(in.Text, history))
	if err != nil {
		reason := ReasonUnavailable
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			reason = ReasonTimeout
		}
		return model.Candidate{}, &common.ExtractionFailure{Reason: reason, Err: err}
	}

	cand, err := ParseReply(raw)
	if err != nil {
		e.logger.Debug("malformed inference reply", "error", err, "reply", raw)
		return model.Candidate{}, &common.ExtractionFailure{Reason: ReasonMalformed, Err: err}
	}
	return cand, nil
}

// ParseReply decodes a model reply into a candidate. Markdown fences are
// tolerated; anything structurally off is an error.
func ParseReply(raw string) (model.Candidate, error) {
	var reply inferenceReply
	if err := json.Unmarshal([]byte(llm.CleanReply(raw)), &reply); err != nil {
		return model.Candidate{}, fmt.Errorf("reply is not a JSON object: %w", err)
	}

	if reply.Operation == "" {
		return model.Candidate{}, errors.New("reply has no operation")
	}
	kind, err := model.ParseOperationKind(reply.Operation)
	if err != nil {
		return model.Candidate{}, err
	}
	if reply.Confidence == nil {
		return model.Candidate{}, errors.New("reply has no confidence")
	}
	if *reply.Confidence < 0 || *reply.Confidence > 1 {
		return model.Candidate{}, fmt.Errorf("confidence %v outside [0,1]", *reply.Confidence)
	}

	fields := map[string]any{}
	if len(reply.Fields) > 0 && string(reply.Fields) != "null" {
		if err := json.Unmarshal(reply.Fields, &fields); err != nil {
			return model.Candidate{}, fmt.Errorf("fields is not an object: %w", err)
		}
	}

	params := model.NewParams(kind.Entity())
	if reply.Target != nil {
		params.Target = stringify(reply.Target)
	}
	for name, value := range fields {
		s := stringify(value)
		if s == "" {
			continue
		}
		// Unknown fields are dropped rather than failing the whole reply.
		_ = params.Set(strings.ToLower(name), s)
	}

	for name, score := range reply.FieldConfidence {
		if score < 0 || score > 1 {
			return model.Candidate{}, fmt.Errorf("field confidence for %s outside [0,1]", name)
		}
	}

	return model.Candidate{
		Kind:            kind,
		Params:          params,
		Confidence:      *reply.Confidence,
		FieldConfidence: reply.FieldConfidence,
		Path:            model.PathInference,
	}, nil
}

func stringify(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
