package model

// Candidate is an unvalidated guess at an operation and its parameters.
type Candidate struct {
	FieldConfidence map[string]float64
	Params          Params
	Kind            OperationKind
	Path            ExtractionPath
	FallbackReason  string
	Confidence      float64
}

// LowConfidenceFields returns present fields, target first and then in
// entity order, that scored below threshold. Fields without their own score
// inherit the overall confidence.
func (c Candidate) LowConfidenceFields(threshold float64) []string {
	var low []string
	names := c.Params.Present()
	if c.Params.Target != "" {
		names = append([]string{FieldTarget}, names...)
	}
	for _, name := range names {
		score, ok := c.FieldConfidence[name]
		if !ok {
			score = c.Confidence
		}
		if score < threshold {
			low = append(low, name)
		}
	}
	return low
}

// ErrorKind classifies a field-level validation failure.
type ErrorKind string

// Field error kinds.
const (
	ErrMissing     ErrorKind = "missing"
	ErrMalformed   ErrorKind = "malformed"
	ErrOutOfRange  ErrorKind = "out_of_range"
	ErrConflicting ErrorKind = "conflicting"
)

// FieldError describes one field that failed validation.
type FieldError struct {
	Field   string    `json:"field"`
	Kind    ErrorKind `json:"kind"`
	Message string    `json:"message"`
	Example string    `json:"example,omitempty"`
}

func (e FieldError) Error() string {
	return e.Field + ": " + e.Message
}
