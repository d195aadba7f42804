package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrOracle wraps every failure of the scoring oracle.
	ErrOracle = errors.New("oracle error")
	// ErrMalformedResponse marks a response missing the expected completion fields.
	ErrMalformedResponse = errors.New("malformed oracle response")
)

// Detail selects how much visual fidelity the oracle spends on the image.
type Detail string

const (
	DetailHigh Detail = "high"
	DetailLow  Detail = "low"
)

// ParseDetail accepts exactly "high" or "low", the values the API validates against.
func ParseDetail(value string) (Detail, error) {
	switch Detail(value) {
	case DetailHigh:
		return DetailHigh, nil
	case DetailLow:
		return DetailLow, nil
	default:
		return "", fmt.Errorf("unknown detail level %q", value)
	}
}

// VisionRequest is one image + question submitted to the oracle.
type VisionRequest struct {
	Prompt    string
	Question  string
	Image     []byte
	MimeType  string
	Detail    Detail
	MaxTokens int
}

// Text returns the text part sent alongside the image.
func (r VisionRequest) Text() string {
	return strings.TrimSpace(r.Prompt + " " + r.Question)
}

// VisionOracle produces a free-text completion for an image and question.
type VisionOracle interface {
	Complete(ctx context.Context, req VisionRequest) (string, error)
	Model() string
}
