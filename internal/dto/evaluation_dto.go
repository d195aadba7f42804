package dto

import (
	"time"

	"github.com/noah-isme/captcha-corpus/internal/similarity"
)

// EvaluationRequest selects a window of answered items and the oracle parameters.
type EvaluationRequest struct {
	Offset    int    `json:"offset" validate:"gte=0"`
	Count     int    `json:"count" validate:"required,gte=1,lte=1000"`
	Prompt    string `json:"prompt" validate:"max=8000"`
	Detail    string `json:"detail" validate:"required,oneof=high low"`
	MaxTokens int    `json:"max_tokens" validate:"required,gte=1,lte=4096"`
}

// SummaryRow is the compact, export-friendly view of one evaluated item.
type SummaryRow struct {
	Position       int     `json:"position"`
	CaptchaID      uint    `json:"captcha_id"`
	Question       string  `json:"question"`
	Answer         string  `json:"answer"`
	Completion     string  `json:"completion"`
	Similarity     float64 `json:"similarity"`
	ContainsAnswer bool    `json:"contains_answer"`
}

// DetailedRow extends SummaryRow with the image payload and an answer/completion diff.
type DetailedRow struct {
	SummaryRow
	ImageBase64 string                   `json:"image_base64"`
	MimeType    string                   `json:"mime_type"`
	Diff        []similarity.DiffSegment `json:"diff"`
}

// EvaluationResponse is the outcome of one evaluation run.
type EvaluationResponse struct {
	RunID             string        `json:"run_id"`
	Model             string        `json:"model"`
	Detail            string        `json:"detail"`
	MaxTokens         int           `json:"max_tokens"`
	ItemCount         int           `json:"item_count"`
	AverageSimilarity float64       `json:"average_similarity"`
	AveragePercent    float64       `json:"average_similarity_percent"`
	Detailed          []DetailedRow `json:"detailed,omitempty"`
	Summary           []SummaryRow  `json:"summary"`
	CreatedAt         time.Time     `json:"created_at"`
}
