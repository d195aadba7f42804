package dto

import "github.com/noah-isme/captcha-corpus/internal/repository"

// LabelTask is the next unanswered item shown to the labeler.
type LabelTask struct {
	ID          uint   `json:"id"`
	Position    string `json:"position"`
	Total       int64  `json:"total"`
	Question    string `json:"question"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// LabelAnswerRequest carries one human answer.
type LabelAnswerRequest struct {
	Answer string `json:"answer"`
}

// LabelResult confirms a saved answer and hands over the next task, if any.
type LabelResult struct {
	Message string     `json:"message"`
	Next    *LabelTask `json:"next,omitempty"`
}

// CorpusStatsResponse reports labeling progress.
type CorpusStatsResponse struct {
	repository.CorpusStats
}
