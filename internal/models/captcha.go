package models

import "time"

// CaptchaItem is one harvested challenge with its optional human answer.
type CaptchaItem struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Image     []byte    `gorm:"not null" json:"-"`
	Question  string    `gorm:"type:text;not null" json:"question"`
	Answer    *string   `gorm:"type:text" json:"answer,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// TableName keeps the table name used by the original store files.
func (CaptchaItem) TableName() string {
	return "captchas"
}

// Answered reports whether a ground-truth answer has been attached.
func (c CaptchaItem) Answered() bool {
	return c.Answer != nil
}

// AnswerText returns the answer or an empty string.
func (c CaptchaItem) AnswerText() string {
	if c.Answer == nil {
		return ""
	}
	return *c.Answer
}
