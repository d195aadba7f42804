package models

import (
	"time"

	"gorm.io/datatypes"
)

// EvaluationRun retains the summary of a finished evaluation for later export.
type EvaluationRun struct {
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	Offset            int            `gorm:"not null" json:"offset"`
	Count             int            `gorm:"not null" json:"count"`
	Prompt            string         `gorm:"type:text" json:"prompt"`
	Detail            string         `gorm:"size:8;not null" json:"detail"`
	MaxTokens         int            `gorm:"not null" json:"max_tokens"`
	Model             string         `gorm:"size:128" json:"model"`
	ItemCount         int            `gorm:"not null" json:"item_count"`
	AverageSimilarity float64        `json:"average_similarity"`
	Summary           datatypes.JSON `gorm:"type:json" json:"summary"`
	CreatedAt         time.Time      `json:"created_at"`
}
