package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/noah-isme/captcha-corpus/internal/models"
)

var (
	// ErrPersistence wraps any storage failure (constraint violation or I/O).
	ErrPersistence = errors.New("persistence error")
	// ErrCaptchaNotFound indicates the referenced captcha id does not exist.
	ErrCaptchaNotFound = errors.New("captcha not found")
)

// CorpusStats summarises labeling progress.
type CorpusStats struct {
	Total      int64 `json:"total"`
	Answered   int64 `json:"answered"`
	Unanswered int64 `json:"unanswered"`
}

// CaptchaRepository is the single source of truth for harvested challenges.
type CaptchaRepository interface {
	Initialize(ctx context.Context) error
	Insert(ctx context.Context, image []byte, question string) (uint, error)
	Get(ctx context.Context, id uint) (models.CaptchaItem, error)
	FetchUnanswered(ctx context.Context) (*models.CaptchaItem, error)
	SetAnswer(ctx context.Context, id uint, answer string) error
	FetchWindow(ctx context.Context, offset, count int) ([]models.CaptchaItem, error)
	Stats(ctx context.Context) (CorpusStats, error)
}

type captchaRepository struct {
	db *gorm.DB
}

// NewCaptchaRepository constructs a repository backed by GORM.
func NewCaptchaRepository(db *gorm.DB) CaptchaRepository {
	return &captchaRepository{db: db}
}

func (r *captchaRepository) Initialize(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.CaptchaItem{}); err != nil {
		return fmt.Errorf("%w: migrate captchas: %w", ErrPersistence, err)
	}
	return nil
}

func (r *captchaRepository) Insert(ctx context.Context, image []byte, question string) (uint, error) {
	if len(image) == 0 || strings.TrimSpace(question) == "" {
		return 0, fmt.Errorf("%w: image and question are both required", ErrPersistence)
	}

	item := models.CaptchaItem{Image: image, Question: question}
	if err := r.db.WithContext(ctx).Create(&item).Error; err != nil {
		return 0, fmt.Errorf("%w: insert captcha: %w", ErrPersistence, err)
	}
	return item.ID, nil
}

func (r *captchaRepository) Get(ctx context.Context, id uint) (models.CaptchaItem, error) {
	var item models.CaptchaItem
	err := r.db.WithContext(ctx).First(&item, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.CaptchaItem{}, fmt.Errorf("%w: id %d", ErrCaptchaNotFound, id)
	}
	if err != nil {
		return models.CaptchaItem{}, fmt.Errorf("%w: get captcha %d: %w", ErrPersistence, id, err)
	}
	return item, nil
}

func (r *captchaRepository) FetchUnanswered(ctx context.Context) (*models.CaptchaItem, error) {
	var items []models.CaptchaItem
	err := r.db.WithContext(ctx).
		Where("answer IS NULL").
		Order("id ASC").
		Limit(1).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("%w: fetch unanswered: %w", ErrPersistence, err)
	}
	if len(items) == 0 {
		return nil, nil
	}
	return &items[0], nil
}

func (r *captchaRepository) SetAnswer(ctx context.Context, id uint, answer string) error {
	result := r.db.WithContext(ctx).
		Model(&models.CaptchaItem{}).
		Where("id = ?", id).
		Update("answer", answer)
	if result.Error != nil {
		return fmt.Errorf("%w: set answer for %d: %w", ErrPersistence, id, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("%w: id %d", ErrCaptchaNotFound, id)
	}
	return nil
}

func (r *captchaRepository) FetchWindow(ctx context.Context, offset, count int) ([]models.CaptchaItem, error) {
	if offset < 0 {
		offset = 0
	}
	items := make([]models.CaptchaItem, 0)
	if count <= 0 {
		return items, nil
	}

	err := r.db.WithContext(ctx).
		Where("answer IS NOT NULL").
		Order("id ASC").
		Offset(offset).
		Limit(count).
		Find(&items).Error
	if err != nil {
		return nil, fmt.Errorf("%w: fetch window %d+%d: %w", ErrPersistence, offset, count, err)
	}
	return items, nil
}

func (r *captchaRepository) Stats(ctx context.Context) (CorpusStats, error) {
	var stats CorpusStats
	db := r.db.WithContext(ctx).Model(&models.CaptchaItem{})
	if err := db.Count(&stats.Total).Error; err != nil {
		return CorpusStats{}, fmt.Errorf("%w: count captchas: %w", ErrPersistence, err)
	}
	if err := r.db.WithContext(ctx).Model(&models.CaptchaItem{}).Where("answer IS NOT NULL").Count(&stats.Answered).Error; err != nil {
		return CorpusStats{}, fmt.Errorf("%w: count answered: %w", ErrPersistence, err)
	}
	stats.Unanswered = stats.Total - stats.Answered
	return stats, nil
}
