package repository

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"

	"github.com/noah-isme/captcha-corpus/internal/models"
)

// ErrEvaluationRunNotFound indicates no stored run carries the requested id.
var ErrEvaluationRunNotFound = errors.New("evaluation run not found")

// EvaluationRunRepository retains finished evaluation summaries for export.
type EvaluationRunRepository interface {
	Initialize(ctx context.Context) error
	Create(ctx context.Context, run *models.EvaluationRun) error
	Get(ctx context.Context, id string) (models.EvaluationRun, error)
}

type evaluationRunRepository struct {
	db *gorm.DB
}

// NewEvaluationRunRepository constructs a repository backed by GORM.
func NewEvaluationRunRepository(db *gorm.DB) EvaluationRunRepository {
	return &evaluationRunRepository{db: db}
}

func (r *evaluationRunRepository) Initialize(ctx context.Context) error {
	if err := r.db.WithContext(ctx).AutoMigrate(&models.EvaluationRun{}); err != nil {
		return fmt.Errorf("%w: migrate evaluation runs: %w", ErrPersistence, err)
	}
	return nil
}

func (r *evaluationRunRepository) Create(ctx context.Context, run *models.EvaluationRun) error {
	if err := r.db.WithContext(ctx).Create(run).Error; err != nil {
		return fmt.Errorf("%w: save evaluation run: %w", ErrPersistence, err)
	}
	return nil
}

func (r *evaluationRunRepository) Get(ctx context.Context, id string) (models.EvaluationRun, error) {
	var run models.EvaluationRun
	err := r.db.WithContext(ctx).First(&run, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return models.EvaluationRun{}, ErrEvaluationRunNotFound
	}
	if err != nil {
		return models.EvaluationRun{}, fmt.Errorf("%w: get evaluation run: %w", ErrPersistence, err)
	}
	return run, nil
}
