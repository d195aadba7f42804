package service

import (
	"context"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/captcha-corpus/internal/repository"
)

func TestLabelingLoadNextWalksUnanswered(t *testing.T) {
	repo, _ := setupServiceTestDB(t)
	ids := seedAnswered(t, repo, []string{"가게 전화번호의 뒤 네 자리는?", "What city?", "How many?"}, []string{"1234"})
	svc := NewLabelingService(repo, testLogger())

	task, err := svc.LoadNext(context.Background())
	require.NoError(t, err)
	require.Equal(t, ids[1], task.ID)
	require.Equal(t, "2 / 3", task.Position)
	require.Equal(t, int64(3), task.Total)
	require.Equal(t, "What city?", task.Question)
	require.Equal(t, "image/png", task.MimeType)

	raw, err := base64.StdEncoding.DecodeString(task.ImageBase64)
	require.NoError(t, err)
	require.Equal(t, pngMagic, raw)
}

func TestLabelingSubmitAnswerAdvances(t *testing.T) {
	repo, _ := setupServiceTestDB(t)
	ids := seedAnswered(t, repo, []string{"What city?", "How many?"}, nil)
	svc := NewLabelingService(repo, testLogger())

	result, err := svc.SubmitAnswer(context.Background(), ids[0], "Seoul")
	require.NoError(t, err)
	require.Equal(t, "answer saved for 1 as Seoul", result.Message)
	require.NotNil(t, result.Next)
	require.Equal(t, ids[1], result.Next.ID)

	result, err = svc.SubmitAnswer(context.Background(), ids[1], "5")
	require.NoError(t, err)
	require.Nil(t, result.Next)

	_, err = svc.LoadNext(context.Background())
	require.ErrorIs(t, err, ErrNoUnlabeled)

	stats, err := svc.Stats(context.Background())
	require.NoError(t, err)
	require.Equal(t, repository.CorpusStats{Total: 2, Answered: 2, Unanswered: 0}, stats)
}

func TestLabelingRejectsBlankAnswer(t *testing.T) {
	repo, _ := setupServiceTestDB(t)
	ids := seedAnswered(t, repo, []string{"What city?"}, nil)
	svc := NewLabelingService(repo, testLogger())

	_, err := svc.SubmitAnswer(context.Background(), ids[0], "   ")
	require.ErrorIs(t, err, ErrEmptyAnswer)
	require.EqualError(t, err, "no answer provided")

	item, err := repo.Get(context.Background(), ids[0])
	require.NoError(t, err)
	require.Nil(t, item.Answer)
}

func TestLabelingUnknownID(t *testing.T) {
	repo, _ := setupServiceTestDB(t)
	svc := NewLabelingService(repo, testLogger())

	_, err := svc.SubmitAnswer(context.Background(), 42, "Seoul")
	require.ErrorIs(t, err, repository.ErrCaptchaNotFound)
}
