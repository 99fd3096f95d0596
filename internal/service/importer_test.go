package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateforhumanity/cima-importer/internal/models"
	"github.com/elevateforhumanity/cima-importer/internal/notify"
	"github.com/elevateforhumanity/cima-importer/internal/repository"
	"github.com/elevateforhumanity/cima-importer/internal/utils"
)

// stubRepo implements only the slice of the repository the importer touches.
type stubRepo struct {
	repository.Repository

	provider   *models.Provider
	recalcErr  error
	sessions   []*models.TrainingSession
	batches    []*models.ImportBatch
	recalcs    int
	apprentice *models.Apprentice
}

func (s *stubRepo) ActiveProvider(context.Context, string) (*models.Provider, error) {
	return s.provider, nil
}

func (s *stubRepo) InsertSession(_ context.Context, session *models.TrainingSession) (bool, error) {
	s.sessions = append(s.sessions, session)
	return true, nil
}

func (s *stubRepo) RecordBatch(_ context.Context, batch *models.ImportBatch) error {
	s.batches = append(s.batches, batch)
	return nil
}

func (s *stubRepo) ApprenticesTouchedByBatch(context.Context, string, string) ([]string, error) {
	return []string{"apprentice-1"}, nil
}

func (s *stubRepo) RecalcTotals(context.Context, string, string) error {
	s.recalcs++
	return s.recalcErr
}

func (s *stubRepo) GetApprenticeByEmail(context.Context, string) (*models.Apprentice, error) {
	return s.apprentice, nil
}

func (s *stubRepo) CreateEnrollment(context.Context, *models.Enrollment) error {
	return nil
}

func newImportService(repo *stubRepo) *DefaultService {
	return &DefaultService{
		repo:     repo,
		tokens:   NewTokenService(repo, 7),
		notifier: notify.Noop{},
		logger:   utils.NewTestLogger(),
	}
}

func TestImportReportsRecalcFailure(t *testing.T) {
	repo := &stubRepo{
		provider:  &models.Provider{ID: "provider-1", Name: ProviderName, Active: true},
		recalcErr: errors.New("deadlock detected"),
	}
	svc := newImportService(repo)

	result, err := svc.Import(context.Background(),
		[]byte("Email,Minutes\nalice@example.com,60\n"))
	require.NoError(t, err)

	// The rows landed, but the stale ledger is visible on the batch
	assert.Equal(t, 1, result.Imported)
	require.Len(t, result.Errors, 1)
	assert.Equal(t, "ledger recompute", result.Errors[0].Row)
	assert.Contains(t, result.Errors[0].Error, "deadlock detected")

	// The recorded summary carries the same error
	require.Len(t, repo.batches, 1)
	assert.Contains(t, repo.batches[0].Errors, "ledger recompute")
}

func TestImportRecalcOncePerApprentice(t *testing.T) {
	repo := &stubRepo{
		provider: &models.Provider{ID: "provider-1", Name: ProviderName, Active: true},
	}
	svc := newImportService(repo)

	payload := []byte(`Email,Minutes,LessonID
alice@example.com,60,L-1
alice@example.com,90,L-2
alice@example.com,30,L-3
`)
	result, err := svc.Import(context.Background(), payload)
	require.NoError(t, err)

	assert.Equal(t, 3, result.Imported)
	assert.Empty(t, result.Errors)
	assert.Equal(t, 1, repo.recalcs)
}

func TestImportNoProvider(t *testing.T) {
	svc := newImportService(&stubRepo{})

	_, err := svc.Import(context.Background(), []byte("Email,Minutes\na@b.com,60\n"))
	assert.ErrorIs(t, err, ErrProviderMissing)
}
