package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/google/uuid"

	"github.com/elevateforhumanity/cima-importer/internal/ingest"
	"github.com/elevateforhumanity/cima-importer/internal/models"
)

// Import runs one batch import over a CSV payload: parse, validate rows,
// insert deduplicated sessions, recompute the ledger once per touched
// apprentice and record the batch summary. A single bad row never aborts
// the batch; only an unparseable payload does, before any writes.
func (s *DefaultService) Import(ctx context.Context, payload []byte) (*models.ImportResponse, error) {
	raws, err := ingest.ParseRows(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrParse, err)
	}

	provider, err := s.repo.ActiveProvider(ctx, ProviderName)
	if err != nil {
		return nil, fmt.Errorf("error looking up provider: %w", err)
	}
	if provider == nil {
		return nil, ErrProviderMissing
	}

	batchID := uuid.New().String()
	result := &models.ImportResponse{
		OK:      true,
		BatchID: batchID,
	}

	subjects := make(map[string]struct{})
	for i, raw := range raws {
		result.Processed++

		row, err := ingest.Validate(raw)
		if err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.RowError{
				Row:   rowLabel(raw, i),
				Error: err.Error(),
			})
			continue
		}

		session := &models.TrainingSession{
			ID:             row.Key(),
			ProviderID:     provider.ID,
			ProviderUserID: row.Email,
			LessonID:       row.LessonID,
			LessonTitle:    row.LessonTitle,
			StartedAt:      row.StartedAt,
			EndedAt:        row.EndedAt,
			Minutes:        row.Minutes,
			ImportBatchID:  batchID,
		}

		// A duplicate insert is a no-op; the row still counts as imported.
		// Hour totals are protected by the recompute over the deduplicated set.
		if _, err := s.repo.InsertSession(ctx, session); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, models.RowError{
				Row:   row.Email,
				Error: err.Error(),
			})
			continue
		}

		result.Imported++
		result.MinutesAdded += row.Minutes
		subjects[row.Email] = struct{}{}
	}

	result.HoursAdded = float64(result.MinutesAdded) / 60

	// Subjects whose email matches an enrolled-but-unmapped apprentice get
	// their enrollment created here, so the recompute join sees their
	// sessions. Unknown subjects stay unmapped until staff enroll them.
	s.autoEnroll(ctx, provider.ID, subjects)

	// One recompute per distinct touched apprentice, not per row. A failed
	// recompute leaves hours_totals stale, so it is reported on the batch,
	// not just logged.
	if err := s.recalcForBatch(ctx, provider.ID, batchID); err != nil {
		s.logger.Errorw("ledger recompute after import failed",
			"batch_id", batchID, "error", err)
		result.Errors = append(result.Errors, models.RowError{
			Row:   "ledger recompute",
			Error: err.Error(),
		})
	}

	// Operational history gets a summary row even for an all-failed batch.
	batch := &models.ImportBatch{
		ID:            batchID,
		ProviderID:    provider.ID,
		RowsProcessed: result.Processed,
		RowsImported:  result.Imported,
		RowsFailed:    result.Failed,
		MinutesAdded:  result.MinutesAdded,
		Errors:        encodeRowErrors(result.Errors),
	}
	if err := s.repo.RecordBatch(ctx, batch); err != nil {
		return nil, fmt.Errorf("error recording import batch: %w", err)
	}

	s.logger.Infow("batch imported",
		"batch_id", batchID,
		"processed", result.Processed,
		"imported", result.Imported,
		"failed", result.Failed,
		"minutes_added", result.MinutesAdded)

	return result, nil
}

// autoEnroll maps batch subjects onto apprentices by email. The enrollment
// insert is idempotent, so already-mapped subjects are a no-op.
func (s *DefaultService) autoEnroll(ctx context.Context, providerID string, subjects map[string]struct{}) {
	for email := range subjects {
		apprentice, err := s.repo.GetApprenticeByEmail(ctx, email)
		if err != nil {
			s.logger.Errorw("apprentice lookup failed during enrollment mapping",
				"email", email, "error", err)
			continue
		}
		if apprentice == nil {
			continue
		}

		enrollment := &models.Enrollment{
			ApprenticeID:   apprentice.ID,
			ProviderID:     providerID,
			ProviderUserID: email,
		}
		if err := s.repo.CreateEnrollment(ctx, enrollment); err != nil {
			s.logger.Errorw("enrollment mapping failed",
				"email", email, "error", err)
		}
	}
}

func (s *DefaultService) recalcForBatch(ctx context.Context, providerID, batchID string) error {
	apprentices, err := s.repo.ApprenticesTouchedByBatch(ctx, providerID, batchID)
	if err != nil {
		return err
	}

	for _, id := range apprentices {
		if err := s.repo.RecalcTotals(ctx, id, models.CategoryRTI); err != nil {
			return fmt.Errorf("recalc for apprentice %s: %w", id, err)
		}
	}
	return nil
}

func rowLabel(raw map[string]string, index int) string {
	if email := raw["email"]; email != "" {
		return email
	}
	return "row " + strconv.Itoa(index+1)
}

func encodeRowErrors(errs []models.RowError) string {
	if len(errs) == 0 {
		return "[]"
	}
	encoded, err := json.Marshal(errs)
	if err != nil {
		return "[]"
	}
	return string(encoded)
}
