package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/elevateforhumanity/cima-importer/internal/repository"
)

// TokenService issues, verifies and burns the single-use capability tokens
// that gate timesheet signing. Verification and burning are transactional
// operations of the repository so the verify-then-burn atomicity inside the
// signing workflow is a contract of the store, not of call order.
type TokenService struct {
	repo repository.Repository
	ttl  time.Duration
}

// NewTokenService creates a TokenService with the given token lifetime in days.
func NewTokenService(repo repository.Repository, ttlDays int) *TokenService {
	return &TokenService{
		repo: repo,
		ttl:  time.Duration(ttlDays) * 24 * time.Hour,
	}
}

// Issue mints a token bound to one timesheet and returns the secret and its
// expiry. The secret exists only in this return value; the store keeps a
// bcrypt hash. Previously issued tokens remain live until burned or expired.
func (t *TokenService) Issue(ctx context.Context, timesheetID string) (string, time.Time, error) {
	secret := uuid.New().String()
	expiresAt := time.Now().UTC().Add(t.ttl)

	if _, err := t.repo.InsertSignToken(ctx, timesheetID, secret, expiresAt); err != nil {
		return "", time.Time{}, fmt.Errorf("error storing sign token: %w", err)
	}
	return secret, expiresAt, nil
}

// Verify reports whether the presented secret is a live token for the
// timesheet. Absence, mismatch and expiry are a normal false result.
func (t *TokenService) Verify(ctx context.Context, timesheetID, secret string) (bool, error) {
	return t.repo.VerifySignToken(ctx, timesheetID, secret, time.Now().UTC())
}

// Burn deletes every token for the timesheet. The signing workflow burns
// inside its approval transaction instead; this entry point is for callers
// that want single-token-per-timesheet discipline before issuing anew.
func (t *TokenService) Burn(ctx context.Context, timesheetID string) error {
	if _, err := t.repo.DeleteSignTokens(ctx, timesheetID); err != nil {
		return fmt.Errorf("error burning sign tokens: %w", err)
	}
	return nil
}
