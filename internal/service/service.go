package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/elevateforhumanity/cima-importer/internal/models"
	"github.com/elevateforhumanity/cima-importer/internal/notify"
	"github.com/elevateforhumanity/cima-importer/internal/repository"
)

// ProviderName is the registered upstream RTI provider whose exports this
// service ingests.
const ProviderName = "Milady CIMA"

// Workflow outcome errors. Handlers map these to distinct HTTP statuses so
// callers can render accurate messages instead of a generic failure.
var (
	ErrNotFound  = repository.ErrTimesheetNotFound
	ErrForbidden = repository.ErrInvalidToken
	ErrConflict  = repository.ErrAlreadySigned

	ErrParse             = errors.New("CSV parsing errors")
	ErrApprenticeUnknown = errors.New("apprentice not found")
	ErrProviderMissing   = errors.New("provider not registered")
)

// ClientMeta carries request metadata into the signing audit trail
type ClientMeta struct {
	IP        string
	UserAgent string
}

// Service defines all the business logic operations
type Service interface {
	// Batch import
	Import(ctx context.Context, payload []byte) (*models.ImportResponse, error)

	// Capability tokens
	IssueSignToken(ctx context.Context, timesheetID string) (string, time.Time, error)

	// Signing workflow
	TimesheetForSigning(ctx context.Context, timesheetID, token string) (*models.TimesheetDetail, error)
	Sign(ctx context.Context, req models.SignRequest, meta ClientMeta) error

	// Reporting views
	Progress(ctx context.Context, email string) (*models.ProgressResponse, error)
	Export(ctx context.Context, since time.Time) (*models.ExportResponse, error)
	ExportCSV(ctx context.Context, since time.Time) ([]byte, error)
	Stats(ctx context.Context) (*models.StatsResponse, error)
	TimesheetExportCSV(ctx context.Context, start, end time.Time) ([]byte, error)
}

// DefaultService implements the Service interface
type DefaultService struct {
	repo     repository.Repository
	tokens   *TokenService
	notifier notify.Notifier
	logger   *zap.SugaredLogger
}

// NewDefaultService creates a new DefaultService
func NewDefaultService(repo repository.Repository, tokens *TokenService, notifier notify.Notifier, logger *zap.SugaredLogger) Service {
	return &DefaultService{
		repo:     repo,
		tokens:   tokens,
		notifier: notifier,
		logger:   logger,
	}
}

// IssueSignToken mints a fresh capability token for a timesheet. Existing
// live tokens stay valid; burning them first is the caller's policy choice.
func (s *DefaultService) IssueSignToken(ctx context.Context, timesheetID string) (string, time.Time, error) {
	detail, err := s.repo.TimesheetDetail(ctx, timesheetID)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("error getting timesheet: %w", err)
	}
	if detail == nil {
		return "", time.Time{}, ErrNotFound
	}

	return s.tokens.Issue(ctx, timesheetID)
}

// TimesheetForSigning returns the signing-page view of a timesheet after
// the capability-token check passes. Approved is reported before the token
// check so a link whose token was burned by the approval still explains
// that the timesheet is already signed.
func (s *DefaultService) TimesheetForSigning(ctx context.Context, timesheetID, token string) (*models.TimesheetDetail, error) {
	detail, err := s.repo.TimesheetDetail(ctx, timesheetID)
	if err != nil {
		return nil, fmt.Errorf("error getting timesheet: %w", err)
	}
	if detail == nil {
		return nil, ErrNotFound
	}
	if detail.Status == models.StatusApproved {
		return nil, ErrConflict
	}

	valid, err := s.tokens.Verify(ctx, timesheetID, token)
	if err != nil {
		return nil, fmt.Errorf("error verifying sign token: %w", err)
	}
	if !valid {
		return nil, ErrForbidden
	}

	return detail, nil
}

// Sign runs the pending -> approved transition. The guard and all state
// changes happen in one storage transaction; only the notification is
// applied after commit, best effort.
func (s *DefaultService) Sign(ctx context.Context, req models.SignRequest, meta ClientMeta) error {
	audit := models.SignAudit{
		TimesheetID: req.TimesheetID,
		IP:          meta.IP,
		UserAgent:   meta.UserAgent,
	}
	if req.MentorEmail != "" {
		audit.MentorEmail = &req.MentorEmail
	}

	approved, err := s.repo.ApproveTimesheet(ctx, req.TimesheetID, req.Token, audit)
	if err != nil {
		if errors.Is(err, ErrNotFound) || errors.Is(err, ErrForbidden) || errors.Is(err, ErrConflict) {
			return err
		}
		return fmt.Errorf("error approving timesheet: %w", err)
	}

	s.logger.Infow("timesheet signed",
		"timesheet_id", approved.TimesheetID,
		"apprentice_id", approved.ApprenticeID)

	// Best effort; a failed email never rolls back an approval.
	s.notifier.TimesheetApproved(ctx, approved)

	return nil
}

// Progress computes the per-apprentice progress view against the category
// thresholds held in reference data.
func (s *DefaultService) Progress(ctx context.Context, email string) (*models.ProgressResponse, error) {
	record, err := s.repo.ProgressByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("error getting progress: %w", err)
	}
	if record == nil {
		return nil, ErrApprenticeUnknown
	}

	thresholds, err := s.repo.CategoryThresholds(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting category thresholds: %w", err)
	}
	rtiRequired := thresholds[models.CategoryRTI]
	ojtRequired := thresholds[models.CategoryOJT]

	return &models.ProgressResponse{
		ID:                   record.ID,
		FirstName:            record.FirstName,
		LastName:             record.LastName,
		Email:                record.Email,
		StartDate:            record.StartDate,
		ExpectedEnd:          record.ExpectedEnd,
		Status:               record.Status,
		RTIHours:             record.RTIHours,
		OJTHours:             record.OJTHours,
		RTISessions:          record.RTISessions,
		OJTSessions:          record.OJTSessions,
		RTILastUpdated:       record.RTILastUpdated,
		OJTLastUpdated:       record.OJTLastUpdated,
		RTIProgressPercent:   progressPercent(record.RTIHours, rtiRequired),
		OJTProgressPercent:   progressPercent(record.OJTHours, ojtRequired),
		RTIRemaining:         remaining(record.RTIHours, rtiRequired),
		OJTRemaining:         remaining(record.OJTHours, ojtRequired),
		IsRTIComplete:        record.RTIHours.GreaterThanOrEqual(rtiRequired),
		IsOJTComplete:        record.OJTHours.GreaterThanOrEqual(ojtRequired),
		IsReadyForCompletion: record.RTIHours.GreaterThanOrEqual(rtiRequired) && record.OJTHours.GreaterThanOrEqual(ojtRequired),
	}, nil
}

// Stats builds the aggregate dashboard payload.
func (s *DefaultService) Stats(ctx context.Context) (*models.StatsResponse, error) {
	thresholds, err := s.repo.CategoryThresholds(ctx)
	if err != nil {
		return nil, fmt.Errorf("error getting category thresholds: %w", err)
	}

	stats, err := s.repo.DashboardStats(ctx, thresholds[models.CategoryRTI], thresholds[models.CategoryOJT])
	if err != nil {
		return nil, fmt.Errorf("error getting dashboard stats: %w", err)
	}

	recent, err := s.repo.RecentImports(ctx, 5)
	if err != nil {
		return nil, fmt.Errorf("error getting recent imports: %w", err)
	}

	return &models.StatsResponse{
		OK:            true,
		Stats:         *stats,
		RecentImports: recent,
		GeneratedAt:   time.Now().UTC(),
	}, nil
}

// progressPercent returns completed/required as a percentage with one
// decimal place, capped at 100.
func progressPercent(completed, required decimal.Decimal) float64 {
	if required.IsZero() {
		return 0
	}
	percent := completed.Div(required).Mul(decimal.NewFromInt(100))
	if percent.GreaterThan(decimal.NewFromInt(100)) {
		percent = decimal.NewFromInt(100)
	}
	value, _ := percent.Round(1).Float64()
	return value
}

// remaining returns the hours still owed toward the threshold, floored at zero.
func remaining(completed, required decimal.Decimal) decimal.Decimal {
	left := required.Sub(completed)
	if left.IsNegative() {
		return decimal.Zero
	}
	return left
}
