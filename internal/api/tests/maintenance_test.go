package api_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateforhumanity/cima-importer/internal/api/testutils"
	"github.com/elevateforhumanity/cima-importer/internal/models"
)

func TestPurgeExpiredSignTokens(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	apprentice := testutils.CreateTestApprentice(t, testCtx, "kate@example.com")
	entry := testutils.CreateTestTimesheet(t, testCtx, apprentice.ID, "5")

	expiredSecret := uuid.New().String()
	_, err := testCtx.Repository.InsertSignToken(
		context.Background(), entry.ID, expiredSecret, time.Now().UTC().Add(-time.Hour))
	require.NoError(t, err)

	liveSecret, _, err := testCtx.Service.IssueSignToken(context.Background(), entry.ID)
	require.NoError(t, err)

	purged, err := testCtx.Repository.PurgeExpiredSignTokens(context.Background(), time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), purged)

	// The live token survived the purge
	valid, err := testCtx.Tokens.Verify(context.Background(), entry.ID, liveSecret)
	require.NoError(t, err)
	assert.True(t, valid)

	valid, err = testCtx.Tokens.Verify(context.Background(), entry.ID, expiredSecret)
	require.NoError(t, err)
	assert.False(t, valid)
}

func TestMarkStalePendingEntries(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	apprentice := testutils.CreateTestApprentice(t, testCtx, "leo@example.com")
	oldEntry := testutils.CreateTestTimesheet(t, testCtx, apprentice.ID, "4")
	freshEntry := testutils.CreateTestTimesheet(t, testCtx, apprentice.ID, "6")

	// Backdate one entry past the stale window
	_, err := testCtx.DB.Exec(
		"UPDATE timesheet_entries SET created_at = $1 WHERE id = $2",
		time.Now().UTC().AddDate(0, 0, -20), oldEntry.ID)
	require.NoError(t, err)

	marked, err := testCtx.Repository.MarkStalePendingEntries(
		context.Background(), time.Now().UTC().AddDate(0, 0, -14))
	require.NoError(t, err)
	assert.Equal(t, int64(1), marked)

	var stale bool
	err = testCtx.DB.Get(&stale, "SELECT stale FROM timesheet_entries WHERE id = $1", oldEntry.ID)
	require.NoError(t, err)
	assert.True(t, stale)

	err = testCtx.DB.Get(&stale, "SELECT stale FROM timesheet_entries WHERE id = $1", freshEntry.ID)
	require.NoError(t, err)
	assert.False(t, stale)

	// A second sweep is a no-op for already-marked entries
	marked, err = testCtx.Repository.MarkStalePendingEntries(
		context.Background(), time.Now().UTC().AddDate(0, 0, -14))
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)
}

func TestStaleMarkingSkipsApproved(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	apprentice := testutils.CreateTestApprentice(t, testCtx, "mia@example.com")
	entry := testutils.CreateTestTimesheet(t, testCtx, apprentice.ID, "8")

	secret, _, err := testCtx.Service.IssueSignToken(context.Background(), entry.ID)
	require.NoError(t, err)

	_, err = testCtx.Repository.ApproveTimesheet(
		context.Background(), entry.ID, secret, models.SignAudit{TimesheetID: entry.ID})
	require.NoError(t, err)

	_, err = testCtx.DB.Exec(
		"UPDATE timesheet_entries SET created_at = $1 WHERE id = $2",
		time.Now().UTC().AddDate(0, 0, -30), entry.ID)
	require.NoError(t, err)

	marked, err := testCtx.Repository.MarkStalePendingEntries(
		context.Background(), time.Now().UTC().AddDate(0, 0, -14))
	require.NoError(t, err)
	assert.Equal(t, int64(0), marked)
}
