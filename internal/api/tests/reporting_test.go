package api_test

import (
	"encoding/json"
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateforhumanity/cima-importer/internal/api/testutils"
	"github.com/elevateforhumanity/cima-importer/internal/models"
)

func importHours(t *testing.T, testCtx *testutils.TestContext, csv string) {
	w := testutils.PerformCSVRequest(
		testCtx.Router,
		http.MethodPost,
		"/import",
		csv,
		testutils.AuthHeaders(testCtx.StaffJWT),
	)
	require.Equal(t, http.StatusOK, w.Code)
}

func TestProgress(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestApprentice(t, testCtx, "grace@example.com")
	importHours(t, testCtx, `Email,Minutes,LessonID
grace@example.com,120,L-301
`)

	// Test case 1: Known apprentice
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/progress?email=grace@example.com",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var response models.ProgressResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.Equal(t, "grace@example.com", response.Email)
	assert.True(t, response.RTIHours.IntPart() == 2, "expected 2 RTI hours, got %s", response.RTIHours)
	assert.Equal(t, 1, response.RTISessions)
	assert.False(t, response.IsRTIComplete)
	assert.False(t, response.IsReadyForCompletion)
	assert.Greater(t, response.RTIProgressPercent, 0.0)
	assert.LessOrEqual(t, response.RTIProgressPercent, 100.0)

	// Test case 2: Unknown apprentice
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/progress?email=nobody@example.com",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusNotFound, w.Code)

	// Test case 3: Missing email
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/progress",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestExport(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestApprentice(t, testCtx, "heidi@example.com")
	importHours(t, testCtx, `Email,Minutes,LessonID
heidi@example.com,60,L-401
`)

	// Test case 1: JSON export
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/export",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var response models.ExportResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.True(t, response.OK)
	assert.Equal(t, 1, response.Count)
	require.Len(t, response.Rows, 1)
	assert.Equal(t, "heidi@example.com", response.Rows[0].Email)
	assert.NotEmpty(t, response.Rows[0].CompletionStatus)

	// Test case 2: CSV export
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/export?format=csv",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.True(t, strings.HasPrefix(lines[0], "first_name,last_name,email"))
	assert.Contains(t, w.Body.String(), "heidi@example.com")

	// Test case 3: Malformed since date
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/export?since=March-1st",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStats(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	testutils.CreateTestApprentice(t, testCtx, "ivan@example.com")
	importHours(t, testCtx, `Email,Minutes,LessonID
ivan@example.com,90,L-501
`)

	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/stats",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusOK, w.Code)

	var response models.StatsResponse
	err := json.Unmarshal(w.Body.Bytes(), &response)
	require.NoError(t, err)
	assert.True(t, response.OK)
	assert.Equal(t, 1, response.Stats.TotalApprentices)
	assert.Equal(t, 1, response.Stats.ActiveApprentices)
	require.Len(t, response.RecentImports, 1)
	assert.Equal(t, 1, response.RecentImports[0].RowsImported)
	assert.Equal(t, 90, response.RecentImports[0].MinutesAdded)
}

func TestTimesheetExport(t *testing.T) {
	testCtx := testutils.SetupTestContext(t)
	defer testutils.CleanupTestContext(testCtx)

	apprentice := testutils.CreateTestApprentice(t, testCtx, "judy@example.com")
	testutils.CreateTestTimesheet(t, testCtx, apprentice.ID, "7.5")

	// Test case 1: Staff auth required
	w := testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/timesheets/export",
		nil,
		nil,
	)

	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// Test case 2: CSV stream with default window
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/timesheets/export",
		nil,
		testutils.AuthHeaders(testCtx.StaffJWT),
	)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")

	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.GreaterOrEqual(t, len(lines), 2)
	assert.Equal(t,
		"timesheet_id,apprentice_first,apprentice_last,apprentice_email,mentor_name,date,hours,description,status,signed_at",
		lines[0])
	assert.Contains(t, w.Body.String(), "judy@example.com")

	// Test case 3: Malformed range
	w = testutils.PerformRequest(
		testCtx.Router,
		http.MethodGet,
		"/timesheets/export?start=yesterday",
		nil,
		testutils.AuthHeaders(testCtx.StaffJWT),
	)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
