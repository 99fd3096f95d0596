package testutils

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/elevateforhumanity/cima-importer/internal/api"
	"github.com/elevateforhumanity/cima-importer/internal/config"
	"github.com/elevateforhumanity/cima-importer/internal/models"
	"github.com/elevateforhumanity/cima-importer/internal/notify"
	"github.com/elevateforhumanity/cima-importer/internal/repository"
	"github.com/elevateforhumanity/cima-importer/internal/service"
	"github.com/elevateforhumanity/cima-importer/internal/utils"
)

// TestContext holds all dependencies for tests
type TestContext struct {
	Router     *gin.Engine
	Repository repository.Repository
	Service    service.Service
	Tokens     *service.TokenService
	JWTSecret  []byte
	DB         *sqlx.DB
	ProviderID string
	StaffJWT   string
}

// SetupTestContext creates a new test context with initialized dependencies.
// Tests are skipped when the test database is unreachable.
func SetupTestContext(t *testing.T) *TestContext {
	// Load configuration from environment
	cfg := config.LoadConfig()

	// Override with test-specific config
	if cfg.Database.DBName == "apprenticeship" && cfg.Database.TestDBName != "" {
		cfg.Database.DBName = cfg.Database.TestDBName
	} else if cfg.Database.TestDBName == "" {
		cfg.Database.DBName = "apprenticeship_test"
	}

	// Use a test JWT secret
	if cfg.Auth.StaffJWTSecret == "" {
		cfg.Auth.StaffJWTSecret = "test-secret-key"
	}

	// Set up database
	db, err := config.SetupDatabase(cfg)
	if err != nil {
		t.Skipf("test database unavailable: %v", err)
	}

	// Create repository and service with quiet logging and no mail
	repo := repository.NewPostgresRepository(db)
	tokens := service.NewTokenService(repo, cfg.Signing.TokenTTLDays)
	svc := service.NewDefaultService(repo, tokens, notify.Noop{}, utils.NewTestLogger())

	// Create API handler without object storage; tests post inline CSV
	handler := api.NewHandler(svc, nil, []byte(cfg.Auth.StaffJWTSecret))

	// Set up Gin router
	gin.SetMode(gin.TestMode)
	router := gin.New()
	handler.SetupRoutes(router)

	cleanupTestDatabase(t, repo)

	provider, err := repo.ActiveProvider(context.Background(), service.ProviderName)
	require.NoError(t, err, "Failed to look up seeded provider")
	require.NotNil(t, provider, "Provider seed missing from test database")

	return &TestContext{
		Router:     router,
		Repository: repo,
		Service:    svc,
		Tokens:     tokens,
		JWTSecret:  []byte(cfg.Auth.StaffJWTSecret),
		DB:         db,
		ProviderID: provider.ID,
		StaffJWT:   mintStaffJWT(t, cfg.Auth.StaffJWTSecret),
	}
}

// CleanupTestContext cleans up test resources
func CleanupTestContext(t *TestContext) {
	if t.DB != nil {
		cleanupTestDatabase(nil, t.Repository)
		t.DB.Close()
	}
}

// cleanupTestDatabase removes workflow data. Reference data (provider
// registry, hour categories) stays seeded.
func cleanupTestDatabase(t *testing.T, repo repository.Repository) {
	pgRepo, ok := repo.(*repository.PostgresRepository)
	if !ok {
		return
	}
	db := pgRepo.GetDB()

	// Order follows foreign keys
	tables := []string{
		"sign_audit",
		"sign_tokens",
		"timesheet_entries",
		"training_sessions",
		"import_batches",
		"hours_totals",
		"enrollments",
		"mentors",
		"apprentices",
	}
	for _, table := range tables {
		_, err := db.Exec("DELETE FROM " + table)
		if t != nil && err != nil {
			t.Logf("Warning: Failed to clean %s: %v", table, err)
		}
	}
}

func mintStaffJWT(t *testing.T, secret string) string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "staff@example.com",
		"exp": time.Now().Add(24 * time.Hour).Unix(),
		"iat": time.Now().Unix(),
	})

	tokenString, err := token.SignedString([]byte(secret))
	assert.NoError(t, err, "Failed to generate staff JWT")
	return tokenString
}

// CreateTestApprentice creates an apprentice enrolled against the seeded
// provider under their own email.
func CreateTestApprentice(t *testing.T, ctx *TestContext, email string) *models.Apprentice {
	start := time.Now().UTC().AddDate(-1, 0, 0)
	apprentice := &models.Apprentice{
		ID:        uuid.New().String(),
		FirstName: "Test",
		LastName:  "Apprentice",
		Email:     email,
		StartDate: &start,
		Status:    "active",
		CreatedAt: time.Now().UTC(),
	}
	require.NoError(t, ctx.Repository.CreateApprentice(context.Background(), apprentice))

	enrollment := &models.Enrollment{
		ApprenticeID:   apprentice.ID,
		ProviderID:     ctx.ProviderID,
		ProviderUserID: strings.ToLower(email),
		CreatedAt:      time.Now().UTC(),
	}
	require.NoError(t, ctx.Repository.CreateEnrollment(context.Background(), enrollment))

	return apprentice
}

// CreateTestMentor creates a workplace mentor
func CreateTestMentor(t *testing.T, ctx *TestContext, email string) *models.Mentor {
	mentor := &models.Mentor{
		ID:       uuid.New().String(),
		FullName: "Test Mentor",
		Email:    email,
	}
	require.NoError(t, ctx.Repository.CreateMentor(context.Background(), mentor))
	return mentor
}

// CreateTestTimesheet creates a pending OJT timesheet entry
func CreateTestTimesheet(t *testing.T, ctx *TestContext, apprenticeID string, hours string) *models.TimesheetEntry {
	entry := &models.TimesheetEntry{
		ID:              uuid.New().String(),
		ApprenticeID:    apprenticeID,
		Date:            time.Now().UTC().Truncate(24 * time.Hour),
		Hours:           decimal.RequireFromString(hours),
		Description:     "Client services practice",
		SkillsPracticed: "Sanitation, consultation",
		Status:          models.StatusPending,
		CreatedAt:       time.Now().UTC(),
	}
	require.NoError(t, ctx.Repository.CreateTimesheet(context.Background(), entry))
	return entry
}

// PerformRequest executes a JSON HTTP request against the router
func PerformRequest(r http.Handler, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	var reqBody *bytes.Buffer

	if body != nil {
		jsonBody, _ := json.Marshal(body)
		reqBody = bytes.NewBuffer(jsonBody)
	} else {
		reqBody = bytes.NewBuffer(nil)
	}

	req, _ := http.NewRequest(method, path, reqBody)
	req.Header.Set("Content-Type", "application/json")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// PerformCSVRequest posts a raw CSV payload against the router
func PerformCSVRequest(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "text/csv")

	for k, v := range headers {
		req.Header.Set(k, v)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// AuthHeaders returns headers with Authorization token
func AuthHeaders(token string) map[string]string {
	return map[string]string{
		"Authorization": fmt.Sprintf("Bearer %s", token),
	}
}
