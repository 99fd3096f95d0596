package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/elevateforhumanity/cima-importer/internal/models"
	"github.com/elevateforhumanity/cima-importer/internal/service"
)

const dateLayout = "2006-01-02"

// Default reporting windows when the caller gives no bounds.
const (
	defaultExportWindow          = 30 * 24 * time.Hour
	defaultTimesheetExportWindow = 14 * 24 * time.Hour
)

// ObjectFetcher reads a named batch file out of the object store. The
// import endpoint uses it for `?object=` references; a nil fetcher makes
// those references a 404.
type ObjectFetcher interface {
	Fetch(ctx context.Context, key string) ([]byte, error)
}

// Handler holds the dependencies of the HTTP surface
type Handler struct {
	svc       service.Service
	files     ObjectFetcher
	jwtSecret []byte
}

// NewHandler creates a new API handler
func NewHandler(svc service.Service, files ObjectFetcher, jwtSecret []byte) *Handler {
	return &Handler{
		svc:       svc,
		files:     files,
		jwtSecret: jwtSecret,
	}
}

// SetupRoutes configures all the API routes
func (h *Handler) SetupRoutes(router *gin.Engine) {
	staff := router.Group("/")
	staff.Use(StaffAuthMiddleware(h.jwtSecret))
	{
		staff.POST("/import", h.Import)
		staff.GET("/timesheets/export", h.TimesheetExport)
	}

	router.GET("/export", h.Export)
	router.GET("/progress", h.Progress)
	router.GET("/stats", h.Stats)
	router.GET("/timesheet/:id", h.Timesheet)
	router.POST("/sign", h.Sign)
}

// Import ingests one CSV batch, either from the request body or from an
// object-store reference.
func (h *Handler) Import(c *gin.Context) {
	var payload []byte

	if object := c.Query("object"); object != "" {
		if h.files == nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Status:  "error",
				Code:    "OBJECT_NOT_FOUND",
				Message: "Object storage is not configured",
			})
			return
		}
		data, err := h.files.Fetch(c.Request.Context(), object)
		if err != nil {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Status:  "error",
				Code:    "OBJECT_NOT_FOUND",
				Message: "Batch file not found: " + object,
			})
			return
		}
		payload = data
	} else {
		data, err := io.ReadAll(c.Request.Body)
		if err != nil || len(data) == 0 {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Status:  "error",
				Code:    "EMPTY_BODY",
				Message: "Request body must contain a CSV export",
			})
			return
		}
		payload = data
	}

	result, err := h.svc.Import(c.Request.Context(), payload)
	if err != nil {
		if errors.Is(err, service.ErrParse) {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Status:  "error",
				Code:    "PARSE_ERROR",
				Message: err.Error(),
			})
			return
		}
		if errors.Is(err, service.ErrProviderMissing) {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Status:  "error",
				Code:    "PROVIDER_MISSING",
				Message: "RTI provider is not registered",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "IMPORT_FAILED",
			Message: "Failed to import batch",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Export returns the regulatory export, JSON by default or CSV with
// ?format=csv.
func (h *Handler) Export(c *gin.Context) {
	since := time.Now().UTC().Add(-defaultExportWindow)
	if raw := c.Query("since"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Status:  "error",
				Code:    "INVALID_DATE",
				Message: "since must be YYYY-MM-DD",
			})
			return
		}
		since = parsed
	}

	if c.Query("format") == "csv" {
		data, err := h.svc.ExportCSV(c.Request.Context(), since)
		if err != nil {
			c.JSON(http.StatusInternalServerError, models.ErrorResponse{
				Status:  "error",
				Code:    "EXPORT_FAILED",
				Message: "Failed to build export",
			})
			return
		}
		c.Header("Content-Disposition", `attachment; filename="apprentice_hours_export.csv"`)
		c.Data(http.StatusOK, "text/csv", data)
		return
	}

	result, err := h.svc.Export(c.Request.Context(), since)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "EXPORT_FAILED",
			Message: "Failed to build export",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Progress returns one apprentice's progress against the category thresholds.
func (h *Handler) Progress(c *gin.Context) {
	email := c.Query("email")
	if email == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "MISSING_EMAIL",
			Message: "email query parameter is required",
		})
		return
	}

	result, err := h.svc.Progress(c.Request.Context(), email)
	if err != nil {
		if errors.Is(err, service.ErrApprenticeUnknown) {
			c.JSON(http.StatusNotFound, models.ErrorResponse{
				Status:  "error",
				Code:    "APPRENTICE_NOT_FOUND",
				Message: "No apprentice with that email",
			})
			return
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "PROGRESS_FAILED",
			Message: "Failed to compute progress",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Stats returns the aggregate dashboard payload.
func (h *Handler) Stats(c *gin.Context) {
	result, err := h.svc.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "STATS_FAILED",
			Message: "Failed to compute stats",
		})
		return
	}

	c.JSON(http.StatusOK, result)
}

// Timesheet serves the signing-page view of a timesheet, gated by the
// capability token.
func (h *Handler) Timesheet(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "MISSING_TOKEN",
			Message: "token query parameter is required",
		})
		return
	}

	detail, err := h.svc.TimesheetForSigning(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		h.workflowError(c, err, "Failed to load timesheet")
		return
	}

	c.JSON(http.StatusOK, models.TimesheetResponse{OK: true, Timesheet: *detail})
}

// Sign runs the pending -> approved transition for one timesheet.
func (h *Handler) Sign(c *gin.Context) {
	var req models.SignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_REQUEST",
			Message: "timesheet_id and token are required",
		})
		return
	}

	meta := service.ClientMeta{
		IP:        c.ClientIP(),
		UserAgent: c.Request.UserAgent(),
	}

	if err := h.svc.Sign(c.Request.Context(), req, meta); err != nil {
		h.workflowError(c, err, "Failed to sign timesheet")
		return
	}

	c.JSON(http.StatusOK, models.SignResponse{
		OK:      true,
		Message: "Timesheet signed",
	})
}

// TimesheetExport streams the flat timesheet CSV for a date range.
func (h *Handler) TimesheetExport(c *gin.Context) {
	end := time.Now().UTC()
	start := end.Add(-defaultTimesheetExportWindow)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Status:  "error",
				Code:    "INVALID_DATE",
				Message: "start must be YYYY-MM-DD",
			})
			return
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(dateLayout, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, models.ErrorResponse{
				Status:  "error",
				Code:    "INVALID_DATE",
				Message: "end must be YYYY-MM-DD",
			})
			return
		}
		end = parsed
	}

	data, err := h.svc.TimesheetExportCSV(c.Request.Context(), start, end)
	if err != nil {
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "EXPORT_FAILED",
			Message: "Failed to build timesheet export",
		})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="timesheets_export.csv"`)
	c.Data(http.StatusOK, "text/csv", data)
}

// workflowError maps the signing-workflow outcome errors onto their HTTP
// statuses.
func (h *Handler) workflowError(c *gin.Context, err error, fallback string) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse{
			Status:  "error",
			Code:    "NOT_FOUND",
			Message: "Timesheet not found",
		})
	case errors.Is(err, service.ErrForbidden):
		c.JSON(http.StatusForbidden, models.ErrorResponse{
			Status:  "error",
			Code:    "INVALID_TOKEN",
			Message: "Signing token is invalid or expired",
		})
	case errors.Is(err, service.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse{
			Status:  "error",
			Code:    "ALREADY_SIGNED",
			Message: "Timesheet has already been signed",
		})
	default:
		c.JSON(http.StatusInternalServerError, models.ErrorResponse{
			Status:  "error",
			Code:    "INTERNAL_ERROR",
			Message: fallback,
		})
	}
}
