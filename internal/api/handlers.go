package api

import (
	"context"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/medifusion-server/internal/domain"
	"github.com/medifusion-server/internal/health"
	"github.com/medifusion-server/internal/ingest"
	"github.com/medifusion-server/internal/middleware"
)

// Pagination bounds for the results listing.
const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Multipart form fields.
const (
	fieldStructured = "structured"
	fieldGenomics   = "genomics"
	fieldPathology  = "pathology"
	fieldMRI        = "mri"
)

// errorResponse is the body of a request-level failure.
type errorResponse struct {
	Status    string `json:"status"`
	Message   string `json:"message"`
	Code      string `json:"code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// analyzeJSONRequest is the body of POST /api/v1/analyze/json. A missing rows field
// analyzes the demo row.
type analyzeJSONRequest struct {
	Rows      []domain.StructuredRow `json:"rows"`
	Genomics  string                 `json:"genomics"`
	Pathology string                 `json:"pathology"`
}

// resultsPage is the body of GET /api/v1/results.
type resultsPage struct {
	Results []*domain.ResultRecord `json:"results"`
	Total   int64                  `json:"total"`
	Limit   int                    `json:"limit"`
	Offset  int                    `json:"offset"`
}

// handleHealth handles health check requests
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC(),
		"version":   Version,
		"predictor": s.analysis.PredictorName(),
		"storage":   s.store != nil,
	})
}

// handleReadiness runs the component checks. Unhealthy components answer 503.
func (s *Server) handleReadiness(c *gin.Context) {
	status := s.health.Status(c.Request.Context())

	code := http.StatusOK
	if status.Overall == health.StateUnhealthy {
		code = http.StatusServiceUnavailable
	}
	c.JSON(code, status)
}

// handleAnalyzeUpload analyzes a multipart upload. Every file is optional; without a
// structured CSV the demo row is analyzed. MRI uploads are accepted and ignored.
func (s *Server) handleAnalyzeUpload(c *gin.Context) {
	limit := s.configManager.GetServerConfig().MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	if err := c.Request.ParseMultipartForm(limit); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, fmt.Errorf("invalid upload: %w", err))
		return
	}

	req := &domain.BatchRequest{RequestID: c.GetString(middleware.CorrelationIDKey)}

	rows, err := s.readStructured(c)
	if err != nil {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}
	req.Rows = rows

	if req.Genomics, err = s.readNote(c, fieldGenomics, limit); err != nil {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}
	if req.Pathology, err = s.readNote(c, fieldPathology, limit); err != nil {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, err)
		return
	}

	if _, header, err := c.Request.FormFile(fieldMRI); err == nil {
		s.logger.WithFields(logrus.Fields{
			"filename": header.Filename,
			"size":     header.Size,
		}).Debug("MRI upload ignored")
	}

	s.analyze(c, req)
}

// handleAnalyzeJSON analyzes rows and notes sent as JSON.
func (s *Server) handleAnalyzeJSON(c *gin.Context) {
	limit := s.configManager.GetServerConfig().MaxUploadBytes
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)

	var body analyzeJSONRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		s.fail(c, http.StatusBadRequest, domain.ErrInvalidInput, fmt.Errorf("invalid request body: %w", err))
		return
	}

	rows := body.Rows
	if rows == nil {
		rows = []domain.StructuredRow{ingest.DemoRow()}
	}

	s.analyze(c, &domain.BatchRequest{
		RequestID: c.GetString(middleware.CorrelationIDKey),
		Rows:      rows,
		Genomics:  body.Genomics,
		Pathology: body.Pathology,
	})
}

func (s *Server) analyze(c *gin.Context, req *domain.BatchRequest) {
	resp, err := s.analysis.AnalyzeBatch(c.Request.Context(), req)
	if err != nil {
		status := http.StatusInternalServerError
		code := domain.ErrProcessing
		switch {
		case errors.Is(err, domain.ErrPredictorUnavailable):
			status, code = http.StatusServiceUnavailable, domain.ErrPredictor
		case errors.Is(err, context.DeadlineExceeded):
			status = http.StatusGatewayTimeout
		}
		s.failWithMessage(c, status, code, "Analysis failed: "+err.Error(), err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// readStructured parses the uploaded CSV, or returns the demo row when none was sent.
func (s *Server) readStructured(c *gin.Context) ([]domain.StructuredRow, error) {
	file, _, err := c.Request.FormFile(fieldStructured)
	if errors.Is(err, http.ErrMissingFile) || errors.Is(err, http.ErrNotMultipart) {
		return []domain.StructuredRow{ingest.DemoRow()}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading structured file: %w", err)
	}
	defer file.Close()

	rows, err := ingest.ParseCSV(file)
	if err != nil {
		return nil, fmt.Errorf("parsing structured file: %w", err)
	}
	return rows, nil
}

// readNote returns an uploaded note file, falling back to a plain form value.
func (s *Server) readNote(c *gin.Context, field string, limit int64) (string, error) {
	file, _, err := c.Request.FormFile(field)
	if err != nil {
		return c.Request.FormValue(field), nil
	}
	defer func(f multipart.File) { _ = f.Close() }(file)

	text, err := ingest.ReadText(file, limit)
	if err != nil {
		return "", fmt.Errorf("reading %s file: %w", field, err)
	}
	return text, nil
}

// handleListResults lists stored results, newest first.
func (s *Server) handleListResults(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	limit, err := queryInt(c, "limit", defaultPageSize)
	if err != nil || limit < 1 || limit > maxPageSize {
		s.fail(c, http.StatusBadRequest, domain.ErrValidation,
			domain.NewValidationError("limit", fmt.Sprintf("must be between 1 and %d", maxPageSize), c.Query("limit")))
		return
	}
	offset, err := queryInt(c, "offset", 0)
	if err != nil || offset < 0 {
		s.fail(c, http.StatusBadRequest, domain.ErrValidation,
			domain.NewValidationError("offset", "must be a non-negative integer", c.Query("offset")))
		return
	}

	ctx := c.Request.Context()
	records, err := s.store.List(ctx, limit, offset)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, domain.ErrStorage, err)
		return
	}
	total, err := s.store.Count(ctx)
	if err != nil {
		s.fail(c, http.StatusInternalServerError, domain.ErrStorage, err)
		return
	}

	c.JSON(http.StatusOK, resultsPage{
		Results: records,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
	})
}

// handleGetResult returns one stored result, or its downloadable report with
// ?format=report.
func (s *Server) handleGetResult(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	record, err := s.store.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, domain.ErrNotFound) {
		s.fail(c, http.StatusNotFound, domain.ErrInvalidInput, fmt.Errorf("result %s not found", c.Param("id")))
		return
	}
	if err != nil {
		s.fail(c, http.StatusInternalServerError, domain.ErrStorage, err)
		return
	}

	switch c.DefaultQuery("format", "json") {
	case "report":
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="report_%s.json"`, record.PatientID))
		c.IndentedJSON(http.StatusOK, record.Report())
	case "json":
		c.JSON(http.StatusOK, record)
	default:
		s.fail(c, http.StatusBadRequest, domain.ErrValidation,
			domain.NewValidationError("format", "must be json or report", c.Query("format")))
	}
}

// handleExportResults streams every stored result as one JSON document.
func (s *Server) handleExportResults(c *gin.Context) {
	if !s.requireStore(c) {
		return
	}

	c.Header("Content-Type", "application/json; charset=utf-8")
	c.Header("Content-Disposition", `attachment; filename="results_export.json"`)
	c.Status(http.StatusOK)

	if err := s.store.ExportJSON(c.Request.Context(), c.Writer); err != nil {
		// Headers are already sent; record the failure for the audit log.
		_ = c.Error(err)
		s.logger.WithError(err).Error("Failed to export results")
	}
}

func (s *Server) requireStore(c *gin.Context) bool {
	if s.store != nil {
		return true
	}
	s.fail(c, http.StatusServiceUnavailable, domain.ErrStorage, errors.New("result persistence is disabled"))
	return false
}

// fail writes a request-level error response.
func (s *Server) fail(c *gin.Context, status int, code string, err error) {
	s.failWithMessage(c, status, code, err.Error(), err)
}

func (s *Server) failWithMessage(c *gin.Context, status int, code, message string, err error) {
	requestID := c.GetString(middleware.CorrelationIDKey)
	entry := s.logger.WithError(err).WithFields(logrus.Fields{
		"code":           code,
		"status":         status,
		"correlation_id": requestID,
	})
	if status >= http.StatusInternalServerError {
		entry.Error("Request failed")
	} else {
		entry.Warn("Request rejected")
	}

	c.AbortWithStatusJSON(status, errorResponse{
		Status:    domain.StatusError,
		Message:   message,
		Code:      code,
		RequestID: requestID,
	})
}

func queryInt(c *gin.Context, key string, def int) (int, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
