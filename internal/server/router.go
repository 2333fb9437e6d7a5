package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/MarcoPoloResearchLab/pagepin/internal/mirror"
)

var (
	errMissingStore         = errors.New("record store dependency required")
	errInvalidAuthorization = errors.New("authorization header missing or invalid")
)

// CycleReporter exposes the sync loop's most recent cycle summary.
type CycleReporter interface {
	LastReport() (mirror.CycleReport, time.Time)
}

type Dependencies struct {
	Store    *mirror.Store
	Reporter CycleReporter
	// APIToken guards /status and /diagnostics when set. /healthz is always
	// open.
	APIToken string
	Logger   *zap.Logger
}

func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Store == nil {
		return nil, errMissingStore
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		store:    deps.Store,
		reporter: deps.Reporter,
		apiToken: deps.APIToken,
		logger:   logger,
	}

	router.GET("/healthz", handler.handleHealth)

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/status", handler.handleStatus)
	protected.GET("/diagnostics", handler.handleDiagnostics)

	return router, nil
}

type httpHandler struct {
	store    *mirror.Store
	reporter CycleReporter
	apiToken string
	logger   *zap.Logger
}

func (h *httpHandler) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

type cyclePayload struct {
	Pages       int    `json:"pages"`
	Pushed      int    `json:"pushed"`
	Skipped     int    `json:"skipped"`
	Failed      int    `json:"failed"`
	Archived    int    `json:"archived"`
	CompletedAt int64  `json:"completed_at_s"`
	State       string `json:"state"`
}

type recordPayload struct {
	PageID           string `json:"page_id"`
	Title            string `json:"title"`
	Status           string `json:"status"`
	MessageID        int64  `json:"message_id,omitempty"`
	Pinned           bool   `json:"pinned"`
	RevisionSeconds  int64  `json:"revision_at_s"`
	LastError        string `json:"last_error,omitempty"`
	UpdatedAtSeconds int64  `json:"updated_at_s"`
}

type statusPayload struct {
	Cycle   cyclePayload    `json:"cycle"`
	Records []recordPayload `json:"records"`
}

func (h *httpHandler) handleStatus(c *gin.Context) {
	records, err := h.store.Snapshot(c.Request.Context())
	if err != nil {
		h.logger.Error("failed to read record snapshot", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "snapshot_failed"})
		return
	}

	response := statusPayload{
		Cycle:   cyclePayload{State: "pending"},
		Records: make([]recordPayload, 0, len(records)),
	}
	if h.reporter != nil {
		report, completedAt := h.reporter.LastReport()
		if !completedAt.IsZero() {
			response.Cycle = cyclePayload{
				Pages:       report.Pages,
				Pushed:      report.Pushed,
				Skipped:     report.Skipped,
				Failed:      report.Failed,
				Archived:    report.Archived,
				CompletedAt: completedAt.Unix(),
				State:       "completed",
			}
		}
	}
	for _, record := range records {
		response.Records = append(response.Records, recordPayload{
			PageID:           record.PageID,
			Title:            record.Title,
			Status:           string(record.Status),
			MessageID:        record.MessageID,
			Pinned:           record.Pinned,
			RevisionSeconds:  record.RevisionAtSeconds,
			LastError:        record.LastError,
			UpdatedAtSeconds: record.UpdatedAtSeconds,
		})
	}

	c.JSON(http.StatusOK, response)
}

type diagnosticPayload struct {
	ID                string `json:"id"`
	PageID            string `json:"page_id"`
	Kind              string `json:"kind"`
	Detail            string `json:"detail"`
	RecordedAtSeconds int64  `json:"recorded_at_s"`
}

func (h *httpHandler) handleDiagnostics(c *gin.Context) {
	pageID := strings.TrimSpace(c.Query("page_id"))
	if pageID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "page_id_required"})
		return
	}

	diagnostics, err := h.store.DiagnosticsForPage(c.Request.Context(), pageID)
	if err != nil {
		h.logger.Error("failed to read diagnostics", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "diagnostics_failed"})
		return
	}

	response := make([]diagnosticPayload, 0, len(diagnostics))
	for _, diagnostic := range diagnostics {
		response = append(response, diagnosticPayload{
			ID:                diagnostic.DiagnosticID,
			PageID:            diagnostic.PageID,
			Kind:              string(diagnostic.Kind),
			Detail:            diagnostic.Detail,
			RecordedAtSeconds: diagnostic.RecordedAtSeconds,
		})
	}

	c.JSON(http.StatusOK, gin.H{"diagnostics": response})
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	if h.apiToken == "" {
		c.Next()
		return
	}
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token != h.apiToken {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Next()
}
