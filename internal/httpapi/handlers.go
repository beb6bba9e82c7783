package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"time"

	"callqa/internal/auth"
	"callqa/internal/calls"
	"callqa/internal/reporting"

	"github.com/gin-gonic/gin"
)

// maxWebhookBody caps inbound callback bodies. Completed-job payloads may
// carry a full transcript.
const maxWebhookBody = 8 << 20

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse input, call internal services, return JSON.
type Handlers struct {
	Calls   *calls.Service
	Reports *reporting.Service

	// WebhookHeader carries the transcription webhook secret.
	WebhookHeader string
}

func userID(c *gin.Context) (string, bool) {
	uid, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errorPayload{Type: "unauthorized", Message: "user identity required"}})
		return "", false
	}
	return uid, true
}

// ownedCall loads the path call and hides calls of other users.
func (h Handlers) ownedCall(c *gin.Context) (*calls.Call, bool) {
	uid, ok := userID(c)
	if !ok {
		return nil, false
	}
	call, err := h.Calls.GetCall(c.Request.Context(), c.Param("id"))
	if err == nil && call.UserID != uid {
		err = calls.ErrNotFound
	}
	if err != nil {
		writeError(c, err)
		return nil, false
	}
	return call, true
}

// --- Calls ---

func (h Handlers) CreateCall(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	var req calls.CreateCallInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "body", "invalid json")
		return
	}
	out, err := h.Calls.CreateCall(c.Request.Context(), uid, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, out)
}

func (h Handlers) ListCalls(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	list, err := h.Calls.ListCalls(c.Request.Context(), uid)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"calls": list})
}

func (h Handlers) GetCall(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, call)
}

func (h Handlers) DeleteCall(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	if err := h.Calls.DeleteCall(c.Request.Context(), call.ID); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) MarkUploading(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	updated, err := h.Calls.MarkUploading(c.Request.Context(), call.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (h Handlers) StartTranscription(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	out, err := h.Calls.StartTranscription(c.Request.Context(), call.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) PollTranscription(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	out, err := h.Calls.PollTranscription(c.Request.Context(), call.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

func (h Handlers) RunAnalysis(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	updated, err := h.Calls.RunAnalysis(c.Request.Context(), call.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success":  true,
		"callId":   updated.ID,
		"status":   updated.Status,
		"analysis": updated.Analysis,
	})
}

func (h Handlers) AnalysisTask(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	task, err := h.Calls.AnalysisTask(c.Request.Context(), call.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, task)
}

func (h Handlers) CallHistory(c *gin.Context) {
	call, ok := h.ownedCall(c)
	if !ok {
		return
	}
	events, err := h.Calls.History(c.Request.Context(), call.ID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// --- Webhooks ---

// TranscriptionWebhook receives provider callbacks. It answers quickly;
// analysis runs on the dispatcher.
func (h Handlers) TranscriptionWebhook(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		badRequest(c, "body", "unreadable body")
		return
	}
	ctx := c.Request.Context()
	if err := h.Calls.VerifyWebhook(ctx, c.GetHeader(h.WebhookHeader), raw); err != nil {
		writeError(c, err)
		return
	}
	ev, err := h.Calls.ParseWebhook(raw)
	if err != nil {
		writeError(c, err)
		return
	}
	outcome, err := h.Calls.IngestTranscription(ctx, ev, calls.SourceWebhook)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": outcome})
}

// --- Reports ---

func (h Handlers) ReportSummary(c *gin.Context) {
	uid, ok := userID(c)
	if !ok {
		return
	}
	if h.Reports == nil {
		writeError(c, fmt.Errorf("%w: reporting not configured", calls.ErrServerConfiguration))
		return
	}
	req := reporting.SummaryRequest{UserID: uid}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"from", &req.Range.From}, {"to", &req.Range.To}} {
		v := c.Query(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			badRequest(c, p.name, "must be RFC3339")
			return
		}
		*p.dst = t
	}
	out, err := h.Reports.Summary(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, out)
}

// Register mounts the API routes. Identity middleware guards /v1; the
// webhook authenticates itself.
func (h Handlers) Register(r gin.IRouter, identity gin.HandlerFunc) {
	r.POST("/webhooks/transcription", h.TranscriptionWebhook)

	v1 := r.Group("/v1")
	v1.Use(identity)

	cg := v1.Group("/calls")
	cg.POST("", h.CreateCall)
	cg.GET("", h.ListCalls)
	cg.GET("/:id", h.GetCall)
	cg.DELETE("/:id", h.DeleteCall)
	cg.POST("/:id/uploading", h.MarkUploading)
	cg.POST("/:id/transcription", h.StartTranscription)
	cg.GET("/:id/transcription", h.PollTranscription)
	cg.POST("/:id/analysis", h.RunAnalysis)
	cg.GET("/:id/analysis/task", h.AnalysisTask)
	cg.GET("/:id/events", h.CallHistory)

	v1.GET("/reports/summary", h.ReportSummary)
}
