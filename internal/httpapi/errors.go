package httpapi

import (
	"errors"
	"net/http"

	"callqa/internal/analysis"
	"callqa/internal/calls"
	"callqa/internal/reporting"
	"callqa/pkg/logger"

	"github.com/gin-gonic/gin"
)

type errorPayload struct {
	Type    string             `json:"type"`
	Message string             `json:"message"`
	Fields  []calls.FieldError `json:"fields,omitempty"`
}

// classify maps service errors onto the public error taxonomy.
func classify(err error) (int, errorPayload) {
	var (
		verr      *calls.ValidationError
		perr      *calls.ProviderError
		schemaErr *analysis.SchemaError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: "invalid input", Fields: verr.Fields}
	case errors.Is(err, reporting.ErrInvalidRequest):
		return http.StatusBadRequest, errorPayload{Type: "validation_error", Message: err.Error()}
	case errors.Is(err, calls.ErrNotFound):
		return http.StatusNotFound, errorPayload{Type: "not_found", Message: err.Error()}
	case errors.Is(err, calls.ErrPreconditionFailed):
		return http.StatusBadRequest, errorPayload{Type: "precondition_failed", Message: err.Error()}
	case errors.Is(err, calls.ErrInvalidTransition):
		return http.StatusConflict, errorPayload{Type: "invalid_transition", Message: err.Error()}
	case errors.Is(err, calls.ErrWebhookAuth):
		return http.StatusUnauthorized, errorPayload{Type: "webhook_auth", Message: "webhook authentication failed"}
	case errors.As(err, &schemaErr):
		return http.StatusInternalServerError, errorPayload{Type: "analysis_schema_error", Message: err.Error()}
	case errors.As(err, &perr):
		return http.StatusInternalServerError, errorPayload{Type: "provider_error", Message: err.Error()}
	case errors.Is(err, calls.ErrServerConfiguration):
		return http.StatusInternalServerError, errorPayload{Type: "server_configuration", Message: err.Error()}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal error"}
	}
}

func writeError(c *gin.Context, err error) {
	status, body := classify(err)
	if status >= 500 {
		logger.FromGin(c).Error("request failed", "type", body.Type, "err", err)
	}
	c.AbortWithStatusJSON(status, gin.H{"error": body})
}

func badRequest(c *gin.Context, field, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": errorPayload{
		Type:    "validation_error",
		Message: "invalid input",
		Fields:  []calls.FieldError{{Field: field, Message: msg}},
	}})
}
