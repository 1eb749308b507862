package server

import (
	"errors"
	"net/http"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type errorPayload struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

// writeAffiliateError maps affiliate service failures onto status codes; the coded operation becomes the error field.
func (h *httpHandler) writeAffiliateError(c *gin.Context, fallbackCode string, err error) {
	code := fallbackCode
	var serviceErr *affiliates.ServiceError
	if errors.As(err, &serviceErr) {
		code = serviceErr.Code()
	}

	var validationErr *affiliates.ValidationError
	switch {
	case errors.As(err, &validationErr):
		c.JSON(http.StatusBadRequest, errorPayload{Error: code, Message: "Validation failed", Fields: validationErr.Fields})
	case errors.Is(err, affiliates.ErrInvalidAffiliateID):
		c.JSON(http.StatusBadRequest, errorPayload{Error: code, Message: "Invalid affiliate id"})
	case errors.Is(err, affiliates.ErrAffiliateNotFound):
		c.JSON(http.StatusNotFound, errorPayload{Error: code, Message: "Affiliate not found"})
	case errors.Is(err, affiliates.ErrDuplicateEmail):
		c.JSON(http.StatusConflict, errorPayload{
			Error:   code,
			Message: "Email already registered",
			Fields:  map[string]string{"email": "Email already registered"},
		})
	default:
		h.logger.Error("affiliate request failed", zap.String("code", code), zap.Error(err))
		c.JSON(http.StatusInternalServerError, errorPayload{Error: code, Message: "Internal server error"})
	}
}

func invalidRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, errorPayload{Error: "invalid_request", Message: message})
}
