package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apperrors "silent-partners/backend/pkg/errors"
)

// respondError maps an error onto a status code and a JSON error body
func (s *Server) respondError(c *gin.Context, err error) {
	_ = c.Error(err)

	var tooLarge *http.MaxBytesError
	var verr *apperrors.ErrValidation

	switch {
	case errors.As(err, &tooLarge):
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Request body too large"})
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{"error": verr.Reason, "field": verr.Field})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "Network not found"})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeLLM), apperrors.IsErrorType(err, apperrors.ErrorTypeSource):
		retryable := apperrors.IsRetryable(err)
		s.logger.Warn("Upstream request failed", zap.Error(err), zap.Bool("retryable", retryable))
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error(), "retryable": retryable})
	case apperrors.IsErrorType(err, apperrors.ErrorTypeContext):
		c.JSON(http.StatusRequestTimeout, gin.H{"error": "Request cancelled"})
	default:
		s.logger.Error("Request failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// bindError keeps oversized bodies distinguishable from malformed ones
func bindError(err error) error {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return err
	}
	return apperrors.NewValidation("body", err.Error())
}
