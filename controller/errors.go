package controller

import (
	"errors"
	"net/http"
	"sort"

	"github/itish2003/ainotes/models"
	"github/itish2003/ainotes/services"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusFor maps a service error onto its HTTP status and public message.
func statusFor(err error) (int, string) {
	switch {
	case errors.Is(err, services.ErrUnauthorized):
		return http.StatusUnauthorized, "Unauthorized"
	case errors.Is(err, services.ErrInvalidInput):
		return http.StatusBadRequest, "Invalid input"
	case errors.Is(err, services.ErrNotFound):
		return http.StatusNotFound, "Note not found"
	case errors.Is(err, services.ErrRetrievalFailed):
		return http.StatusInternalServerError, "Could not retrieve notes"
	case errors.Is(err, services.ErrEmbeddingFailed):
		return http.StatusBadRequest, "Invalid embedding"
	default:
		return http.StatusInternalServerError, "Internal server error"
	}
}

// respondError writes the JSON error body for err and aborts the chain.
func respondError(c *gin.Context, err error) {
	status, message := statusFor(err)
	body := models.ErrorResponse{Error: message}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		for field, rule := range verr.Fields {
			body.Details = append(body.Details, models.FieldError{Field: field, Rule: rule})
		}
		sort.Slice(body.Details, func(i, j int) bool { return body.Details[i].Field < body.Details[j].Field })
	}

	entry := logrus.WithFields(logrus.Fields{
		"component": "http",
		"status":    status,
		"owner_id":  OwnerID(c),
	}).WithError(err)
	if status >= http.StatusInternalServerError {
		entry.Errorf("HTTP: %s %s failed", c.Request.Method, c.Request.URL.Path)
	} else {
		entry.Infof("HTTP: %s %s rejected", c.Request.Method, c.Request.URL.Path)
	}

	c.AbortWithStatusJSON(status, body)
}
