package httpserver

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tinytelemetry/logboard/internal/model"
	"github.com/tinytelemetry/logboard/internal/query"
)

// statusFor maps an error kind to its HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, query.ErrValidation), errors.Is(err, model.ErrInvalidRecord):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// fieldErrors returns the per-field violations carried by err, if any.
func fieldErrors(err error) []model.FieldError {
	var ve *query.ValidationError
	if errors.As(err, &ve) {
		return ve.Fields
	}
	var re *model.RecordError
	if errors.As(err, &re) {
		return re.Fields
	}
	return nil
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	body := gin.H{}

	switch status {
	case http.StatusBadRequest:
		body["error"] = err.Error()
		if fields := fieldErrors(err); len(fields) > 0 {
			body["fields"] = fields
		}
	case http.StatusNotFound:
		body["error"] = "log not found"
	case http.StatusServiceUnavailable:
		log.Printf("httpserver: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		body["error"] = "log store unavailable"
	default:
		log.Printf("httpserver: %s %s: %v", c.Request.Method, c.Request.URL.Path, err)
		body["error"] = "internal server error"
	}

	c.AbortWithStatusJSON(status, body)
}

// invalidParam builds a validation error for a single malformed parameter.
func invalidParam(field, message string) error {
	return &query.ValidationError{Fields: []model.FieldError{{Field: field, Message: message}}}
}
