package api

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/backoffice-suite/boar/pkg/erp"
	"github.com/backoffice-suite/boar/pkg/llm"
	"github.com/backoffice-suite/boar/pkg/otp"
)

// NotFoundError maps to 404.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

// ValidationError maps to 400.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string { return e.Message }

// respondError maps domain errors onto the HTTP surface. Every error body
// has the same shape: {"detail": "..."}.
func respondError(c *gin.Context, err error) {
	status := http.StatusInternalServerError

	var notFound *NotFoundError
	var validation *ValidationError
	switch {
	case erp.IsModuleMissing(err), errors.Is(err, llm.ErrUnavailable):
		status = http.StatusServiceUnavailable
	case errors.As(err, &notFound):
		status = http.StatusNotFound
	case errors.As(err, &validation),
		errors.Is(err, otp.ErrAlreadyLinked),
		errors.Is(err, otp.ErrEmployeeNotFound),
		errors.Is(err, otp.ErrInvalidCode),
		errors.Is(err, otp.ErrExpired):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		slog.Error("Request failed", "path", c.FullPath(), "error", err)
	}
	c.JSON(status, gin.H{"detail": err.Error()})
}
