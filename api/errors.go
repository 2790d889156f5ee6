package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/tom474/fleetbooking/internal/domain"
)

// writeError maps the domain error taxonomy onto HTTP status codes.
// Validation and malformed assignments are client errors, missing
// entities are 404, and anything touching concurrent state (transitions,
// conflicts, stale writes, held locks) is a 409 the caller may retry or
// resolve manually.
func writeError(c *gin.Context, err error) {
	var conflict domain.ScheduleConflictError
	switch {
	case errors.As(err, &conflict):
		c.JSON(http.StatusConflict, gin.H{
			"error":           conflict.Error(),
			"conflicting_ids": conflict.ConflictingIDs,
		})
	case domain.IsValidation(err),
		domain.IsInvalidAssignment(err),
		errors.Is(err, domain.ErrEmptyPassengerList),
		isLocationResolution(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case domain.IsNotFound(err):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case domain.IsInvalidTransition(err),
		errors.Is(err, domain.ErrStaleWrite),
		errors.Is(err, domain.ErrLocked):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}

func isLocationResolution(err error) bool {
	var target domain.LocationResolutionError
	return errors.As(err, &target)
}
