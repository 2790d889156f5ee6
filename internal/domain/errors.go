package domain

import (
	"errors"
	"fmt"
	"strings"
)

// ErrStaleWrite is returned by repositories when an optimistic-concurrency
// update touched zero rows. Services re-read and retry the operation once.
var ErrStaleWrite = errors.New("stale write: entity was modified concurrently")

// ErrEmptyPassengerList aborts trip generation; the booking request stays
// pending with the error attached.
var ErrEmptyPassengerList = errors.New("booking request has no passengers")

// ErrLocked reports that another operation holds the per-entity lock.
var ErrLocked = errors.New("entity is locked by another operation")

// InvalidTransitionError rejects a state change not present in the
// entity's transition table.
type InvalidTransitionError struct {
	Entity string
	From   string
	To     string
}

func (e InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s cannot transition from %s to %s", e.Entity, e.From, e.To)
}

// ScheduleConflictError carries the ids of the committed windows that
// overlap the candidate, for manual resolution by the operator.
type ScheduleConflictError struct {
	ConflictingIDs []string
}

func (e ScheduleConflictError) Error() string {
	return fmt.Sprintf("schedule conflict with: %s", strings.Join(e.ConflictingIDs, ", "))
}

// InvalidAssignmentError rejects a malformed resource assignment before
// any persistence call.
type InvalidAssignmentError struct {
	Reason string
}

func (e InvalidAssignmentError) Error() string {
	return "invalid assignment: " + e.Reason
}

type ValidationError struct {
	Field string
	Msg   string
}

func (e ValidationError) Error() string {
	if e.Field == "" {
		return e.Msg
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Msg)
}

type NotFoundError struct {
	Resource string
	ID       string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s with id '%s' not found", e.Resource, e.ID)
}

// LocationResolutionError is fatal during trip generation.
type LocationResolutionError struct {
	LocationID string
}

func (e LocationResolutionError) Error() string {
	return fmt.Sprintf("location '%s' could not be resolved", e.LocationID)
}

func IsValidation(err error) bool {
	var target ValidationError
	return errors.As(err, &target)
}

func IsNotFound(err error) bool {
	var target NotFoundError
	return errors.As(err, &target)
}

func IsInvalidTransition(err error) bool {
	var target InvalidTransitionError
	return errors.As(err, &target)
}

func IsScheduleConflict(err error) bool {
	var target ScheduleConflictError
	return errors.As(err, &target)
}

func IsInvalidAssignment(err error) bool {
	var target InvalidAssignmentError
	return errors.As(err, &target)
}
