package domain

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when an operation references an unknown record and
// cannot proceed without it.
type ErrNotFound struct {
	Entity EntityType
	ID     string
}

func (e ErrNotFound) Error() string {
	return fmt.Sprintf("%s %s not found", e.Entity, e.ID)
}

// ErrDuplicate is returned when a record with the same identifier already exists.
type ErrDuplicate struct {
	Entity EntityType
	ID     string
}

func (e ErrDuplicate) Error() string {
	return fmt.Sprintf("%s %s already exists", e.Entity, e.ID)
}

// ErrPriorityOutOfRange signals a priority source that broke its [1,10] contract.
var ErrPriorityOutOfRange = errors.New("priority out of range")

// IsNotFound reports whether err wraps an ErrNotFound.
func IsNotFound(err error) bool {
	var nf ErrNotFound
	return errors.As(err, &nf)
}

// IsDuplicate reports whether err wraps an ErrDuplicate.
func IsDuplicate(err error) bool {
	var dup ErrDuplicate
	return errors.As(err, &dup)
}

// ErrInvalid marks input rejected by validation.
var ErrInvalid = errors.New("invalid input")

// ErrOrganAllocated is returned when an organ that already has a recipient is
// offered for allocation again.
var ErrOrganAllocated = errors.New("organ already allocated")
