package store

import "errors"

var (
	// ErrHasDependents is returned by delete operations when rows still
	// reference the target. Deletes are restrict-on-delete everywhere; the
	// check happens inside the delete transaction so callers see a typed
	// error instead of a driver constraint violation.
	ErrHasDependents = errors.New("dependent records exist")

	// ErrAlreadyDecided is returned when deciding an amendment that is no
	// longer PENDING. Decided amendments are immutable.
	ErrAlreadyDecided = errors.New("amendment already decided")

	// ErrHasIterations is returned when editing a failure entry that already
	// has iterations recorded against it.
	ErrHasIterations = errors.New("failure entry has iterations")

	// ErrDuplicateEmail is returned when creating or updating a user with an
	// email that another user already holds.
	ErrDuplicateEmail = errors.New("email already registered")

	// ErrDuplicateMember is returned when adding a user to a cohort they are
	// already a member of.
	ErrDuplicateMember = errors.New("user already a cohort member")
)
