package domain

import "errors"

// Error kinds. Every error below unwraps to exactly one of them.
var (
	ErrValidation = errors.New("validation error")
	ErrBadRequest = errors.New("bad request")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrInternal   = errors.New("internal server error")
)

var (
	ErrEmptyQuestion    = newError(ErrValidation, "question is required")
	ErrTooFewOptions    = newError(ErrValidation, "poll must have at least 2 unique options")
	ErrDuplicateOptions = newError(ErrValidation, "poll options must be unique")

	ErrInvalidPollID   = newError(ErrBadRequest, "invalid poll id")
	ErrInvalidOptionID = newError(ErrBadRequest, "invalid option id")
	ErrInvalidOption   = newError(ErrBadRequest, "invalid option for this poll")
	ErrPollClosed      = newError(ErrBadRequest, "poll is closed")
	ErrNotVoted        = newError(ErrBadRequest, "user has not voted on this poll")

	ErrPollNotFound = newError(ErrNotFound, "poll not found")
	ErrVoteNotFound = newError(ErrNotFound, "vote not found")

	ErrAlreadyVoted = newError(ErrConflict, "user has already voted on this poll")
	ErrSameOption   = newError(ErrConflict, "vote is already on this option")
	ErrVoteChanged  = newError(ErrConflict, "vote was changed concurrently")

	ErrNotCreator = newError(ErrForbidden, "only the poll creator can do this")

	ErrCounterUnmodified = newError(ErrInternal, "vote counter was not modified")
)

type kindError struct {
	kind error
	msg  string
}

func newError(kind error, msg string) error {
	return &kindError{kind: kind, msg: msg}
}

func (e *kindError) Error() string { return e.msg }

func (e *kindError) Unwrap() error { return e.kind }
