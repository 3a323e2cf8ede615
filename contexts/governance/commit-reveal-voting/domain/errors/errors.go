package errors

import "errors"

var (
	ErrInvalidSessionInput    = errors.New("invalid voting session input")
	ErrSessionNotFound        = errors.New("voting session not found")
	ErrWrongPhase             = errors.New("operation is not allowed in the current voting phase")
	ErrDuplicateCommit        = errors.New("commitment has already been submitted")
	ErrUnknownCommitment      = errors.New("no committed vote matches the revealed choice and secret")
	ErrAlreadyRevealed        = errors.New("commitment has already been revealed")
	ErrInvalidChoice          = errors.New("choice must be 1 or 2")
	ErrMalformedCommitment    = errors.New("commitment must be a 32-byte hex digest")
	ErrTie                    = errors.New("voting ended in a tie")
	ErrConflict               = errors.New("voting conflict")
	ErrIdempotencyKeyRequired = errors.New("idempotency key is required")
	ErrIdempotencyConflict    = errors.New("idempotency key conflict")
)
