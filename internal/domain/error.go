package domain

import "errors"

var (
	// Common domain errors
	ErrNotFound           = errors.New("entity not found")
	ErrInvalidInput       = errors.New("invalid input")
	ErrMissingJobID       = errors.New("job creation response carried no job id")
	ErrPollTimeout        = errors.New("the analysis is taking longer than expected; please check back later")
	ErrCooldownActive     = errors.New("please wait a moment before submitting again")
	ErrSubmissionInFlight = errors.New("a submission is already in progress")
	ErrNotSignedIn        = errors.New("no active session")
	ErrRedirectFailed     = errors.New("could not start the sign-in redirect")
	ErrStorageQuota       = errors.New("storage quota exceeded")
)
