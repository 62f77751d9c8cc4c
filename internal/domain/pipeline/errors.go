package pipeline

import "errors"

var (
	ErrConfigNotFound    = errors.New("no active field configuration for organization and record type")
	ErrInvalidRuleSet    = errors.New("field configuration rule set is invalid")
	ErrUnknownRecordType = errors.New("unknown record type")

	ErrJobNotFound           = errors.New("processing job not found")
	ErrJobAlreadyTransferred = errors.New("processing job already transferred")

	ErrReviewItemNotFound    = errors.New("review item not found")
	ErrReviewConflict        = errors.New("review item changed by another reviewer")
	ErrInvalidTransition     = errors.New("invalid review state transition")
	ErrRequiredFieldsInvalid = errors.New("approval requires all required fields valid")
	ErrRejectReasonRequired  = errors.New("reject requires a reason")

	ErrTransferNotFound   = errors.New("transfer record not found")
	ErrTransferNotPending = errors.New("transfer can only be cancelled while pending")
	ErrTransferNotFailed  = errors.New("transfer retry requires a failed transfer")
	ErrTransferWrite      = errors.New("target record write failed")
)
