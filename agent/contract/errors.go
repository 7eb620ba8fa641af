package contract

import "errors"

var (
	ErrModelInvoke     = errors.New("model invoke failed")
	ErrSchemaViolation = errors.New("model response violates schema")
	ErrValidation      = errors.New("validation failed")

	// ErrCallRejected marks a collaborator ok=false response (ineligible
	// refund, unknown id). Recoverable: callers fold it into the flow
	// instead of failing the turn.
	ErrCallRejected = errors.New("collaborator rejected call")
)
