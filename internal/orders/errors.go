package orders

import (
	"errors"
	"net/http"

	"github.com/escrowpi/escrowpi/internal/comments"
	"github.com/escrowpi/escrowpi/internal/fees"
	"github.com/escrowpi/escrowpi/internal/txstate"
	"github.com/escrowpi/escrowpi/internal/validation"
)

// Error kinds reported to clients.
const (
	KindInvalidTransition   = "invalid_transition"
	KindStaleState          = "stale_state"
	KindValidation          = "validation_error"
	KindCollaboratorFailure = "collaborator_failure"
	KindNotFound            = "not_found"
	KindForbidden           = "forbidden"
	KindInternal            = "internal"
)

// ErrorKind classifies err for the caller. Stale state is checked before
// invalid transition: a proposal that lost a race wraps both.
func ErrorKind(err error) string {
	var verrs validation.ValidationErrors
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrStaleState), errors.Is(err, ErrProposalChanged):
		return KindStaleState
	case errors.Is(err, txstate.ErrInvalidTransition):
		return KindInvalidTransition
	case errors.As(err, &verrs),
		errors.Is(err, ErrSelfOrder),
		errors.Is(err, fees.ErrInvalidAmount),
		errors.Is(err, fees.ErrInvalidPercent),
		errors.Is(err, fees.ErrTotalTooSmall),
		errors.Is(err, comments.ErrCommentEmpty),
		errors.Is(err, comments.ErrCommentTooLong):
		return KindValidation
	case errors.Is(err, ErrCollaborator):
		return KindCollaboratorFailure
	}
	return KindInternal
}

// HTTPStatus maps an error kind to a response code.
func HTTPStatus(kind string) int {
	switch kind {
	case KindInvalidTransition, KindStaleState:
		return http.StatusConflict
	case KindValidation:
		return http.StatusBadRequest
	case KindCollaboratorFailure:
		return http.StatusBadGateway
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	}
	return http.StatusInternalServerError
}
