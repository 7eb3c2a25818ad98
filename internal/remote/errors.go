package remote

import (
	"errors"

	"github.com/stemsi/exstem-client/internal/api"
)

// Structural errors force a navigation away from the exam; everything else
// is transient and retried by the callers that can do so safely.
var (
	// ErrNotFound: exam or session does not exist. Terminal dead-end.
	ErrNotFound = errors.New("remote: not found")
	// ErrUnauthenticated: ticket missing/invalid/expired. Recoverable by
	// re-authenticating.
	ErrUnauthenticated = errors.New("remote: unauthenticated")
	// ErrConflict: another device or tab claimed the same identity.
	ErrConflict = errors.New("remote: identity conflict")
	// ErrSuspended: administrative termination.
	ErrSuspended = errors.New("remote: session suspended")
)

// mapCode converts a wire error code into the client taxonomy. Unmapped
// codes fall through as transient.
func mapCode(code api.ErrCode) error {
	switch code {
	case api.ErrExamNotFound, api.ErrSessionNotFound:
		return ErrNotFound
	case api.ErrTicketRequired, api.ErrTicketInvalid, api.ErrTicketExpired:
		return ErrUnauthenticated
	case api.ErrDuplicateLogin:
		return ErrConflict
	case api.ErrSuspended:
		return ErrSuspended
	default:
		return nil
	}
}
