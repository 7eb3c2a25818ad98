package api

// ErrCode is a typed error code enum shared by the devserver responses and
// the client's remote error taxonomy.
type ErrCode string

const (
	// ─── Authentication ────────────────────────────────────────────────
	ErrTicketRequired ErrCode = "TICKET_REQUIRED"
	ErrTicketInvalid  ErrCode = "TICKET_INVALID"
	ErrTicketExpired  ErrCode = "TICKET_EXPIRED"

	// ─── Validation ────────────────────────────────────────────────────
	ErrValidation     ErrCode = "VALIDATION_ERROR"
	ErrInvalidID      ErrCode = "INVALID_ID"
	ErrInvalidPayload ErrCode = "INVALID_PAYLOAD"

	// ─── Session lifecycle ─────────────────────────────────────────────
	ErrExamNotFound     ErrCode = "EXAM_NOT_FOUND"
	ErrSessionNotFound  ErrCode = "SESSION_NOT_FOUND"
	ErrSessionCompleted ErrCode = "SESSION_COMPLETED"
	ErrSectionNotActive ErrCode = "SECTION_NOT_ACTIVE"

	// ─── Integrity ─────────────────────────────────────────────────────
	ErrDuplicateLogin ErrCode = "DUPLICATE_LOGIN"
	ErrSuspended      ErrCode = "SESSION_SUSPENDED"

	// ─── Server ────────────────────────────────────────────────────────
	ErrInternal ErrCode = "INTERNAL_ERROR"
)

// GetMessage returns a human-readable message for a given error code.
func GetMessage(code ErrCode) string {
	switch code {
	case ErrTicketRequired:
		return "An exam ticket is required."
	case ErrTicketInvalid:
		return "The exam ticket is not valid."
	case ErrTicketExpired:
		return "The exam ticket has expired."
	case ErrValidation:
		return "Validation failed. Please check your input."
	case ErrInvalidID:
		return "Invalid identifier format."
	case ErrInvalidPayload:
		return "Invalid request payload."
	case ErrExamNotFound:
		return "This exam does not exist."
	case ErrSessionNotFound:
		return "No session exists for this exam."
	case ErrSessionCompleted:
		return "This exam session has already been completed."
	case ErrSectionNotActive:
		return "This section is not currently open for submission."
	case ErrDuplicateLogin:
		return "Your exam was opened from another device or tab."
	case ErrSuspended:
		return "Your exam session has been suspended by an administrator."
	case ErrInternal:
		return "An internal server error occurred."
	default:
		return "An unexpected error occurred."
	}
}
