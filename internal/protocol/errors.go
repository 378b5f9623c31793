package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest = "E_PROTO_BAD_REQUEST"

	// Action layer.
	ErrValidation    = "E_VALIDATION"
	ErrUnknownAction = "E_UNKNOWN_ACTION"
	ErrNotFound      = "E_NOT_FOUND"
	ErrNoPermission  = "E_NO_PERMISSION"
	ErrNotConnected  = "E_NOT_CONNECTED"
	ErrRateLimit     = "E_RATE_LIMIT"
	ErrConflict      = "E_CONFLICT"
	ErrInternal      = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest: {},
	ErrValidation:      {},
	ErrUnknownAction:   {},
	ErrNotFound:        {},
	ErrNoPermission:    {},
	ErrNotConnected:    {},
	ErrRateLimit:       {},
	ErrConflict:        {},
	ErrInternal:        {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
