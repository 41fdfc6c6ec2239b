package errs

// Error codes grouped by family: 1xx auth, 2xx validation, 3xx persistence,
// 4xx session. The wire layer exposes Code/Msg verbatim.
const (
	CodeNoToken      = 101
	CodeInvalidToken = 102
	CodeTokenExpired = 103

	CodeBadPayload = 201

	CodeStoreUnavailable = 301

	CodeSessionExpired = 401
)

var (
	ErrNoToken      = NewCodeError(CodeNoToken, "No token provided")
	ErrInvalidToken = NewCodeError(CodeInvalidToken, "Invalid token")
	ErrTokenExpired = NewCodeError(CodeTokenExpired, "Token expired")

	ErrBadPayload = NewCodeError(CodeBadPayload, "invalid payload")

	ErrStoreUnavailable = NewCodeError(CodeStoreUnavailable, "store unavailable")

	ErrSessionExpired = NewCodeError(CodeSessionExpired, "authentication session expired")
)
