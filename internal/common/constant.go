package common

// AccessTokenHeaderName is the gRPC metadata key used to carry the
// access token on inbound requests.
const AccessTokenHeaderName = "access_token"

// Roles carried in access tokens.
const (
	RoleStudent = "student"
	RoleFaculty = "faculty"
	RoleAdmin   = "admin"
)

// DefaultSessionDurationSec is applied when a session is created without an
// explicit duration, in seconds.
const DefaultSessionDurationSec = 300

// TokenBytes is the amount of random bytes behind a session token.
const TokenBytes = 32
