package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/seaport-io/gangway/pkg/directory"
	"github.com/seaport-io/gangway/pkg/session"
)

// Claims is the payload of a service token. The audience carries exactly one
// relying service name; a token minted for one service never validates for
// another. Identity fields are a snapshot taken at issuance.
type Claims struct {
	jwt.RegisteredClaims

	SessionID   string   `json:"session_id"`
	Username    string   `json:"username"`
	Email       string   `json:"email"`
	FullName    string   `json:"full_name,omitempty"`
	Roles       []string `json:"roles,omitempty"`
	Permissions []string `json:"permissions,omitempty"`
}

// Validation reason labels. These form a closed set shared by metrics,
// audit records and API error payloads.
const (
	ReasonOK              = "ok"
	ReasonMalformed       = "malformed_or_unsigned"
	ReasonWrongAudience   = "wrong_audience"
	ReasonUserInactive    = "user_not_found_or_inactive"
	ReasonSessionInactive = "session_not_found_or_inactive"
)

var (
	// ErrTokenMalformed indicates the credential failed parsing or
	// signature verification.
	ErrTokenMalformed = errors.New("token is malformed or has an invalid signature")

	// ErrWrongAudience indicates a structurally valid token presented to a
	// service it was not minted for.
	ErrWrongAudience = errors.New("token audience does not match service")
)

// ReasonFor maps a validation error to its reason label.
func ReasonFor(err error) string {
	switch {
	case err == nil:
		return ReasonOK
	case errors.Is(err, ErrTokenMalformed):
		return ReasonMalformed
	case errors.Is(err, ErrWrongAudience):
		return ReasonWrongAudience
	case errors.Is(err, directory.ErrUserNotFound), errors.Is(err, directory.ErrUserInactive):
		return ReasonUserInactive
	case errors.Is(err, session.ErrNotFound), errors.Is(err, session.ErrSessionNotActive):
		return ReasonSessionInactive
	default:
		return ReasonSessionInactive
	}
}

// NewClaims builds the claim set for a session issued to a service.
func NewClaims(sessionID, subject, issuer, service string, issuedAt, expiresAt time.Time) jwt.RegisteredClaims {
	return jwt.RegisteredClaims{
		Issuer:    issuer,
		Subject:   subject,
		Audience:  jwt.ClaimStrings{service},
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
		ID:        sessionID,
	}
}
