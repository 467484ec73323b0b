package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

// Auth modes accepted by NewVerifier.
const (
	ModeDisabled = "disabled"
	ModeJWT      = "jwt"
	ModeBasic    = "basic"
)

// Identity is the authenticated caller.
type Identity struct {
	Subject string
	Method  string
}

// Verifier authenticates a request.
type Verifier interface {
	Verify(r *http.Request) (Identity, error)
}

// Disabled accepts every request as anonymous.
type Disabled struct{}

// Verify implements Verifier.
func (Disabled) Verify(*http.Request) (Identity, error) {
	return Identity{Subject: "anonymous", Method: ModeDisabled}, nil
}

// JWTVerifier accepts HS256 bearer tokens.
type JWTVerifier struct {
	Secret []byte
}

// Verify implements Verifier.
func (v JWTVerifier) Verify(r *http.Request) (Identity, error) {
	token := extractBearer(r)
	if token == "" {
		return Identity{}, ErrUnauthorized
	}
	claims, err := ParseJWT(token, v.Secret)
	if err != nil {
		return Identity{}, err
	}
	return Identity{Subject: claims.Subject, Method: ModeJWT}, nil
}

// BasicVerifier accepts one configured username and password.
type BasicVerifier struct {
	Username string
	Password string
}

// Verify implements Verifier.
func (v BasicVerifier) Verify(r *http.Request) (Identity, error) {
	user, pass, ok := r.BasicAuth()
	if !ok {
		return Identity{}, ErrUnauthorized
	}
	userOK := subtle.ConstantTimeCompare([]byte(user), []byte(v.Username)) == 1
	passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(v.Password)) == 1
	if !userOK || !passOK {
		return Identity{}, ErrInvalidCredentials
	}
	return Identity{Subject: user, Method: ModeBasic}, nil
}

// NewVerifier builds the verifier for mode. Credentials are required for jwt and basic.
func NewVerifier(mode string, jwtSecret, basicUser, basicPassword string) (Verifier, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", ModeDisabled:
		return Disabled{}, nil
	case ModeJWT:
		if jwtSecret == "" {
			return nil, errors.New("auth: jwt mode requires a secret")
		}
		return JWTVerifier{Secret: []byte(jwtSecret)}, nil
	case ModeBasic:
		if basicUser == "" || basicPassword == "" {
			return nil, errors.New("auth: basic mode requires username and password")
		}
		return BasicVerifier{Username: basicUser, Password: basicPassword}, nil
	default:
		return nil, errors.New("auth: unknown mode " + mode)
	}
}

func extractBearer(r *http.Request) string {
	if r == nil {
		return ""
	}
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.Fields(header)
	if len(parts) != 2 {
		return ""
	}
	if !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return parts[1]
}
