// Package auth resolves a connection's credentials to an identity and role.
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the auth service is unreachable or unavailable.
	// Callers may choose to fail open (allow) or fail closed (reject).
	ErrUnavailable = errors.New("auth: unavailable")

	// ErrUnknownRole indicates a role name that is not operator, admin or viewer.
	ErrUnknownRole = errors.New("auth: unknown role")
)

// Role is what a connection may do within a session.
type Role string

const (
	RoleOperator Role = "operator"
	RoleAdmin    Role = "admin"
	RoleViewer   Role = "viewer"
)

// ParseRole converts a role name, case insensitively. An empty name is a viewer.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleOperator, RoleAdmin, RoleViewer:
		return r, nil
	case "":
		return RoleViewer, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// Identity is an authenticated connection.
type Identity struct {
	Name string `json:"name"`
	Role Role   `json:"role"`
}

// CanOperate reports whether the identity may drive a session.
func (i *Identity) CanOperate() bool {
	return i != nil && (i.Role == RoleOperator || i.Role == RoleAdmin)
}

// Credentials are what a client presents when it authenticates.
type Credentials struct {
	Token string `json:"token"`
	Name  string `json:"name"`
	Role  Role   `json:"role"`
}

// Validator validates credentials.
type Validator interface {
	// Validate checks credentials and returns the resolved identity.
	// Returns:
	//   - (*Identity, nil) if the credentials are valid
	//   - (nil, ErrInvalidToken) if they are definitively invalid
	//   - (nil, ErrUnavailable) if the auth service is unavailable
	Validate(ctx context.Context, creds Credentials) (*Identity, error)
}

// HTTPValidator validates tokens via HTTP callback to external service.
type HTTPValidator struct {
	url         string
	client      *http.Client
	adminSecret string
}

// NewHTTPValidator creates a validator that calls an external HTTP endpoint.
func NewHTTPValidator(url string, adminSecret string) *HTTPValidator {
	return &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		client: &http.Client{
			Timeout: 500 * time.Millisecond,
		},
	}
}

type validateRequest struct {
	Token string `json:"token"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role,omitempty"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	Name  string `json:"name,omitempty"`
	Role  Role   `json:"role,omitempty"`
	Error string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, creds Credentials) (*Identity, error) {
	if creds.Token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	reqBody, err := json.Marshal(validateRequest(creds))
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	// Limit response body to 1MB to avoid pathological responses
	var authResp validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !authResp.Valid {
		return nil, ErrInvalidToken
	}

	role, err := ParseRole(string(authResp.Role))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	name := authResp.Name
	if name == "" {
		name = creds.Name
	}
	return &Identity{Name: name, Role: role}, nil
}

// StaticValidator accepts a fixed set of tokens, typically from the config
// file. A non-empty admin secret used as a token grants the admin role.
type StaticValidator struct {
	tokens      map[string]Identity
	adminSecret string
}

// NewStaticValidator creates a validator from a token to identity map.
func NewStaticValidator(tokens map[string]Identity, adminSecret string) *StaticValidator {
	return &StaticValidator{tokens: tokens, adminSecret: adminSecret}
}

func (v *StaticValidator) Validate(_ context.Context, creds Credentials) (*Identity, error) {
	if creds.Token == "" {
		return nil, ErrInvalidToken
	}
	if v.adminSecret != "" && subtle.ConstantTimeCompare([]byte(creds.Token), []byte(v.adminSecret)) == 1 {
		name := creds.Name
		if name == "" {
			name = "admin"
		}
		return &Identity{Name: name, Role: RoleAdmin}, nil
	}
	id, ok := v.tokens[creds.Token]
	if !ok {
		return nil, ErrInvalidToken
	}
	return &id, nil
}

// NoopValidator trusts the requested name and role (dev mode).
type NoopValidator struct{}

// NewNoopValidator creates a validator that allows all connections.
func NewNoopValidator() *NoopValidator {
	return &NoopValidator{}
}

func (v *NoopValidator) Validate(_ context.Context, creds Credentials) (*Identity, error) {
	role, err := ParseRole(string(creds.Role))
	if err != nil {
		return nil, err
	}
	return &Identity{Name: creds.Name, Role: role}, nil
}
