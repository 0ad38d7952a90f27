package authapi

import "time"

// Backend auth API paths, relative to the configured base URL.
const (
	PathInitiate = "/api/v1/auth/initiate"
	PathVerify   = "/api/v1/auth/verify"
	PathCallback = "/api/v1/auth/callback"
	PathRefresh  = "/api/v1/auth/refresh"
)

// AuthFlow is the auth_flow object exchanged with the initiate and callback endpoints.
type AuthFlow struct {
	// Provider identifies the third-party identity provider.
	// Example: "google", "github"
	Provider string `json:"provider" validate:"required"`

	// AuthRedirectURL is where the user agent must be sent to authenticate with the provider.
	// Only present: initiate response
	AuthRedirectURL string `json:"auth_redirect_url,omitempty"`

	// State is the opaque anti-forgery value generated at initiation and echoed back at callback.
	// Only present: initiate response, callback request
	State string `json:"state,omitempty"`

	// AuthCode is the authorization code returned by the provider to the callback route.
	// Only present: callback request
	AuthCode string `json:"auth_code,omitempty"`
}

// AuthFlowRequest wraps an AuthFlow for the initiate and callback endpoints.
// Example: {"auth_flow": {"provider": "google"}}
type AuthFlowRequest struct {
	AuthFlow AuthFlow `json:"auth_flow"`
}

// AuthFlowResponse is the initiate endpoint response.
// Example: {"auth_flow": {"provider": "google", "auth_redirect_url": "https://...", "state": "xyz"}}
type AuthFlowResponse struct {
	AuthFlow initiatedFlow `json:"auth_flow" validate:"required"`
}

type initiatedFlow struct {
	Provider        string `json:"provider" validate:"required"`
	AuthRedirectURL string `json:"auth_redirect_url" validate:"required,url"`
	State           string `json:"state" validate:"required"`
}

// VerifyRequest is the verify endpoint request body.
type VerifyRequest struct {
	Token string `json:"token"`
}

// VerifyResponse is the verify endpoint response body.
type VerifyResponse struct {
	IsValid bool `json:"isValid"`
}

// RefreshRequest is the refresh endpoint request body.
type RefreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// TokenResponse is returned by the callback and refresh endpoints.
type TokenResponse struct {
	// AccessToken is the bearer credential for authenticated requests.
	// Usage: Include in Authorization header: "Bearer <access_token>"
	AccessToken string `json:"access_token" validate:"required"`

	// RefreshToken is used to mint a new access token without a new login handshake.
	RefreshToken string `json:"refresh_token"`

	// ExpiresIn is the lifetime in seconds of the access token.
	// Example: 3600
	// Note: The client derives its expiration timestamp from this value when the tokens are set
	ExpiresIn int64 `json:"expires_in" validate:"gte=0"`
}

// Lifetime returns ExpiresIn as a duration
func (t TokenResponse) Lifetime() time.Duration {
	return time.Duration(t.ExpiresIn) * time.Second
}
