package auth

import "errors"

var (
	// ErrInvalidInput marks a caller error (empty identity or secret);
	// never retried.
	ErrInvalidInput = errors.New("identity and secret are required")

	// ErrAuthenticationFailed is returned once the login retry budget is
	// exhausted, or when a retried authorized call fails twice in a row.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidCredential means the provider rejected the refresh token.
	ErrInvalidCredential = errors.New("refresh token rejected by provider")

	// ErrNoRefreshToken means Renew was asked to run without a refresh
	// token to exchange.
	ErrNoRefreshToken = errors.New("no refresh token held")

	// ErrNotAuthenticated means no credential of any kind is available;
	// a fresh interactive login is required.
	ErrNotAuthenticated = errors.New("not authenticated")

	ErrRenewalFailed        = errors.New("token renewal failed")
	ErrTooManyRedirects     = errors.New("login redirect chain exceeded hop limit")
	ErrFormNotFound         = errors.New("no login form in provider response")
	ErrRedirectChainFailed  = errors.New("post-login redirect chain failed")
	ErrTokenResponseInvalid = errors.New("token response missing required fields")
	ErrEmptyResponse        = errors.New("provider returned an empty or non-textual response")
)
