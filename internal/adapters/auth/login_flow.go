package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"unicode/utf8"

	"golang.org/x/net/html"
)

const (
	// The provider issues session cookies at intermediate hops, so both
	// chains are walked manually instead of relying on the client's
	// redirect handling.
	maxLoginRedirects = 20
	maxTokenRedirects = 15

	// Locations carrying this scheme are the terminal token-exchange
	// address in disguise: the scheme substitutes for https.
	ondusSchemePrefix = "ondus://"

	maxMarkupBytes        = 2 << 20
	maxTokenResponseBytes = 1 << 20
)

// MarkerRule maps a provider-specific substring in returned markup to a
// human-readable failure reason. The provider's wording changes without
// notice, so the list is configuration, not control flow.
type MarkerRule struct {
	Contains string `mapstructure:"contains" toml:"contains"`
	Reason   string `mapstructure:"reason" toml:"reason"`
}

// DefaultMarkerRules covers the failure pages the provider is known to
// render in place of a redirect.
func DefaultMarkerRules() []MarkerRule {
	return []MarkerRule{
		{Contains: "Invalid username or password", Reason: "invalid credentials"},
		{Contains: "Your login attempt timed out", Reason: "login session expired"},
		{Contains: "temporarily unavailable", Reason: "provider outage"},
	}
}

// scanMarkers fails fast when the markup contains a known failure marker.
func scanMarkers(markup string, rules []MarkerRule) error {
	for _, rule := range rules {
		if rule.Contains == "" {
			continue
		}
		if strings.Contains(markup, rule.Contains) {
			return fmt.Errorf("%w: %s", ErrAuthenticationFailed, rule.Reason)
		}
	}
	return nil
}

// redirectTarget is a tagged redirect destination: either an ordinary
// HTTPS continuation or the terminal token-exchange address signalled by
// the private scheme.
type redirectTarget struct {
	URL      *url.URL
	Terminal bool
}

// classifyLocation resolves a Location header value against base and tags
// it. An ondus:// location is rewritten to https with the same structure.
func classifyLocation(location string, base *url.URL) (redirectTarget, error) {
	if location == "" {
		return redirectTarget{}, fmt.Errorf("%w: redirect without location", ErrRedirectChainFailed)
	}

	if strings.HasPrefix(location, ondusSchemePrefix) {
		tokenURL, err := url.Parse("https://" + strings.TrimPrefix(location, ondusSchemePrefix))
		if err != nil {
			return redirectTarget{}, fmt.Errorf("%w: parse token address: %v", ErrRedirectChainFailed, err)
		}
		return redirectTarget{URL: tokenURL, Terminal: true}, nil
	}

	parsed, err := url.Parse(location)
	if err != nil {
		return redirectTarget{}, fmt.Errorf("%w: parse location: %v", ErrRedirectChainFailed, err)
	}

	return redirectTarget{URL: base.ResolveReference(parsed)}, nil
}

// parseFormAction extracts the submission target of the first form element
// in the markup.
func parseFormAction(markup string) (string, error) {
	root, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return "", fmt.Errorf("%w: parse markup: %v", ErrFormNotFound, err)
	}

	var action string
	var found bool
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if found {
			return
		}
		if n.Type == html.ElementNode && n.Data == "form" {
			for _, attr := range n.Attr {
				if attr.Key == "action" {
					action = attr.Val
					found = true
					return
				}
			}
			found = true
			return
		}
		for child := n.FirstChild; child != nil; child = child.NextSibling {
			walk(child)
		}
	}
	walk(root)

	if !found || action == "" {
		return "", ErrFormNotFound
	}

	return action, nil
}

// loginFlow executes one full interactive login attempt against the
// provider. The http client must have automatic redirects disabled.
type loginFlow struct {
	http     *http.Client
	loginURL *url.URL
	markers  []MarkerRule
}

// loginPage is the non-redirect response ending the initiation chain.
type loginPage struct {
	markup   string
	finalURL *url.URL
}

// fetchLoginPage walks the initiation redirect chain, merging every
// Set-Cookie into the jar, until a non-redirect response arrives.
func (f *loginFlow) fetchLoginPage(ctx context.Context, jar *CookieJar) (loginPage, error) {
	current := f.loginURL

	for hop := 0; hop <= maxLoginRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return loginPage{}, fmt.Errorf("create login page request: %w", err)
		}
		if header := jar.Header(); header != "" {
			req.Header.Set("Cookie", header)
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return loginPage{}, fmt.Errorf("fetch login page: %w", err)
		}

		jar.Absorb(resp)

		if resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest {
			location := resp.Header.Get("Location")
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			if location == "" {
				return loginPage{}, fmt.Errorf("%w: redirect without location at hop %d", ErrRedirectChainFailed, hop)
			}
			next, err := url.Parse(location)
			if err != nil {
				return loginPage{}, fmt.Errorf("parse redirect location: %w", err)
			}
			current = current.ResolveReference(next)
			continue
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, maxMarkupBytes))
		_ = resp.Body.Close()
		if err != nil {
			return loginPage{}, fmt.Errorf("read login page: %w", err)
		}

		markup := string(body)
		if strings.TrimSpace(markup) == "" || !utf8.ValidString(markup) {
			return loginPage{}, ErrEmptyResponse
		}

		return loginPage{markup: markup, finalURL: current}, nil
	}

	return loginPage{}, fmt.Errorf("%w: more than %d hops", ErrTooManyRedirects, maxLoginRedirects)
}

// submitCredentials posts exactly the two credential fields to the form
// target, carrying the accumulated cookies and a Referer pointing at the
// login-initiation address. Redirects are not followed.
func (f *loginFlow) submitCredentials(ctx context.Context, target *url.URL, jar *CookieJar, identity, secret string) (*http.Response, error) {
	values := url.Values{}
	values.Set("username", identity)
	values.Set("password", secret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, target.String(), strings.NewReader(values.Encode()))
	if err != nil {
		return nil, fmt.Errorf("create credential submission request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Referer", f.loginURL.String())
	if header := jar.Header(); header != "" {
		req.Header.Set("Cookie", header)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("submit credentials: %w", err)
	}

	jar.Absorb(resp)

	return resp, nil
}

// followToToken walks intermediate redirects after credential submission
// until one yields the terminal ondus:// location.
func (f *loginFlow) followToToken(ctx context.Context, start redirectTarget, jar *CookieJar) (*url.URL, error) {
	if start.Terminal {
		return start.URL, nil
	}

	current := start.URL
	for hop := 0; hop < maxTokenRedirects; hop++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, current.String(), nil)
		if err != nil {
			return nil, fmt.Errorf("create redirect request: %w", err)
		}
		if header := jar.Header(); header != "" {
			req.Header.Set("Cookie", header)
		}

		resp, err := f.http.Do(req)
		if err != nil {
			return nil, fmt.Errorf("follow post-login redirect: %w", err)
		}

		jar.Absorb(resp)
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		if resp.StatusCode < http.StatusMultipleChoices || resp.StatusCode >= http.StatusBadRequest {
			return nil, fmt.Errorf("%w: unexpected status %d at hop %d", ErrRedirectChainFailed, resp.StatusCode, hop)
		}

		target, err := classifyLocation(resp.Header.Get("Location"), current)
		if err != nil {
			return nil, err
		}
		if target.Terminal {
			return target.URL, nil
		}
		current = target.URL
	}

	return nil, fmt.Errorf("%w: no token address within %d hops", ErrRedirectChainFailed, maxTokenRedirects)
}

type tokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
}

// fetchTokens retrieves the credential pair from the substituted HTTPS
// token address.
func (f *loginFlow) fetchTokens(ctx context.Context, tokenURL *url.URL, jar *CookieJar) (tokenResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tokenURL.String(), nil)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("create token request: %w", err)
	}
	if header := jar.Header(); header != "" {
		req.Header.Set("Cookie", header)
	}

	resp, err := f.http.Do(req)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("fetch tokens: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return tokenResponse{}, fmt.Errorf("%w: token endpoint returned status %d", ErrTokenResponseInvalid, resp.StatusCode)
	}

	var tokens tokenResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, maxTokenResponseBytes)).Decode(&tokens); err != nil {
		return tokenResponse{}, fmt.Errorf("%w: decode token response: %v", ErrTokenResponseInvalid, err)
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		return tokenResponse{}, ErrTokenResponseInvalid
	}

	return tokens, nil
}

// run performs one complete login attempt with a fresh jar and returns the
// token pair.
func (f *loginFlow) run(ctx context.Context, identity, secret string) (tokenResponse, error) {
	jar := NewCookieJar()

	page, err := f.fetchLoginPage(ctx, jar)
	if err != nil {
		return tokenResponse{}, err
	}
	if err := scanMarkers(page.markup, f.markers); err != nil {
		return tokenResponse{}, err
	}

	action, err := parseFormAction(page.markup)
	if err != nil {
		return tokenResponse{}, err
	}
	actionURL, err := url.Parse(action)
	if err != nil {
		return tokenResponse{}, fmt.Errorf("%w: parse form action: %v", ErrFormNotFound, err)
	}
	// The provider expresses the form action relative to the start of the
	// chain, not the page it finally rendered.
	target := f.loginURL.ResolveReference(actionURL)

	resp, err := f.submitCredentials(ctx, target, jar, identity, secret)
	if err != nil {
		return tokenResponse{}, err
	}

	switch {
	case resp.StatusCode >= http.StatusMultipleChoices && resp.StatusCode < http.StatusBadRequest:
		location := resp.Header.Get("Location")
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()

		start, err := classifyLocation(location, target)
		if err != nil {
			return tokenResponse{}, err
		}
		tokenURL, err := f.followToToken(ctx, start, jar)
		if err != nil {
			return tokenResponse{}, err
		}
		return f.fetchTokens(ctx, tokenURL, jar)

	case resp.StatusCode == http.StatusOK:
		body, readErr := io.ReadAll(io.LimitReader(resp.Body, maxMarkupBytes))
		_ = resp.Body.Close()
		if readErr != nil {
			return tokenResponse{}, fmt.Errorf("read rejected login response: %w", readErr)
		}
		if err := scanMarkers(string(body), f.markers); err != nil {
			return tokenResponse{}, err
		}
		return tokenResponse{}, fmt.Errorf("%w: provider re-displayed the login form", ErrAuthenticationFailed)

	default:
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
		return tokenResponse{}, fmt.Errorf("%w: unexpected status %d from credential submission", ErrAuthenticationFailed, resp.StatusCode)
	}
}
