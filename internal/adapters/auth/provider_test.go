package auth

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"time"
)

// fakeClock implements ports.Clock with a controllable instant.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock(now time.Time) *fakeClock {
	return &fakeClock{now: now}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// provider simulates the cloud login endpoint chain: an initiation
// redirect that drops cookies on every hop, a rendered login form, the
// credential submission target, the post-login redirect chain ending in an
// ondus:// location, the token endpoint, and the refresh endpoint.
type providerOptions struct {
	rejectCredentials bool
	intermediateHops  int
	expiresIn         int64
	rotatedRefresh    string
	refreshStatus     int
}

type provider struct {
	server *httptest.Server
	opts   providerOptions

	mu               sync.Mutex
	submissions      int
	submittedCookie  string
	submittedReferer string
	submittedForm    url.Values
	tokenHits        int
	tokenCookie      string
	refreshHits      int
	lastRefreshToken string
}

func newProvider(opts providerOptions) *provider {
	if opts.expiresIn == 0 {
		opts.expiresIn = 3600
	}
	if opts.refreshStatus == 0 {
		opts.refreshStatus = http.StatusOK
	}

	p := &provider{opts: opts}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v3/iot/oidc/login", p.handleLogin)
	mux.HandleFunc("GET /idp/signin", p.handleSignin)
	mux.HandleFunc("POST /v3/iot/oidc/login/submit", p.handleSubmit)
	mux.HandleFunc("GET /hop/", p.handleHop)
	mux.HandleFunc("GET /v3/iot/oidc/token", p.handleToken)
	mux.HandleFunc("POST /v3/iot/oidc/refresh", p.handleRefresh)

	p.server = httptest.NewTLSServer(mux)

	return p
}

func (p *provider) Close() { p.server.Close() }

func (p *provider) loginURL() string { return p.server.URL + "/v3/iot/oidc/login" }

func (p *provider) refreshURL() string { return p.server.URL + "/v3/iot/oidc/refresh" }

func (p *provider) host() string {
	parsed, _ := url.Parse(p.server.URL)
	return parsed.Host
}

func (p *provider) ondusLocation() string {
	return "ondus://" + p.host() + "/v3/iot/oidc/token"
}

func (p *provider) handleLogin(w http.ResponseWriter, _ *http.Request) {
	http.SetCookie(w, &http.Cookie{Name: "gate", Value: "alpha"})
	w.Header().Set("Location", "/idp/signin")
	w.WriteHeader(http.StatusFound)
}

func (p *provider) handleSignin(w http.ResponseWriter, _ *http.Request) {
	// Re-issues the gate cookie with a new value; the last one must win.
	http.SetCookie(w, &http.Cookie{Name: "gate", Value: "gamma"})
	http.SetCookie(w, &http.Cookie{Name: "idp", Value: "beta"})
	w.Header().Set("Content-Type", "text/html")
	// The form action is relative to the login-initiation address, not to
	// this page.
	_, _ = fmt.Fprint(w, `<html><body><form action="login/submit" method="post">`+
		`<input name="username"/><input name="password" type="password"/></form></body></html>`)
}

func (p *provider) handleSubmit(w http.ResponseWriter, r *http.Request) {
	_ = r.ParseForm()

	p.mu.Lock()
	p.submissions++
	p.submittedCookie = r.Header.Get("Cookie")
	p.submittedReferer = r.Header.Get("Referer")
	p.submittedForm = r.PostForm
	reject := p.opts.rejectCredentials
	hops := p.opts.intermediateHops
	p.mu.Unlock()

	if reject {
		w.Header().Set("Content-Type", "text/html")
		_, _ = fmt.Fprint(w, `<html><body>Invalid username or password</body></html>`)
		return
	}

	if hops > 0 {
		w.Header().Set("Location", "/hop/1")
		w.WriteHeader(http.StatusFound)
		return
	}

	w.Header().Set("Location", p.ondusLocation())
	w.WriteHeader(http.StatusFound)
}

func (p *provider) handleHop(w http.ResponseWriter, r *http.Request) {
	var index int
	_, _ = fmt.Sscanf(r.URL.Path, "/hop/%d", &index)

	http.SetCookie(w, &http.Cookie{Name: fmt.Sprintf("hop%d", index), Value: "set"})

	p.mu.Lock()
	hops := p.opts.intermediateHops
	p.mu.Unlock()

	if index < hops {
		w.Header().Set("Location", fmt.Sprintf("/hop/%d", index+1))
	} else {
		w.Header().Set("Location", p.ondusLocation())
	}
	w.WriteHeader(http.StatusFound)
}

func (p *provider) handleToken(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	p.tokenHits++
	p.tokenCookie = r.Header.Get("Cookie")
	hits := p.tokenHits
	expiresIn := p.opts.expiresIn
	p.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"access_token":  fmt.Sprintf("access-%d", hits),
		"refresh_token": "refresh-initial",
		"expires_in":    expiresIn,
	})
}

func (p *provider) handleRefresh(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		RefreshToken string `json:"refresh_token"`
	}
	_ = json.NewDecoder(r.Body).Decode(&payload)

	p.mu.Lock()
	p.refreshHits++
	p.lastRefreshToken = payload.RefreshToken
	hits := p.refreshHits
	status := p.opts.refreshStatus
	rotated := p.opts.rotatedRefresh
	expiresIn := p.opts.expiresIn
	p.mu.Unlock()

	if status != http.StatusOK {
		w.WriteHeader(status)
		return
	}

	body := map[string]any{
		"access_token": fmt.Sprintf("renewed-%d", hits),
		"expires_in":   expiresIn,
	}
	if rotated != "" {
		body["refresh_token"] = rotated
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(body)
}

type providerStats struct {
	submissions      int
	submittedCookie  string
	submittedReferer string
	submittedForm    url.Values
	tokenHits        int
	tokenCookie      string
	refreshHits      int
	lastRefreshToken string
}

func (p *provider) stats() providerStats {
	p.mu.Lock()
	defer p.mu.Unlock()
	return providerStats{
		submissions:      p.submissions,
		submittedCookie:  p.submittedCookie,
		submittedReferer: p.submittedReferer,
		submittedForm:    p.submittedForm,
		tokenHits:        p.tokenHits,
		tokenCookie:      p.tokenCookie,
		refreshHits:      p.refreshHits,
		lastRefreshToken: p.lastRefreshToken,
	}
}
