package auth

import (
	"net/http"
	"sort"
	"strings"
)

// CookieJar accumulates cookies across the hops of one login attempt,
// keyed by name with last write winning. The provider issues session
// cookies at intermediate hops, so the jar is an explicit value threaded
// through every step rather than hidden client state. A jar is confined
// to a single attempt and never reused.
type CookieJar struct {
	values map[string]string
}

func NewCookieJar() *CookieJar {
	return &CookieJar{values: make(map[string]string)}
}

// Absorb merges every Set-Cookie instruction on the response into the jar.
func (j *CookieJar) Absorb(resp *http.Response) {
	for _, cookie := range resp.Cookies() {
		if cookie.Name == "" {
			continue
		}
		j.values[cookie.Name] = cookie.Value
	}
}

// Set stores a single cookie value directly.
func (j *CookieJar) Set(name, value string) {
	if name == "" {
		return
	}
	j.values[name] = value
}

func (j *CookieJar) Len() int {
	return len(j.values)
}

// Header renders the outgoing Cookie header for the next hop. Names are
// sorted so the header is deterministic.
func (j *CookieJar) Header() string {
	if len(j.values) == 0 {
		return ""
	}

	names := make([]string, 0, len(j.values))
	for name := range j.values {
		names = append(names, name)
	}
	sort.Strings(names)

	pairs := make([]string, 0, len(names))
	for _, name := range names {
		pairs = append(pairs, name+"="+j.values[name])
	}

	return strings.Join(pairs, "; ")
}
