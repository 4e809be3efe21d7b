package ondus

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog"

	"github.com/patricknitsch/grohe-smarthome/internal/adapters/auth"
)

const maxResponseBytes = 4 << 20

var (
	// ErrRateLimited is the server's intermittent 403 throttle signal. It
	// is surfaced as-is so the poll scheduler can react to it; this layer
	// never retries it.
	ErrRateLimited = errors.New("request rejected by server rate limiting")

	// ErrNotFound marks a 404. For the pressure-test read this is the
	// normal "never run" outcome and callers treat it silently.
	ErrNotFound = errors.New("resource not found")
)

// TokenSource hands out a currently valid access token and can be forced
// to renew it.
type TokenSource interface {
	ValidToken(ctx context.Context) (string, error)
	Renew(ctx context.Context) error
}

// Transport wraps outbound calls with the current access token. On the
// first 401 it forces one renewal and retries exactly once; a second 401
// surfaces as auth.ErrAuthenticationFailed.
type Transport struct {
	http    *http.Client
	tokens  TokenSource
	baseURL string
	log     zerolog.Logger
}

func NewTransport(client *http.Client, tokens TokenSource, baseURL string, log zerolog.Logger) *Transport {
	if client == nil {
		client = http.DefaultClient
	}

	return &Transport{
		http:    client,
		tokens:  tokens,
		baseURL: strings.TrimRight(baseURL, "/"),
		log:     log.With().Str("component", "transport").Logger(),
	}
}

// Do executes one authorized request against the API. A non-nil body is
// sent as JSON; a non-nil out receives the decoded response body.
func (t *Transport) Do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		payload = encoded
	}

	for attempt := 0; ; attempt++ {
		token, err := t.tokens.ValidToken(ctx)
		if err != nil {
			return err
		}

		req, err := t.newRequest(ctx, method, path, payload, token)
		if err != nil {
			return err
		}

		resp, err := t.http.Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %w", method, path, err)
		}

		switch {
		case resp.StatusCode == http.StatusUnauthorized:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			if attempt > 0 {
				return fmt.Errorf("%w: authorization rejected after renewal on %s %s", auth.ErrAuthenticationFailed, method, path)
			}

			t.log.Debug().Str("path", path).Msg("authorization rejected, renewing once")
			if err := t.tokens.Renew(ctx); err != nil {
				return err
			}
			continue

		case resp.StatusCode == http.StatusForbidden:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return fmt.Errorf("%w: %s %s", ErrRateLimited, method, path)

		case resp.StatusCode == http.StatusNotFound:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return fmt.Errorf("%w: %s %s", ErrNotFound, method, path)

		case resp.StatusCode >= http.StatusOK && resp.StatusCode < http.StatusMultipleChoices:
			err := decodeBody(resp.Body, out)
			_ = resp.Body.Close()
			return err

		default:
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()
			return fmt.Errorf("unexpected status %d on %s %s", resp.StatusCode, method, path)
		}
	}
}

func (t *Transport) newRequest(ctx context.Context, method, path string, payload []byte, token string) (*http.Request, error) {
	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, t.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("create request %s %s: %w", method, path, err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	return req, nil
}

func decodeBody(body io.Reader, out any) error {
	if out == nil {
		_, _ = io.Copy(io.Discard, body)
		return nil
	}

	data, err := io.ReadAll(io.LimitReader(body, maxResponseBytes))
	if err != nil {
		return fmt.Errorf("read response body: %w", err)
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response body: %w", err)
	}

	return nil
}
