// Package remote talks to the authoritative store: record submission and the
// signed-in user's profile.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"time"

	"github.com/angelmondragon/fieldsync/pkg/db/models"
	"github.com/angelmondragon/fieldsync/pkg/enums"
	pkgerrors "github.com/angelmondragon/fieldsync/pkg/errors"
)

const (
	EntriesPath = "/api/entries"
	ProfilePath = "/api/users/me"

	defaultAttemptTimeout       = 15 * time.Second
	responseBodyReadLimit int64 = 1024
)

// Client submits records with the agent's credentials: cookies the remote
// hands out are kept in a jar, and a configured session token goes out as
// a bearer header.
type Client struct {
	httpClient     *http.Client
	baseURL        string
	sessionToken   string
	attemptTimeout time.Duration
}

// Option configures optional client behavior.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client. A cookie jar is added if
// the client has none.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithBaseURL overrides the remote base URL.
func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		trimmed := strings.TrimSpace(baseURL)
		if trimmed != "" {
			c.baseURL = trimmed
		}
	}
}

// WithAttemptTimeout bounds a single request. Hitting it classifies the
// attempt as a server error.
func WithAttemptTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.attemptTimeout = d
		}
	}
}

// WithSessionToken sends token as a bearer credential on every request.
func WithSessionToken(token string) Option {
	return func(c *Client) {
		c.sessionToken = strings.TrimSpace(token)
	}
}

// NewClient builds a client for the remote store at baseURL.
func NewClient(baseURL string, opts ...Option) (*Client, error) {
	client := &Client{
		baseURL:        strings.TrimSpace(baseURL),
		httpClient:     &http.Client{},
		attemptTimeout: defaultAttemptTimeout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	if client.baseURL == "" {
		return nil, errors.New("remote base url is required")
	}
	if client.httpClient.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, fmt.Errorf("cookie jar: %w", err)
		}
		withJar := *client.httpClient
		withJar.Jar = jar
		client.httpClient = &withJar
	}
	return client, nil
}

// BaseURL returns the configured remote origin.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Classify maps an HTTP status from the submission endpoint to an outcome.
func Classify(status int) enums.SubmitOutcome {
	switch {
	case status >= 200 && status < 300:
		return enums.SubmitAccepted
	case status == http.StatusConflict:
		return enums.SubmitAlreadyExists
	case status == http.StatusUnauthorized:
		return enums.SubmitAuthenticationRejected
	case status >= 500:
		return enums.SubmitServerError
	default:
		return enums.SubmitClientRejected
	}
}

// Submit posts one record. The returned error is nil for accepted and
// already_exists and otherwise describes why the attempt failed; the outcome
// is always set.
func (c *Client) Submit(ctx context.Context, rec models.CapturedRecord) (enums.SubmitOutcome, error) {
	payload, err := json.Marshal(rec)
	if err != nil {
		return enums.SubmitClientRejected, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "marshal record")
	}

	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.buildURL(EntriesPath), bytes.NewReader(payload))
	if err != nil {
		return enums.SubmitClientRejected, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build submit request")
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return enums.SubmitServerError, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "submit record")
	}
	defer func() { _ = resp.Body.Close() }()

	outcome := Classify(resp.StatusCode)
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
	if outcome.Succeeded() {
		return outcome, nil
	}
	return outcome, statusError(outcome, resp.StatusCode, msg)
}

// Profile is the remote's view of the signed-in user.
type Profile struct {
	ID    string   `json:"id"`
	Email string   `json:"email"`
	Roles []string `json:"roles"`
}

// FetchProfile loads the signed-in user. The HTTP status is returned
// alongside so callers can tell an expired session (401) from other failures.
// Status is 0 when the request never got an answer.
func (c *Client) FetchProfile(ctx context.Context) (Profile, int, error) {
	ctx, cancel := context.WithTimeout(ctx, c.attemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.buildURL(ProfilePath), nil)
	if err != nil {
		return Profile{}, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build profile request")
	}
	req.Header.Set("Accept", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Profile{}, 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch profile")
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, responseBodyReadLimit))
		code := pkgerrors.CodeDependency
		if resp.StatusCode == http.StatusUnauthorized {
			code = pkgerrors.CodeUnauthorized
		}
		return Profile{}, resp.StatusCode, pkgerrors.Wrap(code, fmt.Errorf("status %d: %s", resp.StatusCode, bodyText(msg)), "profile request failed")
	}

	var profile Profile
	if err := json.NewDecoder(resp.Body).Decode(&profile); err != nil {
		return Profile{}, resp.StatusCode, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode profile response")
	}
	if strings.TrimSpace(profile.ID) == "" {
		return Profile{}, resp.StatusCode, pkgerrors.New(pkgerrors.CodeDependency, "profile response missing id")
	}
	return profile, resp.StatusCode, nil
}

func (c *Client) authorize(req *http.Request) {
	if c.sessionToken != "" {
		req.Header.Set("Authorization", "Bearer "+c.sessionToken)
	}
}

func (c *Client) buildURL(path string) string {
	trimmed := strings.TrimRight(c.baseURL, "/")
	path = strings.TrimLeft(path, "/")
	return fmt.Sprintf("%s/%s", trimmed, path)
}

func statusError(outcome enums.SubmitOutcome, status int, body []byte) error {
	code := pkgerrors.CodeValidation
	switch outcome {
	case enums.SubmitAuthenticationRejected:
		code = pkgerrors.CodeUnauthorized
	case enums.SubmitServerError:
		code = pkgerrors.CodeDependency
	}
	cause := fmt.Errorf("status %d: %s", status, bodyText(body))
	return pkgerrors.Wrap(code, cause, "submit rejected").
		WithDetails(map[string]any{"status": status, "outcome": outcome})
}

// bodyText renders a size-limited response body for error messages. The
// read limit can split a multi-byte character, which is dropped.
func bodyText(body []byte) string {
	return strings.TrimSpace(strings.ToValidUTF8(string(body), ""))
}
