// Package api is the HTTP client for the agent-run service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"agentdeck/internal/model"
)

// requestTimeout bounds every call; exceeding it surfaces as a transport
// error and the caller keeps whatever it last fetched.
const requestTimeout = 30 * time.Second

var (
	// ErrNoOrganization means no org id is stored. Checked before any I/O.
	ErrNoOrganization = errors.New("no organization configured; log in first")
	// ErrEmptyPrompt means the prompt was blank after trimming. No I/O happens.
	ErrEmptyPrompt = errors.New("prompt must not be empty")
	// ErrUnauthorized means the service rejected the token. By the time a
	// caller sees this the stored credentials have already been cleared.
	ErrUnauthorized = errors.New("authentication failed; please log in again")
)

// APIError wraps a non-2xx response that is not a 401.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server error (%d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("server error (%d): %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPClient is the transport the client talks through. An interface so
// tests can substitute a double.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// CredentialSource supplies the session and absorbs the forced-logout side
// effect on 401.
type CredentialSource interface {
	Token() (string, error)
	OrgID() (int, bool)
	Logout() error
}

// Client issues authenticated list/create/get calls for one organization.
type Client struct {
	baseURL string
	http    HTTPClient
	creds   CredentialSource
	logger  *slog.Logger
}

// New creates a client. httpClient may be nil, in which case a default
// client with the standard timeout is used. logger may be nil.
func New(baseURL string, creds CredentialSource, httpClient HTTPClient, logger *slog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: requestTimeout}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    httpClient,
		creds:   creds,
		logger:  logger,
	}
}

// List fetches one page of agent runs, newest first as the server orders
// them. Only runs created through the API surface are requested; repoFilter
// narrows to a single "owner/name" when non-empty.
func (c *Client) List(ctx context.Context, page, perPage int, repoFilter string) (*model.Page, error) {
	org, ok := c.creds.OrgID()
	if !ok {
		return nil, ErrNoOrganization
	}

	q := url.Values{}
	q.Set("page", fmt.Sprint(page))
	q.Set("per_page", fmt.Sprint(perPage))
	q.Set("source_type", "API")
	if repoFilter != "" {
		q.Set("repository", repoFilter)
	}

	var resp model.Page
	endpoint := fmt.Sprintf("/v1/organizations/%d/agent/runs?%s", org, q.Encode())
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &resp); err != nil {
		return nil, fmt.Errorf("list agent runs: %w", err)
	}
	return &resp, nil
}

// Create starts a new agent run. model and repoID are optional (empty / zero
// mean unset). The prompt is validated locally before any network call.
func (c *Client) Create(ctx context.Context, prompt, runModel string, repoID int) (*model.AgentRun, error) {
	prompt = strings.TrimSpace(prompt)
	if prompt == "" {
		return nil, ErrEmptyPrompt
	}
	org, ok := c.creds.OrgID()
	if !ok {
		return nil, ErrNoOrganization
	}

	body := map[string]any{"prompt": prompt}
	if runModel != "" {
		body["model"] = runModel
	}
	if repoID != 0 {
		body["repo_id"] = repoID
	}

	var run model.AgentRun
	endpoint := fmt.Sprintf("/v1/organizations/%d/agent/run", org)
	if err := c.do(ctx, http.MethodPost, endpoint, body, &run); err != nil {
		return nil, fmt.Errorf("create agent run: %w", err)
	}
	return &run, nil
}

// Get fetches a single agent run by id.
func (c *Client) Get(ctx context.Context, id int) (*model.AgentRun, error) {
	org, ok := c.creds.OrgID()
	if !ok {
		return nil, ErrNoOrganization
	}
	var run model.AgentRun
	endpoint := fmt.Sprintf("/v1/organizations/%d/agent/run/%d", org, id)
	if err := c.do(ctx, http.MethodGet, endpoint, nil, &run); err != nil {
		return nil, fmt.Errorf("get agent run %d: %w", id, err)
	}
	return &run, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, body, out any) error {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			return err
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, &buf)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if tok, terr := c.creds.Token(); terr == nil && tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		// The session is dead, not the network. Clear it before reporting
		// so the caller always sees a consistent logged-out state.
		if lerr := c.creds.Logout(); lerr != nil {
			c.logger.Warn("clearing credentials after 401 failed", "err", lerr)
		}
		return ErrUnauthorized
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Message: errorMessage(resp.Body)}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// errorMessage pulls the optional {message} field from an error body.
func errorMessage(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 8192))
	if err != nil {
		return ""
	}
	var payload struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &payload) == nil && payload.Message != "" {
		return payload.Message
	}
	return ""
}
