// Package api is the gateway client for the remote survey service. It
// wraps the handful of collaborator endpoints the sync engine needs:
// authenticate, upload a response batch, download the assigned survey
// set, and a health probe.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/fieldops/fieldsync/internal/store"
)

// Enumerator is the identity record of the field worker signed in on
// this device.
type Enumerator struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Session is what a successful login yields: a bearer token, the
// identity, and the initial assigned-survey set.
type Session struct {
	Token      string         `json:"token"`
	Enumerator Enumerator     `json:"enumerator"`
	Surveys    []store.Survey `json:"surveys"`
}

// Client communicates with the remote survey service over HTTP.
// A Client is safe for concurrent use.
type Client struct {
	baseURL    string
	httpClient *http.Client

	mu    sync.RWMutex
	token string
	enum  Enumerator
}

// New creates a Client targeting the given service base URL.
func New(baseURL string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 0, // per-call timeouts via context
		},
	}
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login authenticates against the remote service and keeps the returned
// token for subsequent calls.
func (c *Client) Login(ctx context.Context, email, password string) (Session, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	body, err := json.Marshal(loginRequest{Email: email, Password: password})
	if err != nil {
		return Session{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/login", bytes.NewReader(body))
	if err != nil {
		return Session{}, fmt.Errorf("creating login request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Session{}, fmt.Errorf("login request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Session{}, fmt.Errorf("login: unexpected status %d", resp.StatusCode)
	}

	var sess Session
	if err := json.NewDecoder(resp.Body).Decode(&sess); err != nil {
		return Session{}, fmt.Errorf("decoding login response: %w", err)
	}

	c.mu.Lock()
	c.token = sess.Token
	c.enum = sess.Enumerator
	c.mu.Unlock()

	return sess, nil
}

// SetSession restores a previously obtained session, e.g. one cached on
// disk between CLI invocations.
func (c *Client) SetSession(token string, enum Enumerator) {
	c.mu.Lock()
	c.token = token
	c.enum = enum
	c.mu.Unlock()
}

// Authenticated reports whether the client holds a session token.
func (c *Client) Authenticated() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.token != ""
}

// Enumerator returns the signed-in identity (zero value when not
// authenticated).
func (c *Client) Enumerator() Enumerator {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.enum
}

type uploadRequest struct {
	Responses []store.Response `json:"responses"`
}

type uploadResponse struct {
	Processed int `json:"processed"`
}

// UploadResponses sends the whole pending batch and returns the count
// the server processed. Delivery is at-least-once: a batch re-sent
// after a crash between this call and the local synced mark is
// deduplicated server-side by response id.
func (c *Client) UploadResponses(ctx context.Context, responses []store.Response) (int, error) {
	ctx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	body, err := json.Marshal(uploadRequest{Responses: responses})
	if err != nil {
		return 0, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/responses/batch", bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("creating upload request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("upload: unexpected status %d", resp.StatusCode)
	}

	var result uploadResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return 0, fmt.Errorf("decoding upload response: %w", err)
	}
	return result.Processed, nil
}

type surveysResponse struct {
	Surveys []store.Survey `json:"surveys"`
}

// DownloadSurveys returns the current assigned-survey set for the
// signed-in identity. The result is a full replacement set, not a delta.
func (c *Client) DownloadSurveys(ctx context.Context) ([]store.Survey, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/surveys", nil)
	if err != nil {
		return nil, fmt.Errorf("creating surveys request: %w", err)
	}
	c.authorize(req)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("surveys request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("surveys: unexpected status %d", resp.StatusCode)
	}

	var result surveysResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding surveys response: %w", err)
	}
	return result.Surveys, nil
}

// Reachable returns true if the service answers its health endpoint
// with 200. Used as the connectivity probe; never returns an error.
func (c *Client) Reachable(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/health", nil)
	if err != nil {
		return false
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *Client) authorize(req *http.Request) {
	c.mu.RLock()
	token := c.token
	c.mu.RUnlock()
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
}
