package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/affiliates"
	"github.com/MarcoPoloResearchLab/affiliatedesk/internal/users"
	"go.uber.org/zap"
)

const (
	pathRegister   = "/auth/register"
	pathLogin      = "/auth/login"
	pathProfile    = "/users/profile"
	pathAffiliates = "/affiliates"
	pathStats      = "/affiliates/stats"
	pathStream     = "/affiliates/stream"

	defaultTimeout = 30 * time.Second
	maxErrorBody   = 64 << 10

	messageInvalidStatus = "invalid status"
)

var errMissingBaseURL = errors.New("apiclient: base url is required")

// TokenSource supplies the bearer token attached to every request.
type TokenSource interface {
	Token() string
}

// Config describes how to reach the AffiliateDesk API.
type Config struct {
	BaseURL    string
	HTTPClient *http.Client
	Tokens     TokenSource
	Logger     *zap.Logger
}

// Client is the REST data source used by the dashboard.
type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     TokenSource
	logger     *zap.Logger
}

// New validates the configuration and constructs a Client.
func New(cfg Config) (*Client, error) {
	raw := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if raw == "" {
		return nil, errMissingBaseURL
	}
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Scheme == "" || parsed.Host == "" {
		return nil, fmt.Errorf("apiclient: invalid base url %q", cfg.BaseURL)
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: defaultTimeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		baseURL:    parsed,
		httpClient: httpClient,
		tokens:     cfg.Tokens,
		logger:     logger,
	}, nil
}

// FetchAll returns every affiliate.
func (c *Client) FetchAll(ctx context.Context) ([]affiliates.Record, error) {
	records := make([]affiliates.Record, 0)
	if err := c.do(ctx, http.MethodGet, pathAffiliates, nil, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// Create submits a new affiliate.
func (c *Client) Create(ctx context.Context, request affiliates.CreateRequest) (affiliates.Record, error) {
	var record affiliates.Record
	err := c.do(ctx, http.MethodPost, pathAffiliates, request, &record)
	return record, err
}

// UpdateStatus moves an affiliate to ACTIVE, SUSPENDED or PENDING using the endpoint that owns each transition.
// Other values fail without a request.
func (c *Client) UpdateStatus(ctx context.Context, id string, status affiliates.Status) (affiliates.Record, error) {
	switch affiliates.Status(strings.ToUpper(strings.TrimSpace(status.String()))) {
	case affiliates.StatusActive:
		return c.Approve(ctx, id)
	case affiliates.StatusSuspended:
		return c.Suspend(ctx, id)
	case affiliates.StatusPending:
		return c.PatchStatus(ctx, id, affiliates.StatusPending)
	default:
		return affiliates.Record{}, &affiliates.SourceError{
			Kind:    affiliates.ErrorKindValidation,
			Message: messageInvalidStatus,
			Fields:  map[string]string{"status": "Status is invalid"},
			Err:     affiliates.ErrInvalidStatus,
		}
	}
}

// Approve activates an affiliate.
func (c *Client) Approve(ctx context.Context, id string) (affiliates.Record, error) {
	var record affiliates.Record
	err := c.do(ctx, http.MethodPost, affiliatePath(id, "approve"), nil, &record)
	return record, err
}

// Suspend blocks an affiliate.
func (c *Client) Suspend(ctx context.Context, id string) (affiliates.Record, error) {
	var record affiliates.Record
	err := c.do(ctx, http.MethodPost, affiliatePath(id, "suspend"), nil, &record)
	return record, err
}

type statusPatchPayload struct {
	Status      affiliates.Status `json:"status"`
	ApprovedAt  *time.Time        `json:"approvedAt"`
	SuspendedAt *time.Time        `json:"suspendedAt"`
}

// PatchStatus sets the status directly and clears both lifecycle timestamps.
func (c *Client) PatchStatus(ctx context.Context, id string, status affiliates.Status) (affiliates.Record, error) {
	var record affiliates.Record
	err := c.do(ctx, http.MethodPatch, affiliatePath(id, ""), statusPatchPayload{Status: status}, &record)
	return record, err
}

// Delete removes an affiliate.
func (c *Client) Delete(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, affiliatePath(id, ""), nil, nil)
}

// FetchStats returns the KPI aggregate.
func (c *Client) FetchStats(ctx context.Context) (affiliates.Summary, error) {
	var summary affiliates.Summary
	err := c.do(ctx, http.MethodGet, pathStats, nil, &summary)
	return summary, err
}

type registerPayload struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Register creates an account and returns its first session.
func (c *Client) Register(ctx context.Context, name, email, password string) (users.SessionResponse, error) {
	var response users.SessionResponse
	err := c.do(ctx, http.MethodPost, pathRegister, registerPayload{Name: name, Email: email, Password: password}, &response)
	return response, err
}

// Login exchanges credentials for a session.
func (c *Client) Login(ctx context.Context, email, password string) (users.SessionResponse, error) {
	var response users.SessionResponse
	err := c.do(ctx, http.MethodPost, pathLogin, loginPayload{Email: email, Password: password}, &response)
	return response, err
}

// Profile returns the signed-in account.
func (c *Client) Profile(ctx context.Context) (users.Profile, error) {
	var profile users.Profile
	err := c.do(ctx, http.MethodGet, pathProfile, nil, &profile)
	return profile, err
}

func affiliatePath(id, action string) string {
	path := pathAffiliates + "/" + url.PathEscape(strings.TrimSpace(id))
	if action != "" {
		path += "/" + action
	}
	return path
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}

func (c *Client) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var reader io.Reader = http.NoBody
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(payload)
	}
	request, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}
	request.Header.Set("Accept", "application/json")
	if c.tokens != nil {
		if token := c.tokens.Token(); token != "" {
			request.Header.Set("Authorization", "Bearer "+token)
		}
	}
	return request, nil
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	request, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return &affiliates.SourceError{Kind: affiliates.ErrorKindTransport, Message: "failed to build request", Err: err}
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		c.logger.Debug("api request failed", zap.String("method", method), zap.String("path", path), zap.Error(err))
		return &affiliates.SourceError{Kind: affiliates.ErrorKindTransport, Message: "request failed", Err: err}
	}
	defer response.Body.Close()

	if response.StatusCode < 200 || response.StatusCode > 299 {
		sourceErr := classify(response)
		c.logger.Debug("api request rejected",
			zap.String("method", method),
			zap.String("path", path),
			zap.Int("status", response.StatusCode),
			zap.String("kind", string(sourceErr.Kind)))
		return sourceErr
	}

	if out == nil || response.StatusCode == http.StatusNoContent {
		_, _ = io.Copy(io.Discard, response.Body)
		return nil
	}
	if err := json.NewDecoder(response.Body).Decode(out); err != nil {
		return &affiliates.SourceError{
			Kind:       affiliates.ErrorKindTransport,
			StatusCode: response.StatusCode,
			Message:    "failed to decode response",
			Err:        err,
		}
	}
	return nil
}

type errorBody struct {
	Error   string            `json:"error"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

func classify(response *http.Response) *affiliates.SourceError {
	var body errorBody
	raw, _ := io.ReadAll(io.LimitReader(response.Body, maxErrorBody))
	_ = json.Unmarshal(raw, &body)

	message := strings.TrimSpace(body.Message)
	if message == "" {
		message = fmt.Sprintf("request failed with status %d", response.StatusCode)
	}

	sourceErr := &affiliates.SourceError{
		Kind:       kindForStatus(response.StatusCode),
		StatusCode: response.StatusCode,
		Message:    message,
	}
	if sourceErr.Kind == affiliates.ErrorKindValidation && len(body.Fields) > 0 {
		sourceErr.Fields = body.Fields
	}
	return sourceErr
}

func kindForStatus(statusCode int) affiliates.ErrorKind {
	switch statusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return affiliates.ErrorKindUnauthorized
	case http.StatusNotFound:
		return affiliates.ErrorKindNotFound
	case http.StatusBadRequest, http.StatusConflict, http.StatusUnprocessableEntity:
		return affiliates.ErrorKindValidation
	default:
		return affiliates.ErrorKindTransport
	}
}
