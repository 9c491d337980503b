package litellm

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

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"github.com/bkyoung/llmsync/internal/adapter/observability"
	"github.com/bkyoung/llmsync/internal/domain"
)

const (
	defaultTimeout = 60 * time.Second

	// actorPrefixLen is how much of the API key identifies the caller when
	// /key/info cannot resolve a user or team.
	actorPrefixLen = 20
)

// Client is an HTTP client for the LiteLLM gateway admin API.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	logger     observability.Logger
}

// NewClient creates an admin API client for the given gateway.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: defaultTimeout},
		logger:     observability.NopLogger{},
	}
}

// SetLogger wires a structured logger into the client.
func (c *Client) SetLogger(logger observability.Logger) {
	if logger != nil {
		c.logger = logger
	}
}

// SetTimeout sets the HTTP timeout.
func (c *Client) SetTimeout(timeout time.Duration) {
	c.httpClient.Timeout = timeout
}

// SetBaseURL sets a custom base URL (for testing).
func (c *Client) SetBaseURL(u string) {
	c.baseURL = strings.TrimRight(u, "/")
}

// ListCredentials returns the names of all stored credentials. Only names are
// needed for existence checks; the gateway never returns secret values anyway.
func (c *Client) ListCredentials(ctx context.Context) ([]string, error) {
	body, err := c.do(ctx, http.MethodGet, "credentials", nil)
	if err != nil {
		return nil, err
	}

	// The endpoint has returned both a bare array and an object with a
	// "credentials" key across gateway versions; accept either shape.
	creds := gjson.GetBytes(body, "credentials")
	if !creds.Exists() {
		creds = gjson.ParseBytes(body)
	}
	if !creds.IsArray() {
		return nil, nil
	}

	var names []string
	creds.ForEach(func(_, cred gjson.Result) bool {
		if name := cred.Get("credential_name").String(); name != "" {
			names = append(names, name)
		}
		return true
	})
	return names, nil
}

// CreateCredential stores a credential on the gateway.
func (c *Client) CreateCredential(ctx context.Context, payload domain.CredentialPayload) error {
	_, err := c.do(ctx, http.MethodPost, "credentials", payload)
	return err
}

// DeleteCredential removes a stored credential by name.
func (c *Client) DeleteCredential(ctx context.Context, name string) error {
	_, err := c.do(ctx, http.MethodDelete, "credentials/"+url.PathEscape(name), nil)
	return err
}

// ListModels returns every model registration the gateway reports, including
// team models. Duplicate (model_name, credential_name) pairs are returned
// as-is; deduplication is the caller's concern.
func (c *Client) ListModels(ctx context.Context) ([]domain.RemoteModel, error) {
	body, err := c.do(ctx, http.MethodGet, "v2/model/info?include_team_models=true", nil)
	if err != nil {
		return nil, err
	}

	var models []domain.RemoteModel
	gjson.GetBytes(body, "data").ForEach(func(_, entry gjson.Result) bool {
		m := domain.RemoteModel{
			ModelName:      entry.Get("model_name").String(),
			CredentialName: entry.Get("litellm_params.litellm_credential_name").String(),
			ID:             entry.Get("model_info.id").String(),
		}
		if m.ModelName == "" || m.ID == "" {
			return true
		}
		if raw := entry.Get("litellm_params"); raw.Exists() {
			_ = json.Unmarshal([]byte(raw.Raw), &m.LitellmParams)
		}
		if raw := entry.Get("model_info"); raw.Exists() {
			_ = json.Unmarshal([]byte(raw.Raw), &m.ModelInfo)
		}
		models = append(models, m)
		return true
	})
	return models, nil
}

// CreateModel registers a model on the gateway.
func (c *Client) CreateModel(ctx context.Context, payload domain.ModelPayload) error {
	_, err := c.do(ctx, http.MethodPost, "model/new", payload)
	return err
}

// UpdateModel patches an existing model registration by id.
func (c *Client) UpdateModel(ctx context.Context, id string, payload domain.ModelPayload) error {
	_, err := c.do(ctx, http.MethodPatch, "model/"+url.PathEscape(id)+"/update", payload)
	return err
}

// DeleteModel removes a model registration by id.
func (c *Client) DeleteModel(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodPost, "model/delete", map[string]any{"id": id})
	return err
}

// RouterSettings returns the raw current router settings object.
func (c *Client) RouterSettings(ctx context.Context) ([]byte, error) {
	body, err := c.do(ctx, http.MethodGet, "router/settings", nil)
	if err != nil {
		return nil, err
	}
	current := gjson.GetBytes(body, "current_values")
	if !current.Exists() || !current.IsObject() {
		return []byte("{}"), nil
	}
	return []byte(current.Raw), nil
}

// UpdateRouterSettings merges the given top-level keys into the current
// router settings and pushes the result. The merge is a shallow key overwrite
// performed on the raw settings JSON so unrelated router settings survive
// byte-for-byte.
func (c *Client) UpdateRouterSettings(ctx context.Context, updates map[string]any) error {
	current, err := c.RouterSettings(ctx)
	if err != nil {
		c.logger.Warn("failed to fetch current router settings, updating from scratch",
			map[string]any{"error": err.Error()})
		current = []byte("{}")
	}

	merged := current
	for key, value := range updates {
		merged, err = sjson.SetBytes(merged, key, value)
		if err != nil {
			return fmt.Errorf("merge router setting %q: %w", key, err)
		}
	}

	payload, err := sjson.SetRawBytes([]byte(`{}`), "router_settings", merged)
	if err != nil {
		return fmt.Errorf("build router settings payload: %w", err)
	}

	_, err = c.doRaw(ctx, http.MethodPost, "config/update", payload)
	return err
}

// ResolveActor identifies the invoking principal for audit stamps by querying
// the caller's own key metadata. Lookup failures fall back to a key prefix so
// a degraded gateway never blocks a sync run.
func (c *Client) ResolveActor(ctx context.Context) string {
	fallback := c.apiKey
	if len(fallback) > actorPrefixLen {
		fallback = fallback[:actorPrefixLen]
	}

	body, err := c.do(ctx, http.MethodGet, "key/info", nil)
	if err != nil {
		c.logger.Warn("failed to resolve actor from key", map[string]any{"error": err.Error()})
		return fallback
	}

	if actor := gjson.GetBytes(body, "info.user_id").String(); actor != "" {
		return actor
	}
	if actor := gjson.GetBytes(body, "info.team_id").String(); actor != "" {
		return actor
	}
	return fallback
}

// FindUserByEmail looks up a user by exact email. The user_email filter on
// /user/list is a partial match, so results are post-filtered here. Returns
// nil without error when no user matches.
func (c *Client) FindUserByEmail(ctx context.Context, email string) (*domain.GatewayUser, error) {
	endpoint := fmt.Sprintf("user/list?user_email=%s&page=1&page_size=100", url.QueryEscape(email))
	body, err := c.do(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Type == ErrTypeNotFound {
			return nil, nil
		}
		return nil, err
	}

	var user *domain.GatewayUser
	gjson.GetBytes(body, "users").ForEach(func(_, entry gjson.Result) bool {
		if entry.Get("user_email").String() == email {
			user = &domain.GatewayUser{
				UserID:    entry.Get("user_id").String(),
				UserEmail: email,
			}
			return false
		}
		return true
	})
	return user, nil
}

// CreateUser provisions a viewer user without an auto-generated key.
func (c *Client) CreateUser(ctx context.Context, email string) (*domain.GatewayUser, error) {
	payload := map[string]any{
		"user_id":         nil,
		"user_email":      email,
		"user_role":       "internal_user_viewer",
		"models":          []string{"General"},
		"auto_create_key": false,
	}
	body, err := c.do(ctx, http.MethodPost, "user/new", payload)
	if err != nil {
		return nil, err
	}
	return &domain.GatewayUser{
		UserID:    gjson.GetBytes(body, "user_id").String(),
		UserEmail: email,
	}, nil
}

// GenerateKey creates an API key for the given user and returns the secret.
func (c *Client) GenerateKey(ctx context.Context, userID, alias string) (string, error) {
	payload := map[string]any{
		"user_id":   userID,
		"team_id":   nil,
		"key_alias": alias,
		"models":    []string{"all-team-models"},
		"key_type":  "llm_api",
		"metadata":  map[string]any{},
	}
	body, err := c.do(ctx, http.MethodPost, "key/generate", payload)
	if err != nil {
		return "", err
	}
	return gjson.GetBytes(body, "key").String(), nil
}

// do sends a request with a JSON-encoded body and returns the response body.
func (c *Client) do(ctx context.Context, method, endpoint string, payload any) ([]byte, error) {
	var raw []byte
	if payload != nil {
		var err error
		raw, err = json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("marshal %s request: %w", endpoint, err)
		}
	}
	return c.doRaw(ctx, method, endpoint, raw)
}

func (c *Client) doRaw(ctx context.Context, method, endpoint string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+"/"+endpoint, reader)
	if err != nil {
		return nil, &Error{Type: ErrTypeUnknown, Message: err.Error(), Endpoint: endpoint}
	}

	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, &Error{Type: ErrTypeNetwork, Message: err.Error(), Endpoint: endpoint}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{
			Type:       ErrTypeUnknown,
			Message:    fmt.Sprintf("read response: %v", err),
			StatusCode: resp.StatusCode,
			Endpoint:   endpoint,
		}
	}

	if resp.StatusCode >= 400 {
		return nil, mapHTTPError(endpoint, resp.StatusCode, body)
	}

	return body, nil
}
