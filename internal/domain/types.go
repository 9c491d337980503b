package domain

import "time"

// Document is an untyped configuration document as loaded from disk.
// Provider blocks, model overrides, and litellm_params fragments are
// free-form JSON objects; the merger and resolver operate structurally.
type Document = map[string]any

// Credential is a resolved (service, interface) pair ready for upsert.
// One entry exists per interface of every provider that carries an api_key.
type Credential struct {
	ServiceName string `json:"service_name"`
	Provider    string `json:"provider"`
	APIKey      string `json:"api_key"`
	APIBase     string `json:"api_base"`
}

// Name returns the remote credential name, "{service_name}-{provider}".
func (c Credential) Name() string {
	return c.ServiceName + "-" + c.Provider
}

// ModelRegistration is a complete /model/new upsert payload produced by the
// resolver. LitellmParams always carries "model" and
// "litellm_credential_name"; ModelInfo always carries "base_model".
type ModelRegistration struct {
	ModelName     string         `json:"model_name"`
	LitellmParams map[string]any `json:"litellm_params"`
	ModelInfo     map[string]any `json:"model_info"`
}

// CredentialName returns the credential the registration is bound to.
func (m ModelRegistration) CredentialName() string {
	name, _ := m.LitellmParams["litellm_credential_name"].(string)
	return name
}

// Key returns the logical identity of the registration on the remote side.
func (m ModelRegistration) Key() ModelKey {
	return ModelKey{ModelName: m.ModelName, CredentialName: m.CredentialName()}
}

// FallbackRule maps one source model or alias to an ordered list of targets.
// Rules are single-key maps in the config document; order of targets matters.
type FallbackRule map[string][]string

// ResolvedConfig is the fully expanded artifact consumed by the reconciler.
// No further lookups are required downstream: every entry is ready to send.
type ResolvedConfig struct {
	Credentials []Credential        `json:"credentials"`
	Models      []ModelRegistration `json:"models"`
	Aliases     map[string]string   `json:"aliases"`
	Fallbacks   []FallbackRule      `json:"fallbacks"`
}

// ModelKey identifies a model registration on the remote gateway. The pair is
// not unique remotely; prior partial runs can leave duplicates under one key.
type ModelKey struct {
	ModelName      string
	CredentialName string
}

// RemoteModel is one registration as reported by /v2/model/info.
type RemoteModel struct {
	ModelName      string
	CredentialName string
	ID             string
	LitellmParams  map[string]any
	ModelInfo      map[string]any
}

// Key returns the logical identity of the remote registration.
func (r RemoteModel) Key() ModelKey {
	return ModelKey{ModelName: r.ModelName, CredentialName: r.CredentialName}
}

// CredentialPayload is the wire shape of POST /credentials.
type CredentialPayload struct {
	CredentialName   string         `json:"credential_name"`
	CredentialValues map[string]any `json:"credential_values"`
	CredentialInfo   map[string]any `json:"credential_info"`
}

// ModelPayload is the wire shape of POST /model/new and PATCH /model/{id}/update.
type ModelPayload struct {
	ModelName     string         `json:"model_name"`
	LitellmParams map[string]any `json:"litellm_params"`
	ModelInfo     map[string]any `json:"model_info"`
}

// AuditTimestamp formats a model_info audit timestamp: millisecond-precision
// UTC ISO-8601 with a literal Z suffix.
func AuditTimestamp(t time.Time) string {
	return t.UTC().Format("2006-01-02T15:04:05.000Z")
}

// GatewayUser is a provisioned user on the remote gateway.
type GatewayUser struct {
	UserID    string `json:"user_id"`
	UserEmail string `json:"user_email"`
}
