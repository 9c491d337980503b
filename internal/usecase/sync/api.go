// Package sync reconciles the resolved configuration against the live state
// of the gateway admin API: it snapshots remote state once per phase, decides
// create/replace/skip/prune per resource, and reports aggregate counts.
package sync

import (
	"context"

	"github.com/bkyoung/llmsync/internal/domain"
)

// AdminAPI is the narrow transport surface the reconciler needs. The HTTP
// implementation lives in the litellm adapter; tests use an in-memory fake.
type AdminAPI interface {
	ListCredentials(ctx context.Context) ([]string, error)
	CreateCredential(ctx context.Context, payload domain.CredentialPayload) error
	DeleteCredential(ctx context.Context, name string) error

	ListModels(ctx context.Context) ([]domain.RemoteModel, error)
	CreateModel(ctx context.Context, payload domain.ModelPayload) error
	DeleteModel(ctx context.Context, id string) error

	RouterSettings(ctx context.Context) ([]byte, error)
	UpdateRouterSettings(ctx context.Context, updates map[string]any) error

	ResolveActor(ctx context.Context) string
}

// Logger is the structured logging dependency of the reconciler.
type Logger interface {
	Debug(message string, fields map[string]any)
	Info(message string, fields map[string]any)
	Warn(message string, fields map[string]any)
	Error(message string, fields map[string]any)
}
