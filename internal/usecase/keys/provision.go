// Package keys provisions gateway users and their API keys.
package keys

import (
	"context"
	"strings"

	"github.com/bkyoung/llmsync/internal/domain"
)

// UserAPI is the slice of the gateway admin API that key provisioning needs.
type UserAPI interface {
	FindUserByEmail(ctx context.Context, email string) (*domain.GatewayUser, error)
	CreateUser(ctx context.Context, email string) (*domain.GatewayUser, error)
	GenerateKey(ctx context.Context, userID, alias string) (string, error)
}

// Logger is the structured logger provisioning reports through.
type Logger interface {
	Info(msg string, fields map[string]any)
	Warn(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
}

// Provisioner creates users and virtual API keys on the gateway.
type Provisioner struct {
	api    UserAPI
	logger Logger
}

// NewProvisioner creates a key provisioner.
func NewProvisioner(api UserAPI, logger Logger) *Provisioner {
	return &Provisioner{api: api, logger: logger}
}

// ProvisionKey ensures a user exists for the email address and generates a
// new API key for them. The alias defaults to the local part of the email.
// It returns the generated key secret, which is only ever shown once.
func (p *Provisioner) ProvisionKey(ctx context.Context, email, alias string) (string, error) {
	if alias == "" {
		alias, _, _ = strings.Cut(email, "@")
	}

	p.logger.Info("provisioning API key", map[string]any{"email": email, "alias": alias})

	user, err := p.api.FindUserByEmail(ctx, email)
	if err != nil {
		p.logger.Warn("failed to look up user, will attempt to create",
			map[string]any{"email": email, "error": err.Error()})
	}

	if user != nil {
		p.logger.Info("user already exists", map[string]any{"userID": user.UserID})
	} else {
		user, err = p.api.CreateUser(ctx, email)
		if err != nil {
			return "", err
		}
		p.logger.Info("created user", map[string]any{"userID": user.UserID})
	}

	key, err := p.api.GenerateKey(ctx, user.UserID, alias)
	if err != nil {
		return "", err
	}

	p.logger.Info("generated API key", map[string]any{"userID": user.UserID, "alias": alias})
	return key, nil
}
