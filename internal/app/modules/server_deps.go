package modules

import (
	"fmt"

	"halcyon.studio/cinema/internal/api/handlers"
	"halcyon.studio/cinema/internal/api/middleware"
	"halcyon.studio/cinema/internal/config"
)

// JWTConfig derives the session token settings.
func JWTConfig(cfg *config.Config) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey: []byte(cfg.Security.SessionSecret),
		Issuer:     cfg.Security.TokenIssuer,
		ExpiresIn:  cfg.Security.TokenTTL,
	}
}

// NewCSRF returns nil when CSRF protection is disabled.
func NewCSRF(cfg *config.Config) (*middleware.CSRF, error) {
	if !cfg.Security.CSRFEnabled {
		return nil, nil
	}
	csrf, err := middleware.NewCSRF(cfg.Security.SessionSecret, cfg.Security.CSRFTokenTTL)
	if err != nil {
		return nil, fmt.Errorf("init csrf: %w", err)
	}
	return csrf, nil
}

// NewServerDeps builds base server deps then lets each module contribute explicit wiring.
func NewServerDeps(infra *Infrastructure, csrf *middleware.CSRF, mods []Module) handlers.ServerDeps {
	deps := handlers.ServerDeps{
		CSRF:  csrf,
		Pools: infra.Pools,
	}
	if infra.Pool != nil {
		deps.DB = infra.Pool
	}
	for _, mod := range mods {
		if mod == nil {
			continue
		}
		contributor, ok := mod.(ServerDepsContributor)
		if !ok {
			continue
		}
		contributor.ContributeServerDeps(&deps)
	}
	return deps
}
