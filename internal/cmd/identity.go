package cmd

import (
	"fmt"

	"github.com/johndosdos/deskchat/internal/auth"
	"github.com/johndosdos/deskchat/internal/config"
)

// resolveIdentity reads who is signed in from the token. The token is only
// verified when a secret is configured. Explicit user_id and role settings
// win over the claims.
func resolveIdentity(cfg config.Config) (auth.Identity, error) {
	var (
		id  auth.Identity
		err error
	)
	if cfg.JWTSecret != "" {
		id, err = auth.ValidateIdentity(cfg.Token, cfg.JWTSecret)
	} else {
		id, err = auth.ParseIdentity(cfg.Token)
	}
	if err != nil {
		return auth.Identity{}, fmt.Errorf("resolving identity: %w", err)
	}

	if cfg.UserID != "" {
		id.UserID = cfg.UserID
	}
	if cfg.Role != "" {
		role, err := auth.ParseRole(cfg.Role)
		if err != nil {
			return auth.Identity{}, fmt.Errorf("resolving identity: %w", err)
		}
		id.Role = role
	}
	return id, nil
}
