package main

import (
	"errors"
	"fmt"

	goredis "github.com/redis/go-redis/v9"

	"github.com/jwalitptl/dashboard-notifications/internal/config"
	"github.com/jwalitptl/dashboard-notifications/pkg/credential"
	"github.com/jwalitptl/dashboard-notifications/pkg/logger"
)

// newCredentialStore builds the configured backend and wraps it with the
// cache and the expiry check. The expiry check is outermost so a cached
// token stops being used the moment it expires.
func newCredentialStore(cfg config.CredentialConfig, client *goredis.Client, log *logger.Logger) (credential.Store, error) {
	var store credential.Store
	switch cfg.Backend {
	case config.BackendStatic:
		store = credential.NewStatic(cfg.Token)
	case config.BackendRedis:
		if client == nil {
			return nil, errors.New("redis credential backend needs a redis client")
		}
		store = credential.NewRedisStore(client, cfg.RedisKey, &log.ZL)
	case config.BackendKeyring:
		ring, err := credential.OpenKeyring(cfg.KeyringService, cfg.KeyringFileDir, cfg.KeyringPassword)
		if err != nil {
			return nil, err
		}
		store = credential.NewKeyringStore(ring, cfg.KeyringKey)
	default:
		return nil, fmt.Errorf("unknown credential backend %q", cfg.Backend)
	}

	if cfg.CacheTTL > 0 {
		store = credential.NewCached(store, cfg.CacheTTL)
	}
	if cfg.CheckExpiry {
		store = credential.NewExpiryChecked(store)
	}
	log.Info("credential store ready", "backend", cfg.Backend)
	return store, nil
}
