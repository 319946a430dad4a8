// Package creds caches short-lived cloud credentials on disk and
// fetches fresh ones from each provider's own CLI when the cache misses
// or expires.
package creds

import (
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/minotaur-dev/minotaur/pkg/config"
	minoerrors "github.com/minotaur-dev/minotaur/pkg/errors"
	"github.com/minotaur-dev/minotaur/pkg/types"
)

// Cache is a TTL-indexed, on-disk store of provider credentials, one
// JSON file per cache key under a 0700 directory.
type Cache struct {
	dir string
}

// NewCache creates a Cache rooted at minotaur's credentials directory,
// creating it with 0700 permissions if necessary.
func NewCache() (*Cache, error) {
	dir, err := config.CredentialsDir()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, minoerrors.IO("creating credentials cache dir", err)
	}
	if err := os.Chmod(dir, 0o700); err != nil {
		return nil, minoerrors.IO("setting credentials dir permissions", err)
	}
	return &Cache{dir: dir}, nil
}

// NewCacheAt creates a Cache rooted at an explicit directory, bypassing
// the default state directory. Used by tests.
func NewCacheAt(dir string) *Cache {
	return &Cache{dir: dir}
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".json")
}

// Get returns the cached credential for key if present and not
// expired. An expired entry is evicted before returning (false, nil).
func (c *Cache) Get(key string) (types.CachedCredential, bool, error) {
	path := c.path(key)

	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return types.CachedCredential{}, false, nil
	}
	if err != nil {
		return types.CachedCredential{}, false, minoerrors.IO("reading cache file "+path, err)
	}

	var cred types.CachedCredential
	if err := json.Unmarshal(data, &cred); err != nil {
		return types.CachedCredential{}, false, minoerrors.Serialization("parsing cache file "+path, err)
	}

	if cred.IsExpired(time.Now().UTC()) {
		log.Debug().Str("key", key).Msg("cached credential is expired")
		if err := c.Remove(key); err != nil {
			return types.CachedCredential{}, false, err
		}
		return types.CachedCredential{}, false, nil
	}

	log.Debug().Str("key", key).Msg("using cached credential")
	return cred, true, nil
}

// Set stores cred under key, writing the file with 0600 permissions.
func (c *Cache) Set(key string, cred types.CachedCredential) error {
	path := c.path(key)

	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return minoerrors.Serialization("encoding cached credential "+key, err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return minoerrors.IO("writing cache file "+path, err)
	}
	if err := os.Chmod(path, 0o600); err != nil {
		return minoerrors.IO("setting cache file permissions", err)
	}

	log.Debug().Str("key", key).Time("expires_at", cred.ExpiresAt).Msg("cached credential")
	return nil
}

// Remove deletes a cached credential, if present.
func (c *Cache) Remove(key string) error {
	path := c.path(key)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return minoerrors.IO("removing cache file "+path, err)
	}
	return nil
}

// Clear removes every cached credential.
func (c *Cache) Clear() error {
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return minoerrors.IO("reading cache directory", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		if err := os.Remove(filepath.Join(c.dir, entry.Name())); err != nil {
			return minoerrors.IO("removing cache file", err)
		}
	}
	return nil
}
