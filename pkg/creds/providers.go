package creds

import (
	"time"

	"github.com/minotaur-dev/minotaur/pkg/types"
)

func cachedValue(provider, value string, expiresAt time.Time) types.CachedCredential {
	return types.CachedCredential{
		Provider:  provider,
		Value:     value,
		ExpiresAt: expiresAt,
	}
}
