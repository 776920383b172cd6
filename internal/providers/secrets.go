package providers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"genjobs/internal/domain"
)

// StaticSecrets serves keys loaded from the environment.
type StaticSecrets map[domain.ProviderFamily]string

func (s StaticSecrets) APIKey(_ context.Context, family domain.ProviderFamily) (string, error) {
	key := strings.TrimSpace(s[family])
	if key == "" {
		return "", fmt.Errorf("providers: %s api key: %w", family, domain.ErrNotConfigured)
	}
	return key, nil
}

// ChainSecrets asks each source in order and returns the first key found.
type ChainSecrets []SecretSource

func (c ChainSecrets) APIKey(ctx context.Context, family domain.ProviderFamily) (string, error) {
	var lastErr error
	for _, src := range c {
		if src == nil {
			continue
		}
		key, err := src.APIKey(ctx, family)
		if err == nil && key != "" {
			return key, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotConfigured) && !errors.Is(err, domain.ErrNotFound) {
			lastErr = err
		}
	}
	if lastErr != nil {
		return "", lastErr
	}
	return "", fmt.Errorf("providers: %s api key: %w", family, domain.ErrNotConfigured)
}
