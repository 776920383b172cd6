// Package credentials keeps provider API keys in Postgres, sealed at rest.
package credentials

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"genjobs/internal/domain"
	"genjobs/internal/infra"
	"genjobs/internal/sqlinline"
)

// Sealer encrypts tokens before they are stored.
type Sealer interface {
	Seal(plaintext string) (string, error)
	Open(ciphertext string) (string, error)
}

type Store struct {
	sql infra.SQLExecutor
	box Sealer
}

// StoredKey describes a stored credential without revealing it.
type StoredKey struct {
	Provider  string
	UpdatedAt time.Time
}

func NewStore(sql infra.SQLExecutor, box Sealer) *Store {
	return &Store{sql: sql, box: box}
}

// APIKey decrypts the stored key of a provider family. It is read on every
// call so a rotated key takes effect without a restart.
func (s *Store) APIKey(ctx context.Context, family domain.ProviderFamily) (string, error) {
	sealed, err := s.Token(ctx, string(family))
	if err != nil {
		return "", err
	}
	if sealed == "" {
		return "", fmt.Errorf("credentials: %s: %w", family, domain.ErrNotFound)
	}
	key, err := s.box.Open(sealed)
	if err != nil {
		return "", fmt.Errorf("credentials: decrypt %s key: %w", family, err)
	}
	return strings.TrimSpace(key), nil
}

// Has reports whether a key is stored for family.
func (s *Store) Has(ctx context.Context, family domain.ProviderFamily) (bool, error) {
	sealed, err := s.Token(ctx, string(family))
	if err != nil {
		return false, err
	}
	return sealed != "", nil
}

func (s *Store) Token(ctx context.Context, provider string) (string, error) {
	row := s.sql.QueryRow(ctx, sqlinline.QSelectIntegrationToken, provider)
	var token string
	if err := row.Scan(&token); err != nil {
		if infra.IsNoRows(err) {
			return "", nil
		}
		return "", err
	}
	return strings.TrimSpace(token), nil
}

// SetAPIKey seals and stores key for family, replacing any previous key.
func (s *Store) SetAPIKey(ctx context.Context, family domain.ProviderFamily, key string) error {
	key = strings.TrimSpace(key)
	if key == "" {
		return fmt.Errorf("%s api key is required", family)
	}
	switch family {
	case domain.FamilyRunpod, domain.FamilyReplicate:
	default:
		return fmt.Errorf("unknown provider family %q", family)
	}
	sealed, err := s.box.Seal(key)
	if err != nil {
		return err
	}
	return s.upsert(ctx, string(family), sealed, map[string]any{"sealed": "aes-256-gcm"})
}

// DeleteAPIKey removes the stored key of family.
func (s *Store) DeleteAPIKey(ctx context.Context, family domain.ProviderFamily) error {
	tag, err := s.sql.Exec(ctx, sqlinline.QDeleteIntegrationToken, string(family))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// List returns stored providers in name order.
func (s *Store) List(ctx context.Context) ([]StoredKey, error) {
	rows, err := s.sql.Query(ctx, sqlinline.QListIntegrationProviders)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StoredKey
	for rows.Next() {
		var k StoredKey
		if err := rows.Scan(&k.Provider, &k.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func (s *Store) upsert(ctx context.Context, provider, token string, props map[string]any) error {
	payload := props
	if payload == nil {
		payload = map[string]any{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = s.sql.Exec(ctx, sqlinline.QUpsertIntegrationToken, provider, token, raw)
	return err
}
