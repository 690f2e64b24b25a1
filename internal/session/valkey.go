package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/teemow/inboxglance/internal/secrets"
)

// DefaultKeyPrefix namespaces session keys in a shared Valkey.
const DefaultKeyPrefix = "inboxglance:session:"

// ValkeyConfig configures the Valkey session backend.
type ValkeyConfig struct {
	// URL is the server address, e.g. "valkey.namespace.svc:6379".
	URL        string
	Password   string
	TLSEnabled bool
	KeyPrefix  string
	DB         int
	// TTL is the sliding inactivity window. Zero means DefaultTTL.
	TTL time.Duration
}

// ValkeyBackend stores sealed session payloads in Valkey with a TTL that is
// renewed on every Load.
type ValkeyBackend struct {
	client valkey.Client
	box    *secrets.Box
	prefix string
	ttl    time.Duration
}

// NewValkeyBackend connects to Valkey. box may be nil to store payloads
// unencrypted.
func NewValkeyBackend(cfg ValkeyConfig, box *secrets.Box) (*ValkeyBackend, error) {
	if cfg.URL == "" {
		return nil, errors.New("valkey URL is required")
	}

	opts := valkey.ClientOption{
		InitAddress: []string{cfg.URL},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey: %w", err)
	}

	return newValkeyBackend(client, cfg, box), nil
}

func newValkeyBackend(client valkey.Client, cfg ValkeyConfig, box *secrets.Box) *ValkeyBackend {
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &ValkeyBackend{client: client, box: box, prefix: prefix, ttl: ttl}
}

func (b *ValkeyBackend) key(id string) string {
	return b.prefix + id
}

func (b *ValkeyBackend) ttlSeconds() int64 {
	return int64(b.ttl / time.Second)
}

func (b *ValkeyBackend) Load(ctx context.Context, id string) (*User, error) {
	key := b.key(id)

	payload, err := b.client.Do(ctx, b.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load session: %w", err)
	}

	if err := b.client.Do(ctx, b.client.B().Expire().Key(key).Seconds(b.ttlSeconds()).Build()).Error(); err != nil {
		return nil, fmt.Errorf("failed to extend session: %w", err)
	}

	return decodeUser(b.box, payload)
}

func (b *ValkeyBackend) Save(ctx context.Context, id string, u User) error {
	payload, err := encodeUser(b.box, u)
	if err != nil {
		return err
	}

	cmd := b.client.B().Set().Key(b.key(id)).Value(payload).ExSeconds(b.ttlSeconds()).Build()
	if err := b.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}

func (b *ValkeyBackend) Delete(ctx context.Context, id string) error {
	if err := b.client.Do(ctx, b.client.B().Del().Key(b.key(id)).Build()).Error(); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (b *ValkeyBackend) Ping(ctx context.Context) error {
	return b.client.Do(ctx, b.client.B().Ping().Build()).Error()
}

func (b *ValkeyBackend) Close() error {
	b.client.Close()
	return nil
}

var _ Backend = (*ValkeyBackend)(nil)
