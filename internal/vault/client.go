package vault

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"bitget-webhook-bot/config"
	"bitget-webhook-bot/internal/exchange"

	"github.com/hashicorp/vault/api"
	"github.com/rs/zerolog"
)

// ErrDisabled is returned when vault lookups are attempted without vault
var ErrDisabled = errors.New("vault: disabled")

// ErrNotFound is returned when the credential secret does not exist
var ErrNotFound = errors.New("vault: credentials not found")

// Client wraps the HashiCorp Vault client
type Client struct {
	client *api.Client
	config config.VaultConfig
	logger zerolog.Logger

	mu     sync.RWMutex
	cached *exchange.Credentials
}

// NewClient creates a new Vault client
func NewClient(cfg config.VaultConfig, logger zerolog.Logger) (*Client, error) {
	c := &Client{
		config: cfg,
		logger: logger.With().Str("component", "vault").Logger(),
	}
	if !cfg.Enabled {
		return c, nil
	}

	vaultConfig := api.DefaultConfig()
	vaultConfig.Address = cfg.Address

	client, err := api.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault client: %w", err)
	}
	client.SetToken(cfg.Token)
	c.client = client

	return c, nil
}

// IsEnabled returns whether Vault is enabled
func (c *Client) IsEnabled() bool {
	return c.config.Enabled
}

// GetCredentials reads the Bitget key triple, caching the first successful read
func (c *Client) GetCredentials(ctx context.Context) (exchange.Credentials, error) {
	c.mu.RLock()
	if c.cached != nil {
		creds := *c.cached
		c.mu.RUnlock()
		return creds, nil
	}
	c.mu.RUnlock()

	if !c.config.Enabled {
		return exchange.Credentials{}, ErrDisabled
	}

	secret, err := c.client.Logical().ReadWithContext(ctx, c.dataPath())
	if err != nil {
		return exchange.Credentials{}, fmt.Errorf("failed to read credentials from vault: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return exchange.Credentials{}, ErrNotFound
	}

	data, ok := secret.Data["data"].(map[string]interface{})
	if !ok {
		return exchange.Credentials{}, fmt.Errorf("vault: invalid secret format at %s", c.dataPath())
	}

	creds := exchange.Credentials{
		APIKey:     getString(data, "api_key"),
		SecretKey:  getString(data, "secret_key"),
		Passphrase: getString(data, "passphrase"),
	}
	if !creds.Complete() {
		return exchange.Credentials{}, fmt.Errorf("vault: incomplete credentials at %s", c.dataPath())
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()

	c.logger.Info().Str("path", c.dataPath()).Msg("Loaded exchange credentials")
	return creds, nil
}

// StoreCredentials writes the Bitget key triple and refreshes the cache
func (c *Client) StoreCredentials(ctx context.Context, creds exchange.Credentials) error {
	if !c.config.Enabled {
		return ErrDisabled
	}
	if !creds.Complete() {
		return errors.New("vault: api_key, secret_key and passphrase are required")
	}

	secretData := map[string]interface{}{
		"data": map[string]interface{}{
			"api_key":    creds.APIKey,
			"secret_key": creds.SecretKey,
			"passphrase": creds.Passphrase,
		},
	}

	if _, err := c.client.Logical().WriteWithContext(ctx, c.dataPath(), secretData); err != nil {
		return fmt.Errorf("failed to store credentials in vault: %w", err)
	}

	c.mu.Lock()
	c.cached = &creds
	c.mu.Unlock()
	return nil
}

// ClearCache forces the next lookup to hit vault
func (c *Client) ClearCache() {
	c.mu.Lock()
	c.cached = nil
	c.mu.Unlock()
}

// Health checks the Vault connection
func (c *Client) Health(ctx context.Context) error {
	if !c.config.Enabled {
		return nil
	}

	health, err := c.client.Sys().HealthWithContext(ctx)
	if err != nil {
		return fmt.Errorf("vault health check failed: %w", err)
	}
	if health.Sealed {
		return fmt.Errorf("vault is sealed")
	}
	return nil
}

// dataPath returns the KV v2 data path of the credential secret
func (c *Client) dataPath() string {
	return fmt.Sprintf("%s/data/%s", c.config.MountPath, c.config.SecretPath)
}

func getString(data map[string]interface{}, key string) string {
	if val, ok := data[key]; ok {
		if str, ok := val.(string); ok {
			return str
		}
	}
	return ""
}

// ResolveCredentials prefers credentials from vault and falls back to the
// configured ones
func ResolveCredentials(ctx context.Context, c *Client, fallback exchange.Credentials) (exchange.Credentials, error) {
	if c == nil || !c.IsEnabled() {
		return fallback, nil
	}
	creds, err := c.GetCredentials(ctx)
	if err != nil {
		if fallback.Complete() {
			c.logger.Warn().Err(err).Msg("Vault lookup failed, using configured credentials")
			return fallback, nil
		}
		return exchange.Credentials{}, err
	}
	return creds, nil
}
