package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/onurcolak/bulk-dispatch-service/environments"
	"github.com/onurcolak/bulk-dispatch-service/internal/domain"
	"github.com/onurcolak/bulk-dispatch-service/pkg/logger"
)

const contactsKey = "directory:contacts"

// Client caches the transformed directory contact list in Valkey.
type Client struct {
	client valkey.Client
}

func NewRedisClient(cfg environments.RedisConfig) (*Client, error) {
	client, err := valkey.NewClient(valkey.ClientOption{
		InitAddress: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Valkey client: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.Infof("Connected to Redis (via Valkey client)")

	return &Client{client: client}, nil
}

func (c *Client) CacheContacts(ctx context.Context, contacts []domain.Contact, ttl time.Duration) error {
	data, err := json.Marshal(contacts)
	if err != nil {
		return fmt.Errorf("failed to marshal contacts: %w", err)
	}

	err = c.client.Do(ctx, c.client.B().Set().Key(contactsKey).Value(string(data)).Ex(ttl).Build()).Error()
	if err != nil {
		return fmt.Errorf("failed to cache contacts: %w", err)
	}

	logger.Debugf("Cached %d directory contacts for %v", len(contacts), ttl)

	return nil
}

// GetCachedContacts returns nil, nil on a cache miss.
func (c *Client) GetCachedContacts(ctx context.Context) ([]domain.Contact, error) {
	result := c.client.Do(ctx, c.client.B().Get().Key(contactsKey).Build())
	if result.Error() != nil {
		if valkey.IsValkeyNil(result.Error()) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get cached contacts: %w", result.Error())
	}

	data, err := result.ToString()
	if err != nil {
		return nil, fmt.Errorf("failed to read cached contacts: %w", err)
	}

	var contacts []domain.Contact
	if err := json.Unmarshal([]byte(data), &contacts); err != nil {
		return nil, fmt.Errorf("failed to unmarshal cached contacts: %w", err)
	}

	return contacts, nil
}

func (c *Client) InvalidateContacts(ctx context.Context) error {
	if err := c.client.Do(ctx, c.client.B().Del().Key(contactsKey).Build()).Error(); err != nil {
		return fmt.Errorf("failed to invalidate contacts cache: %w", err)
	}
	return nil
}

func (c *Client) Close() error {
	c.client.Close()
	return nil
}

func (c *Client) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}
