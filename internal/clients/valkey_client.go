package clients

import (
	"context"
	"crypto/tls"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spacesedan/tweetpulse/config"
	"github.com/valkey-io/valkey-go"
)

const (
	VALKEY_RETRIES        = 3
	VALKEY_RETRY_INTERVAL = 250 * time.Millisecond
)

type ValkeyClient struct {
	Client valkey.Client
	opts   valkey.ClientOption
	mu     sync.RWMutex
}

func valkeyOptions(cfg config.SessionConfig) valkey.ClientOption {
	opts := valkey.ClientOption{
		InitAddress: []string{
			cfg.ValkeyAddress,
		},
		Password:         cfg.ValkeyPassword,
		ConnWriteTimeout: 5 * time.Second,
		SelectDB:         0,
	}

	if cfg.ValkeyTLS {
		opts.TLSConfig = &tls.Config{InsecureSkipVerify: false}
	}
	return opts
}

func NewValkeyClient(ctx context.Context, cfg config.SessionConfig) (*ValkeyClient, error) {
	opts := valkeyOptions(cfg)
	client, err := connectValkey(ctx, opts)
	if err != nil {
		return nil, err
	}

	slog.Info("[ValkeyClient] Successfully connected to valkey",
		slog.String("address", cfg.ValkeyAddress))
	return &ValkeyClient{Client: client, opts: opts}, nil
}

func connectValkey(ctx context.Context, opts valkey.ClientOption) (valkey.Client, error) {
	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("[ValkeyClient] failed to create Valkey: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*3)
	defer cancel()

	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("[ValkeyClient] failed to ping Valkey: %w", err)
	}
	return client, nil
}

func (vc *ValkeyClient) client() valkey.Client {
	vc.mu.RLock()
	defer vc.mu.RUnlock()
	return vc.Client
}

func (vc *ValkeyClient) recreateClient(ctx context.Context) {
	vc.mu.Lock()
	defer vc.mu.Unlock()

	slog.Warn("[ValkeyClient] Attempting to recreate Valkey client...")
	client, err := connectValkey(ctx, vc.opts)
	if err != nil {
		slog.Error("[ValkeyClient] Recreate failed",
			slog.String("error", err.Error()))
		return
	}

	vc.Client.Close()
	vc.Client = client
	slog.Info("[ValkeyClient] Successfully reconnected to valkey")
}

func (vc *ValkeyClient) Close() {
	vc.client().Close()
}

// Get returns the string at key. found is false when the key does not exist.
func (vc *ValkeyClient) Get(ctx context.Context, key string) (value string, found bool, err error) {
	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Get().Key(key).Build()
	}, VALKEY_RETRIES)

	value, err = res.ToString()
	if valkey.IsValkeyNil(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("[ValkeyClient] get %s: %w", key, err)
	}
	return value, true, nil
}

// SetWithTTL stores value under key, expiring after ttl.
func (vc *ValkeyClient) SetWithTTL(ctx context.Context, key, value string, ttl time.Duration) error {
	seconds := int64(ttl / time.Second)
	if seconds < 1 {
		seconds = 1
	}
	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Set().Key(key).Value(value).ExSeconds(seconds).Build()
	}, VALKEY_RETRIES)
	if err := res.Error(); err != nil {
		return fmt.Errorf("[ValkeyClient] set %s: %w", key, err)
	}
	return nil
}

func (vc *ValkeyClient) Delete(ctx context.Context, key string) error {
	res := vc.DoWithRetry(ctx, func(c valkey.Client) valkey.Completed {
		return c.B().Del().Key(key).Build()
	}, VALKEY_RETRIES)
	if err := res.Error(); err != nil {
		return fmt.Errorf("[ValkeyClient] del %s: %w", key, err)
	}
	return nil
}

// DoWithRetry builds the command against the current client on every attempt
// so a recreated connection is picked up.
func (vc *ValkeyClient) DoWithRetry(ctx context.Context, build func(valkey.Client) valkey.Completed, retries int) valkey.ValkeyResult {
	var result valkey.ValkeyResult
	retry(ctx, retries, VALKEY_RETRY_INTERVAL, func(attempt int) error {
		c := vc.client()
		result = c.Do(ctx, build(c))
		err := result.Error()
		if err == nil || valkey.IsValkeyNil(err) {
			return nil
		}

		slog.Warn("[ValkeyClient] Do failed",
			slog.Int("attempt", attempt),
			slog.String("error", err.Error()))

		if isConnectionError(err) {
			vc.recreateClient(ctx)
		}
		return err
	})
	return result
}

// retry calls fn up to attempts times and waits interval between failed
// attempts. It does not wait after the last one.
func retry(ctx context.Context, attempts int, interval time.Duration, fn func(attempt int) error) {
	for i := 1; i <= attempts; i++ {
		if fn(i) == nil || i == attempts {
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "connection refused") ||
		strings.Contains(msg, "EOF") ||
		strings.Contains(msg, "i/o timeout")
}
