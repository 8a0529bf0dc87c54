package kv

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/valkey-io/valkey-go"
)

// ValkeyConfig configures the Valkey backend.
type ValkeyConfig struct {
	// Address is host:port of the Valkey (or Redis) server.
	Address string
	// Password is optional.
	Password string
	// DB selects the logical database.
	DB int
	// TLSEnabled turns on TLS with a TLS 1.2 minimum.
	TLSEnabled bool
	// Timeout bounds each command. Defaults to DefaultTimeout.
	Timeout time.Duration
}

// Valkey is a Store backed by a Valkey server through valkey-go.
type Valkey struct {
	client  valkey.Client
	timeout time.Duration
}

var (
	_ Store   = (*Valkey)(nil)
	_ Counter = (*Valkey)(nil)
	_ Locker  = (*Valkey)(nil)
	_ Taker   = (*Valkey)(nil)
	_ Closer  = (*Valkey)(nil)
)

// NewValkey connects to a Valkey server.
func NewValkey(cfg ValkeyConfig) (*Valkey, error) {
	if cfg.Address == "" {
		return nil, errors.New("valkey address is required")
	}

	opts := valkey.ClientOption{
		InitAddress: []string{cfg.Address},
		Password:    cfg.Password,
		SelectDB:    cfg.DB,
		// Only Do is used; client-side caching needs RESP3 tracking.
		DisableCache: true,
	}
	if cfg.TLSEnabled {
		opts.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
		}
	}

	client, err := valkey.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to valkey at %s: %v", ErrUnavailable, cfg.Address, err)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Valkey{client: client, timeout: timeout}, nil
}

// Close releases the connection pool.
func (v *Valkey) Close() error {
	v.client.Close()
	return nil
}

func (v *Valkey) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, v.timeout)
}

// wrapErr maps network failures and timeouts to ErrUnavailable.
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %s: %v", ErrUnavailable, op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}

// Get implements Store.
func (v *Valkey) Get(ctx context.Context, key string) (string, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	s, err := v.client.Do(ctx, v.client.B().Get().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapErr("GET", err)
	}
	return s, nil
}

// Set implements Store.
func (v *Valkey) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	set := v.client.B().Set().Key(key).Value(value)
	var err error
	if ttl > 0 {
		err = v.client.Do(ctx, set.PxMilliseconds(ttl.Milliseconds()).Build()).Error()
	} else {
		err = v.client.Do(ctx, set.Build()).Error()
	}
	return wrapErr("SET", err)
}

// Delete implements Store.
func (v *Valkey) Delete(ctx context.Context, key string) error {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	return wrapErr("DEL", v.client.Do(ctx, v.client.B().Del().Key(key).Build()).Error())
}

// Incr implements Counter.
func (v *Valkey) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	if ttl > 0 {
		if _, err := v.SetNX(ctx, key, "0", ttl); err != nil {
			return 0, err
		}
	}

	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	n, err := v.client.Do(ctx, v.client.B().Incr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, wrapErr("INCR", err)
	}
	return n, nil
}

// Decr implements Counter.
func (v *Valkey) Decr(ctx context.Context, key string) (int64, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	n, err := v.client.Do(ctx, v.client.B().Decr().Key(key).Build()).AsInt64()
	if err != nil {
		return 0, wrapErr("DECR", err)
	}
	return n, nil
}

// SetNX implements Locker.
func (v *Valkey) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	nx := v.client.B().Set().Key(key).Value(value).Nx()
	var err error
	if ttl > 0 {
		err = v.client.Do(ctx, nx.PxMilliseconds(ttl.Milliseconds()).Build()).Error()
	} else {
		err = v.client.Do(ctx, nx.Build()).Error()
	}
	if valkey.IsValkeyNil(err) {
		return false, nil
	}
	if err != nil {
		return false, wrapErr("SET NX", err)
	}
	return true, nil
}

// GetDel implements Taker.
func (v *Valkey) GetDel(ctx context.Context, key string) (string, error) {
	ctx, cancel := v.withTimeout(ctx)
	defer cancel()

	s, err := v.client.Do(ctx, v.client.B().Getdel().Key(key).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", wrapErr("GETDEL", err)
	}
	return s, nil
}
