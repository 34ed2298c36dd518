package circuitbreaker

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrKeyNotFound is returned by Get when the key is absent. Callers treat it
// the same as an expired entry.
var ErrKeyNotFound = errors.New("key not found")

// PeerClient is the durable key-value operation set the memory store uses.
// The Redis implementation below is the only production one; tests swap in
// miniredis through the same client type.
type PeerClient interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	ScanPrefix(ctx context.Context, prefix string) ([]string, error)
	Ping(ctx context.Context) error
	Healthy() bool
	Close() error
}

// PeerWrapper wraps a Redis client with a circuit breaker so a flapping peer
// degrades the memory store to cache-only instead of stacking timeouts.
type PeerWrapper struct {
	client *redis.Client
	cb     *CircuitBreaker
	logger *zap.Logger
}

// NewPeerWrapper builds a breaker-guarded peer from an established client.
func NewPeerWrapper(client *redis.Client, logger *zap.Logger) *PeerWrapper {
	return &PeerWrapper{
		client: client,
		cb:     New("memory-peer", DefaultConfig(), logger),
		logger: logger,
	}
}

// DialPeer connects to the durable peer and verifies the connection.
func DialPeer(url, password string, timeout time.Duration, logger *zap.Logger) (*PeerWrapper, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         url,
		Password:     password,
		DB:           0,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})

	wrapper := NewPeerWrapper(client, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := wrapper.Ping(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return wrapper, nil
}

func (pw *PeerWrapper) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := pw.cb.Execute(ctx, func() error {
		b, err := pw.client.Get(ctx, key).Bytes()
		if err == redis.Nil {
			data = nil
			return nil
		}
		if err != nil {
			return err
		}
		data = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, ErrKeyNotFound
	}
	return data, nil
}

func (pw *PeerWrapper) Set(ctx context.Context, key string, value []byte) error {
	return pw.cb.Execute(ctx, func() error {
		return pw.client.Set(ctx, key, value, 0).Err()
	})
}

func (pw *PeerWrapper) SetEx(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return pw.cb.Execute(ctx, func() error {
		return pw.client.Set(ctx, key, value, ttl).Err()
	})
}

func (pw *PeerWrapper) Del(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	return pw.cb.Execute(ctx, func() error {
		return pw.client.Del(ctx, keys...).Err()
	})
}

// ScanPrefix returns all keys beginning with prefix using cursor iteration,
// never KEYS, so large peers are not blocked.
func (pw *PeerWrapper) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var keys []string
	err := pw.cb.Execute(ctx, func() error {
		iter := pw.client.Scan(ctx, 0, prefix+"*", 100).Iterator()
		for iter.Next(ctx) {
			keys = append(keys, iter.Val())
		}
		return iter.Err()
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func (pw *PeerWrapper) Ping(ctx context.Context) error {
	return pw.cb.Execute(ctx, func() error {
		return pw.client.Ping(ctx).Err()
	})
}

// Healthy reports whether the breaker currently admits requests.
func (pw *PeerWrapper) Healthy() bool {
	return pw.cb.State() != StateOpen
}

func (pw *PeerWrapper) Close() error {
	return pw.client.Close()
}
