package resets

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spotseeker/apiserver/config"
)

var (
	ErrInvalidToken = errors.New("invalid or expired reset token")
	ErrThrottled    = errors.New("reset recently requested")
)

const (
	tokenBytes      = 32
	defaultTTL      = 60 * time.Minute
	defaultThrottle = 60 * time.Second
)

// Broker issues single-use password reset tokens.
// Only the SHA-256 of a token is kept in Redis, keyed by email.
type Broker struct {
	rdb      *redis.Client
	ttl      time.Duration
	throttle time.Duration
}

func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
}

func NewBroker(rdb *redis.Client, cfg config.PasswordResetConfig) *Broker {
	b := &Broker{rdb: rdb, ttl: cfg.TTL, throttle: cfg.Throttle}
	if b.ttl <= 0 {
		b.ttl = defaultTTL
	}
	if b.throttle <= 0 {
		b.throttle = defaultThrottle
	}
	return b
}

// Create stores a fresh token for email and returns it in plain form.
// A second request inside the throttle window fails with ErrThrottled.
func (b *Broker) Create(ctx context.Context, email string) (string, time.Time, error) {
	ok, err := b.rdb.SetNX(ctx, throttleKey(email), 1, b.throttle).Result()
	if err != nil {
		return "", time.Time{}, fmt.Errorf("set throttle: %w", err)
	}
	if !ok {
		return "", time.Time{}, ErrThrottled
	}

	plain, err := randomToken()
	if err != nil {
		return "", time.Time{}, err
	}

	expiresAt := time.Now().Add(b.ttl)
	if err := b.rdb.Set(ctx, tokenKey(email), hashToken(plain), b.ttl).Err(); err != nil {
		return "", time.Time{}, fmt.Errorf("store reset token: %w", err)
	}
	return plain, expiresAt, nil
}

// Consume redeems token for email. The stored hash is deleted only on a match,
// inside a WATCH transaction so a token is redeemed at most once.
func (b *Broker) Consume(ctx context.Context, email, token string) error {
	key := tokenKey(email)
	err := b.rdb.Watch(ctx, func(tx *redis.Tx) error {
		stored, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return ErrInvalidToken
		}
		if err != nil {
			return fmt.Errorf("load reset token: %w", err)
		}
		if subtle.ConstantTimeCompare([]byte(stored), []byte(hashToken(token))) != 1 {
			return ErrInvalidToken
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return ErrInvalidToken
	}
	return err
}

func (b *Broker) Close() error {
	return b.rdb.Close()
}

func tokenKey(email string) string {
	return "password_resets:" + email
}

func throttleKey(email string) string {
	return "password_resets:throttle:" + email
}

func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func randomToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate reset token: %w", err)
	}
	return hex.EncodeToString(b), nil
}
