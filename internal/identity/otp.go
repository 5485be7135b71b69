package identity

import (
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Sender delivers verification codes out of band (SMS in production).
type Sender interface {
	SendOTP(ctx context.Context, phone, code string) error
}

// LoggerSender is a stub sender that writes codes to the logger. Useful in
// development where no SMS gateway is wired.
type LoggerSender struct {
	logger *slog.Logger
}

// NewLoggerSender constructs the logging sender stub.
func NewLoggerSender(logger *slog.Logger) *LoggerSender {
	return &LoggerSender{logger: logger}
}

// SendOTP logs the code instead of dispatching it.
func (s *LoggerSender) SendOTP(_ context.Context, phone, code string) error {
	s.logger.Info("otp issued", "phone", phone, "code", code)
	return nil
}

// CodeStore holds hashed verification codes with expiry.
type CodeStore interface {
	Save(ctx context.Context, userID int64, hash []byte, ttl time.Duration) error
	Get(ctx context.Context, userID int64) ([]byte, error)
	Delete(ctx context.Context, userID int64) error
}

const otpKeyPrefix = "otp:code:"

// RedisCodeStore keeps code hashes in Redis so expiry is enforced by TTL.
type RedisCodeStore struct {
	client *redis.Client
}

// NewRedisCodeStore builds a Redis-backed code store.
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

// Save stores the hash under the user key with the given TTL.
func (s *RedisCodeStore) Save(ctx context.Context, userID int64, hash []byte, ttl time.Duration) error {
	if err := s.client.Set(ctx, otpKey(userID), hash, ttl).Err(); err != nil {
		return fmt.Errorf("save otp: %w", err)
	}
	return nil
}

// Get returns the stored hash, or ErrOTPExpired when none is pending.
func (s *RedisCodeStore) Get(ctx context.Context, userID int64) ([]byte, error) {
	val, err := s.client.Get(ctx, otpKey(userID)).Bytes()
	if err == redis.Nil {
		return nil, ErrOTPExpired
	}
	if err != nil {
		return nil, fmt.Errorf("load otp: %w", err)
	}
	return val, nil
}

// Delete removes the pending code.
func (s *RedisCodeStore) Delete(ctx context.Context, userID int64) error {
	if err := s.client.Del(ctx, otpKey(userID)).Err(); err != nil {
		return fmt.Errorf("delete otp: %w", err)
	}
	return nil
}

func otpKey(userID int64) string {
	return fmt.Sprintf("%s%d", otpKeyPrefix, userID)
}

type storedCode struct {
	hash    []byte
	expires time.Time
}

type memoryCodeStore struct {
	mu    sync.Mutex
	codes map[int64]storedCode
}

// NewMemoryCodeStore builds an in-memory code store for dev and tests.
func NewMemoryCodeStore() CodeStore {
	return &memoryCodeStore{codes: make(map[int64]storedCode)}
}

func (s *memoryCodeStore) Save(_ context.Context, userID int64, hash []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[userID] = storedCode{hash: hash, expires: time.Now().Add(ttl)}
	return nil
}

func (s *memoryCodeStore) Get(_ context.Context, userID int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.codes[userID]
	if !ok || time.Now().After(c.expires) {
		delete(s.codes, userID)
		return nil, ErrOTPExpired
	}
	return c.hash, nil
}

func (s *memoryCodeStore) Delete(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.codes, userID)
	return nil
}

// generateCode produces a 6-digit numeric code.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}
	return fmt.Sprintf("%06d", n.Int64()), nil
}
