package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/carddemo/auth-gateway/internal/api/metrics"
	"github.com/carddemo/auth-gateway/internal/core/domain"
	"github.com/carddemo/auth-gateway/internal/core/ports"
)

const (
	defaultStoreTimeout = 250 * time.Millisecond
	defaultMaxRetries   = 5
)

// SessionStoreConfig tunes the Redis session store.
type SessionStoreConfig struct {
	// Timeout bounds every operation; expiry surfaces as ErrStoreUnavailable.
	Timeout time.Duration
	// MaxRecordBytes caps the encoded record size.
	MaxRecordBytes int
	// MaxRetries bounds optimistic retries of Update under contention.
	MaxRetries int
}

// SessionStore keeps session records in Redis.
// Key format: session:<session_id>
type SessionStore struct {
	client *redis.Client
	cfg    SessionStoreConfig
	clock  clockwork.Clock
	log    zerolog.Logger
}

var _ ports.SessionStore = (*SessionStore)(nil)

// NewSessionStore creates a SessionStore wrapping the given Redis client.
func NewSessionStore(client *redis.Client, cfg SessionStoreConfig, clock clockwork.Clock, log zerolog.Logger) *SessionStore {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultStoreTimeout
	}
	if cfg.MaxRecordBytes <= 0 {
		cfg.MaxRecordBytes = domain.MaxRecordBytes
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &SessionStore{client: client, cfg: cfg, clock: clock, log: log}
}

// Create writes rec under its session id. It never overwrites.
func (s *SessionStore) Create(ctx context.Context, rec *domain.SessionRecord, ttl time.Duration) (err error) {
	defer s.observe("create", time.Now(), &err)

	data, err := s.encode(rec)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ok, err := s.client.SetNX(ctx, s.key(rec.SessionID), data, ttl).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return fmt.Errorf("create session %s: %w", rec.SessionID, domain.ErrSessionExists)
	}
	return nil
}

// Read returns the record with ExpiresAt taken from the key's remaining TTL.
func (s *SessionStore) Read(ctx context.Context, sessionID string) (rec *domain.SessionRecord, err error) {
	defer s.observe("read", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	k := s.key(sessionID)
	var (
		get  *redis.StringCmd
		pttl *redis.DurationCmd
	)
	_, err = s.client.Pipelined(ctx, func(p redis.Pipeliner) error {
		get = p.Get(ctx, k)
		pttl = p.PTTL(ctx, k)
		return nil
	})
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, unavailable(err)
	}

	data, err := get.Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, unavailable(err)
	}

	rec, err = unmarshalRecord(data)
	if err != nil {
		return nil, err
	}
	if d := pttl.Val(); d > 0 {
		rec.ExpiresAt = s.clock.Now().UTC().Add(d)
	}
	return rec, nil
}

// Update applies mutate under WATCH and writes the result back keeping the
// key's TTL. A write raced by another client is retried; exhausting the
// retries yields domain.ErrStoreConflict.
func (s *SessionStore) Update(ctx context.Context, sessionID string, mutate ports.SessionMutator) (out *domain.SessionRecord, err error) {
	defer s.observe("update", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	k := s.key(sessionID)
	// failure holds errors that belong to the caller, not to the transport.
	var failure error
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, k).Bytes()
		if errors.Is(err, redis.Nil) {
			failure = domain.ErrSessionNotFound
			return failure
		}
		if err != nil {
			return err
		}

		rec, err := unmarshalRecord(data)
		if err != nil {
			failure = err
			return failure
		}
		if err := mutate(rec); err != nil {
			failure = err
			return failure
		}
		rec.SessionID = sessionID

		enc, err := s.encode(rec)
		if err != nil {
			failure = err
			return failure
		}

		_, err = tx.TxPipelined(ctx, func(p redis.Pipeliner) error {
			p.SetArgs(ctx, k, enc, redis.SetArgs{Mode: "XX", KeepTTL: true})
			return nil
		})
		if errors.Is(err, redis.Nil) {
			failure = domain.ErrSessionNotFound
			return failure
		}
		if err == nil {
			out = rec
		}
		return err
	}

	for attempt := 0; attempt < s.cfg.MaxRetries; attempt++ {
		failure = nil
		err = s.client.Watch(ctx, txf, k)
		switch {
		case err == nil:
			return out, nil
		case failure != nil:
			return nil, failure
		case errors.Is(err, redis.TxFailedErr):
			s.log.Debug().Str("sid", sessionID).Int("attempt", attempt+1).Msg("session update raced, retrying")
			continue
		default:
			return nil, unavailable(err)
		}
	}
	return nil, fmt.Errorf("update session %s: %w", sessionID, domain.ErrStoreConflict)
}

// RefreshTTL resets the key's expiry to ttl without touching its content.
func (s *SessionStore) RefreshTTL(ctx context.Context, sessionID string, ttl time.Duration) (err error) {
	defer s.observe("refresh_ttl", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	ok, err := s.client.Expire(ctx, s.key(sessionID), ttl).Result()
	if err != nil {
		return unavailable(err)
	}
	if !ok {
		return domain.ErrSessionNotFound
	}
	return nil
}

// Delete removes the record. Absent keys are not an error.
func (s *SessionStore) Delete(ctx context.Context, sessionID string) (err error) {
	defer s.observe("delete", time.Now(), &err)

	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	if err := s.client.Del(ctx, s.key(sessionID)).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

func (s *SessionStore) encode(rec *domain.SessionRecord) ([]byte, error) {
	data, err := marshalRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("encode session record: %w", err)
	}
	if len(data) > s.cfg.MaxRecordBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds %d", domain.ErrSessionTooLarge, len(data), s.cfg.MaxRecordBytes)
	}
	return data, nil
}

func (s *SessionStore) observe(op string, start time.Time, errp *error) {
	metrics.SessionStoreDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
	if err := *errp; err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		metrics.SessionStoreErrorsTotal.WithLabelValues(op, domain.ErrorCode(err)).Inc()
		if errors.Is(err, domain.ErrStoreUnavailable) {
			s.log.Warn().Err(err).Str("op", op).Msg("session store unavailable")
		}
	}
}

func (s *SessionStore) key(sessionID string) string {
	return "session:" + sessionID
}
