package mfa

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// maxTxRetries limita los reintentos cuando el WATCH detecta una escritura
// concurrente sobre la misma clave.
const maxTxRetries = 5

// RedisStore es el backend Redis para producción (varias réplicas del
// servicio compartiendo las sesiones).
//
// Las mutaciones usan WATCH + MULTI/EXEC: si otra réplica escribe la clave
// entre la lectura y el EXEC, la transacción falla y se reintenta sobre el
// estado nuevo. Así una sesión ya aprobada nunca se pisa con EXPIRED.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore crea un store sobre un cliente Redis existente.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

func (r *RedisStore) Save(ctx context.Context, s *Session) error {
	b, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("mfa: marshal session: %w", err)
	}
	key := sessionKey(s.Purpose, s.ID)
	ttl := backendTTL(s, time.Now().UTC())
	if err := r.rdb.Set(ctx, key, b, ttl).Err(); err != nil {
		return fmt.Errorf("mfa: save session: %w", err)
	}
	return nil
}

func (r *RedisStore) Get(ctx context.Context, purpose Purpose, id string) (*Session, error) {
	var out *Session
	err := r.update(ctx, purpose, id, func(s *Session, now time.Time) bool {
		return applyLazyExpiry(s, now)
	}, &out)
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *RedisStore) Transition(ctx context.Context, purpose Purpose, id string, to Status) (*Session, bool, error) {
	var out *Session
	var won bool
	err := r.update(ctx, purpose, id, func(s *Session, now time.Time) bool {
		won = applyTransition(s, to, now)
		return true
	}, &out)
	if err != nil {
		return nil, false, err
	}
	return out, won, nil
}

func (r *RedisStore) RecordFailure(ctx context.Context, purpose Purpose, id string, max int) (*Session, bool, error) {
	var out *Session
	var locked bool
	err := r.update(ctx, purpose, id, func(s *Session, now time.Time) bool {
		locked = applyFailure(s, max, now)
		return true
	}, &out)
	if err != nil {
		return nil, false, err
	}
	return out, locked, nil
}

func (r *RedisStore) Consume(ctx context.Context, purpose Purpose, id string) (bool, error) {
	// DEL es atómico: retorna cuántas claves borró, así que solo el primer
	// caller ve 1.
	n, err := r.rdb.Del(ctx, sessionKey(purpose, id)).Result()
	if err != nil {
		return false, fmt.Errorf("mfa: consume session: %w", err)
	}
	return n > 0, nil
}

func (r *RedisStore) Ping(ctx context.Context) error {
	return r.rdb.Ping(ctx).Err()
}

func (r *RedisStore) Close() error {
	return r.rdb.Close()
}

// update corre un ciclo leer-mutar-escribir bajo WATCH. fn retorna true si
// la sesión debe persistirse. Reintenta ante TxFailedErr.
func (r *RedisStore) update(ctx context.Context, purpose Purpose, id string, fn func(*Session, time.Time) bool, out **Session) error {
	key := sessionKey(purpose, id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("mfa: read session: %w", err)
		}

		var s Session
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("mfa: unmarshal session: %w", err)
		}

		now := time.Now().UTC()
		dirty := fn(&s, now)
		*out = &s

		if !dirty {
			return nil
		}

		b, err := json.Marshal(&s)
		if err != nil {
			return fmt.Errorf("mfa: marshal session: %w", err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, b, backendTTL(&s, now))
			return nil
		})
		return err
	}

	for i := 0; i < maxTxRetries; i++ {
		err := r.rdb.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return err
	}
	return fmt.Errorf("mfa: update session: too many conflicts on %s", key)
}
