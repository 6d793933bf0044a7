// Package pg implementa los repositorios de dominio sobre PostgreSQL
// usando pgxpool directamente.
package pg

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/campuskey/campuskey/internal/observability/logger"
)

// Store agrupa el pool y expone los repositorios concretos.
type Store struct{ pool *pgxpool.Pool }

// Config es el tuning opcional del pool.
type Config struct {
	MaxConns        int32
	MinConns        int32
	ConnMaxLifetime time.Duration
}

// New crea el pool y verifica conectividad con un ping no bloqueante:
// si la DB está caída al arrancar solo se loguea, el servicio levanta igual.
func New(ctx context.Context, dsn string, cfg Config) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("pg: parse dsn: %w", err)
	}

	if cfg.MaxConns > 0 {
		pcfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pcfg.MinConns = cfg.MinConns
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, fmt.Errorf("pg: new pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		logger.L().Warn("pg pool startup ping failed", logger.Err(err))
	} else {
		logger.L().Info("pg pool ready", logger.Int("max_conns", int(pcfg.MaxConns)))
	}

	return &Store{pool: pool}, nil
}

// Pool expone el pool subyacente (migraciones, health checks).
func (s *Store) Pool() *pgxpool.Pool { return s.pool }

// Ping verifica conectividad.
func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}

// Users retorna el repositorio de usuarios.
func (s *Store) Users() *UserRepo { return &UserRepo{pool: s.pool} }

// Tokens retorna el repositorio de refresh tokens.
func (s *Store) Tokens() *TokenRepo { return &TokenRepo{pool: s.pool} }

// Assignments retorna el repositorio de asignaciones docentes.
func (s *Store) Assignments() *AssignmentRepo { return &AssignmentRepo{pool: s.pool} }

// nullIfEmpty convierte "" en NULL para columnas opcionales.
func nullIfEmpty(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}
