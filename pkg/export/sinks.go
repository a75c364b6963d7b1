package export

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/flightaware/mapcraft-exporter/pkg/logger"
	"github.com/flightaware/mapcraft-exporter/pkg/tileutils"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
)

const (
	maxFileNameAttempts = 100
	pgConnectRetries    = 5
)

// FileSink writes each document to Dir/<unix-seconds>.json, or .json.gz when
// Compress is set. Existing files are never overwritten; a numeric suffix is
// added instead.
type FileSink struct {
	Dir      string
	Compress bool
	// Now defaults to time.Now
	Now func() time.Time
}

func (s *FileSink) Save(ctx context.Context, doc []byte) (string, error) {
	if s.Compress {
		var err error
		if doc, err = tileutils.Gzip(doc); err != nil {
			return "", fmt.Errorf("compressing export: %w", err)
		}
	}
	if err := os.MkdirAll(s.Dir, 0755); err != nil {
		return "", fmt.Errorf("error making directory for output (%s): %w", s.Dir, err)
	}
	now := time.Now
	if s.Now != nil {
		now = s.Now
	}
	ext := ".json"
	if s.Compress {
		ext = ".json.gz"
	}
	stamp := strconv.FormatInt(now().Unix(), 10)
	for i := 0; i < maxFileNameAttempts; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		name := stamp + ext
		if i > 0 {
			name = fmt.Sprintf("%s-%d%s", stamp, i, ext)
		}
		path := filepath.Join(s.Dir, name)
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
		if errors.Is(err, os.ErrExist) {
			continue
		}
		if err != nil {
			return "", err
		}
		if _, err := f.Write(doc); err != nil {
			f.Close()
			os.Remove(path)
			return "", err
		}
		if err := f.Close(); err != nil {
			return "", err
		}
		return path, nil
	}
	return "", fmt.Errorf("no free file name for %s%s in %s", stamp, ext, s.Dir)
}

// pgConn is the part of a pgx pool the Postgres sink uses
type pgConn interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresSink stores documents as rows of a jsonb table
type PostgresSink struct {
	DB    pgConn
	Table string
}

// NewPostgresSink opens a pool for dsn, retrying the first connection
func NewPostgresSink(ctx context.Context, dsn, table string) (*PostgresSink, func(), error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("parsing postgres dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, nil, fmt.Errorf("creating postgres pool: %w", err)
	}
	if err := pingWithRetries(ctx, pool, pgConnectRetries); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("pinging postgres: %w", err)
	}
	return &PostgresSink{DB: pool, Table: table}, pool.Close, nil
}

func pingWithRetries(ctx context.Context, pool *pgxpool.Pool, numRetries int) error {
	var lastErr error
	for i := 0; i < numRetries; i++ {
		err := pool.Ping(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		logger.L().Warn("postgres_ping_retry", "attempt", i+1, "err", err)
		time.Sleep(time.Duration(100) * time.Millisecond)
	}
	return lastErr
}

func (s *PostgresSink) table() string {
	if s.Table == "" {
		return "exports"
	}
	return s.Table
}

// EnsureSchema creates the export table when missing
func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	sql := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	id BIGSERIAL PRIMARY KEY,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	document JSONB NOT NULL
)`, pgx.Identifier{s.table()}.Sanitize())
	if _, err := s.DB.Exec(ctx, sql); err != nil {
		return fmt.Errorf("creating export table: %w", err)
	}
	return nil
}

func (s *PostgresSink) Save(ctx context.Context, doc []byte) (string, error) {
	sql := fmt.Sprintf("INSERT INTO %s (document) VALUES ($1::jsonb) RETURNING id", pgx.Identifier{s.table()}.Sanitize())
	var id int64
	if err := s.DB.QueryRow(ctx, sql, string(doc)).Scan(&id); err != nil {
		return "", fmt.Errorf("inserting export: %w", err)
	}
	return fmt.Sprintf("%s/%d", s.table(), id), nil
}

// redisSetter is the part of a go-redis client the Redis sink uses
type redisSetter interface {
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisSink stores each document under Prefix plus a random UUID
type RedisSink struct {
	Client redisSetter
	Prefix string
	// TTL of zero keeps documents forever
	TTL time.Duration
}

// OpenRedis returns a client for addr, or nil when addr is empty
func OpenRedis(addr, pass string, db int) *redis.Client {
	if addr == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{Addr: addr, Password: pass, DB: db})
}

func (s *RedisSink) Save(ctx context.Context, doc []byte) (string, error) {
	key := s.Prefix + uuid.NewString()
	if err := s.Client.Set(ctx, key, doc, s.TTL).Err(); err != nil {
		return "", fmt.Errorf("storing export in redis: %w", err)
	}
	return key, nil
}
