package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// SQLSecretProvider resolves secrets from a table of
// (endpoint, secret) rows, queried through database/sql against a
// MySQL-compatible backend. A small TTL cache avoids a round trip per
// packet on a busy server.
type SQLSecretProvider struct {
	db        *sql.DB
	tableName string
	ttl       time.Duration

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	secret  []byte
	expires time.Time
}

// NewSQLSecretProvider opens a connection pool to dsn (a
// go-sql-driver/mysql data source name) and returns a provider that
// queries tableName, expected to have columns "endpoint" and
// "secret".
func NewSQLSecretProvider(dsn string, tableName string, ttl time.Duration, maxOpenConns int) (*SQLSecretProvider, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening secret store database: %w", err)
	}
	db.SetMaxOpenConns(maxOpenConns)
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("connecting to secret store database: %w", err)
	}

	return &SQLSecretProvider{
		db:        db,
		tableName: tableName,
		ttl:       ttl,
		cache:     make(map[string]cachedSecret),
	}, nil
}

// SecretFor implements radclient.SecretProvider / radserver.SecretProvider.
func (s *SQLSecretProvider) SecretFor(endpoint string) ([]byte, error) {
	if secret, ok := s.cached(endpoint); ok {
		return secret, nil
	}

	stmt, err := s.db.Prepare(fmt.Sprintf("select secret from %s where endpoint = ? limit 1", s.tableName))
	if err != nil {
		return nil, fmt.Errorf("preparing secret query: %w", err)
	}
	defer stmt.Close()

	var secret string
	if err := stmt.QueryRow(endpoint).Scan(&secret); err != nil {
		if err == sql.ErrNoRows {
			return nil, &ErrNoSecret{Endpoint: endpoint}
		}
		return nil, fmt.Errorf("querying secret for %s: %w", endpoint, err)
	}

	s.store(endpoint, []byte(secret))
	return []byte(secret), nil
}

func (s *SQLSecretProvider) cached(endpoint string) ([]byte, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.cache[endpoint]
	if !ok || time.Now().After(c.expires) {
		return nil, false
	}
	return c.secret, true
}

func (s *SQLSecretProvider) store(endpoint string, secret []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[endpoint] = cachedSecret{secret: secret, expires: time.Now().Add(s.ttl)}
}

// Close releases the database connection pool.
func (s *SQLSecretProvider) Close() error {
	return s.db.Close()
}
