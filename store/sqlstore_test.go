package store

import (
	"testing"
	"time"
)

// These tests exercise SQLSecretProvider's TTL cache directly, without
// going through NewSQLSecretProvider, since that requires a live MySQL
// connection to Ping. A full integration test against a real database
// is left to the deployment environment (see DESIGN.md).

func TestSQLSecretProviderCacheHitAndExpiry(t *testing.T) {
	p := &SQLSecretProvider{
		tableName: "secrets",
		ttl:       50 * time.Millisecond,
		cache:     make(map[string]cachedSecret),
	}

	if _, ok := p.cached("10.0.0.1"); ok {
		t.Fatal("expected a cache miss before any store")
	}

	p.store("10.0.0.1", []byte("s3cr3t"))

	secret, ok := p.cached("10.0.0.1")
	if !ok || string(secret) != "s3cr3t" {
		t.Fatalf("cached() = %q, %v, want s3cr3t, true", secret, ok)
	}

	time.Sleep(80 * time.Millisecond)
	if _, ok := p.cached("10.0.0.1"); ok {
		t.Error("expected the cache entry to have expired")
	}
}

func TestSQLSecretProviderCacheIsolatedByEndpoint(t *testing.T) {
	p := &SQLSecretProvider{
		tableName: "secrets",
		ttl:       time.Minute,
		cache:     make(map[string]cachedSecret),
	}

	p.store("10.0.0.1", []byte("s1"))
	p.store("10.0.0.2", []byte("s2"))

	if secret, ok := p.cached("10.0.0.1"); !ok || string(secret) != "s1" {
		t.Errorf("cached(10.0.0.1) = %q, %v", secret, ok)
	}
	if secret, ok := p.cached("10.0.0.2"); !ok || string(secret) != "s2" {
		t.Errorf("cached(10.0.0.2) = %q, %v", secret, ok)
	}
	if _, ok := p.cached("10.0.0.3"); ok {
		t.Error("expected a miss for an endpoint never stored")
	}
}
