// Package config loads the JSON configuration file describing how a
// radserver/radclient/radproxy instance should be wired: bind
// addresses, the dictionary to load, dedup cache tuning, and client
// retry parameters. Trimmed from the teacher's ConfigurationManager,
// which also resolves objects over HTTP or a database table; this
// implementation only reads a single local file, which is all a
// RADIUS daemon's own bootstrap needs.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// ServerConfig describes a radserver.Server instance.
type ServerConfig struct {
	BindAddress   string `json:"bindAddress"`
	DictionaryFile string `json:"dictionaryFile,omitempty"`
	DedupTTLSeconds int  `json:"dedupTtlSeconds,omitempty"`
}

// ClientConfig describes a radclient.Client instance.
type ClientConfig struct {
	BindAddress      string `json:"bindAddress"`
	TimeoutMilliseconds int `json:"timeoutMilliseconds,omitempty"`
	MaxAttempts      int    `json:"maxAttempts,omitempty"`
}

// SecretEntry is one row of the Secrets map: the shared secret to use
// for requests to or from the given endpoint (bare host, or host:port).
type SecretEntry struct {
	Endpoint string `json:"endpoint"`
	Secret   string `json:"secret"`
}

// Config is the top-level bootstrap file shape. Server and Client are
// each optional since a process may run only one role (a pure proxy
// runs both: Server to face its clients, Client to reach upstream).
type Config struct {
	Server  *ServerConfig `json:"server,omitempty"`
	Client  *ClientConfig `json:"client,omitempty"`
	Secrets []SecretEntry `json:"secrets,omitempty"`
	Logging json.RawMessage `json:"logging,omitempty"`
}

// Load reads and parses path as a Config.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file %s: %w", path, err)
	}
	var c Config
	if err := json.Unmarshal(b, &c); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return &c, nil
}

// DedupTTL returns the server's configured dedup cache TTL, or 0 if
// unset, for callers that apply their own default (radserver.NewServer
// uses radserver.DefaultDedupTTL for 0).
func (c *Config) DedupTTL() time.Duration {
	if c.Server == nil || c.Server.DedupTTLSeconds <= 0 {
		return 0
	}
	return time.Duration(c.Server.DedupTTLSeconds) * time.Second
}

// ClientTimeout returns the client's configured per-attempt timeout,
// or 0 if unset.
func (c *Config) ClientTimeout() time.Duration {
	if c.Client == nil || c.Client.TimeoutMilliseconds <= 0 {
		return 0
	}
	return time.Duration(c.Client.TimeoutMilliseconds) * time.Millisecond
}

// SecretsMap flattens the Secrets list into a map suitable for
// store.NewMapSecretProvider.
func (c *Config) SecretsMap() map[string]string {
	m := make(map[string]string, len(c.Secrets))
	for _, e := range c.Secrets {
		m[e.Endpoint] = e.Secret
	}
	return m
}
