// Package radlog is the single structured-logging setup shared by
// radclient, radserver, radproxy, and store, built on go.uber.org/zap.
package radlog

import (
	"encoding/json"
	"sync"

	"go.uber.org/zap"
)

var (
	mu     sync.RWMutex
	logger *zap.SugaredLogger
)

// defaultConfig matches a RADIUS daemon's expected deployment shape:
// JSON-encoded lines to stdout, ISO8601 timestamps, caller info kept
// for warn/error diagnosis.
const defaultConfig = `{
	"level": "info",
	"development": false,
	"encoding": "json",
	"outputPaths": ["stdout"],
	"errorOutputPaths": ["stderr"],
	"disableCaller": false,
	"disableStackTrace": true,
	"encoderConfig": {
		"messageKey": "message",
		"levelKey": "level",
		"levelEncoder": "lowercase",
		"callerKey": "caller",
		"timeKey": "ts",
		"timeEncoder": "ISO8601"
		}
	}`

// SetupLogger builds the package-level logger from a JSON zap.Config
// blob. Passing nil uses defaultConfig.
func SetupLogger(rawJSON []byte) error {
	if rawJSON == nil {
		rawJSON = []byte(defaultConfig)
	}

	var cfg zap.Config
	if err := json.Unmarshal(rawJSON, &cfg); err != nil {
		return err
	}

	built, err := cfg.Build()
	if err != nil {
		return err
	}

	mu.Lock()
	logger = built.Sugar()
	mu.Unlock()
	return nil
}

// GetLogger returns the package-level logger, initializing it with
// defaultConfig on first use if SetupLogger was never called.
func GetLogger() *zap.SugaredLogger {
	mu.RLock()
	l := logger
	mu.RUnlock()
	if l != nil {
		return l
	}

	if err := SetupLogger(nil); err != nil {
		panic(err)
	}
	mu.RLock()
	defer mu.RUnlock()
	return logger
}
