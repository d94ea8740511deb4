package radlog

import "testing"

func TestGetLoggerInitializesWithDefaultConfig(t *testing.T) {
	mu.Lock()
	logger = nil
	mu.Unlock()

	l := GetLogger()
	if l == nil {
		t.Fatal("GetLogger() returned nil")
	}
	if GetLogger() != l {
		t.Error("GetLogger() should return the same instance once initialized")
	}
}

func TestSetupLoggerWithCustomConfig(t *testing.T) {
	err := SetupLogger([]byte(`{
		"level": "error",
		"encoding": "json",
		"outputPaths": ["stdout"],
		"errorOutputPaths": ["stderr"],
		"encoderConfig": {"messageKey": "message", "levelKey": "level", "timeKey": "ts", "timeEncoder": "ISO8601"}
	}`))
	if err != nil {
		t.Fatal(err)
	}
	if GetLogger() == nil {
		t.Fatal("GetLogger() returned nil after SetupLogger")
	}
}

func TestSetupLoggerRejectsMalformedJSON(t *testing.T) {
	if err := SetupLogger([]byte(`{not json`)); err == nil {
		t.Error("expected an error for malformed logger config")
	}
}
