package config_test

import (
	"strings"
	"testing"

	"github.com/autoclipper/pipeline/internal/config"
)

func validBaseYAML() string {
	return `
store:
  database_url: postgres://localhost/pipeline
queue:
  broker_url: amqp://localhost/
gateways:
  llm:
    api_key: sk-test
candidates:
  min_clip_sec: 75
  max_clip_sec: 180
`
}

func TestValidate_InvalidLogLevel(t *testing.T) {
	t.Parallel()
	yaml := validBaseYAML() + "\nserver:\n  log_level: verbose\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for invalid log_level, got nil")
	}
	if !strings.Contains(err.Error(), "log_level") {
		t.Errorf("error should mention log_level, got: %v", err)
	}
}

func TestValidate_MinClipExceedsMax(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  database_url: postgres://localhost/pipeline
queue:
  broker_url: amqp://localhost/
gateways:
  llm:
    api_key: sk-test
candidates:
  min_clip_sec: 200
  max_clip_sec: 100
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for min_clip_sec exceeding max_clip_sec, got nil")
	}
	if !strings.Contains(err.Error(), "min_clip_sec") {
		t.Errorf("error should mention min_clip_sec, got: %v", err)
	}
}

func TestValidate_ShortlistMaxExceedsSendMax(t *testing.T) {
	t.Parallel()
	yaml := validBaseYAML() + "\nshortlist:\n  max: 200\n  send_max: 50\n"
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for shortlist.max exceeding shortlist.send_max, got nil")
	}
	if !strings.Contains(err.Error(), "shortlist.max") {
		t.Errorf("error should mention shortlist.max, got: %v", err)
	}
}

func TestValidate_MissingLLMAPIKey(t *testing.T) {
	t.Parallel()
	yaml := `
store:
  database_url: postgres://localhost/pipeline
queue:
  broker_url: amqp://localhost/
candidates:
  min_clip_sec: 75
  max_clip_sec: 180
`
	_, err := config.LoadFromReader(strings.NewReader(yaml))
	if err == nil {
		t.Fatal("expected error for missing gateways.llm.api_key, got nil")
	}
	if !strings.Contains(err.Error(), "api_key") {
		t.Errorf("error should mention api_key, got: %v", err)
	}
}

func TestValidate_ValidConfigPasses(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader(validBaseYAML()))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestValidate_MultipleErrorsJoined(t *testing.T) {
	t.Parallel()
	_, err := config.LoadFromReader(strings.NewReader("{}"))
	if err == nil {
		t.Fatal("expected errors, got nil")
	}
	errStr := err.Error()
	for _, want := range []string{"database_url", "broker_url", "api_key"} {
		if !strings.Contains(errStr, want) {
			t.Errorf("joined error should mention %q, got: %v", want, err)
		}
	}
}
