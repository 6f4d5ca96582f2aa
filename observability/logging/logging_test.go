package logging

import (
	"bytes"
	"encoding/json"
	"testing"
)

func TestNewRenamesStandardKeys(t *testing.T) {
	var buf bytes.Buffer
	logger := New(&buf, "lockd", "test", false)
	logger.Info("claimed", "account", "lock1xyz")

	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	for _, key := range []string{"timestamp", "severity", "message", "service", "env", "account"} {
		if _, ok := line[key]; !ok {
			t.Fatalf("missing key %q in %v", key, line)
		}
	}
	if line["severity"] != "INFO" {
		t.Fatalf("unexpected severity %v", line["severity"])
	}
	if line["message"] != "claimed" {
		t.Fatalf("unexpected message %v", line["message"])
	}
}

func TestNewOmitsEmptyEnv(t *testing.T) {
	var buf bytes.Buffer
	New(&buf, "lockd", "  ", false).Warn("x")
	var line map[string]any
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("decode log line: %v", err)
	}
	if _, ok := line["env"]; ok {
		t.Fatalf("env should be omitted: %v", line)
	}
}

func TestMaskField(t *testing.T) {
	if attr := MaskField("authorization", "Bearer abc"); attr.Value.String() != RedactedValue {
		t.Fatalf("authorization not redacted: %v", attr)
	}
	if attr := MaskField("Account", "lock1abc"); attr.Value.String() != "lock1abc" {
		t.Fatalf("account should pass through: %v", attr)
	}
	if attr := MaskField("secret", ""); attr.Value.String() != "" {
		t.Fatalf("empty values should pass through: %v", attr)
	}
}
