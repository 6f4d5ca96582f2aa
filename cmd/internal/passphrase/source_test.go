package passphrase

import (
	"bytes"
	"errors"
	"strings"
	"testing"
)

func TestSourcePrefersEnvironment(t *testing.T) {
	t.Setenv("LOCK_TEST_PASSPHRASE", " from-env ")
	src := NewSource("LOCK_TEST_PASSPHRASE", "signing secret")
	src.isTerminal = func() bool {
		t.Fatalf("terminal must not be consulted when the env var is set")
		return false
	}
	got, err := src.Get()
	if err != nil || got != "from-env" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

func TestSourceRejectsBlankEnvironment(t *testing.T) {
	t.Setenv("LOCK_TEST_PASSPHRASE", "  ")
	if _, err := NewSource("LOCK_TEST_PASSPHRASE", "").Get(); err == nil {
		t.Fatalf("expected error for blank value")
	}
}

func TestSourcePromptsOnceOnTerminal(t *testing.T) {
	var prompt bytes.Buffer
	reads := 0
	src := NewSource("", "signing secret")
	src.isTerminal = func() bool { return true }
	src.prompt = &prompt
	src.read = func() ([]byte, error) {
		reads++
		return []byte("typed"), nil
	}
	for i := 0; i < 2; i++ {
		got, err := src.Get()
		if err != nil || got != "typed" {
			t.Fatalf("unexpected result %q, %v", got, err)
		}
	}
	if reads != 1 {
		t.Fatalf("expected cached value, read %d times", reads)
	}
	if !strings.Contains(prompt.String(), "Enter signing secret") {
		t.Fatalf("unexpected prompt %q", prompt.String())
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("LOCK_TEST_UNSET_PASSPHRASE", "signing secret")
	src.isTerminal = func() bool { return false }
	_, err := src.Get()
	if err == nil || !strings.Contains(err.Error(), "LOCK_TEST_UNSET_PASSPHRASE") {
		t.Fatalf("expected env hint, got %v", err)
	}

	failing := NewSource("", "signing secret")
	failing.isTerminal = func() bool { return true }
	failing.prompt = &bytes.Buffer{}
	failing.read = func() ([]byte, error) { return nil, errors.New("tty closed") }
	if _, err := failing.Get(); err == nil {
		t.Fatalf("expected read error")
	}
}
