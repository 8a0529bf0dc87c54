package cmd

import (
	"bytes"
	"encoding/base64"
	"strings"
	"testing"
)

func TestKeygenCommand(t *testing.T) {
	cmd := newKeygenCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}

	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(buf.String()))
	if err != nil {
		t.Fatalf("key is not base64: %v", err)
	}
	if len(key) != 32 {
		t.Errorf("Expected a 32-byte key, got %d bytes", len(key))
	}
}

func TestKeygenCommand_EnvFormat(t *testing.T) {
	cmd := newKeygenCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetArgs([]string{"--env"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("keygen failed: %v", err)
	}
	if !strings.HasPrefix(buf.String(), "GAVAULT_ENCRYPTION_KEY=") {
		t.Errorf("Expected an env assignment, got %q", buf.String())
	}
}
