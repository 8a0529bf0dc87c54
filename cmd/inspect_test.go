package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"gavault/internal/app"
	"gavault/internal/usage"
	"gavault/internal/vault"
)

func testReport(now time.Time) *app.Report {
	return &app.Report{
		Identity: "plugin:user-42",
		Credential: vault.Status{
			Key:               "gavault:tokens:plugin:user-42",
			Present:           true,
			CiphertextLength:  180,
			AccessTokenLength: 11,
			HasRefreshToken:   true,
			Scope:             "https://www.googleapis.com/auth/analytics.readonly",
			ExpiresAt:         now.Add(30 * time.Minute),
			SavedAt:           now.Add(-30 * time.Minute),
		},
		Tier:        "pro",
		Consistency: usage.Exact,
		Usage: []usage.Usage{
			{Feature: "properties", Period: "2026-10", Current: 7, Limit: usage.Unlimited, ResetAt: now.Add(24 * time.Hour)},
			{Feature: "query", Period: "2026-10", Current: 3, Limit: 5000, ResetAt: now.Add(24 * time.Hour)},
		},
		Keys: []app.StorageKey{
			{Namespace: "tokens:plugin", Key: "gavault:tokens:plugin:user-42", Present: true},
			{Namespace: "plan", Key: "gavault:plan:plugin:user-42", Present: true},
		},
	}
}

func TestRenderReport_Table(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	if err := renderReport(&buf, testReport(now), now, outputTable); err != nil {
		t.Fatalf("renderReport failed: %v", err)
	}

	output := buf.String()
	for _, want := range []string{"plugin:user-42", "Connected", "11 bytes", "in 30m0s", "unlimited", "5000", "gavault:plan:plugin:user-42", "exact"} {
		if !strings.Contains(output, want) {
			t.Errorf("Expected output to contain %q. Got:\n%s", want, output)
		}
	}
}

func TestRenderReport_NotConnected(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	report := testReport(now)
	report.Credential = vault.Status{Key: report.Credential.Key}
	var buf bytes.Buffer

	if err := renderReport(&buf, report, now, outputTable); err != nil {
		t.Fatalf("renderReport failed: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "Not connected") {
		t.Errorf("Expected not connected status. Got:\n%s", output)
	}
	if strings.Contains(output, "Refresh token") {
		t.Errorf("Expected no token details for a missing record. Got:\n%s", output)
	}
}

func TestRenderReport_JSON(t *testing.T) {
	now := time.Date(2026, 10, 19, 12, 0, 0, 0, time.UTC)
	var buf bytes.Buffer

	if err := renderReport(&buf, testReport(now), now, outputJSON); err != nil {
		t.Fatalf("renderReport failed: %v", err)
	}

	var decoded struct {
		Tier       string `json:"tier"`
		Credential struct {
			HasRefreshToken bool `json:"hasRefreshToken"`
		} `json:"credential"`
		Usage []struct {
			Feature string `json:"feature"`
			Limit   int64  `json:"limit"`
		} `json:"usage"`
	}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if decoded.Tier != "pro" || !decoded.Credential.HasRefreshToken || len(decoded.Usage) != 2 {
		t.Errorf("Unexpected JSON report: %+v", decoded)
	}
	if decoded.Usage[0].Limit != -1 {
		t.Errorf("Expected unlimited to encode as -1, got %d", decoded.Usage[0].Limit)
	}
}

func TestOperatorFlags_Identity(t *testing.T) {
	tests := []struct {
		kind, id string
		wantErr  bool
	}{
		{"web", "s1", false},
		{"plugin", "user-1", false},
		{"plugin", "", true},
		{"admin", "x", true},
	}

	for _, tt := range tests {
		f := operatorFlags{kind: tt.kind, id: tt.id}
		_, err := f.identity()
		if (err != nil) != tt.wantErr {
			t.Errorf("identity(%q, %q) error = %v, wantErr %v", tt.kind, tt.id, err, tt.wantErr)
		}
	}
}

func TestInspectCommand_RejectsOutputFormat(t *testing.T) {
	cmd := newInspectCmd()
	var buf bytes.Buffer
	cmd.SetOut(&buf)
	cmd.SetErr(&buf)
	cmd.SetArgs([]string{"--id", "s1", "--output", "yaml"})

	err := cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "unsupported output format") {
		t.Errorf("Expected output format error, got %v", err)
	}
}
