package cmd

import (
	"bytes"
	"runtime"
	"strings"
	"testing"
)

func runVersion(t *testing.T, version string, args ...string) string {
	t.Helper()
	originalVersion := rootCmd.Version
	defer func() { rootCmd.Version = originalVersion }()
	rootCmd.Version = version

	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	// Without explicit args cobra falls back to os.Args.
	versionCmd.SetArgs(append([]string{}, args...))
	if err := versionCmd.Execute(); err != nil {
		t.Fatalf("Error executing version command: %v", err)
	}
	return buf.String()
}

func TestNewVersionCmd(t *testing.T) {
	versionCmd := newVersionCmd()

	if versionCmd.Use != "version" {
		t.Errorf("Expected Use to be 'version', got %s", versionCmd.Use)
	}
	if versionCmd.RunE == nil {
		t.Error("Expected RunE function to be set")
	}
	if versionCmd.Flags().Lookup("short") == nil {
		t.Error("Expected --short flag to be registered")
	}
}

func TestVersionCommandOutput(t *testing.T) {
	tests := []struct {
		name     string
		version  string
		args     []string
		expected string
	}{
		{
			name:     "full line",
			version:  "1.2.3-test",
			expected: "gavault version 1.2.3-test (" + runtime.Version() + ", " + runtime.GOOS + "/" + runtime.GOARCH + ")\n",
		},
		{
			name:     "short",
			version:  "1.2.3-test",
			args:     []string{"--short"},
			expected: "1.2.3-test\n",
		},
		{
			name:     "empty version is dev",
			version:  "",
			args:     []string{"--short"},
			expected: "dev\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := runVersion(t, tt.version, tt.args...); got != tt.expected {
				t.Errorf("Expected output %q, got %q", tt.expected, got)
			}
		})
	}
}

func TestVersionCommandRejectsArgs(t *testing.T) {
	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.SetErr(&buf)
	versionCmd.SetArgs([]string{"extra"})

	if err := versionCmd.Execute(); err == nil {
		t.Error("Expected an error for unexpected arguments")
	}
}

func TestVersionCommandHelp(t *testing.T) {
	versionCmd := newVersionCmd()
	var buf bytes.Buffer
	versionCmd.SetOut(&buf)
	versionCmd.SetErr(&buf)
	versionCmd.SetArgs([]string{"--help"})

	if err := versionCmd.Execute(); err != nil {
		t.Fatalf("Error executing version help: %v", err)
	}

	output := buf.String()
	if !strings.Contains(output, "--short") {
		t.Errorf("Help output should list --short. Got: %q", output)
	}
}
