package app

import (
	"bytes"
	"strings"
	"testing"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want Command
	}{
		{"empty defaults to serve", []string{}, CommandServe},
		{"nil defaults to serve", nil, CommandServe},
		{"serve", []string{"serve"}, CommandServe},
		{"worker", []string{"worker"}, CommandWorker},
		{"migrate", []string{"migrate"}, CommandMigrate},
		{"healthcheck", []string{"healthcheck"}, CommandHealthcheck},
		{"help", []string{"help"}, CommandHelp},
		{"short help flag", []string{"-h"}, CommandHelp},
		{"long help flag", []string{"--help"}, CommandHelp},
		{"unknown defaults to serve", []string{"unknown"}, CommandServe},
		{"extra args ignored", []string{"worker", "--flag", "value"}, CommandWorker},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseCommand(tt.args); got != tt.want {
				t.Errorf("ParseCommand(%v) = %q, want %q", tt.args, got, tt.want)
			}
		})
	}
}

func TestPrintUsage_ListsAllCommands(t *testing.T) {
	var buf bytes.Buffer
	PrintUsage(&buf)

	out := buf.String()
	for _, cmd := range []Command{CommandServe, CommandWorker, CommandMigrate, CommandHealthcheck, CommandHelp} {
		if !strings.Contains(out, string(cmd)) {
			t.Errorf("usage does not mention %q:\n%s", cmd, out)
		}
	}
}

func TestRun_Help_PrintsUsageWithoutConfig(t *testing.T) {
	t.Setenv("DATABASE_URL", "")

	var buf bytes.Buffer
	if err := Run(&buf, []string{"help"}); err != nil {
		t.Fatalf("Run(help) error = %v", err)
	}
	if !strings.Contains(buf.String(), "usage: todoman") {
		t.Errorf("output = %q, want usage", buf.String())
	}
}
