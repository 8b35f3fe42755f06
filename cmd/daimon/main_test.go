package main

import (
	"reflect"
	"testing"
)

func TestParseGlobalFlags(t *testing.T) {
	tests := []struct {
		name       string
		args       []string
		wantConfig []string
		wantJSON   bool
		wantHelp   bool
		wantRest   []string
		wantErr    bool
	}{
		{
			name: "no args",
		},
		{
			name:     "command only",
			args:     []string{"run"},
			wantRest: []string{"run"},
		},
		{
			name:       "config then command",
			args:       []string{"--config", "daimon.yaml", "run", "-watch"},
			wantConfig: []string{"--config", "daimon.yaml"},
			wantRest:   []string{"run", "-watch"},
		},
		{
			name:       "equals forms pass through",
			args:       []string{"--config=a.yaml", "--profile=dev", "--set=log.level=debug", "validate"},
			wantConfig: []string{"--config=a.yaml", "--profile=dev", "--set=log.level=debug"},
			wantRest:   []string{"validate"},
		},
		{
			name:     "json flag",
			args:     []string{"--json", "adapters", "list"},
			wantJSON: true,
			wantRest: []string{"adapters", "list"},
		},
		{
			name:     "double dash stops parsing",
			args:     []string{"--json", "--", "--config"},
			wantJSON: true,
			wantRest: []string{"--config"},
		},
		{
			name:     "help short-circuits",
			args:     []string{"-h", "run"},
			wantHelp: true,
		},
		{
			name:    "missing config value",
			args:    []string{"--config"},
			wantErr: true,
		},
		{
			name:    "unknown flag",
			args:    []string{"--verbose"},
			wantErr: true,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			flags, rest, err := parseGlobalFlags(tc.args)
			if tc.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseGlobalFlags: %v", err)
			}
			if !reflect.DeepEqual(flags.ConfigArgs, tc.wantConfig) {
				t.Errorf("config args = %v, want %v", flags.ConfigArgs, tc.wantConfig)
			}
			if flags.JSON != tc.wantJSON {
				t.Errorf("json = %v, want %v", flags.JSON, tc.wantJSON)
			}
			if flags.Help != tc.wantHelp {
				t.Errorf("help = %v, want %v", flags.Help, tc.wantHelp)
			}
			if !reflect.DeepEqual(rest, tc.wantRest) {
				t.Errorf("rest = %v, want %v", rest, tc.wantRest)
			}
		})
	}
}

func TestNormalizeCell(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", "-"},
		{"   ", "-"},
		{"plain", "plain"},
		{"  spaced   out\ttext\n", "spaced out text"},
	}
	for _, tc := range tests {
		if got := normalizeCell(tc.in); got != tc.want {
			t.Errorf("normalizeCell(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestTruncateMessage(t *testing.T) {
	if got := truncateMessage("short", 10); got != "short" {
		t.Errorf("short value should pass through, got %q", got)
	}
	if got := truncateMessage("a long description of something", 10); got != "a long ..." {
		t.Errorf("truncated = %q", got)
	}
	if got := truncateMessage("anything at all", 0); got != "anything at all" {
		t.Errorf("zero limit should not truncate, got %q", got)
	}
}

func TestCheckHTTPBadURL(t *testing.T) {
	if checkHTTP("://not-a-url") {
		t.Error("unparseable url should not be reachable")
	}
	if checkHTTP("relative/path") {
		t.Error("url without host should not be reachable")
	}
}

func TestMultiFlag(t *testing.T) {
	var m multiFlag
	_ = m.Set("one")
	_ = m.Set("two")
	if len(m) != 2 || m[0] != "one" || m[1] != "two" {
		t.Errorf("multiFlag = %v", m)
	}
	if m.String() != "one,two" {
		t.Errorf("String() = %q", m.String())
	}
}
