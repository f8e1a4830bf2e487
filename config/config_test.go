package config

import (
	"context"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap/zapcore"

	"github.com/polydawn/sneakernet"
)

func TestLoad(t *testing.T) {
	testItems := []struct {
		name string
		env  map[string]string
		want Config
		err  sneakernet.ErrorCategory
	}{
		{"defaults", nil, Config{
			GitBinary:      "git",
			UpstreamRemote: "origin",
			HandleRemote:   "sneakernet-bundle",
			Lock:           true,
			LogLevel:       "warn",
		}, ""},
		{"overrides", map[string]string{
			"SNEAKERNET_GIT":       "/opt/git/bin/git",
			"SNEAKERNET_UPSTREAM":  "upstream",
			"SNEAKERNET_HANDLE":    "usb",
			"SNEAKERNET_LOCK":      "false",
			"SNEAKERNET_LOG_LEVEL": "debug",
		}, Config{
			GitBinary:      "/opt/git/bin/git",
			UpstreamRemote: "upstream",
			HandleRemote:   "usb",
			Lock:           false,
			LogLevel:       "debug",
		}, ""},
		{"silenced", map[string]string{"SNEAKERNET_LOG_LEVEL": "none"}, Config{
			GitBinary:      "git",
			UpstreamRemote: "origin",
			HandleRemote:   "sneakernet-bundle",
			Lock:           true,
			LogLevel:       "none",
		}, ""},
		{"unparseable bool", map[string]string{"SNEAKERNET_LOCK": "maybe"}, Config{}, sneakernet.ErrUsage},
		{"unknown level", map[string]string{"SNEAKERNET_LOG_LEVEL": "chatty"}, Config{}, sneakernet.ErrUsage},
	}
	for _, item := range testItems {
		t.Run(item.name, func(t *testing.T) {
			cfg, err := LoadFrom(context.Background(), envconfig.MapLookuper(item.env))
			if cat := sneakernet.CategoryOf(err); cat != item.err {
				t.Fatalf("expected error category %q but got %q (%v)", item.err, cat, err)
			}
			if diff := cmp.Diff(item.want, cfg); diff != "" {
				t.Errorf("config mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLevel(t *testing.T) {
	cfg := Defaults()
	lvl, err := cfg.Level()
	if err != nil {
		t.Fatal(err)
	}
	if lvl != zapcore.WarnLevel {
		t.Errorf("expected %s but got %s", zapcore.WarnLevel, lvl)
	}
}
