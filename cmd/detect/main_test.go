package main

import (
	"testing"

	"github.com/teslashibe/go-detect/internal/config"
)

func TestParseFlags_Backend(t *testing.T) {
	t.Setenv("MODEL_BACKEND", "")

	tests := []struct {
		flag    string
		backend string
		chain   []string
	}{
		{"remote", config.BackendRemote, nil},
		{"yolo,remote", config.BackendChain, []string{"yolo", "remote"}},
		{" remote , cloud ", config.BackendChain, []string{"remote", "cloud"}},
	}

	for _, tt := range tests {
		t.Run(tt.flag, func(t *testing.T) {
			cfg, err := parseFlags([]string{"-config", "", "-backend", tt.flag})
			if err != nil {
				t.Fatalf("parseFlags failed: %v", err)
			}
			if cfg.Model.Backend != tt.backend {
				t.Errorf("Backend = %q, want %q", cfg.Model.Backend, tt.backend)
			}
			if len(cfg.Model.Chain) != len(tt.chain) {
				t.Fatalf("Chain = %v, want %v", cfg.Model.Chain, tt.chain)
			}
			for i := range tt.chain {
				if cfg.Model.Chain[i] != tt.chain[i] {
					t.Errorf("Chain[%d] = %q, want %q", i, cfg.Model.Chain[i], tt.chain[i])
				}
			}
			if err := cfg.Validate(); err != nil {
				t.Errorf("Validate() = %v", err)
			}
		})
	}
}

func TestParseFlags_Overrides(t *testing.T) {
	t.Setenv("PORT", "")

	cfg, err := parseFlags([]string{
		"-config", "",
		"-port", "9999",
		"-min-confidence", "0.3",
		"-min-area", "64",
		"-debug",
	})
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Port != "9999" || cfg.LogLevel != "debug" {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.Model.MinConfidence != 0.3 || cfg.Model.MinArea != 64 {
		t.Errorf("Model = %+v", cfg.Model)
	}
	if got := cfg.SessionConfig().MinArea; got != 64 {
		t.Errorf("SessionConfig().MinArea = %v", got)
	}
}

func TestParseFlags_Unknown(t *testing.T) {
	if _, err := parseFlags([]string{"-nope"}); err == nil {
		t.Error("expected error for unknown flag")
	}
}
