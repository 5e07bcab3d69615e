package config

import (
	"testing"
	"time"
)

func TestReadDefaults(t *testing.T) {
	cfg, err := Read()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}

	if cfg.ServerAddr != ":8080" {
		t.Errorf("expected default addr :8080, got %s", cfg.ServerAddr)
	}
	if cfg.MirrorTimeout != 5*time.Second {
		t.Errorf("expected 5s mirror timeout, got %s", cfg.MirrorTimeout)
	}
	if len(cfg.InvidiousInstances) != 6 {
		t.Errorf("expected 6 invidious instances, got %d", len(cfg.InvidiousInstances))
	}
	if cfg.InvidiousInstances[0] != "https://inv.tux.pizza" {
		t.Errorf("invidious order changed: %v", cfg.InvidiousInstances)
	}
	if len(cfg.PipedInstances) != 4 {
		t.Errorf("expected 4 piped instances, got %d", len(cfg.PipedInstances))
	}
	if cfg.DownloadTimeout != 10*time.Minute {
		t.Errorf("expected 10m download timeout, got %s", cfg.DownloadTimeout)
	}
	if cfg.LibraryHistoryWindow != 200 {
		t.Errorf("expected history window 200, got %d", cfg.LibraryHistoryWindow)
	}
}

func TestReadOverrides(t *testing.T) {
	t.Setenv("PIPED_INSTANCES", "http://a,http://b")
	t.Setenv("MIRROR_TIMEOUT", "750ms")
	t.Setenv("BLOB_BACKEND", "minio")

	cfg, err := Read()
	if err != nil {
		t.Fatalf("read config: %v", err)
	}
	if got := cfg.PipedInstances; len(got) != 2 || got[0] != "http://a" || got[1] != "http://b" {
		t.Errorf("unexpected piped instances: %v", got)
	}
	if cfg.MirrorTimeout != 750*time.Millisecond {
		t.Errorf("expected 750ms, got %s", cfg.MirrorTimeout)
	}
	if cfg.BlobBackend != "minio" {
		t.Errorf("expected minio backend, got %s", cfg.BlobBackend)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{name: "unknown blob backend", mutate: func(c *Config) { c.BlobBackend = "s3" }, wantErr: true},
		{name: "unknown outbox backend", mutate: func(c *Config) { c.OutboxBackend = "kafka" }, wantErr: true},
		{name: "zero download timeout", mutate: func(c *Config) { c.DownloadTimeout = 0 }, wantErr: true},
		{name: "zero history window", mutate: func(c *Config) { c.LibraryHistoryWindow = 0 }, wantErr: true},
		{name: "workers clamped", mutate: func(c *Config) { c.DownloadWorkers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Read()
			if err != nil {
				t.Fatalf("read config: %v", err)
			}
			tt.mutate(cfg)
			err = cfg.Validate()
			if tt.wantErr && err == nil {
				t.Fatal("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !tt.wantErr && cfg.DownloadWorkers < 1 {
				t.Errorf("workers should be clamped to 1, got %d", cfg.DownloadWorkers)
			}
		})
	}
}
