package backend

import (
	"context"
	"path/filepath"
	"testing"

	"fintrack/internal/config"
	"fintrack/internal/storage/storagetest"
)

func TestCreateBackend(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  Config
	}{
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(dir, "f.db")}},
		{"bolt", Config{Type: BoltBackend, BoltDBPath: filepath.Join(dir, "f.bolt")}},
		{"memory", Config{Type: MemoryBackend}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			res, err := NewFactory(nil).CreateBackend(ctx, tt.cfg)
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					t.Errorf("Cleanup() error = %v", err)
				}
			}()

			if err := res.Stores.Pending.Create(ctx, storagetest.Tx(1, "2.00", 0)); err != nil {
				t.Fatalf("pending create: %v", err)
			}
			all, err := res.Stores.Pending.FetchAll(ctx)
			if err != nil || len(all) != 1 {
				t.Fatalf("FetchAll() = %v, %v", all, err)
			}
		})
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"unknown type", Config{Type: "sheets"}, true},
		{"sqlite without path", Config{Type: SQLiteBackend}, true},
		{"bolt without path", Config{Type: BoltBackend}, true},
		{"memory", Config{Type: MemoryBackend}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.cfg.Validate(); (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Error("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{StorageBackend: "bolt", BoltDBPath: "/tmp/x.bolt"})
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if cfg.Type != BoltBackend || cfg.BoltDBPath != "/tmp/x.bolt" {
		t.Errorf("FromAppConfig() = %+v", cfg)
	}
}
