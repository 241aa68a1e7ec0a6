package database

import (
	"strings"
	"testing"
	"testing/fstest"
	"time"

	"github.com/gramseva/complaint-portal/internal/shared/config"
)

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"m/002_technicians.sql": {Data: []byte("CREATE TABLE b ();")},
		"m/001_complaints.sql":  {Data: []byte("CREATE TABLE a ();")},
		"m/README.md":           {Data: []byte("notes")},
		"m/old/000_seed.sql":    {Data: []byte("SELECT 1;")},
	}

	got, err := loadMigrations(fsys, "m")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("Expected 2 migrations, got %d", len(got))
	}
	if got[0].version != "001_complaints" || got[1].version != "002_technicians" {
		t.Errorf("Expected ordered versions, got %s, %s", got[0].version, got[1].version)
	}
	if got[0].sql != "CREATE TABLE a ();" {
		t.Errorf("Expected file content, got %q", got[0].sql)
	}

	if _, err := loadMigrations(fsys, "missing"); err == nil {
		t.Error("Expected error for missing directory")
	}
}

func TestEmbeddedMigrations(t *testing.T) {
	got, err := loadMigrations(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("Expected no error, got %v", err)
	}
	if len(got) == 0 {
		t.Fatal("Expected embedded migrations")
	}
	if !strings.Contains(got[0].sql, "complaints") {
		t.Errorf("Expected first migration to create complaints, got %s", got[0].version)
	}
}

func TestPoolConfig(t *testing.T) {
	base := config.DatabaseConfig{
		Host: "localhost", Port: 5432, User: "portal", Password: "portal",
		Database: "complaints", SSLMode: "disable",
	}

	tests := []struct {
		name     string
		max, min int
		lifetime time.Duration
		wantMax  int32
		wantMin  int32
	}{
		{"configured", 20, 4, 30 * time.Minute, 20, 4},
		{"min above max ignored", 3, 8, 0, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			cfg.MaxConns, cfg.MinConns, cfg.MaxConnLifetime = tt.max, tt.min, tt.lifetime

			pc, err := poolConfig(cfg)
			if err != nil {
				t.Fatalf("Expected no error, got %v", err)
			}
			if pc.MaxConns != tt.wantMax {
				t.Errorf("Expected max %d, got %d", tt.wantMax, pc.MaxConns)
			}
			if pc.MinConns != tt.wantMin {
				t.Errorf("Expected min %d, got %d", tt.wantMin, pc.MinConns)
			}
			if tt.lifetime > 0 && pc.MaxConnLifetime != tt.lifetime {
				t.Errorf("Expected lifetime %v, got %v", tt.lifetime, pc.MaxConnLifetime)
			}
		})
	}
}
