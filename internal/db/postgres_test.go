package db

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestPoolOptionsDefaults(t *testing.T) {
	o := PoolOptions{}.withDefaults()
	if o.MaxConns != 20 || o.MinConns != 2 {
		t.Errorf("conns = %d/%d, want 20/2", o.MaxConns, o.MinConns)
	}
	if o.MaxConnLifetime != 30*time.Minute || o.MaxConnIdleTime != 5*time.Minute {
		t.Errorf("lifetimes = %s/%s", o.MaxConnLifetime, o.MaxConnIdleTime)
	}

	o = PoolOptions{MaxConns: 1, MinConns: 4}.withDefaults()
	if o.MinConns != 1 {
		t.Errorf("MinConns = %d, want clamped to 1", o.MinConns)
	}
}

func TestPendingFilesOrder(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"0002_b.up.sql", "0001_a.up.sql", "0001_a.down.sql", "notes.txt"} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte("--"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if err := os.Mkdir(filepath.Join(dir, "0003_dir.up.sql"), 0o755); err != nil {
		t.Fatal(err)
	}

	files, err := pendingFiles(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 2 || files[0] != "0001_a.up.sql" || files[1] != "0002_b.up.sql" {
		t.Errorf("files = %v", files)
	}
}
