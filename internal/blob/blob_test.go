package blob

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	fsStore, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	return map[string]Store{
		"fs":     fsStore,
		"memory": NewMemory(),
		"s3":     NewMockS3ForTests(),
	}
}

func TestStoresShareArchiveSemantics(t *testing.T) {
	ctx := context.Background()
	for name, s := range stores(t) {
		t.Run(name, func(t *testing.T) {
			keys := []string{"idsm_4_7/draws.json", "idsm_4_7/summary.csv", "idsm_4_7/tidy.csv"}
			ok, err := ExistsAll(ctx, s, keys...)
			if err != nil || ok {
				t.Fatalf("empty store reports archives: %v %v", ok, err)
			}
			for _, k := range keys {
				if _, err := s.Put(ctx, k, strings.NewReader(k), PutOptions{ContentType: "text/plain"}); err != nil {
					t.Fatalf("put %s: %v", k, err)
				}
			}
			if _, err := s.Put(ctx, keys[0], strings.NewReader("again"), PutOptions{}); !errors.Is(err, ErrExists) {
				t.Fatalf("expected ErrExists, got %v", err)
			}
			ok, err = ExistsAll(ctx, s, keys...)
			if err != nil || !ok {
				t.Fatalf("expected all archives present: %v %v", ok, err)
			}
			list, err := s.List(ctx, "idsm_4_7/")
			if err != nil || len(list) != 3 || list[0].Key != keys[0] {
				t.Fatalf("list: %v %+v", err, list)
			}
			_, rc, err := s.Get(ctx, keys[1])
			if err != nil {
				t.Fatalf("get: %v", err)
			}
			body, _ := io.ReadAll(rc)
			_ = rc.Close()
			if string(body) != keys[1] {
				t.Fatalf("unexpected body %q", body)
			}
			if ok, err := Exists(ctx, s, "idsm_4_8/draws.json"); err != nil || ok {
				t.Fatalf("unexpected exists: %v %v", ok, err)
			}
		})
	}
}

func TestOpenSelectsDriver(t *testing.T) {
	ctx := context.Background()
	s, err := Open(ctx, Options{Root: t.TempDir()})
	if err != nil || s.Driver() != DriverFilesystem {
		t.Fatalf("default driver: %v %v", s, err)
	}
	s, err = Open(ctx, Options{Driver: DriverMemory})
	if err != nil || s.Driver() != DriverMemory {
		t.Fatalf("memory driver: %v %v", s, err)
	}
	if _, err := Open(ctx, Options{Driver: DriverS3}); err == nil {
		t.Fatalf("expected error without bucket")
	}
	if _, err := Open(ctx, Options{Driver: "tape"}); err == nil {
		t.Fatalf("expected unknown driver error")
	}
}
