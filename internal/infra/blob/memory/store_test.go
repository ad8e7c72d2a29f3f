package memory

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"idsm/internal/blob/core"
)

func TestStore_CreateOnlyAndCopies(t *testing.T) {
	ctx := context.Background()
	s := New()
	if s.Driver() != core.DriverMemory {
		t.Fatalf("unexpected driver %s", s.Driver())
	}
	md := map[string]string{"run_seed": "2"}
	if _, err := s.Put(ctx, "idsm_1_2/draws.json", strings.NewReader("{}"), core.PutOptions{ContentType: "application/json", Metadata: md}); err != nil {
		t.Fatalf("put: %v", err)
	}
	md["run_seed"] = "mutated"
	if _, err := s.Put(ctx, "idsm_1_2/draws.json", strings.NewReader("[]"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	if _, err := s.Put(ctx, " ", strings.NewReader(""), core.PutOptions{}); err == nil {
		t.Fatalf("expected empty key error")
	}

	info, rc, err := s.Get(ctx, "idsm_1_2/draws.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "{}" || info.Metadata["run_seed"] != "2" || info.ETag == "" {
		t.Fatalf("unexpected object %q %+v", body, info)
	}
	info.Metadata["run_seed"] = "changed"
	head, _ := s.Head(ctx, "idsm_1_2/draws.json")
	if head.Metadata["run_seed"] != "2" {
		t.Fatalf("metadata leaked through returned info")
	}
}

func TestStore_MissingListDelete(t *testing.T) {
	ctx := context.Background()
	s := New()
	if _, _, err := s.Get(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.Head(ctx, "nope"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	for _, k := range []string{"idsm_1_2/b", "idsm_1_2/a", "idsm_3_4/a"} {
		if _, err := s.Put(ctx, k, strings.NewReader(k), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", k, err)
		}
	}
	list, _ := s.List(ctx, "idsm_1_2/")
	if len(list) != 2 || list[0].Key != "idsm_1_2/a" {
		t.Fatalf("unexpected list %+v", list)
	}
	if ok, _ := s.Delete(ctx, "idsm_3_4/a"); !ok {
		t.Fatalf("expected delete to report existing")
	}
	if ok, _ := s.Delete(ctx, "idsm_3_4/a"); ok {
		t.Fatalf("expected second delete to report missing")
	}
	if _, err := s.PresignURL(ctx, "idsm_1_2/a", core.SignedURLOptions{}); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("expected unsupported, got %v", err)
	}
}
