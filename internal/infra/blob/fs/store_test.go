package fs

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"microcosm/internal/blob/core"
)

func TestStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Driver() != core.DriverFilesystem || s.Root() != root {
		t.Fatalf("unexpected store %s %s", s.Driver(), s.Root())
	}

	payload := `{"id":"01","command":"todos.add"}`
	info, err := s.Put(ctx, "archive/01.json", strings.NewReader(payload), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"status": "resolve"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	sum := sha256.Sum256([]byte(payload))
	if info.ETag != hex.EncodeToString(sum[:]) || info.Size != int64(len(payload)) {
		t.Fatalf("unexpected info %+v", info)
	}

	if _, err := s.Put(ctx, "archive/01.json", strings.NewReader("again"), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}

	got, rc, err := s.Get(ctx, "archive/01.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != payload || got.Metadata["status"] != "resolve" {
		t.Fatalf("unexpected get %q %+v", body, got)
	}

	head, err := s.Head(ctx, "archive/01.json")
	if err != nil || head.ContentType != "application/json" {
		t.Fatalf("head: %+v %v", head, err)
	}

	if _, err := s.Put(ctx, "other.json", strings.NewReader("{}"), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := s.List(ctx, "archive/")
	if err != nil || len(list) != 1 || list[0].Key != "archive/01.json" {
		t.Fatalf("unexpected list %+v err=%v", list, err)
	}
	all, _ := s.List(ctx, "")
	if len(all) != 2 {
		t.Fatalf("expected 2 blobs, got %+v", all)
	}

	ok, err := s.Delete(ctx, "archive/01.json")
	if err != nil || !ok {
		t.Fatalf("delete: ok=%v err=%v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(root, "archive", "01.json.meta")); !os.IsNotExist(err) {
		t.Fatalf("sidecar should be removed, stat err=%v", err)
	}
	ok, err = s.Delete(ctx, "archive/01.json")
	if err != nil || ok {
		t.Fatalf("second delete: ok=%v err=%v", ok, err)
	}
	if _, err := s.Head(ctx, "archive/01.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	if _, _, err := s.Get(ctx, "archive/01.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound from get, got %v", err)
	}
}

func TestInvalidKeys(t *testing.T) {
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "  ", "../escape", "/abs", "a/b.meta"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), core.PutOptions{}); !errors.Is(err, core.ErrInvalidKey) {
			t.Errorf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
}

func TestListSkipsOrphanSidecars(t *testing.T) {
	root := t.TempDir()
	s, err := New(root)
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "orphan.json.meta"), []byte(`{"size":1}`), 0o644); err != nil {
		t.Fatalf("write orphan: %v", err)
	}
	list, err := s.List(context.Background(), "")
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %+v err=%v", list, err)
	}
}

func TestNewDefaultsRoot(t *testing.T) {
	t.Chdir(t.TempDir())
	s, err := New("")
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	if s.Root() != DefaultRoot {
		t.Fatalf("expected default root, got %s", s.Root())
	}
	if _, err := os.Stat(DefaultRoot); err != nil {
		t.Fatalf("default root not created: %v", err)
	}
}
