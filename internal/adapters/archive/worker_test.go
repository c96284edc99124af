package archive

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"microcosm/internal/blob"
	"microcosm/internal/config"
	"microcosm/internal/core"
	"microcosm/pkg/domain"
)

func addCommand(t *testing.T) (*core.Registry, *core.Command) {
	t.Helper()
	reg := core.NewRegistry()
	cmd, err := reg.Tag("todos.add", func(_ core.Origin, params []any) (core.Result, error) {
		return core.Value{Payload: params[0]}, nil
	})
	if err != nil {
		t.Fatalf("tag: %v", err)
	}
	return reg, cmd
}

func stop(t *testing.T, w *Worker) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := w.Stop(ctx); err != nil {
		t.Fatalf("stop: %v", err)
	}
}

func TestRepoArchivesSettledPrefix(t *testing.T) {
	store := blob.NewMemory()
	w := NewWorker(store, WithPrefix("archive"))
	w.Start()

	reg, cmd := addCommand(t)
	repo := core.New(core.WithRegistry(reg), core.WithArchiver(w))
	defer repo.Shutdown()

	var pushed []*core.Action
	for _, title := range []string{"milk", "eggs", "bread"} {
		a, err := repo.Push(cmd, title)
		if err != nil {
			t.Fatalf("push: %v", err)
		}
		pushed = append(pushed, a)
	}
	stop(t, w)

	records := w.Records()
	if len(records) != 2 {
		t.Fatalf("expected 2 archived actions, got %+v", records)
	}
	for i, rec := range records {
		if rec.ActionID != string(pushed[i].ID()) || rec.Status != StatusSucceeded {
			t.Fatalf("unexpected record %d: %+v", i, rec)
		}
		if rec.Key != "archive/"+rec.ActionID+".json" || rec.Info.Metadata["command"] != "todos.add" {
			t.Fatalf("unexpected record metadata %+v", rec)
		}
	}

	doc, err := w.Load(context.Background(), string(pushed[0].ID()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Action.Command != "todos.add" || doc.Action.Status != domain.StatusResolve || doc.Action.Payload != "milk" {
		t.Fatalf("unexpected document %+v", doc)
	}
	if len(doc.Params) != 1 || doc.Params[0] != "milk" {
		t.Fatalf("unexpected params %+v", doc.Params)
	}

	if _, ok := w.Get(string(pushed[2].ID())); ok {
		t.Fatalf("head action must stay in history")
	}
}

func TestArchiveIsIdempotent(t *testing.T) {
	store := blob.NewMemory()
	_, cmd := addCommand(t)
	a := core.NewAction(cmd, []any{"x"}, nil)
	a.Resolve("x")

	first := NewWorker(store)
	first.Start()
	if err := first.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := first.Archive(context.Background(), a); err != nil {
		t.Fatalf("duplicate archive should be ignored: %v", err)
	}
	stop(t, first)
	if len(first.Records()) != 1 {
		t.Fatalf("expected a single record, got %+v", first.Records())
	}

	// a second process finds the blob already written
	second := NewWorker(store)
	second.Start()
	if err := second.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	stop(t, second)
	rec, ok := second.Get(string(a.ID()))
	if !ok || rec.Status != StatusSucceeded || rec.Info.Key != rec.Key {
		t.Fatalf("expected success from existing blob, got %+v", rec)
	}
}

func TestArchiveRendersErrorPayloads(t *testing.T) {
	store := blob.NewMemory()
	_, cmd := addCommand(t)
	a := core.NewAction(cmd, nil, nil)
	a.Reject(errors.New("quota exceeded"))

	w := NewWorker(store, WithPrefix("errs"))
	w.Start()
	if err := w.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	stop(t, w)

	_, rc, err := store.Get(context.Background(), w.Key(string(a.ID())))
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer func() { _ = rc.Close() }()
	body, _ := io.ReadAll(rc)
	if !strings.Contains(string(body), `"payload":"quota exceeded"`) {
		t.Fatalf("error payload not rendered: %s", body)
	}
}

func TestArchiveUnserialisableParamsAreDropped(t *testing.T) {
	_, cmd := addCommand(t)
	a := core.NewAction(cmd, []any{make(chan int)}, nil)
	a.Resolve("ok")

	w := NewWorker(blob.NewMemory())
	w.Start()
	if err := w.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	stop(t, w)
	doc, err := w.Load(context.Background(), string(a.ID()))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if doc.Params != nil || doc.Action.Payload != "ok" {
		t.Fatalf("unexpected document %+v", doc)
	}
}

func TestArchiveQueueFull(t *testing.T) {
	_, cmd := addCommand(t)
	w := NewWorker(blob.NewMemory(), WithQueueSize(1))
	// not started, so the queue never drains
	a := core.NewAction(cmd, nil, nil)
	b := core.NewAction(cmd, nil, nil)
	if err := w.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := w.Archive(context.Background(), b); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}
	rec, _ := w.Get(string(b.ID()))
	if rec.Status != StatusFailed || rec.CompletedAt == nil {
		t.Fatalf("expected failed record, got %+v", rec)
	}
}

func TestArchiveRejectsNilAndStoppedWorker(t *testing.T) {
	w := NewWorker(blob.NewMemory())
	if err := w.Archive(context.Background(), nil); err == nil {
		t.Fatalf("expected nil action error")
	}
	w.Start()
	stop(t, w)
	_, cmd := addCommand(t)
	if err := w.Archive(context.Background(), core.NewAction(cmd, nil, nil)); err == nil {
		t.Fatalf("expected stopped worker error")
	}
}

type failingStore struct{ blob.Store }

func (failingStore) Put(context.Context, string, io.Reader, blob.PutOptions) (blob.Info, error) {
	return blob.Info{}, errors.New("disk full")
}

func TestUploadFailureIsRecorded(t *testing.T) {
	_, cmd := addCommand(t)
	a := core.NewAction(cmd, nil, nil)
	w := NewWorker(failingStore{blob.NewMemory()})
	w.Start()
	if err := w.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	stop(t, w)
	rec, ok := w.Get(string(a.ID()))
	if !ok || rec.Status != StatusFailed || rec.Error != "disk full" {
		t.Fatalf("expected failed record, got %+v", rec)
	}
}

func TestArchiveRetriesFailedRecord(t *testing.T) {
	_, cmd := addCommand(t)
	store := blob.NewMemory()
	w := NewWorker(store, WithQueueSize(1))
	a := core.NewAction(cmd, nil, nil)
	b := core.NewAction(cmd, nil, nil)
	if err := w.Archive(context.Background(), a); err != nil {
		t.Fatalf("archive: %v", err)
	}
	if err := w.Archive(context.Background(), b); !errors.Is(err, ErrQueueFull) {
		t.Fatalf("expected ErrQueueFull, got %v", err)
	}

	w.Start()
	deadline := time.Now().Add(2 * time.Second)
	for {
		if rec, _ := w.Get(string(a.ID())); rec.Status == StatusSucceeded {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("first upload never finished")
		}
		time.Sleep(time.Millisecond)
	}

	if err := w.Archive(context.Background(), b); err != nil {
		t.Fatalf("retry: %v", err)
	}
	stop(t, w)

	rec, _ := w.Get(string(b.ID()))
	if rec.Status != StatusSucceeded || rec.Error != "" {
		t.Fatalf("expected retried upload to succeed, got %+v", rec)
	}
	if n := len(w.Records()); n != 2 {
		t.Fatalf("expected 2 records, got %d", n)
	}
	if _, err := store.Head(context.Background(), w.Key(string(b.ID()))); err != nil {
		t.Fatalf("retried document missing: %v", err)
	}
}

func TestWithConfig(t *testing.T) {
	w := NewWorker(blob.NewMemory(), WithConfig(config.Config{ArchivePrefix: "cold", LogVerbosity: 3}))
	if got := w.Key("a1"); got != "cold/a1.json" {
		t.Fatalf("unexpected key %s", got)
	}
	if _, ok := w.logger.(*core.GlogLogger); !ok {
		t.Fatalf("expected glog logger, got %T", w.logger)
	}
}
