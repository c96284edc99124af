// Package archive ships actions archived out of history to a blob store.
package archive

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"sync"
	"time"

	"microcosm/internal/blob"
	"microcosm/internal/config"
	"microcosm/internal/core"
	"microcosm/pkg/domain"
)

// Status describes the lifecycle stage of an archive job.
type Status string

const (
	StatusQueued    Status = "queued"
	StatusRunning   Status = "running"
	StatusSucceeded Status = "succeeded"
	StatusFailed    Status = "failed"
)

// DefaultQueueSize bounds the number of pending uploads.
const DefaultQueueSize = 64

// ErrQueueFull is returned by Archive when the upload queue is saturated.
var ErrQueueFull = errors.New("archive queue full")

// Record tracks one archived action.
type Record struct {
	ActionID    string     `json:"action_id"`
	Key         string     `json:"key"`
	Status      Status     `json:"status"`
	Error       string     `json:"error,omitempty"`
	Info        blob.Info  `json:"info"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// Document is the JSON body written for each archived action.
type Document struct {
	Action     domain.ActionJSON `json:"action"`
	Params     []any             `json:"params,omitempty"`
	ArchivedAt time.Time         `json:"archived_at"`
}

// Option configures a Worker.
type Option func(*Worker)

// WithPrefix sets the key prefix documents are stored under.
func WithPrefix(prefix string) Option {
	return func(w *Worker) { w.prefix = prefix }
}

// WithQueueSize overrides DefaultQueueSize.
func WithQueueSize(n int) Option {
	return func(w *Worker) {
		if n > 0 {
			w.queueSize = n
		}
	}
}

// WithLogger reports upload failures.
func WithLogger(l core.Logger) Option {
	return func(w *Worker) {
		if l != nil {
			w.logger = l
		}
	}
}

// WithConfig applies the archive prefix and log verbosity from cfg.
func WithConfig(cfg config.Config) Option {
	return func(w *Worker) {
		w.prefix = cfg.ArchivePrefix
		w.logger = core.NewGlogLogger(cfg.LogVerbosity)
	}
}

// Worker implements core.Archiver. Archive renders the action synchronously
// and hands the upload to a background goroutine so history is never held
// on blob I/O.
type Worker struct {
	store     blob.Store
	prefix    string
	queueSize int
	logger    core.Logger

	queue chan task
	mu    sync.RWMutex
	jobs  map[string]*Record
	order []string

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

type task struct {
	id      string
	key     string
	payload []byte
	command string
	status  domain.Status
}

var _ core.Archiver = (*Worker)(nil)

// NewWorker constructs a worker writing to store. Call Start before use.
func NewWorker(store blob.Store, opts ...Option) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Worker{
		store:     store,
		queueSize: DefaultQueueSize,
		logger:    core.NewGlogLogger(config.DefaultLogVerbosity),
		jobs:      make(map[string]*Record),
		ctx:       ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.queue = make(chan task, w.queueSize)
	return w
}

// Start begins processing uploads.
func (w *Worker) Start() {
	w.wg.Add(1)
	go w.loop()
}

// Stop drains queued uploads, then halts. It returns ctx.Err() if the
// drain does not finish in time.
func (w *Worker) Stop(ctx context.Context) error {
	w.cancel()
	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Worker) loop() {
	defer w.wg.Done()
	for {
		select {
		case <-w.ctx.Done():
			w.drain()
			return
		case t := <-w.queue:
			w.process(context.Background(), t)
		}
	}
}

func (w *Worker) drain() {
	for {
		select {
		case t := <-w.queue:
			w.process(context.Background(), t)
		default:
			return
		}
	}
}

// Key returns the blob key an action is archived under.
func (w *Worker) Key(id string) string { return Key(w.prefix, id) }

// Archive renders a and queues its upload. It never blocks.
func (w *Worker) Archive(_ context.Context, a *core.Action) error {
	if a == nil {
		return fmt.Errorf("archive: nil action")
	}
	if w.ctx.Err() != nil {
		return fmt.Errorf("archive: worker stopped")
	}
	doc := Document{Action: a.ToJSON(), Params: a.Params(), ArchivedAt: time.Now().UTC()}
	doc.Action.Payload = encodable(doc.Action.Payload)
	payload, err := json.Marshal(doc)
	if err != nil {
		// params are caller-owned and may not be serialisable
		doc.Params = nil
		if payload, err = json.Marshal(doc); err != nil {
			return fmt.Errorf("archive %s: %w", a.ID(), err)
		}
	}

	id := string(a.ID())
	now := doc.ArchivedAt
	t := task{id: id, key: w.Key(id), payload: payload, command: doc.Action.Command, status: doc.Action.Status}

	w.mu.Lock()
	if rec, exists := w.jobs[id]; exists {
		if rec.Status != StatusFailed {
			w.mu.Unlock()
			return nil
		}
		// failed uploads are retried in place
		rec.Status = StatusQueued
		rec.Error = ""
		rec.UpdatedAt = now
		rec.CompletedAt = nil
	} else {
		w.jobs[id] = &Record{ActionID: id, Key: t.key, Status: StatusQueued, CreatedAt: now, UpdatedAt: now}
		w.order = append(w.order, id)
	}
	w.mu.Unlock()

	select {
	case w.queue <- t:
		return nil
	default:
		w.fail(id, ErrQueueFull.Error())
		return ErrQueueFull
	}
}

// Get returns a copy of the record for action id.
func (w *Worker) Get(id string) (Record, bool) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	rec, ok := w.jobs[id]
	if !ok {
		return Record{}, false
	}
	return rec.copy(), true
}

// Records returns every record in archive order.
func (w *Worker) Records() []Record {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make([]Record, 0, len(w.order))
	for _, id := range w.order {
		out = append(out, w.jobs[id].copy())
	}
	return out
}

// Load reads an archived document back from the store.
func (w *Worker) Load(ctx context.Context, id string) (Document, error) {
	return Load(ctx, w.store, w.prefix, id)
}

// Key returns the blob key for action id under prefix.
func Key(prefix, id string) string {
	return path.Join(prefix, id+".json")
}

// Load reads the document archived for action id.
func Load(ctx context.Context, store blob.Store, prefix, id string) (Document, error) {
	_, rc, err := store.Get(ctx, Key(prefix, id))
	if err != nil {
		return Document{}, err
	}
	defer func() { _ = rc.Close() }()
	var doc Document
	if err := json.NewDecoder(rc).Decode(&doc); err != nil {
		return Document{}, fmt.Errorf("decode %s: %w", id, err)
	}
	return doc, nil
}

func (w *Worker) process(ctx context.Context, t task) {
	w.update(t.id, func(r *Record) { r.Status = StatusRunning })
	info, err := w.store.Put(ctx, t.key, bytes.NewReader(t.payload), blob.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"command": t.command, "status": string(t.status)},
	})
	if errors.Is(err, blob.ErrExists) {
		// a previous process archived this action already
		info, err = w.store.Head(ctx, t.key)
	}
	if err != nil {
		w.logger.Warn("archive upload failed", "action", t.id, "key", t.key, "error", err)
		w.fail(t.id, err.Error())
		return
	}
	w.update(t.id, func(r *Record) {
		now := time.Now().UTC()
		r.Status = StatusSucceeded
		r.Error = ""
		r.Info = info
		r.CompletedAt = &now
	})
}

func (w *Worker) fail(id, reason string) {
	w.update(id, func(r *Record) {
		now := time.Now().UTC()
		r.Status = StatusFailed
		r.Error = reason
		r.CompletedAt = &now
	})
}

func (w *Worker) update(id string, fn func(*Record)) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if rec, ok := w.jobs[id]; ok {
		fn(rec)
		rec.UpdatedAt = time.Now().UTC()
	}
}

func (r *Record) copy() Record {
	out := *r
	out.Info.Metadata = cloneMetadata(r.Info.Metadata)
	if r.CompletedAt != nil {
		t := *r.CompletedAt
		out.CompletedAt = &t
	}
	return out
}

func cloneMetadata(in map[string]string) map[string]string {
	if in == nil {
		return nil
	}
	out := make(map[string]string, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

// encodable replaces values encoding/json would render lossily.
func encodable(v any) any {
	if err, ok := v.(error); ok {
		return err.Error()
	}
	return v
}
