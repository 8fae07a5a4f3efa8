// Package upload implements the per-file upload lifecycle: intake against
// the accept policy, concurrent transport operations, progress tracking and
// per-file cancellation.
package upload

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/upload-widget/backend/internal/models"
)

// entry is one tracked file. All fields are guarded by Manager.mu.
type entry struct {
	id          string
	file        File
	status      models.UploadStatus
	progress    float64
	err         *UploadError
	ctx         context.Context
	cancel      context.CancelFunc
	createdAt   time.Time
	completedAt *time.Time
}

func (e *entry) project() models.UploadEntry {
	size := e.file.Size()
	out := models.UploadEntry{
		ID:            e.id,
		FileName:      e.file.Name(),
		SizeBytes:     size,
		MimeType:      e.file.ContentType(),
		Status:        e.status,
		Progress:      e.progress,
		UploadedBytes: int64(float64(size) * e.progress / 100),
		CreatedAt:     e.createdAt,
	}
	if e.err != nil {
		out.ErrorCode = e.err.Code
		out.ErrorMessage = e.err.Message
	}
	if e.completedAt != nil {
		t := *e.completedAt
		out.CompletedAt = &t
	}
	return out
}

// release drops the cancel handle once no transport operation can be
// affected by it any more.
func (e *entry) release() {
	if e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	e.ctx = nil
}

// Manager owns the ordered collection of upload entries and mediates every
// state transition. It is safe for concurrent use; each operation is applied
// atomically and subscribers only ever observe complete snapshots.
type Manager struct {
	mu          sync.Mutex
	entries     map[string]*entry
	order       []string
	listVisible bool
	version     uint64

	subs    map[int]chan models.UploadSnapshot
	nextSub int

	policy    *Policy
	transport Transport
	logger    *slog.Logger
}

// NewManager creates a manager that uploads accepted files through transport.
func NewManager(transport Transport, opts ...Option) *Manager {
	o := defaultOptions()
	applyOptions(o, opts)

	return &Manager{
		entries:     make(map[string]*entry),
		listVisible: true,
		subs:        make(map[int]chan models.UploadSnapshot),
		policy:      o.policy,
		transport:   transport,
		logger:      o.logger,
	}
}

// Policy returns the accept policy in use.
func (m *Manager) Policy() *Policy { return m.policy }

// AddFiles classifies each file against the policy and appends one entry per
// file in arrival order. Rejected files get a terminal rejected entry and no
// transport call; accepted files start uploading immediately. It returns the
// new entry identities in order and never blocks on the network.
func (m *Manager) AddFiles(files ...File) []string {
	if len(files) == 0 {
		return nil
	}

	m.mu.Lock()
	ids := make([]string, 0, len(files))
	type start struct {
		id   string
		ctx  context.Context
		file File
	}
	var started []start
	for _, f := range files {
		e := &entry{
			id:        uuid.New().String(),
			file:      f,
			createdAt: time.Now(),
		}
		if uerr := m.policy.Check(f.ContentType(), f.Size()); uerr != nil {
			e.status = models.UploadStatusRejected
			e.err = uerr
			m.logger.Info("file rejected", "id", e.id, "file", f.Name(), "type", f.ContentType(), "code", uerr.Code)
		} else {
			e.status = models.UploadStatusPending
			e.ctx, e.cancel = context.WithCancel(context.Background())
			started = append(started, start{id: e.id, ctx: e.ctx, file: f})
			if m.policy.OverLimit(f.Size()) {
				m.logger.Warn("file exceeds advertised size limit", "id", e.id, "file", f.Name(), "size", f.Size())
			}
		}
		m.entries[e.id] = e
		m.order = append(m.order, e.id)
		ids = append(ids, e.id)
	}
	m.publishLocked()
	m.mu.Unlock()

	for _, s := range started {
		go m.transport.Upload(s.ctx, s.id, s.file, m)
	}
	return ids
}

// OnProgress records upload progress. Unknown totals, stale identities,
// terminal entries and regressions are ignored.
func (m *Manager) OnProgress(id string, loaded, total int64) {
	if total <= 0 {
		return
	}
	progress := float64(loaded) / float64(total) * 100
	if progress < 0 {
		progress = 0
	}
	if progress > 100 {
		progress = 100
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.status.Terminal() {
		return
	}
	if e.status == models.UploadStatusUploading && progress <= e.progress {
		return
	}
	e.status = models.UploadStatusUploading
	e.progress = progress
	m.publishLocked()
}

// OnComplete finishes an upload. 200 completes the entry at 100 percent;
// any other status code fails it.
func (m *Manager) OnComplete(id string, statusCode int) {
	if statusCode != http.StatusOK {
		m.fail(id, ServerFailureError(statusCode))
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.status.Terminal() {
		return
	}
	now := time.Now()
	e.status = models.UploadStatusCompleted
	e.progress = 100
	e.completedAt = &now
	e.release()
	m.logger.Info("upload completed", "id", id, "file", e.file.Name())
	m.publishLocked()
}

// OnError fails the entry with a network failure.
func (m *Manager) OnError(id string, err error) {
	m.fail(id, NetworkFailureError(err))
}

func (m *Manager) fail(id string, uerr *UploadError) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.status.Terminal() {
		return
	}
	now := time.Now()
	e.status = models.UploadStatusFailed
	e.err = uerr
	e.completedAt = &now
	e.release()
	m.logger.Warn("upload failed", "id", id, "file", e.file.Name(), "error", uerr)
	m.publishLocked()
}

// OnAbort removes the entry; an aborted upload leaves no trace.
func (m *Manager) OnAbort(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || e.status.Terminal() {
		return
	}
	e.release()
	m.deleteLocked(id)
	m.logger.Info("upload cancelled", "id", id, "file", e.file.Name())
	m.publishLocked()
}

// Cancel signals cancellation for a pending or uploading entry. The entry is
// removed later, when the transport acknowledges through OnAbort. Cancelling
// any other entry is a no-op. It reports whether a cancellation was signalled.
func (m *Manager) Cancel(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok || !e.status.InFlight() || e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// CancelAll signals cancellation for every in-flight entry.
func (m *Manager) CancelAll() int {
	m.mu.Lock()
	defer m.mu.Unlock()

	n := 0
	for _, id := range m.order {
		e := m.entries[id]
		if e.status.InFlight() && e.cancel != nil {
			e.cancel()
			n++
		}
	}
	return n
}

// Remove drops a completed, failed or rejected entry. In-flight entries must
// be cancelled instead.
func (m *Manager) Remove(id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return ErrEntryNotFound
	}
	if e.status.InFlight() {
		return ErrEntryInFlight
	}
	m.deleteLocked(id)
	m.publishLocked()
	return nil
}

// ToggleListVisibility flips list visibility. It does nothing while the
// collection is empty and returns the resulting visibility.
func (m *Manager) ToggleListVisibility() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if len(m.order) == 0 {
		return m.listVisible
	}
	m.listVisible = !m.listVisible
	m.publishLocked()
	return m.listVisible
}

// Get returns the projection of one entry.
func (m *Manager) Get(id string) (models.UploadEntry, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	e, ok := m.entries[id]
	if !ok {
		return models.UploadEntry{}, false
	}
	return e.project(), true
}

// Snapshot returns the current ordered state.
func (m *Manager) Snapshot() models.UploadSnapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Subscribe returns a channel that receives the current snapshot immediately
// and a new one after every change. Slow subscribers only see the latest
// snapshot. The returned func unsubscribes and closes the channel.
func (m *Manager) Subscribe() (<-chan models.UploadSnapshot, func()) {
	ch := make(chan models.UploadSnapshot, 1)

	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.snapshotLocked()
	m.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			m.mu.Lock()
			defer m.mu.Unlock()
			delete(m.subs, id)
			close(ch)
		})
	}
}

// Wait blocks until no entry is in flight or ctx is done.
func (m *Manager) Wait(ctx context.Context) error {
	ch, unsubscribe := m.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case snap := <-ch:
			if snap.InFlight == 0 {
				return nil
			}
		}
	}
}

func (m *Manager) deleteLocked(id string) {
	delete(m.entries, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}

func (m *Manager) snapshotLocked() models.UploadSnapshot {
	snap := models.UploadSnapshot{
		Entries:     make([]models.UploadEntry, 0, len(m.order)),
		ListVisible: m.listVisible,
		Empty:       len(m.order) == 0,
		Hint:        m.policy.Hint(),
		Version:     m.version,
	}
	for _, id := range m.order {
		e := m.entries[id]
		if e.status.InFlight() {
			snap.InFlight++
		}
		snap.Entries = append(snap.Entries, e.project())
	}
	return snap
}

// publishLocked bumps the version and hands the new snapshot to every
// subscriber, replacing any snapshot it has not consumed yet.
func (m *Manager) publishLocked() {
	m.version++
	if len(m.subs) == 0 {
		return
	}
	snap := m.snapshotLocked()
	for _, ch := range m.subs {
		select {
		case ch <- snap:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- snap:
			default:
			}
		}
	}
}
