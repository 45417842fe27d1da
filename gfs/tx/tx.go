package tx

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/dirty"
)

var (
	// ErrDone is returned when a finished transaction is used again.
	ErrDone = errors.New("tx: transaction already finished")
	// ErrNested is returned by Begin when ctx already carries a transaction.
	ErrNested = errors.New("tx: transaction already open on this context")
)

type ctxKey struct{}

// Manager opens transactions and serializes their commits.
type Manager struct {
	arena  *blockio.Arena
	faults *consist.Tracker
	mode   dirty.FlushMode

	mu sync.Mutex // guards dt
	dt dirty.FlushableTracker

	seq    atomic.Uint64
	active atomic.Int32
}

// NewManager creates a transaction manager.
//
// Parameters:
//   - arena: the buffers transactions write back
//   - dt: dirty tracker that receives the committed ranges
//   - mode: flush mode for commits
//   - faults: consistency state; a withdrawn instance refuses Begin
func NewManager(arena *blockio.Arena, dt dirty.FlushableTracker, mode dirty.FlushMode, faults *consist.Tracker) *Manager {
	return &Manager{arena: arena, dt: dt, mode: mode, faults: faults}
}

// Tx is an open transaction.
type Tx struct {
	m    *Manager
	seq  uint64
	est  int
	bufs []blockio.Ref
	seen map[blockio.Ref]struct{}
	post []func()
	done bool
}

// Begin opens a transaction for at most est distinct buffers and returns a
// context carrying it.
func (m *Manager) Begin(ctx context.Context, est int) (context.Context, *Tx, error) {
	if err := ctx.Err(); err != nil {
		return ctx, nil, err
	}
	if err := m.faults.Check(); err != nil {
		return ctx, nil, err
	}
	if FromContext(ctx) != nil {
		return ctx, nil, ErrNested
	}
	if est <= 0 {
		return ctx, nil, fmt.Errorf("tx: invalid block estimate %d", est)
	}
	t := &Tx{
		m:    m,
		seq:  m.seq.Add(1),
		est:  est,
		seen: make(map[blockio.Ref]struct{}, est),
	}
	m.active.Add(1)
	return context.WithValue(ctx, ctxKey{}, t), t, nil
}

// FromContext returns the transaction attached to ctx, or nil.
func FromContext(ctx context.Context) *Tx {
	t, _ := ctx.Value(ctxKey{}).(*Tx)
	return t
}

// AddBuffer adds ref to the transaction carried by ctx. where names the
// structure being changed, for the fault message.
func (m *Manager) AddBuffer(ctx context.Context, ref blockio.Ref, where string) error {
	t := FromContext(ctx)
	if t == nil || t.done {
		return m.faults.Fault(where, "block %d modified outside a transaction", m.arena.Blkno(ref))
	}
	return t.add(ref, where)
}

func (t *Tx) add(ref blockio.Ref, where string) error {
	if _, ok := t.seen[ref]; ok {
		return nil
	}
	if len(t.bufs) >= t.est {
		return t.m.faults.Fault(where, "transaction %d exceeded its estimate of %d blocks", t.seq, t.est)
	}
	if err := t.m.arena.Hold(ref); err != nil {
		return err
	}
	if err := t.m.arena.MarkDirty(ref); err != nil {
		t.m.arena.Release(ref)
		return err
	}
	t.seen[ref] = struct{}{}
	t.bufs = append(t.bufs, ref)
	return nil
}

// AfterCommit queues fn to run once the transaction carried by ctx has
// written its buffers. A rollback drops it. With no open transaction fn
// runs at once.
func AfterCommit(ctx context.Context, fn func()) {
	t := FromContext(ctx)
	if t == nil || t.done {
		fn()
		return
	}
	t.post = append(t.post, fn)
}

// Len returns the number of buffers in the transaction.
func (t *Tx) Len() int { return len(t.bufs) }

// Sequence returns the transaction's sequence number.
func (t *Tx) Sequence() uint64 { return t.seq }

// Commit writes the transaction's buffers to the device and flushes them.
//
// A withdrawn instance rolls the transaction back instead and returns
// ErrWithdrawn. If a write fails the remaining buffers are discarded.
func (t *Tx) Commit(ctx context.Context) error {
	if t.done {
		return ErrDone
	}
	if err := ctx.Err(); err != nil {
		t.Rollback()
		return err
	}
	if err := t.m.faults.Check(); err != nil {
		t.Rollback()
		return err
	}
	t.finish()

	t.m.mu.Lock()
	defer t.m.mu.Unlock()

	for i, ref := range t.bufs {
		off, n, err := t.m.arena.Write(ref)
		if err != nil {
			t.discard(t.bufs[i:])
			t.m.arena.Release(ref)
			for _, r := range t.bufs[i+1:] {
				t.m.arena.Release(r)
			}
			t.m.dt.Reset()
			return fmt.Errorf("commit tx %d: %w", t.seq, err)
		}
		t.m.dt.Add(int(off), n)
		t.m.arena.Release(ref)
	}
	for _, fn := range t.post {
		fn()
	}

	if err := t.m.dt.Flush(ctx, t.m.mode); err != nil {
		return fmt.Errorf("flush tx %d: %w", t.seq, err)
	}
	return nil
}

// Rollback discards the transaction's changes. It is a no-op once the
// transaction has finished.
func (t *Tx) Rollback() {
	if t.done {
		return
	}
	t.finish()
	t.discard(t.bufs)
	for _, ref := range t.bufs {
		t.m.arena.Release(ref)
	}
}

func (t *Tx) discard(refs []blockio.Ref) {
	for _, ref := range refs {
		_ = t.m.arena.Forget(ref)
	}
}

func (t *Tx) finish() {
	t.done = true
	t.m.active.Add(-1)
}

// CurrentSequence returns the sequence number of the last transaction begun.
func (m *Manager) CurrentSequence() uint64 {
	return m.seq.Load()
}

// Active returns the number of open transactions.
func (m *Manager) Active() int {
	return int(m.active.Load())
}

// Transact runs fn in a new transaction for est buffers. The transaction
// commits when fn returns nil and rolls back otherwise.
func (m *Manager) Transact(ctx context.Context, est int, fn func(ctx context.Context) error) error {
	tctx, t, err := m.Begin(ctx, est)
	if err != nil {
		return err
	}
	if err := fn(tctx); err != nil {
		t.Rollback()
		return err
	}
	return t.Commit(ctx)
}

// WriteThrough writes ref to the device immediately, outside any
// transaction, and records the range for the next flush.
func (m *Manager) WriteThrough(ref blockio.Ref) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	off, n, err := m.arena.Write(ref)
	if err != nil {
		return err
	}
	m.dt.Add(int(off), n)
	return nil
}
