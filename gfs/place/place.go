// Package place picks the region an operation allocates from and holds it
// for the duration of the operation: an in-place reservation.
//
// A reservation first tries the regions this node recently allocated from,
// with non-blocking locks so a region busy on another node is skipped.
// Failing that it scans all regions from a per-node cursor, first with
// try-locks and, if anything was skipped, once more with blocking locks.
// The region is chosen only if it can satisfy the whole request, including
// the data blocks that converting clumps of free data into free metadata
// would consume.
package place

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/glock"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/metrics"
	"github.com/joshuapare/rgkit/gfs/quota"
	"github.com/joshuapare/rgkit/gfs/rgrp"
	"github.com/joshuapare/rgkit/internal/format"
)

var (
	// ErrNoSpace is returned when no region can satisfy a request.
	ErrNoSpace = errors.New("place: no space left on device")
	// ErrEmptyRequest is returned for a request of zero blocks.
	ErrEmptyRequest = errors.New("place: empty reservation request")
	// ErrReserved is returned when the inode already holds a reservation.
	ErrReserved = errors.New("place: inode already holds a reservation")
)

// Request is the worst-case number of blocks an operation will allocate.
type Request struct {
	Dinodes uint32
	Meta    uint32
	Data    uint32
}

// Options configure an Engine.
type Options struct {
	// TryThreshold is how many failed try-locks a recent region tolerates
	// before the next attempt blocks.
	TryThreshold uint32
	Journals     uint32
	JID          uint32
	Quota        quota.Checker
	Logger       *zap.Logger
	// State may be shared with other engines of the same mount.
	State *State
}

// Engine makes reservations against a catalog.
type Engine struct {
	cat       *rgrp.Catalog
	state     *State
	quota     quota.Checker
	threshold uint32
	journals  uint32
	jid       uint32
	log       *zap.Logger
}

// NewEngine returns an engine over cat.
func NewEngine(cat *rgrp.Catalog, opts Options) *Engine {
	if opts.TryThreshold == 0 {
		opts.TryThreshold = format.DefaultTryLock
	}
	if opts.Journals == 0 {
		opts.Journals = 1
	}
	if opts.Quota == nil {
		opts.Quota = quota.Unlimited{}
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.State == nil {
		opts.State = NewState()
	}
	return &Engine{
		cat:       cat,
		state:     opts.State,
		quota:     opts.Quota,
		threshold: opts.TryThreshold,
		journals:  opts.Journals,
		jid:       opts.JID,
		log:       opts.Logger,
	}
}

// State returns the engine's placement state.
func (e *Engine) State() *State { return e.state }

// Reservation is a locked region set aside for one operation on one inode.
type Reservation struct {
	ip       *inode.Inode
	alloc    *inode.Alloc
	lease    *rgrp.Lease
	source   string
	released bool
}

// Region returns the reserved region.
func (r *Reservation) Region() *rgrp.Region { return r.lease.Region() }

// Alloc returns the requested, reserved and allocated counts.
func (r *Reservation) Alloc() *inode.Alloc { return r.alloc }

// Source reports how the region was found: "recent" or "forward".
func (r *Reservation) Source() string { return r.source }

// Reserve finds a region that can satisfy req and locks it exclusively for
// ip. The allocators draw on it through ip.Alloc until Release.
func (e *Engine) Reserve(ctx context.Context, ip *inode.Inode, req Request) (*Reservation, error) {
	if req.Dinodes == 0 && req.Meta == 0 && req.Data == 0 {
		return nil, ErrEmptyRequest
	}
	if ip.Alloc != nil && ip.Alloc.Region >= 0 {
		return nil, fmt.Errorf("%s: %w", ip.Where(), ErrReserved)
	}
	if err := e.cat.Faults().Check(); err != nil {
		return nil, err
	}
	if blocks := int64(req.Meta) + int64(req.Data); blocks > 0 {
		if err := e.quota.Check(ip.Di.UID, ip.Di.GID, blocks); err != nil {
			return nil, err
		}
	}

	al := inode.NewAlloc(req.Dinodes, req.Meta, req.Data)
	l, source, err := e.getLocal(ctx, ip, al)
	if err != nil {
		if errors.Is(err, ErrNoSpace) {
			metrics.Reservations.WithLabelValues("nospace").Inc()
		}
		return nil, err
	}
	metrics.Reservations.WithLabelValues(source).Inc()

	al.Region = l.Region().Index
	ip.Alloc = al
	e.log.Debug("reserved region",
		zap.Uint64("inode", ip.Addr),
		zap.Uint64("rgrp", l.Region().Addr()),
		zap.String("source", source),
		zap.Uint32("meta", al.ReservedMeta),
		zap.Uint32("data", al.ReservedData))
	return &Reservation{ip: ip, alloc: al, lease: l, source: source}, nil
}

// Release checks that the operation stayed within its reservation and
// unlocks the region. It always unlocks; overruns are reported as an error
// wrapping consist.ErrConsistency. Releasing twice is a no-op.
func (e *Engine) Release(res *Reservation) error {
	if res == nil || res.released {
		return nil
	}
	res.released = true
	defer func() {
		res.lease.Unlock()
		if res.ip.Alloc == res.alloc {
			res.ip.Alloc = nil
		}
	}()

	al := res.alloc
	var problems []string
	if al.AllocedDinodes > al.RequestedDinodes {
		problems = append(problems, fmt.Sprintf("dinodes %d > requested %d", al.AllocedDinodes, al.RequestedDinodes))
	}
	if al.AllocedMeta > al.ReservedMeta {
		problems = append(problems, fmt.Sprintf("meta %d > reserved %d", al.AllocedMeta, al.ReservedMeta))
	}
	if al.AllocedData > al.ReservedData {
		problems = append(problems, fmt.Sprintf("data %d > reserved %d", al.AllocedData, al.ReservedData))
	}
	if len(problems) == 0 {
		return nil
	}
	e.log.Warn("reservation overrun",
		zap.Uint64("inode", res.ip.Addr),
		zap.Uint64("rgrp", res.Region().Addr()),
		zap.Strings("problems", problems))
	return fmt.Errorf("%s: %w: reservation overrun: %v", res.Region().Where(), consist.ErrConsistency, problems)
}

// tryFit reports whether a region with header h can satisfy al, and if so
// records the reserved counts. Metadata beyond the free metadata pool is
// paid for in whole clumps of free data.
func tryFit(h format.RgrpHeader, clump uint32, al *inode.Alloc) bool {
	free := h.Free
	if free < al.RequestedData {
		return false
	}
	free -= al.RequestedData

	freeMeta := h.FreeMeta
	metaRes := al.RequestedMeta + al.RequestedDinodes
	dataRes := al.RequestedData
	for freeMeta < metaRes {
		if free < clump {
			return false
		}
		free -= clump
		freeMeta += clump
		dataRes += clump
	}

	al.ReservedMeta = metaRes
	al.ReservedData = dataRes
	return true
}

func (e *Engine) next(r *rgrp.Region) *rgrp.Region {
	if n := e.cat.Next(r); n != nil {
		return n
	}
	return e.cat.First()
}

func (e *Engine) lockFit(ctx context.Context, r *rgrp.Region, flags glock.Flags, al *inode.Alloc) (*rgrp.Lease, error) {
	l, err := e.cat.Lock(ctx, r, glock.Exclusive, flags)
	if err != nil {
		return nil, err
	}
	if !tryFit(l.Header(), e.cat.ClumpSize(), al) {
		l.Unlock()
		return nil, nil
	}
	return l, nil
}

func (e *Engine) getLocal(ctx context.Context, ip *inode.Inode, al *inode.Alloc) (*rgrp.Lease, string, error) {
	for r := e.state.recentFirst(ip.LastRgAlloc); r != nil; {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		flags := glock.FlagTry
		if e.state.tryCount(r) >= e.threshold {
			flags = 0
		}
		l, err := e.lockFit(ctx, r, flags, al)
		switch {
		case err == nil && l != nil:
			e.state.tryReset(r)
			ip.LastRgAlloc = r.Addr()
			return l, "recent", nil
		case err == nil:
			r = e.state.recentNext(r, true)
		case errors.Is(err, glock.ErrTryFailed):
			metrics.LockTryFailures.Inc()
			e.state.tryFailed(r)
			r = e.state.recentNext(r, false)
		default:
			return nil, "", err
		}
	}

	begin := e.state.forwardGet(e.cat, e.journals, e.jid)
	if begin == nil {
		return nil, "", ErrNoSpace
	}
	flags := glock.FlagTry
	skipped, loops := 0, 0
	for r := begin; ; {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}
		l, err := e.lockFit(ctx, r, flags, al)
		switch {
		case err == nil && l != nil:
			ip.LastRgAlloc = r.Addr()
			e.state.recentAdd(r, e.cat.Len()/int(e.journals))
			e.state.forwardSet(e.next(r))
			return l, "forward", nil
		case err == nil:
		case errors.Is(err, glock.ErrTryFailed):
			metrics.LockTryFailures.Inc()
			skipped++
		default:
			return nil, "", err
		}

		r = e.next(r)
		if r == begin {
			if loops++; loops >= 2 || skipped == 0 {
				return nil, "", ErrNoSpace
			}
			flags = 0
		}
	}
}
