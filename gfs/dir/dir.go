package dir

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/blockio"
	"github.com/joshuapare/rgkit/gfs/consist"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/metrics"
	"github.com/joshuapare/rgkit/internal/format"
)

// Kind is the representation a directory currently uses.
type Kind int

const (
	Linear Kind = iota
	Hashed
)

func (k Kind) String() string {
	if k == Hashed {
		return "hashed"
	}
	return "linear"
}

// MetaFreer frees a set of metadata blocks in one transaction of its own,
// running after inside that transaction. rgrp.Catalog implements it.
type MetaFreer interface {
	FreeMetaBlocks(ctx context.Context, ip *inode.Inode, blocks []uint64, extra int, after func(ctx context.Context) error) error
}

// Transactor runs fn in a transaction sized for est buffers.
type Transactor interface {
	Transact(ctx context.Context, est int, fn func(ctx context.Context) error) error
}

// BlockCollector receives block addresses. rgrp.RList implements it.
type BlockCollector interface {
	Add(blk uint64) error
}

// Deps are the collaborators a Dir works through.
type Deps struct {
	Marker inode.Marker
	// Alloc hands out leaf and hash table blocks. It draws on the
	// reservation attached to the directory inode.
	Alloc      inode.MetaAllocator
	Freer      MetaFreer
	Transactor Transactor
	Faults     *consist.Tracker
	Logger     *zap.Logger

	// MaxDepth caps the hash table depth. Zero means MaxDepth(geometry).
	MaxDepth uint16
}

// Dir is an open directory.
type Dir struct {
	ip       *inode.Inode
	table    *inode.Stream
	marker   inode.Marker
	alloc    inode.MetaAllocator
	freer    MetaFreer
	txr      Transactor
	faults   *consist.Tracker
	log      *zap.Logger
	maxDepth uint16
}

var now = time.Now

// MaxDepth returns the deepest hash table a directory can hold: the format
// limit, or less when the dinode's direct pointers cannot address a larger
// table.
func MaxDepth(g gfs.Geometry) uint16 {
	limit := uint64(g.DiPtrs) * uint64(g.JBlockSize) / 8
	var d uint16
	for d < format.DirMaxDepth && uint64(1)<<(d+1) <= limit {
		d++
	}
	return d
}

// Open wraps the directory inode ip. ip stays owned by the caller.
func Open(ip *inode.Inode, d Deps) (*Dir, error) {
	if !ip.IsDir() {
		return nil, fmt.Errorf("%s: %w", ip.Where(), inode.ErrNotDir)
	}
	if d.Faults == nil {
		d.Faults = consist.New(d.Logger)
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	geo := ip.Geometry()
	maxDepth := MaxDepth(geo)
	if d.MaxDepth != 0 {
		maxDepth = min(max(d.MaxDepth, geo.InitialDepth()), maxDepth)
	}
	return &Dir{
		ip:       ip,
		table:    inode.NewStream(ip, d.Marker, d.Alloc),
		marker:   d.Marker,
		alloc:    d.Alloc,
		freer:    d.Freer,
		txr:      d.Transactor,
		faults:   d.Faults,
		log:      d.Logger,
		maxDepth: maxDepth,
	}, nil
}

// Inode returns the directory inode.
func (d *Dir) Inode() *inode.Inode { return d.ip }

// Kind reports the current representation.
func (d *Dir) Kind() Kind {
	if d.ip.IsHashed() {
		return Hashed
	}
	return Linear
}

// Entries returns the number of live entries.
func (d *Dir) Entries() uint32 { return d.ip.Di.Entries }

// Depth returns the hash table depth, or 0 for a linear directory.
func (d *Dir) Depth() uint16 {
	if d.Kind() == Linear {
		return 0
	}
	return d.ip.Di.Depth
}

// MaxAddBlocks is the most metadata blocks a single Add can allocate: a
// full-size hash table, a leaf per level of depth, and two more for the
// conversion and an overflow leaf.
func (d *Dir) MaxAddBlocks() uint32 {
	g := d.ip.Geometry()
	table := format.DivRoundUp(uint64(8)<<d.maxDepth, uint64(g.JBlockSize))
	return uint32(table) + 2 + uint32(d.maxDepth)
}

func checkName(name string) error {
	switch {
	case len(name) == 0:
		return ErrEmptyName
	case len(name) > format.MaxNameLen:
		return fmt.Errorf("%w: %d bytes", ErrNameTooLong, len(name))
	}
	return nil
}

func (d *Dir) fault(msg string, args ...any) error {
	return d.faults.Fault(d.ip.Where(), msg, args...)
}

func (d *Dir) pin(ctx context.Context, ref blockio.Ref) error {
	return d.marker.AddBuffer(ctx, ref, d.ip.Where())
}

func (d *Dir) touch() {
	t := now().Unix()
	d.ip.Di.Mtime = t
	d.ip.Di.Ctime = t
}

// linear returns the entry block of a linear directory.
func (d *Dir) linear() (block, error) {
	if d.ip.Di.Height != 0 {
		return block{}, d.fault("linear directory is not stuffed (height %d)", d.ip.Di.Height)
	}
	return block{b: d.ip.Block(), start: format.DinodeSize, where: d.ip.Where(), faults: d.faults}, nil
}

// Search looks name up.
func (d *Dir) Search(ctx context.Context, name string) (Entry, error) {
	if err := checkName(name); err != nil {
		return Entry{}, err
	}
	switch d.Kind() {
	case Hashed:
		return d.hashedSearch(ctx, name)
	default:
		return d.linearSearch(name)
	}
}

// Add inserts an entry for name. It fails with ErrExist if name is present.
// A linear directory that cannot hold the entry is converted to hashed.
func (d *Dir) Add(ctx context.Context, name string, inum format.Inum, typ uint16) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := d.faults.Check(); err != nil {
		return err
	}
	switch _, err := d.Search(ctx, name); {
	case err == nil:
		return fmt.Errorf("%w: %q", ErrExist, name)
	case !errors.Is(err, ErrNotFound):
		return err
	}
	switch d.Kind() {
	case Hashed:
		return d.hashedAdd(ctx, []byte(name), inum, typ)
	default:
		return d.linearAdd(ctx, []byte(name), inum, typ)
	}
}

// Delete removes the entry for name.
func (d *Dir) Delete(ctx context.Context, name string) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := d.faults.Check(); err != nil {
		return err
	}
	switch d.Kind() {
	case Hashed:
		return d.hashedDelete(ctx, name)
	default:
		return d.linearDelete(ctx, name)
	}
}

// Move points the entry for name at a different inode and type, as
// rename does for "..".
func (d *Dir) Move(ctx context.Context, name string, inum format.Inum, typ uint16) error {
	if err := checkName(name); err != nil {
		return err
	}
	if err := d.faults.Check(); err != nil {
		return err
	}
	switch d.Kind() {
	case Hashed:
		return d.hashedMove(ctx, name, inum, typ)
	default:
		return d.linearMove(ctx, name, inum, typ)
	}
}

// AddAllocRequired reports whether adding name would need a new block.
func (d *Dir) AddAllocRequired(ctx context.Context, name string) (bool, error) {
	if err := checkName(name); err != nil {
		return false, err
	}
	switch d.Kind() {
	case Hashed:
		return d.hashedAllocRequired(ctx, name)
	default:
		k, err := d.linear()
		if err != nil {
			return false, err
		}
		_, err = k.slot(len(name), int(d.ip.Di.Entries))
		switch err {
		case nil:
			return false, nil
		case errNoRoom:
			return true, nil
		}
		return false, err
	}
}

func (d *Dir) linearSearch(name string) (Entry, error) {
	k, err := d.linear()
	if err != nil {
		return Entry{}, err
	}
	off, _, err := k.search([]byte(name), format.Hash([]byte(name)), int(d.ip.Di.Entries))
	if err != nil {
		return Entry{}, err
	}
	return k.entry(off), nil
}

func (d *Dir) linearAdd(ctx context.Context, name []byte, inum format.Inum, typ uint16) error {
	k, err := d.linear()
	if err != nil {
		return err
	}
	count := int(d.ip.Di.Entries)
	off, err := k.slot(len(name), count)
	if err == errNoRoom {
		if err := d.MakeHashed(ctx); err != nil {
			return err
		}
		return d.hashedAdd(ctx, name, inum, typ)
	}
	if err != nil {
		return err
	}

	if err := d.pin(ctx, d.ip.Ref()); err != nil {
		return err
	}
	off = k.carve(off, len(name), count)
	k.fill(off, name, format.Hash(name), inum, typ)
	d.ip.Di.Entries++
	d.touch()
	return d.ip.Sync(ctx, d.marker)
}

func (d *Dir) linearDelete(ctx context.Context, name string) error {
	k, err := d.linear()
	if err != nil {
		return err
	}
	cur, prev, err := k.search([]byte(name), format.Hash([]byte(name)), int(d.ip.Di.Entries))
	if err != nil {
		return err
	}
	if err := d.pin(ctx, d.ip.Ref()); err != nil {
		return err
	}
	if err := k.del(prev, cur); err != nil {
		return err
	}
	if d.ip.Di.Entries == 0 {
		return d.fault("deleting from a directory with no entries")
	}
	d.ip.Di.Entries--
	d.touch()
	return d.ip.Sync(ctx, d.marker)
}

func (d *Dir) linearMove(ctx context.Context, name string, inum format.Inum, typ uint16) error {
	k, err := d.linear()
	if err != nil {
		return err
	}
	cur, _, err := k.search([]byte(name), format.Hash([]byte(name)), int(d.ip.Di.Entries))
	if err != nil {
		return err
	}
	if err := d.pin(ctx, d.ip.Ref()); err != nil {
		return err
	}
	k.retarget(cur, inum, typ)
	d.touch()
	return d.ip.Sync(ctx, d.marker)
}

// MakeHashed converts a linear directory: its entries move into a new leaf
// and the dinode's content becomes a table whose every slot points at that
// leaf. A hashed directory is left alone.
func (d *Dir) MakeHashed(ctx context.Context) error {
	if d.Kind() == Hashed {
		return nil
	}
	if err := d.faults.Check(); err != nil {
		return err
	}
	k, err := d.linear()
	if err != nil {
		return err
	}
	count := d.ip.Di.Entries
	if count >= 1<<16 {
		return d.fault("%d entries do not fit a leaf count", count)
	}

	l, err := d.newLeaf(ctx, 0)
	if err != nil {
		return err
	}
	defer d.release(l)

	if count > 0 {
		copy(l.b[format.LeafHeaderSize:], k.b[format.DinodeSize:])
		l.setEntries(uint16(count))
		lb := l.block(d)
		last, err := lb.lastLive(int(count))
		if err != nil {
			return err
		}
		grown := lb.recLen(last) + format.DinodeSize - format.LeafHeaderSize
		format.PutU16(lb.b, last+format.DirentRecLenOffset, uint16(grown))
	}

	if err := d.pin(ctx, d.ip.Ref()); err != nil {
		return err
	}
	geo := d.ip.Geometry()
	tail := d.ip.Tail()
	clear(tail)
	for x := uint32(0); x < geo.HashPtrs; x++ {
		format.PutU64(tail, int(x*8), l.blk)
	}

	di := &d.ip.Di
	di.Size = uint64(geo.HashBlockSize)
	di.Blocks++
	di.Flags |= format.DinodeFlagExHash
	di.PayloadFormat = 0
	di.Depth = geo.InitialDepth()
	if err := d.ip.Sync(ctx, d.marker); err != nil {
		return err
	}

	metrics.DirConversions.Inc()
	d.log.Info("directory converted to hashed",
		zap.Uint64("dir", d.ip.Addr),
		zap.Uint32("entries", count),
		zap.Uint64("leaf", l.blk),
		zap.Uint16("depth", di.Depth))
	return nil
}
