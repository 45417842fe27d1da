package dir

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/internal/format"
)

// leafFunc is called once per distinct leaf chain in the table: index is the
// first slot pointing at the chain and length the number of slots that do.
type leafFunc func(ctx context.Context, index, length uint32, blk uint64) error

func (d *Dir) foreachLeaf(ctx context.Context, fn leafFunc) error {
	hsize, err := d.hsize()
	if err != nil {
		return err
	}
	depth := d.ip.Di.Depth

	index := uint32(0)
	for index < hsize {
		blk, err := d.leafNr(ctx, index)
		if err != nil {
			return err
		}
		if blk == 0 {
			index++
			continue
		}
		l, err := d.getLeaf(ctx, blk)
		if err != nil {
			return err
		}
		ldepth := l.hdr.Depth
		d.release(l)
		if ldepth > depth {
			return d.fault("leaf %d is deeper than the table (%d > %d)", blk, ldepth, depth)
		}

		length := uint32(1) << (depth - ldepth)
		if err := fn(ctx, index, length, blk); err != nil {
			return err
		}
		index = index&^(length-1) + length
	}
	if index != hsize {
		return d.fault("leaf ranges end at slot %d of %d", index, hsize)
	}
	return nil
}

// FreeLeaves returns every leaf of a hashed directory to the free metadata
// pool, one chain per transaction, clearing the table slots that pointed at
// each chain. The dinode is then retyped as a regular file so the leaves
// are never freed twice. A linear directory owns no leaves.
func (d *Dir) FreeLeaves(ctx context.Context) error {
	if d.Kind() != Hashed {
		return nil
	}
	if err := d.faults.Check(); err != nil {
		return err
	}
	if d.freer == nil || d.txr == nil {
		return fmt.Errorf("%s: freeing leaves needs a freer and a transactor", d.ip.Where())
	}

	var freed int
	err := d.foreachLeaf(ctx, func(ctx context.Context, index, length uint32, blk uint64) error {
		n, err := d.freeChain(ctx, index, length, blk)
		freed += n
		return err
	})
	if err != nil {
		return err
	}

	err = d.txr.Transact(ctx, 1, func(ctx context.Context) error {
		d.ip.Di.Type = format.FileReg
		return d.ip.Sync(ctx, d.marker)
	})
	if err != nil {
		_ = d.ip.Refresh()
		return err
	}
	d.log.Info("directory leaves freed", zap.Uint64("dir", d.ip.Addr), zap.Int("leaves", freed))
	return nil
}

func (d *Dir) freeChain(ctx context.Context, index, length uint32, blk uint64) (int, error) {
	var chain []uint64
	err := d.walkChain(ctx, blk, func(l *leaf) error {
		chain = append(chain, l.blk)
		return nil
	})
	if err != nil {
		return 0, err
	}

	size := length * 8
	jb := d.ip.Geometry().JBlockSize
	extra := 1 + int(format.DivRoundUp(uint64(size), uint64(jb))) + 1

	err = d.freer.FreeMetaBlocks(ctx, d.ip, chain, extra, func(ctx context.Context) error {
		if d.ip.Di.Blocks < uint64(len(chain)) {
			return d.fault("freeing %d leaves with only %d blocks counted", len(chain), d.ip.Di.Blocks)
		}
		d.ip.Di.Blocks -= uint64(len(chain))
		if _, err := d.table.WriteAt(ctx, make([]byte, size), int64(index)*8); err != nil {
			return err
		}
		return d.ip.Sync(ctx, d.marker)
	})
	if err != nil {
		_ = d.ip.Refresh()
		return 0, err
	}
	return len(chain), nil
}

// MetaBlocks adds the address of every leaf of the directory to c.
func (d *Dir) MetaBlocks(ctx context.Context, c BlockCollector) error {
	if d.Kind() != Hashed {
		return nil
	}
	return d.foreachLeaf(ctx, func(ctx context.Context, _, _ uint32, blk uint64) error {
		return d.walkChain(ctx, blk, func(l *leaf) error {
			return c.Add(l.blk)
		})
	})
}

// Leaves returns the leaf addresses of the directory in table order.
func (d *Dir) Leaves(ctx context.Context) ([]uint64, error) {
	var out blockList
	err := d.MetaBlocks(ctx, &out)
	return out, err
}

type blockList []uint64

func (b *blockList) Add(blk uint64) error {
	*b = append(*b, blk)
	return nil
}
