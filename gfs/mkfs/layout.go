package mkfs

import (
	"fmt"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/internal/format"
)

// layout decides where everything goes. The superblock sits at 64 KiB, the
// region index and root dinodes follow it, then the region index data
// blocks (when the index is too big to stuff), then the regions.
type layout struct {
	geo        gfs.Geometry
	total      uint64
	rgrpBlocks uint32

	sbAddr     uint64
	rindexAddr uint64
	rootAddr   uint64
	rindexJD   []uint64
	regions    []format.Rindex
}

func (l *layout) plan() error {
	if l.rgrpBlocks < 2+minRgrpData {
		return fmt.Errorf("%w: %d blocks per region", format.ErrBadGeometry, l.rgrpBlocks)
	}
	l.sbAddr = format.SuperblockBlock(l.geo.BlockSize)
	l.rindexAddr = l.sbAddr + 1
	l.rootAddr = l.sbAddr + 2

	// The number of index data blocks depends on the number of regions,
	// which depends on where the regions start. It only grows, so iterate.
	jd := uint64(0)
	for {
		start := l.rootAddr + 1 + jd
		regions, err := l.regionsFrom(start)
		if err != nil {
			return err
		}
		need := uint64(0)
		size := uint64(len(regions)) * format.RindexSize
		if size > uint64(l.geo.StuffedCapacity()) {
			need = format.DivRoundUp(size, uint64(l.geo.JBlockSize))
		}
		if need > uint64(l.geo.DiPtrs) {
			return fmt.Errorf("%w: %d regions overflow the region index", format.ErrBadGeometry, len(regions))
		}
		if need <= jd {
			l.regions = regions
			for i := uint64(0); i < need; i++ {
				l.rindexJD = append(l.rindexJD, l.rootAddr+1+i)
			}
			return nil
		}
		jd = need
	}
}

func (l *layout) regionsFrom(start uint64) ([]format.Rindex, error) {
	var out []format.Rindex
	for addr := start; addr < l.total; {
		span := min(uint64(l.rgrpBlocks), l.total-addr)
		ri, ok := regionGeometry(addr, uint32(span), l.geo.BlockSize)
		if !ok {
			break
		}
		out = append(out, ri)
		addr = ri.Data1 + uint64(ri.Data)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %d blocks, first region at %d", ErrTooSmall, l.total, start)
	}
	return out, nil
}

// regionGeometry fits a region into span blocks at addr: the fewest
// header and bitmap blocks whose bitmap covers the rest, rounded down to
// whole bitmap bytes.
func regionGeometry(addr uint64, span, bsize uint32) (format.Rindex, bool) {
	for length := uint32(1); length < span; length++ {
		data := (span - length) &^ (format.BlocksPerByte - 1)
		if data < minRgrpData {
			return format.Rindex{}, false
		}
		capacity := (bsize - format.RgrpHeaderSize) + (length-1)*(bsize-format.MetaHeaderSize)
		if data/format.BlocksPerByte <= capacity {
			return format.Rindex{
				Addr:     addr,
				Length:   length,
				Data1:    addr + uint64(length),
				Data:     data,
				BitBytes: data / format.BlocksPerByte,
			}, true
		}
	}
	return format.Rindex{}, false
}
