package mkfs

import (
	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/internal/format"
)

type writer struct {
	dev *gfs.Device
	geo gfs.Geometry
}

// block returns a zeroed view of block n.
func (w writer) block(n uint64) ([]byte, error) {
	b, err := w.dev.Block(n)
	if err != nil {
		return nil, err
	}
	clear(b)
	return b, nil
}

func (w writer) region(ri format.Rindex) error {
	b, err := w.block(ri.Addr)
	if err != nil {
		return err
	}
	format.EncodeRgrpHeader(b, format.RgrpHeader{
		Header: format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeRG, Format: format.FormatRG},
		Free:   ri.Data,
	})
	for x := uint32(1); x < ri.Length; x++ {
		b, err := w.block(ri.Addr + uint64(x))
		if err != nil {
			return err
		}
		format.EncodeMetaHeader(b, format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeRB, Format: format.FormatRB})
	}
	return nil
}

func (w writer) dinode(addr uint64, di format.Dinode) ([]byte, error) {
	b, err := w.block(addr)
	if err != nil {
		return nil, err
	}
	di.Header = format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeDI, Format: format.FormatDI}
	di.Num = format.Inum{Formal: addr, Addr: addr}
	format.EncodeDinode(b, di)
	return b, nil
}

// rindex writes the region index dinode, stuffed when it fits and spread
// over journaled-data blocks otherwise.
func (w writer) rindex(addr uint64, jd []uint64, regions []format.Rindex) error {
	data := make([]byte, len(regions)*format.RindexSize)
	for i, ri := range regions {
		format.EncodeRindex(data[i*format.RindexSize:], ri)
	}

	di := format.Dinode{
		Mode:          format.ModeReg,
		Nlink:         1,
		Size:          uint64(len(data)),
		Blocks:        1 + uint64(len(jd)),
		Type:          format.FileReg,
		Flags:         format.DinodeFlagJData,
		PayloadFormat: format.FormatRI,
	}
	if len(jd) > 0 {
		di.Height = 1
	}
	b, err := w.dinode(addr, di)
	if err != nil {
		return err
	}
	tail := b[format.DinodeSize:]
	if len(jd) == 0 {
		copy(tail, data)
		return nil
	}

	step := int(w.geo.JBlockSize)
	for i, blk := range jd {
		format.PutU64(tail, i*8, blk)
		jb, err := w.block(blk)
		if err != nil {
			return err
		}
		format.EncodeMetaHeader(jb, format.MetaHeader{Magic: format.Magic, Type: format.MetaTypeJD, Format: format.FormatJD})
		lo := i * step
		copy(jb[format.MetaHeaderSize:], data[lo:min(lo+step, len(data))])
	}
	return nil
}

// root writes an empty linear directory holding "." and "..", both
// pointing at itself.
func (w writer) root(addr uint64) error {
	di := format.Dinode{
		Mode:          format.ModeDir,
		Nlink:         2,
		Size:          uint64(w.geo.StuffedCapacity()),
		Blocks:        1,
		Type:          format.FileDir,
		Flags:         format.DinodeFlagJData,
		PayloadFormat: format.FormatDE,
		Entries:       2,
	}
	b, err := w.dinode(addr, di)
	if err != nil {
		return err
	}
	self := format.Inum{Formal: addr, Addr: addr}
	format.InitDirTail(b[format.DinodeSize:], self, self)
	return nil
}
