package mount

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joshuapare/rgkit/gfs/dir"
	"github.com/joshuapare/rgkit/gfs/inode"
	"github.com/joshuapare/rgkit/gfs/place"
	"github.com/joshuapare/rgkit/gfs/rgrp"
	"github.com/joshuapare/rgkit/internal/format"
)

var now = time.Now

func (f *FS) dirDeps() dir.Deps {
	return dir.Deps{
		Marker:     f.txm,
		Alloc:      f.cat,
		Freer:      f.cat,
		Transactor: f.txm,
		Faults:     f.faults,
		Logger:     f.log,
	}
}

// OpenDir opens the directory whose dinode is at blk. Close it with
// CloseDir.
func (f *FS) OpenDir(ctx context.Context, blk uint64) (*dir.Dir, error) {
	ip, err := f.LoadInode(ctx, blk)
	if err != nil {
		return nil, err
	}
	d, err := dir.Open(ip, f.dirDeps())
	if err != nil {
		ip.Close()
		return nil, err
	}
	return d, nil
}

// Root opens the root directory.
func (f *FS) Root(ctx context.Context) (*dir.Dir, error) {
	return f.OpenDir(ctx, f.sb.RootDi.Addr)
}

// CloseDir releases the dinode of d.
func CloseDir(d *dir.Dir) {
	if d != nil {
		d.Inode().Close()
	}
}

// OpenPath opens the directory at a slash-separated path from the root.
// Empty components are skipped, so "" and "/" both name the root.
func (f *FS) OpenPath(ctx context.Context, path string) (*dir.Dir, error) {
	d, err := f.Root(ctx)
	if err != nil {
		return nil, err
	}
	for _, part := range strings.Split(path, "/") {
		if part == "" {
			continue
		}
		e, err := d.Search(ctx, part)
		CloseDir(d)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", part, err)
		}
		if e.Type != format.FileDir {
			return nil, fmt.Errorf("%s: %w", part, inode.ErrNotDir)
		}
		if d, err = f.OpenDir(ctx, e.Inum.Addr); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func checkUserName(name string) error {
	if name == "." || name == ".." {
		return fmt.Errorf("%w: %q", ErrReservedName, name)
	}
	return nil
}

// absent returns nil when name is not in d.
func absent(ctx context.Context, d *dir.Dir, name string) error {
	switch _, err := d.Search(ctx, name); {
	case err == nil:
		return fmt.Errorf("%w: %q", dir.ErrExist, name)
	case !errors.Is(err, dir.ErrNotFound):
		return err
	}
	return nil
}

// addEstimate bounds the buffers one directory insertion touches: the
// blocks it may allocate, the table blocks a doubling rewrites, the
// reserved region's header and bitmaps, and the dinodes.
func addEstimate(d *dir.Dir, res *place.Reservation) int {
	n := 2*int(d.MaxAddBlocks()) + 4
	if res != nil {
		n += int(res.Region().RI.Length)
	}
	return n
}

// Create allocates a new dinode of type typ and links it into d as name.
// A new directory starts linear, holding "." and "..".
func (f *FS) Create(ctx context.Context, d *dir.Dir, name string, typ uint16) (format.Inum, error) {
	if err := checkUserName(name); err != nil {
		return format.Inum{}, err
	}
	if err := absent(ctx, d, name); err != nil {
		return format.Inum{}, err
	}

	dip := d.Inode()
	res, err := f.engine.Reserve(ctx, dip, place.Request{Dinodes: 1, Meta: d.MaxAddBlocks()})
	if err != nil {
		return format.Inum{}, err
	}

	var num format.Inum
	err = f.txm.Transact(ctx, addEstimate(d, res), func(ctx context.Context) error {
		blk, err := f.cat.AllocDinode(ctx, dip)
		if err != nil {
			return err
		}
		num = format.Inum{Formal: blk, Addr: blk}
		if err := f.initDinode(ctx, dip, num, typ, res.Region().Addr()); err != nil {
			return err
		}
		if typ == format.FileDir {
			dip.Di.Nlink++
		}
		return d.Add(ctx, name, num, typ)
	})
	if err != nil {
		_ = dip.Refresh()
	}
	if rerr := f.engine.Release(res); err == nil {
		err = rerr
	}
	if err != nil {
		return format.Inum{}, err
	}

	f.quota.Change(dip.Di.UID, dip.Di.GID, +1)
	f.log.Debug("created",
		zap.Uint64("dir", dip.Addr),
		zap.String("name", name),
		zap.Uint64("inode", num.Addr),
		zap.Uint16("type", typ))
	return num, nil
}

// initDinode writes a fresh dinode at num, owned like the directory dip.
func (f *FS) initDinode(ctx context.Context, dip *inode.Inode, num format.Inum, typ uint16, region uint64) error {
	ref, err := f.cat.NewMeta(ctx, num.Addr)
	if err != nil {
		return err
	}
	defer f.arena.Release(ref)

	b := f.arena.Data(ref)
	mh, err := format.DecodeMetaHeader(b)
	if err != nil {
		return err
	}
	mh.Type, mh.Format = format.MetaTypeDI, format.FormatDI

	t := now().Unix()
	di := format.Dinode{
		Header: mh,
		Num:    num,
		Mode:   format.ModeReg,
		UID:    dip.Di.UID,
		GID:    dip.Di.GID,
		Nlink:  1,
		Blocks: 1,
		Atime:  t,
		Mtime:  t,
		Ctime:  t,
		Rgrp:   region,
		Type:   typ,
		Flags:  format.DinodeFlagJData,
	}
	if typ == format.FileDir {
		di.Mode = format.ModeDir
		di.Nlink = 2
		di.Size = uint64(f.geo.StuffedCapacity())
		di.PayloadFormat = format.FormatDE
		di.Entries = 2
	}
	format.EncodeDinode(b, di)
	if typ == format.FileDir {
		format.InitDirTail(b[format.DinodeSize:], num, dip.Di.Num)
	}
	return f.txm.AddBuffer(ctx, ref, fmt.Sprintf("inode %d", num.Addr))
}

// Remove unlinks name from d and frees its dinode. A directory must hold
// nothing but "." and ".."; its leaves and hash table are freed first.
func (f *FS) Remove(ctx context.Context, d *dir.Dir, name string) error {
	if err := checkUserName(name); err != nil {
		return err
	}
	e, err := d.Search(ctx, name)
	if err != nil {
		return err
	}
	ip, err := f.LoadInode(ctx, e.Inum.Addr)
	if err != nil {
		return err
	}
	defer ip.Close()

	isDir := ip.IsDir()
	if isDir {
		if ip.Di.Entries > 2 {
			return fmt.Errorf("%w: %q holds %d entries", ErrNotEmpty, name, ip.Di.Entries)
		}
		cd, err := dir.Open(ip, f.dirDeps())
		if err != nil {
			return err
		}
		if err := cd.FreeLeaves(ctx); err != nil {
			return err
		}
	}
	if err := f.freeStream(ctx, ip); err != nil {
		return err
	}

	rl := f.cat.NewRList()
	if err := rl.Add(ip.Addr); err != nil {
		return err
	}
	leases, err := rl.LockAll(ctx)
	if err != nil {
		return err
	}
	defer rgrp.UnlockAll(leases)

	dip := d.Inode()
	err = f.txm.Transact(ctx, rl.Blocks()+4, func(ctx context.Context) error {
		if isDir && dip.Di.Nlink > 2 {
			dip.Di.Nlink--
		}
		if err := d.Delete(ctx, name); err != nil {
			return err
		}
		return f.cat.FreeDinode(ctx, ip)
	})
	if err != nil {
		_ = dip.Refresh()
		return err
	}
	f.log.Debug("removed",
		zap.Uint64("dir", dip.Addr),
		zap.String("name", name),
		zap.Uint64("inode", ip.Addr))
	return nil
}

// freeStream returns the journaled-data blocks behind ip's content and
// leaves it an empty stuffed stream.
func (f *FS) freeStream(ctx context.Context, ip *inode.Inode) error {
	blocks := inode.NewStream(ip, f.txm, nil).Blocks()
	if len(blocks) == 0 {
		return nil
	}
	err := f.cat.FreeMetaBlocks(ctx, ip, blocks, 1, func(ctx context.Context) error {
		clear(ip.Tail())
		ip.Di.Height = 0
		ip.Di.Size = 0
		ip.Di.Blocks -= min(ip.Di.Blocks, uint64(len(blocks)))
		return ip.Sync(ctx, f.txm)
	})
	if err != nil {
		_ = ip.Refresh()
	}
	return err
}

// Rename moves the entry from in src to to in dst. A directory moved to a
// new parent has its ".." repointed and both parents' link counts
// adjusted.
func (f *FS) Rename(ctx context.Context, src *dir.Dir, from string, dst *dir.Dir, to string) error {
	if err := checkUserName(from); err != nil {
		return err
	}
	if err := checkUserName(to); err != nil {
		return err
	}
	e, err := src.Search(ctx, from)
	if err != nil {
		return err
	}
	if err := absent(ctx, dst, to); err != nil {
		return err
	}

	sip, dip := src.Inode(), dst.Inode()
	cross := sip.Addr != dip.Addr
	moveDir := cross && e.Type == format.FileDir

	var child *dir.Dir
	if moveDir {
		if e.Inum.Addr == dip.Addr {
			return fmt.Errorf("%w: %q into itself", ErrReservedName, from)
		}
		if child, err = f.OpenDir(ctx, e.Inum.Addr); err != nil {
			return err
		}
		defer CloseDir(child)
	}

	var res *place.Reservation
	need, err := dst.AddAllocRequired(ctx, to)
	if err != nil {
		return err
	}
	if need {
		if res, err = f.engine.Reserve(ctx, dip, place.Request{Meta: dst.MaxAddBlocks()}); err != nil {
			return err
		}
	}

	err = f.txm.Transact(ctx, addEstimate(dst, res)+4, func(ctx context.Context) error {
		if moveDir {
			dip.Di.Nlink++
			if sip.Di.Nlink > 2 {
				sip.Di.Nlink--
			}
			if err := child.Move(ctx, "..", dip.Di.Num, format.FileDir); err != nil {
				return err
			}
		}
		if err := dst.Add(ctx, to, e.Inum, e.Type); err != nil {
			return err
		}
		return src.Delete(ctx, from)
	})
	if err != nil {
		_ = dip.Refresh()
		_ = sip.Refresh()
		if child != nil {
			_ = child.Inode().Refresh()
		}
	}
	if res != nil {
		if rerr := f.engine.Release(res); err == nil {
			err = rerr
		}
	}
	return err
}
