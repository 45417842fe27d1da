package mount

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshuapare/rgkit/gfs"
	"github.com/joshuapare/rgkit/gfs/bitmap"
	"github.com/joshuapare/rgkit/gfs/dir"
	"github.com/joshuapare/rgkit/gfs/mkfs"
	"github.com/joshuapare/rgkit/internal/format"
	"github.com/joshuapare/rgkit/internal/testutil"
)

func mountImage(t *testing.T) (*FS, mkfs.Result) {
	t.Helper()
	dev, res := testutil.NewImage(t, testutil.ImageOptions{})
	tun := DefaultTunables()
	tun.ClumpSize = 16
	fs, err := Mount(context.Background(), dev, Options{Tunables: tun})
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, fs.Unmount()) })
	return fs, res
}

func openRoot(t *testing.T, fs *FS) *dir.Dir {
	t.Helper()
	d, err := fs.Root(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { CloseDir(d) })
	return d
}

func openPath(t *testing.T, fs *FS, path string) *dir.Dir {
	t.Helper()
	d, err := fs.OpenPath(context.Background(), path)
	require.NoError(t, err)
	t.Cleanup(func() { CloseDir(d) })
	return d
}

func statfs(t *testing.T, fs *FS) (used, dinodes uint64) {
	t.Helper()
	st, err := fs.Statfs(context.Background())
	require.NoError(t, err)
	return st.UsedMeta, st.UsedDinodes
}

func TestMount_ReadsRegionIndex(t *testing.T) {
	fs, res := mountImage(t)
	require.Equal(t, len(res.Regions), fs.Catalog().Len())
	require.Equal(t, uint32(testutil.DefaultBlockSize), fs.Superblock().BlockSize)
	require.Equal(t, res.RootAddr, fs.Superblock().RootDi.Addr)

	st, err := fs.Statfs(context.Background())
	require.NoError(t, err)
	assert.Equal(t, res.DataBlocks(), st.Total)
	assert.Equal(t, st.Total, st.Free)
	assert.Zero(t, st.UsedDinodes)
	require.NoError(t, fs.VerifyAll(context.Background()))
}

func TestMount_RejectsBlankImage(t *testing.T) {
	dev := gfs.NewMem(make([]byte, 1<<20), testutil.DefaultBlockSize)
	_, err := Mount(context.Background(), dev, Options{})
	require.Error(t, err)
}

func TestCreate_FilesUntilHashed(t *testing.T) {
	fs, _ := mountImage(t)
	ctx := context.Background()
	root := openRoot(t, fs)
	const n = 50

	inums := make(map[string]format.Inum, n)
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("f%03d", i)
		num, err := fs.Create(ctx, root, name, format.FileReg)
		require.NoError(t, err, name)
		inums[name] = num
	}
	require.Equal(t, dir.Hashed, root.Kind())
	require.Equal(t, uint32(n+2), root.Entries())

	for name, num := range inums {
		e, err := root.Search(ctx, name)
		require.NoError(t, err)
		require.Equal(t, num, e.Inum)

		state, err := fs.BlockType(ctx, num.Addr)
		require.NoError(t, err)
		require.Equal(t, bitmap.UsedMeta, state)
	}

	_, dinodes := statfs(t, fs)
	require.Equal(t, uint64(n), dinodes)
	require.NoError(t, fs.VerifyAll(ctx))

	for name := range inums {
		require.NoError(t, fs.Remove(ctx, root, name))
	}
	_, dinodes = statfs(t, fs)
	require.Zero(t, dinodes)
	require.Equal(t, uint32(2), root.Entries())
	require.NoError(t, fs.VerifyAll(ctx))
	require.False(t, fs.Faults().Withdrawn())
}

func TestRemove_HashedDirectoryFreesEverything(t *testing.T) {
	fs, _ := mountImage(t)
	ctx := context.Background()
	root := openRoot(t, fs)
	meta0, dinodes0 := statfs(t, fs)

	_, err := fs.Create(ctx, root, "sub", format.FileDir)
	require.NoError(t, err)
	require.Equal(t, uint32(3), root.Inode().Di.Nlink)

	sub := openPath(t, fs, "sub")
	require.Equal(t, dir.Linear, sub.Kind())
	dotdot, err := sub.Search(ctx, "..")
	require.NoError(t, err)
	require.Equal(t, root.Inode().Di.Num, dotdot.Inum)

	for i := 0; i < 80; i++ {
		_, err := fs.Create(ctx, sub, fmt.Sprintf("entry-%03d", i), format.FileReg)
		require.NoError(t, err)
	}
	require.Equal(t, dir.Hashed, sub.Kind())

	err = fs.Remove(ctx, root, "sub")
	require.ErrorIs(t, err, ErrNotEmpty)

	for i := 0; i < 80; i++ {
		require.NoError(t, fs.Remove(ctx, sub, fmt.Sprintf("entry-%03d", i)))
	}
	CloseDir(sub)

	require.NoError(t, fs.Remove(ctx, root, "sub"))
	meta, dinodes := statfs(t, fs)
	require.Equal(t, meta0, meta)
	require.Equal(t, dinodes0, dinodes)
	require.Equal(t, uint32(2), root.Inode().Di.Nlink)
	require.NoError(t, fs.VerifyAll(ctx))
}

func TestCreate_Errors(t *testing.T) {
	fs, _ := mountImage(t)
	ctx := context.Background()
	root := openRoot(t, fs)

	_, err := fs.Create(ctx, root, "..", format.FileReg)
	require.ErrorIs(t, err, ErrReservedName)

	_, err = fs.Create(ctx, root, "once", format.FileReg)
	require.NoError(t, err)
	_, err = fs.Create(ctx, root, "once", format.FileReg)
	require.ErrorIs(t, err, dir.ErrExist)

	err = fs.Remove(ctx, root, "never")
	require.ErrorIs(t, err, dir.ErrNotFound)

	_, dinodes := statfs(t, fs)
	require.Equal(t, uint64(1), dinodes)
}

func TestRename(t *testing.T) {
	fs, _ := mountImage(t)
	ctx := context.Background()
	root := openRoot(t, fs)

	num, err := fs.Create(ctx, root, "a", format.FileReg)
	require.NoError(t, err)
	require.NoError(t, fs.Rename(ctx, root, "a", root, "b"))
	_, err = root.Search(ctx, "a")
	require.ErrorIs(t, err, dir.ErrNotFound)
	e, err := root.Search(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, num, e.Inum)

	_, err = fs.Create(ctx, root, "d1", format.FileDir)
	require.NoError(t, err)
	_, err = fs.Create(ctx, root, "d2", format.FileDir)
	require.NoError(t, err)
	d1 := openPath(t, fs, "d1")
	d2 := openPath(t, fs, "d2")
	_, err = fs.Create(ctx, d1, "x", format.FileDir)
	require.NoError(t, err)

	require.NoError(t, fs.Rename(ctx, d1, "x", d2, "y"))
	require.Equal(t, uint32(2), d1.Inode().Di.Nlink)
	require.Equal(t, uint32(3), d2.Inode().Di.Nlink)

	y := openPath(t, fs, "d2/y")
	dotdot, err := y.Search(ctx, "..")
	require.NoError(t, err)
	require.Equal(t, d2.Inode().Di.Num, dotdot.Inum)

	err = fs.Rename(ctx, root, "b", root, "d1")
	require.ErrorIs(t, err, dir.ErrExist)
	require.NoError(t, fs.VerifyAll(ctx))
}

func TestOpenPath_NotDirectory(t *testing.T) {
	fs, _ := mountImage(t)
	root := openRoot(t, fs)
	_, err := fs.Create(context.Background(), root, "file", format.FileReg)
	require.NoError(t, err)

	_, err = fs.OpenPath(context.Background(), "file/below")
	require.Error(t, err)
}
