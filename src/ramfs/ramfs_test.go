package ramfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"ustr"
)

func TestCreateFileThenReadWriteRoundtrip(t *testing.T) {
	fs := New()
	id, err := fs.CreateFile(fs.RootObjectID(), ustr.Ustr("hello.txt"))
	require.Zero(t, err, "CreateFile")

	n, err := fs.Write(id, defs.SeekStart(0), []byte("hi"))
	require.Zero(t, err, "Write")
	require.Equal(t, 2, n)

	buf := make([]byte, 16)
	n, err = fs.Read(id, defs.SeekStart(0), buf)
	require.Zero(t, err, "Read")
	require.Equal(t, "hi", string(buf[:n]))
}

func TestCreateDirectorySeedsSelfReferences(t *testing.T) {
	fs := New()
	id, err := fs.CreateDirectory(fs.RootObjectID(), ustr.Ustr("sub"))
	require.Zero(t, err, "CreateDirectory")

	resolved, err := fs.ResolvePathRel(id, []ustr.Ustr{ustr.Ustr(".")})
	require.Zero(t, err)
	require.Equal(t, id, resolved, "expected '.' to resolve to itself")

	parent, err := fs.ResolvePathRel(id, []ustr.Ustr{ustr.Ustr("..")})
	require.Zero(t, err)
	require.Equal(t, fs.RootObjectID(), parent, "expected '..' to resolve to root")
}

func TestResolvePathRelWalksMultipleComponents(t *testing.T) {
	fs := New()
	sub, _ := fs.CreateDirectory(fs.RootObjectID(), ustr.Ustr("a"))
	file, _ := fs.CreateFile(sub, ustr.Ustr("b.txt"))

	got, err := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("a"), ustr.Ustr("b.txt")})
	require.Zero(t, err)
	require.Equal(t, file, got, "expected to resolve to the created file id")
}

func TestRemoveRefusesNonEmptyDirectory(t *testing.T) {
	fs := New()
	sub, _ := fs.CreateDirectory(fs.RootObjectID(), ustr.Ustr("a"))
	fs.CreateFile(sub, ustr.Ustr("b.txt"))

	require.Equal(t, defs.EDIRNOTEMPTY, fs.Remove(fs.RootObjectID(), "a"))
}

func TestRemoveDeletesEmptyDirectoryAndFreesObject(t *testing.T) {
	fs := New()
	sub, _ := fs.CreateDirectory(fs.RootObjectID(), ustr.Ustr("a"))

	require.Zero(t, fs.Remove(fs.RootObjectID(), "a"), "Remove")

	_, err := fs.AttrsOf(sub)
	require.Equal(t, defs.ENOTFOUND, err, "expected removed directory to be freed")

	_, err = fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("a")})
	require.Equal(t, defs.ENOTFOUND, err, "expected 'a' to no longer resolve")
}

func TestOnCloseFreesObjectOnceUnlinkedAndClosed(t *testing.T) {
	fs := New()
	id, _ := fs.CreateFile(fs.RootObjectID(), ustr.Ustr("f.txt"))
	require.Zero(t, fs.OnOpen(id), "OnOpen")

	// Unlinked while still open: object must survive until OnClose.
	require.Zero(t, fs.Remove(fs.RootObjectID(), "f.txt"), "Remove")

	_, err := fs.AttrsOf(id)
	require.Zero(t, err, "expected object to survive while a handle is open")

	require.Zero(t, fs.OnClose(id), "OnClose")

	_, err = fs.AttrsOf(id)
	require.Equal(t, defs.ENOTFOUND, err, "expected object to be freed after last close")
}

func TestMountDeviceSendCommandForwards(t *testing.T) {
	fs := New()
	dev := &fakeDevice{}
	id, err := fs.MountDevice(fs.RootObjectID(), ustr.Ustr("null"), dev)
	require.Zero(t, err, "MountDevice")

	_, err = fs.SendCommand(id, 7, 0)
	require.Zero(t, err, "SendCommand")
	require.Equal(t, 7, dev.lastCmd, "expected command to reach the device")
}

type fakeDevice struct{ lastCmd int }

func (d *fakeDevice) Read(off int64, buf []byte) (int, defs.Err_t)  { return 0, 0 }
func (d *fakeDevice) Write(off int64, buf []byte) (int, defs.Err_t) { return len(buf), 0 }
func (d *fakeDevice) Sync() defs.Err_t                              { return 0 }
func (d *fakeDevice) SendCommand(cmd int, arg uintptr) (uintptr, defs.Err_t) {
	d.lastCmd = cmd
	return 0, 0
}
func (d *fakeDevice) Mmap(offset int64, pages int) (uintptr, defs.Err_t) { return 0, defs.ENOTSUPPORTED }
