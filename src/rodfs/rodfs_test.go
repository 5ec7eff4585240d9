package rodfs

import (
	"testing"

	"github.com/stretchr/testify/require"

	"defs"
	"ustr"
)

type fakeProcessInfo struct {
	pid   int
	name  string
	alive bool
}

func (f fakeProcessInfo) Pid() int            { return f.pid }
func (f fakeProcessInfo) DisplayName() string { return f.name }
func (f fakeProcessInfo) IsAlive() bool       { return f.alive }

func TestResolveStaticFileAtRoot(t *testing.T) {
	fs := New(nil, "test-kernel-1.0")
	id, err := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("version")})
	require.Zero(t, err, "ResolvePathRel")

	buf := make([]byte, 32)
	n, err := fs.Read(id, defs.SeekStart(0), buf)
	require.Zero(t, err, "Read")
	require.Equal(t, "test-kernel-1.0", string(buf[:n]))
}

func TestProcSubtreeMaterializesOnFirstReference(t *testing.T) {
	scanner := func(pid int) (ProcessInfo, bool) {
		if pid == 42 {
			return fakeProcessInfo{pid: 42, name: "init", alive: true}, true
		}
		return nil, false
	}
	fs := New(scanner, "v")

	id, err := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("proc"), ustr.Ustr("42"), ustr.Ustr("name")})
	require.Zero(t, err, "ResolvePathRel")

	buf := make([]byte, 32)
	n, err := fs.Read(id, defs.SeekStart(0), buf)
	require.Zero(t, err, "Read")
	require.Equal(t, "init", string(buf[:n]))
}

func TestProcSubtreeUnknownPidFails(t *testing.T) {
	scanner := func(pid int) (ProcessInfo, bool) { return nil, false }
	fs := New(scanner, "v")

	_, err := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("proc"), ustr.Ustr("999")})
	require.Equal(t, defs.ENOTFOUND, err)
}

func TestEvictedSubtreeIsRematerializedOnNextReference(t *testing.T) {
	scanner := func(pid int) (ProcessInfo, bool) {
		return fakeProcessInfo{pid: pid, name: "x", alive: true}, true
	}
	fs := New(scanner, "v")

	id, err := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("proc"), ustr.Ustr("7")})
	require.Zero(t, err, "ResolvePathRel")
	require.Zero(t, fs.OnOpen(id), "OnOpen")
	require.Zero(t, fs.OnClose(id), "OnClose")

	second, err := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("proc"), ustr.Ustr("7")})
	require.Zero(t, err, "expected re-materialization to succeed after eviction")
	require.NotEqual(t, id, second, "expected re-materialization to allocate a fresh subtree")
}

func TestGetChildrenListsStaticEntries(t *testing.T) {
	fs := New(nil, "v")
	entries, err := fs.GetChildren(fs.RootObjectID())
	require.Zero(t, err, "GetChildren")

	found := map[string]bool{}
	for _, e := range entries {
		found[e.Name.String()] = true
	}
	require.True(t, found["version"], "expected root to list version")
	require.True(t, found["proc"], "expected root to list proc")
}
