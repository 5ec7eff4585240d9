package ustar

import (
	"archive/tar"
	"bytes"
	"testing"

	"defs"
	"ramfs"
	"ustr"
)

func buildArchive(t *testing.T, files map[string]string, dirs []string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := tar.NewWriter(&buf)
	for _, d := range dirs {
		if err := w.WriteHeader(&tar.Header{Name: d, Typeflag: tar.TypeDir}); err != nil {
			t.Fatalf("writing dir header: %v", err)
		}
	}
	for name, content := range files {
		hdr := &tar.Header{Name: name, Typeflag: tar.TypeReg, Size: int64(len(content))}
		if err := w.WriteHeader(hdr); err != nil {
			t.Fatalf("writing file header: %v", err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("writing file content: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("closing archive: %v", err)
	}
	return buf.Bytes()
}

func TestReaderIteratesEntriesInOrder(t *testing.T) {
	archive := buildArchive(t, map[string]string{"hello.txt": "world"}, []string{"bin/"})
	r := NewReader(archive)

	var names []string
	for {
		entry, done, errn := r.Next()
		if errn != 0 {
			t.Fatalf("unexpected error reading entry: %d", errn)
		}
		if done {
			break
		}
		names = append(names, entry.Name)
	}
	if len(names) != 2 {
		t.Fatalf("expected 2 entries, got %d: %v", len(names), names)
	}
	if names[0] != "bin/" || names[1] != "hello.txt" {
		t.Fatalf("expected entries in archive order [bin/ hello.txt], got %v", names)
	}
}

func TestUnpackCreatesFilesAndDirectories(t *testing.T) {
	archive := buildArchive(t, map[string]string{
		"bin/init": "binary-content",
		"etc/motd": "hello",
	}, []string{"bin/", "etc/"})

	fs := ramfs.New()
	if errn := Unpack(fs, archive); errn != 0 {
		t.Fatalf("unexpected unpack error: %d", errn)
	}

	id, errn := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("bin"), ustr.Ustr("init")})
	if errn != 0 {
		t.Fatalf("expected bin/init to resolve, got error %d", errn)
	}
	buf := make([]byte, 64)
	n, errn := fs.Read(id, defs.SeekStart(0), buf)
	if errn != 0 || string(buf[:n]) != "binary-content" {
		t.Fatalf("expected file content 'binary-content', got %q (err=%d)", buf[:n], errn)
	}

	_, errn = fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("etc"), ustr.Ustr("motd")})
	if errn != 0 {
		t.Fatalf("expected etc/motd to resolve, got error %d", errn)
	}
}

func TestUnpackNormalizesDotDotComponents(t *testing.T) {
	archive := buildArchive(t, map[string]string{"a/../b.txt": "content"}, nil)
	fs := ramfs.New()
	if errn := Unpack(fs, archive); errn != 0 {
		t.Fatalf("unexpected unpack error: %d", errn)
	}
	if _, errn := fs.ResolvePathRel(fs.RootObjectID(), []ustr.Ustr{ustr.Ustr("b.txt")}); errn != 0 {
		t.Fatalf("expected 'a/../b.txt' to normalize to 'b.txt', got error %d", errn)
	}
}

func TestNormalizeDropsDotAndPopsOnDotDot(t *testing.T) {
	got := normalize("./a/b/../c")
	if len(got) != 2 || got[0] != "a" || got[1] != "c" {
		t.Fatalf("expected [a c], got %v", got)
	}
}
