// Package ustar reads the POSIX ustar tape-archive format the
// bootloader hands the kernel as an embedded ramdisk (spec: "the
// bundled ramdisk is a POSIX ustar archive. On mount, the kernel
// iterates its entries, creating directories and files in a freshly
// created RamFS; unknown entry types are rejected").
//
// No teacher or pack repo carries a ustar reader of its own (biscuit's
// ramdisk support predates this pack's retrieval, and no other example
// repo touches tar at this level), so the header layout and iteration
// here follow the format itself; the ASCII-field decoding leans on
// golang.org/x/text/encoding, the pack's one text-encoding dependency,
// rather than hand-rolling a validator.
package ustar

import (
	"strconv"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"defs"
	"ustr"
	"vfs"
)

const blockSize = 512

// Type names the handful of ustar entry kinds this kernel recognizes.
// Anything else is rejected on mount, per spec.
type Type byte

const (
	TypeNormal    Type = '0'
	TypeNormalAlt Type = 0 // some writers leave typeflag zeroed for regular files
	TypeDir       Type = '5'
)

// Entry is one decoded archive member: its full path name, its type,
// and (for regular files) its content.
type Entry struct {
	Name string
	Typ  Type
	data []byte
}

// Data returns the entry's file content; empty for directories.
func (e *Entry) Data() []byte { return e.data }

// IsDir reports whether the entry names a directory.
func (e *Entry) IsDir() bool { return e.Typ == TypeDir }

// IsRegular reports whether the entry names a regular file.
func (e *Entry) IsRegular() bool { return e.Typ == TypeNormal || e.Typ == TypeNormalAlt }

// Reader iterates the entries of a ustar byte blob in archive order.
type Reader struct {
	data []byte
	pos  int
}

// NewReader wraps a raw archive blob (the bootloader's ramdisk image)
// for sequential iteration.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

var asciiDecoder = charmap.ISO8859_1.NewDecoder()

// decodeField strips the NUL padding a fixed-width ustar field carries,
// decodes it as ISO-8859-1 (a superset of ASCII) and rejects any
// character outside 7-bit ASCII, since ustar headers are pure ASCII.
func decodeField(raw []byte) (string, defs.Err_t) {
	trimmed := strings.TrimRight(string(raw), "\x00")
	s, err := asciiDecoder.String(trimmed)
	if err != nil {
		return "", defs.EINVALNAME
	}
	for _, r := range s {
		if r > 0x7f {
			return "", defs.EINVALNAME
		}
	}
	return s, 0
}

func parseOctal(raw []byte) (int64, defs.Err_t) {
	s, errn := decodeField(raw)
	if errn != 0 {
		return 0, errn
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, 0
	}
	v, err := strconv.ParseInt(s, 8, 64)
	if err != nil {
		return 0, defs.EINVALNAME
	}
	return v, 0
}

// Next decodes the following archive entry, or reports done=true once
// the archive's end is reached: a zeroed header block (the first of
// the two that end an archive) or simply running out of data.
func (r *Reader) Next() (entry *Entry, done bool, errn defs.Err_t) {
	if r.pos+blockSize > len(r.data) {
		return nil, true, 0
	}
	hdr := r.data[r.pos : r.pos+blockSize]
	if isZeroBlock(hdr) {
		return nil, true, 0
	}

	name, errn := decodeField(hdr[0:100])
	if errn != 0 {
		return nil, false, errn
	}
	size, errn := parseOctal(hdr[124:136])
	if errn != 0 {
		return nil, false, errn
	}
	typeflag := hdr[156]
	prefix, errn := decodeField(hdr[345:500])
	if errn != 0 {
		return nil, false, errn
	}
	if prefix != "" {
		name = prefix + "/" + name
	}

	r.pos += blockSize
	dataStart := r.pos
	dataLen := int(size)
	if dataStart+dataLen > len(r.data) {
		return nil, false, defs.EINVALOFFSET
	}
	data := r.data[dataStart : dataStart+dataLen]
	r.pos += roundUp(dataLen, blockSize)

	return &Entry{Name: name, Typ: Type(typeflag), data: data}, false, 0
}

func isZeroBlock(b []byte) bool {
	for _, c := range b {
		if c != 0 {
			return false
		}
	}
	return true
}

func roundUp(n, align int) int {
	if n%align == 0 {
		return n
	}
	return n + (align - n%align)
}

// Unpack walks an archive's entries in order, creating a directory or
// file in fs for each one (spec: "the kernel iterates its entries,
// creating directories and files in a freshly created RamFS; unknown
// entry types are rejected"). fs is expected to be freshly created and
// empty; Unpack resolves and creates each entry's parent path
// component by component, creating any missing intermediate
// directories it walks through (archives are conventionally ordered
// parent-before-child, but Unpack tolerates gaps).
//
// Entry names are normalized before use: "." components are dropped
// and ".." components pop the last accumulated component, matching
// the original kernel's own path-normalization utility rather than
// assuming the archive already stores canonical paths (a
// supplemented feature beyond spec.md's bare iteration description).
func Unpack(fs vfs.FileSystem, archive []byte) defs.Err_t {
	r := NewReader(archive)
	for {
		entry, done, errn := r.Next()
		if errn != 0 {
			return errn
		}
		if done {
			return 0
		}
		switch {
		case entry.IsDir():
			if errn := createPath(fs, entry.Name, true, nil); errn != 0 {
				return errn
			}
		case entry.IsRegular():
			if errn := createPath(fs, entry.Name, false, entry.Data()); errn != 0 {
				return errn
			}
		default:
			return defs.ENOTSUPPORTED
		}
	}
}

// normalize splits a (possibly archive-relative) path into its
// canonical components, dropping "." and popping the accumulator on
// "..", mirroring the original kernel's path utility.
func normalize(path string) []string {
	var out []string
	for _, part := range strings.Split(path, "/") {
		switch part {
		case "", ".":
			continue
		case "..":
			if len(out) > 0 {
				out = out[:len(out)-1]
			}
		default:
			out = append(out, part)
		}
	}
	return out
}

func createPath(fs vfs.FileSystem, path string, isDir bool, data []byte) defs.Err_t {
	parts := normalize(path)
	if len(parts) == 0 {
		return 0
	}
	dir := fs.RootObjectID()
	for _, name := range parts[:len(parts)-1] {
		next, errn := fs.ResolvePathRel(dir, []ustr.Ustr{ustr.Ustr(name)})
		if errn != 0 {
			next, errn = fs.CreateDirectory(dir, ustr.Ustr(name))
			if errn != 0 {
				return errn
			}
		}
		dir = next
	}

	last := parts[len(parts)-1]
	if isDir {
		if _, errn := fs.CreateDirectory(dir, ustr.Ustr(last)); errn != 0 {
			return errn
		}
		return 0
	}

	id, errn := fs.CreateFile(dir, ustr.Ustr(last))
	if errn != 0 {
		return errn
	}
	if len(data) == 0 {
		return 0
	}
	if _, errn := fs.Write(id, defs.SeekStart(0), data); errn != 0 {
		return errn
	}
	return 0
}
