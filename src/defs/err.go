package defs

// Err_t is the kernel's internal error taxonomy. Zero means success;
// a negative value names a failure kind. The syscall boundary maps
// Err_t to a stable numeric ErrorStatus; internal callers pass Err_t
// around unchanged, the same convention biscuit uses for -defs.EFAULT
// and friends.
type Err_t int

const (
	ENONE Err_t = 0

	ENOTFOUND       Err_t = -1
	ENOTAFILE       Err_t = -2
	ENOTADIR        Err_t = -3
	EDIRNOTEMPTY    Err_t = -4
	EINVALOFFSET    Err_t = -5
	EINVALPATH      Err_t = -6
	EINVALNAME      Err_t = -7
	EFSLABEL        Err_t = -8
	EPATHTOOLONG    Err_t = -9
	EPERM           Err_t = -10
	ENOTSUPPORTED   Err_t = -11
	EINVALRESOURCE  Err_t = -12
	EEXIST          Err_t = -13
	EINVALCMD       Err_t = -14
	EINVAL          Err_t = -15
	ENOTEXECUTABLE  Err_t = -16
	ENOMEM          Err_t = -17
	EMMAP           Err_t = -18
	EFAULT          Err_t = -19
	EALREADYMAPPED  Err_t = -20
	ECONNCLOSED     Err_t = -21
	EWOULDBLOCK     Err_t = -22
	ETOOLARGE       Err_t = -23
	ETIMEDOUT       Err_t = -24
	EBADF           Err_t = -25
)

var errNames = map[Err_t]string{
	ENONE:          "none",
	ENOTFOUND:      "not found",
	ENOTAFILE:      "not a file",
	ENOTADIR:       "not a directory",
	EDIRNOTEMPTY:   "directory not empty",
	EINVALOFFSET:   "invalid offset",
	EINVALPATH:     "invalid path",
	EINVALNAME:     "invalid name",
	EFSLABEL:       "file system label not found",
	EPATHTOOLONG:   "path too long",
	EPERM:          "missing permission",
	ENOTSUPPORTED:  "operation not supported",
	EINVALRESOURCE: "invalid resource",
	EEXIST:         "already exists",
	EINVALCMD:      "invalid command",
	EINVAL:         "invalid argument",
	ENOTEXECUTABLE: "not executable",
	ENOMEM:         "out of memory",
	EMMAP:          "mmap error",
	EFAULT:         "bad address",
	EALREADYMAPPED: "already mapped",
	ECONNCLOSED:    "connection closed",
	EWOULDBLOCK:    "would block",
	ETOOLARGE:      "too large",
	ETIMEDOUT:      "timed out",
	EBADF:          "bad resource index",
}

// String renders the error kind for logging; it never panics on an
// unknown value so Err_t remains safe to print from any call site.
func (e Err_t) String() string {
	if s, ok := errNames[e]; ok {
		return s
	}
	return "unknown error"
}

// Error implements the error interface so Err_t composes with
// github.com/pkg/errors.Wrap at the VFS/syscall boundary.
func (e Err_t) Error() string {
	return e.String()
}

// OpenOptions are the permission/creation bits an FSObjectDescriptor
// enforces on every call.
type OpenOptions uint

const (
	O_READ       OpenOptions = 1 << iota /// readable
	O_WRITE                              /// writable
	O_CREATE_FILE                        /// create a file if missing
	O_CREATE_DIR                         /// create a directory if missing
	O_TRUNCATE                           /// truncate on open
)

// Seek selects where a read/write offset is anchored; there is no
// persistent file offset, callers pass the intended offset every call.
type Seek struct {
	FromEnd bool
	Offset  int64
}

// SeekStart returns a Seek anchored at the beginning of the object.
func SeekStart(n int64) Seek { return Seek{FromEnd: false, Offset: n} }

// SeekEnd returns a Seek anchored at the end of the object.
func SeekEnd(n int64) Seek { return Seek{FromEnd: true, Offset: n} }
