package kernel

// OpenFlag bits accepted by the open syscall's mode argument, preserved
// verbatim from the Fox Kernel ABI (§6 of the syscall specification).
type OpenFlag uintptr

const (
	O_ACCMODE   OpenFlag = 0x0007
	O_EXEC      OpenFlag = 1
	O_RDONLY    OpenFlag = 2
	O_RDWR      OpenFlag = 3
	O_SEARCH    OpenFlag = 4
	O_WRONLY    OpenFlag = 5
	O_APPEND    OpenFlag = 0x0008
	O_CREAT     OpenFlag = 0x0010
	O_DIRECTORY OpenFlag = 0x0020
	O_EXCL      OpenFlag = 0x0040
	O_NOCTTY    OpenFlag = 0x0080
	O_NOFOLLOW  OpenFlag = 0x0100
	O_TRUNC     OpenFlag = 0x0200
	O_NONBLOCK  OpenFlag = 0x0400
	O_DSYNC     OpenFlag = 0x0800
	O_RSYNC     OpenFlag = 0x1000
	O_SYNC      OpenFlag = 0x2000
	O_CLOEXEC   OpenFlag = 0x4000
	O_PATH      OpenFlag = 0x8000
)

// FileMode mirrors the permission-bit subset of the VFS's mode word: the
// low 12 bits are POSIX permission/setuid/setgid/sticky bits, and the file
// type occupies the S_IFMT mask above them (device/pipe sentinels report a
// zero type, per §4.2's open permission-check bypass).
type FileMode uint32

const (
	S_IFMT  FileMode = 0o170000 // type bit mask
	S_IFDIR FileMode = 0o040000
	S_IFREG FileMode = 0o100000

	S_ISUID FileMode = 0o4000
	S_ISGID FileMode = 0o2000
	S_ISVTX FileMode = 0o1000

	S_IRUSR FileMode = 0o400
	S_IWUSR FileMode = 0o200
	S_IXUSR FileMode = 0o100
	S_IRGRP FileMode = 0o040
	S_IWGRP FileMode = 0o020
	S_IXGRP FileMode = 0o010
	S_IROTH FileMode = 0o004
	S_IWOTH FileMode = 0o002
	S_IXOTH FileMode = 0o001
)

const (
	// DefaultDirPerm and DefaultFilePerm are the mode bits open(O_CREAT)
	// applies before the umask, per §4.2.
	DefaultDirPerm  FileMode = 0o777
	DefaultFilePerm FileMode = 0o666
)

// Whence values for lseek, per §4.2 and §6.
type Whence int

const (
	SeekWhenceCur Whence = 1
	SeekWhenceEnd Whence = 2
	SeekWhenceSet Whence = 3
)

// Power-control cookies accepted by foxkernel_powerctl, per §6.
const (
	PowerHalt     uint32 = 0xBCBC3E90
	PowerShutdown uint32 = 0x373EB4DE
)

// PageSize is the unit sbrk growth must be a multiple of, per §3/§4.4.
const PageSize = 0x1000
