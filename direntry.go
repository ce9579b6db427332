package kernel

import "encoding/binary"

// DirEntrySize is the packed on-the-wire size of a DirEntry: three i64
// fields, one i8, and a 256-byte name buffer, with no padding (§6). Go
// cannot express a sub-word-aligned packed struct directly — the in-memory
// DirEntry below rounds up to a multiple of 8 bytes under normal field
// alignment — so DirEntry.Marshal produces the exact 281-byte wire layout
// by hand.
const DirEntrySize = 8 + 8 + 8 + 1 + 256

// DirEntry is returned by a directory read(2); see §4.2 and §6.
type DirEntry struct {
	InodeID int64
	Offset  int64
	Length  int64
	Type    int8
	Name    [256]byte
}

// Marshal encodes e into its packed 281-byte wire representation.
func (e DirEntry) Marshal() [DirEntrySize]byte {
	var buf [DirEntrySize]byte
	binary.LittleEndian.PutUint64(buf[0:8], uint64(e.InodeID))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(e.Offset))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(e.Length))
	buf[24] = byte(e.Type)
	copy(buf[25:], e.Name[:])
	return buf
}

// NewDirEntry builds a DirEntry for the given inode, post-increment
// offset, and NUL-terminated name (truncated to fit the 256-byte buffer).
func NewDirEntry(inode int64, offset int64, name string) DirEntry {
	var e DirEntry
	e.InodeID = inode
	e.Offset = offset
	e.Length = DirEntrySize
	e.Type = 0 // reserved, per §4.2
	n := copy(e.Name[:len(e.Name)-1], name)
	e.Name[n] = 0
	return e
}

// EncodeWaitStatus packs a child's exit status into the wstatus encoding
// described in §3 and §6: a negative code denotes signal termination (low
// byte carries the absolute signal number), a non-negative code denotes a
// normal exit (bits 8..15 carry the exit code).
func EncodeWaitStatus(code int64) uint64 {
	if code < 0 {
		return uint64(-code) & 0xFF
	}
	return (uint64(code) & 0xFF) << 8
}

// StoppedWaitStatus is reported for a STOPPED child, per §4.3.
const StoppedWaitStatus uint64 = 0x13FF
