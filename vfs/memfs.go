package vfs

import (
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pkg/errors"
)

var nextInode int64

func allocInode() int64 { return atomic.AddInt64(&nextInode, 1) }

// MemFS is a small in-memory tree filesystem: directories and regular
// files only (no symlinks, no devices). It exists to make the dispatcher
// runnable and testable in the absence of a real storage backend, per
// SPEC_FULL.md §4.6.
type MemFS struct {
	mu   sync.Mutex
	root *memNode
}

// NewMemFS returns an empty filesystem with a single root directory owned
// by uid/gid 0 and mode 0755.
func NewMemFS() *MemFS {
	root := &memNode{
		name:     "/",
		isDir:    true,
		mode:     0o755,
		inodeID:  allocInode(),
		children: map[string]*memNode{},
	}
	return &MemFS{root: root}
}

type memNode struct {
	mu sync.Mutex

	name  string
	isDir bool
	mode  uint32
	uid   int32
	gid   int32

	// regular file data
	data []byte

	// directory children, ordered for stable ReadDir indexing
	children map[string]*memNode
	order    []string

	inodeID int64
	open    bool
}

// Lookup implements Filesystem.
func (fs *MemFS) Lookup(path string) (Node, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	parts := splitPath(path)
	cur := fs.root
	for _, p := range parts {
		cur.mu.Lock()
		next, ok := cur.children[p]
		cur.mu.Unlock()
		if !ok {
			return nil, ErrorNotFound(path)
		}
		cur = next
	}
	return cur, nil
}

// ErrorNotFound is exported so other packages constructing lookup
// failures for a path get the same wrapped sentinel MemFS itself uses.
func ErrorNotFound(path string) error {
	return errors.Wrapf(ErrNoEnt, "lookup %q", path)
}

func splitPath(path string) []string {
	var out []string
	for _, p := range strings.Split(path, "/") {
		if p != "" && p != "." {
			out = append(out, p)
		}
	}
	return out
}

func (n *memNode) Open(mode int) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = true
	return nil
}

func (n *memNode) Close() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.open = false
	return nil
}

func (n *memNode) Read(off int64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isDir {
		return 0, ErrIsDir
	}
	if off >= int64(len(n.data)) {
		return 0, nil
	}
	return copy(buf, n.data[off:]), nil
}

func (n *memNode) Write(off int64, buf []byte) (int, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.isDir {
		return 0, ErrIsDir
	}
	end := off + int64(len(buf))
	if end > int64(len(n.data)) {
		grown := make([]byte, end)
		copy(grown, n.data)
		n.data = grown
	}
	copy(n.data[off:end], buf)
	return len(buf), nil
}

func (n *memNode) ReadDir(index int64) (Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.isDir {
		return nil, ErrNotDir
	}
	if index < 0 || int(index) >= len(n.order) {
		return nil, nil
	}
	return n.children[n.order[index]], nil
}

func (n *memNode) Stat() (Metadata, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	mode := n.mode
	if n.isDir {
		mode |= 0o040000
	} else {
		mode |= 0o100000
	}
	now := time.Now()
	return Metadata{
		InodeID:  n.inodeID,
		Mode:     mode,
		UID:      n.uid,
		GID:      n.gid,
		Size:     int64(len(n.data)),
		AccessAt: now, ModifyAt: now, ChangeAt: now,
		HardLinks: 1,
	}, nil
}

func (n *memNode) ChMod(mode int32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.mode = uint32(mode) & 0o7777
	return nil
}

func (n *memNode) ChOwn(uid, gid int32) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.uid, n.gid = uid, gid
	return nil
}

func (n *memNode) Creat(name string, mode int32) (Node, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.isDir {
		return nil, ErrNotDir
	}
	if _, ok := n.children[name]; ok {
		return nil, ErrExist
	}
	child := &memNode{
		name:    name,
		isDir:   uint32(mode)&0o040000 != 0,
		mode:    uint32(mode) & 0o7777,
		inodeID: allocInode(),
	}
	if child.isDir {
		child.children = map[string]*memNode{}
	}
	n.children[name] = child
	n.order = append(n.order, name)
	return child, nil
}

func (n *memNode) Unlink(name string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.isDir {
		return ErrNotDir
	}
	child, ok := n.children[name]
	if !ok {
		return ErrNoEnt
	}
	if child.isDir && len(child.children) > 0 {
		return ErrNotEmpty
	}
	delete(n.children, name)
	for i, o := range n.order {
		if o == name {
			n.order = append(n.order[:i], n.order[i+1:]...)
			break
		}
	}
	return nil
}

func (n *memNode) IOCtl(req, arg uintptr) (uintptr, error) {
	return 0, nil
}

func (n *memNode) GetName() (string, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.name, nil
}
