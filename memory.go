package kernel

import (
	"sync"

	"github.com/pkg/errors"
)

// FlatPageTable is a trivial PageTable reference implementation: it
// records mapped ranges for inspection by tests and cmd/foxsim but
// performs no real translation, since this package has no MMU to back it
// with, per §1's "out of scope: architecture-specific page tables".
type FlatPageTable struct {
	mu     sync.Mutex
	ranges []mappedRange
}

type mappedRange struct {
	virt       uintptr
	length     uintptr
	writable   bool
	executable bool
}

// NewFlatPageTable returns an empty page table.
func NewFlatPageTable() *FlatPageTable {
	return &FlatPageTable{}
}

// Map records a mapping request.
func (t *FlatPageTable) Map(virt uintptr, length uintptr, writable, executable bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.ranges = append(t.ranges, mappedRange{virt, length, writable, executable})
	return nil
}

// Clone copies the recorded ranges, matching fork's "page table copied or
// COW-shared per architecture policy" with the simplest possible policy
// (a full eager copy).
func (t *FlatPageTable) Clone() PageTable {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := &FlatPageTable{ranges: make([]mappedRange, len(t.ranges))}
	copy(out.ranges, t.ranges)
	return out
}

// BumpFrameAllocator is a trivial FrameAllocator: physical addresses are
// handed out by bumping a cursor and are never reclaimed, sufficient for
// the dispatcher's sbrk/execve tests.
type BumpFrameAllocator struct {
	mu     sync.Mutex
	cursor uintptr
}

// NewBumpFrameAllocator returns an allocator starting at base.
func NewBumpFrameAllocator(base uintptr) *BumpFrameAllocator {
	return &BumpFrameAllocator{cursor: base}
}

// Allocate hands out the next length bytes, rounded up to the page size.
func (a *BumpFrameAllocator) Allocate(length uintptr) (uintptr, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if length == 0 {
		return 0, errors.New("frame allocator: zero-length allocation")
	}
	aligned := (length + PageSize - 1) &^ (PageSize - 1)
	phys := a.cursor
	a.cursor += aligned
	return phys, nil
}

// FlatELFLoader is a minimal ELFLoader reference implementation: rather
// than parsing a real ELF image, it looks the path up in a registered
// table of (entry, heapBase) pairs, which is enough to drive execve in
// tests and cmd/foxsim scenarios without bundling a link-format parser.
type FlatELFLoader struct {
	mu       sync.Mutex
	binaries map[string]flatBinary
}

type flatBinary struct {
	entry, heapBase uint64
}

// NewFlatELFLoader returns a loader with no registered binaries.
func NewFlatELFLoader() *FlatELFLoader {
	return &FlatELFLoader{binaries: map[string]flatBinary{}}
}

// Register associates path with an (entry, heapBase) pair that
// LoadELFFromPath will return for it.
func (l *FlatELFLoader) Register(path string, entry, heapBase uint64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.binaries[path] = flatBinary{entry, heapBase}
}

// LoadELFFromPath looks path up in the registered table and maps nothing
// further into pt, since this reference loader has no segments to place.
func (l *FlatELFLoader) LoadELFFromPath(path string, pt PageTable) (uint64, uint64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	bin, ok := l.binaries[path]
	if !ok {
		return 0, 0, errors.Errorf("elf loader: no binary registered for %q", path)
	}
	return bin.entry, bin.heapBase, nil
}
