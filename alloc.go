package minipool

import (
	"errors"
	"unsafe"

	"github.com/sirupsen/logrus"
)

var (
	NoMemoryError = errors.New("no memory")

	NoPagesError = errors.New("max pages in use")

	BadBoundaryError = errors.New("pointer outside any block boundary")

	CorruptedBlockError = errors.New("corrupted pad bytes")

	MultipleFreeError = errors.New("block already freed")

	ObjectSizeError = errors.New("object size smaller than a free-list link")
)

// Allocator serves fixed-size blocks out of pre-allocated pages and
// recycles freed blocks through an intrusive free list. It is not safe
// for concurrent use.
type Allocator struct {
	config Config
	stats  Stats

	pages    *page   // newest first
	freeHead uintptr // 0 = empty free list

	pageHeader int // offset of the first payload into a page
	stride     int // distance between consecutive payloads

	extern map[uintptr]*BlockInfo
}

// New builds an allocator serving objectSize-byte blocks. Unless the
// configuration is passthrough, the first page is mapped here.
func New(objectSize int, config Config) (*Allocator, error) {
	if config.ObjectsPerPage <= 0 {
		config.ObjectsPerPage = DefaultObjectsPerPage
	}
	if !config.Passthrough && objectSize < wordSize {
		return nil, ObjectSizeError
	}

	headerSize := config.HeaderBlock.Size()
	unalignedPageHeader := wordSize + headerSize + config.PadBytes
	pageHeader := alignUp(unalignedPageHeader, config.Alignment)
	config.LeftAlignSize = pageHeader - unalignedPageHeader

	blockSize := objectSize + 2*config.PadBytes + headerSize
	stride := alignUp(blockSize, config.Alignment)
	config.InterAlignSize = stride - blockSize

	a := &Allocator{
		config:     config,
		pageHeader: pageHeader,
		stride:     stride,
	}
	a.stats.ObjectSize = objectSize
	a.stats.PageSize = pageHeader + (config.ObjectsPerPage-1)*stride + objectSize + config.PadBytes

	if config.HeaderBlock.Type == HeaderExternal {
		a.extern = make(map[uintptr]*BlockInfo)
	}

	if config.Passthrough {
		logrus.Debugf("passthrough allocator for %d byte objects", objectSize)
		return a, nil
	}

	if err := a.allocateNewPage(); err != nil {
		return nil, err
	}
	return a, nil
}

// Allocate hands out one objectSize-byte block. The label is recorded
// only by the external header flavor.
func (a *Allocator) Allocate(label string) ([]byte, error) {
	if a.config.Passthrough {
		obj := make([]byte, a.stats.ObjectSize)
		a.noteAllocation()
		a.stats.FreeObjects--
		freeObjectsMetric.Dec()
		return obj, nil
	}

	if a.freeHead == 0 {
		if err := a.allocateNewPage(); err != nil {
			return nil, err
		}
	}

	addr := a.freeHead
	a.freeHead = freeLink(addr)

	if a.config.DebugOn {
		paint(bytesAt(addr, a.stats.ObjectSize), AllocatedPattern)
	}

	a.noteAllocation()
	a.stats.FreeObjects--
	freeObjectsMetric.Dec()

	a.writeHeader(addr, label)

	return bytesAt(addr, a.stats.ObjectSize), nil
}

// Free returns a block previously handed out by Allocate. With DebugOn
// the pointer is validated first; a failed check leaves the counters
// and the free list untouched.
func (a *Allocator) Free(obj []byte) error {
	if a.config.Passthrough {
		a.noteDeallocation()
		return nil
	}

	if len(obj) == 0 {
		return BadBoundaryError
	}
	addr := addrOf(obj)

	if a.config.DebugOn {
		if err := a.checkBoundary(addr); err != nil {
			return err
		}
		if err := a.checkPadding(addr); err != nil {
			return err
		}
		if err := a.checkMultipleFree(addr); err != nil {
			return err
		}
		paint(bytesAt(addr, a.stats.ObjectSize), FreedPattern)
	}

	a.clearHeader(addr)
	a.pushFree(addr)
	a.noteDeallocation()
	return nil
}

func (a *Allocator) pushFree(addr uintptr) {
	setFreeLink(addr, a.freeHead)
	a.freeHead = addr
	a.stats.FreeObjects++
	freeObjectsMetric.Inc()
}

func (a *Allocator) noteAllocation() {
	a.stats.ObjectsInUse++
	a.stats.Allocations++
	if a.stats.ObjectsInUse > a.stats.MostObjects {
		a.stats.MostObjects = a.stats.ObjectsInUse
	}
	objectsInUseMetric.Inc()
	allocationMetric.Inc()
}

func (a *Allocator) noteDeallocation() {
	a.stats.Deallocations++
	a.stats.ObjectsInUse--
	objectsInUseMetric.Dec()
	deallocationMetric.Inc()
}

// freeLink reads the intrusive next pointer held in the first wordSize
// bytes of a free block's payload.
func freeLink(addr uintptr) uintptr {
	return *(*uintptr)(unsafe.Pointer(addr))
}

func setFreeLink(addr, next uintptr) {
	*(*uintptr)(unsafe.Pointer(addr)) = next
}

func addrOf(obj []byte) uintptr {
	return uintptr(unsafe.Pointer(&obj[0]))
}

// SetDebugState switches painting and corruption checks on or off.
// Pages mapped while debugging was off carry no patterns.
func (a *Allocator) SetDebugState(state bool) {
	a.config.DebugOn = state
}

// FreeList returns the address of the newest free block, 0 when empty.
func (a *Allocator) FreeList() uintptr {
	return a.freeHead
}

// PageList returns the base address of the newest page, 0 when empty.
func (a *Allocator) PageList() uintptr {
	if a.pages == nil {
		return 0
	}
	return a.pages.base()
}

func (a *Allocator) Config() Config {
	return a.config
}

func (a *Allocator) Stats() Stats {
	return a.stats
}

// Close tears down still-live external info records and unmaps every
// page. The allocator must not be used afterwards.
func (a *Allocator) Close() error {
	for addr, info := range a.extern {
		logrus.Debugf("leaked block %#x (%q, allocation %d)", addr, info.Label, info.AllocNum)
		delete(a.extern, addr)
	}

	var firstErr error
	for pg := a.pages; pg != nil; pg = pg.next {
		if err := unmapRegion(pg.buf); err != nil && firstErr == nil {
			firstErr = err
		}
		pg.buf = nil
	}
	pagesInUseMetric.Sub(float64(a.stats.PagesInUse))
	objectsInUseMetric.Sub(float64(a.stats.ObjectsInUse))
	freeObjectsMetric.Sub(float64(a.stats.FreeObjects))
	a.stats.PagesInUse = 0
	a.stats.FreeObjects = 0
	a.pages = nil
	a.freeHead = 0
	return firstErr
}
