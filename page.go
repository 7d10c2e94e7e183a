package minipool

import (
	"unsafe"

	"github.com/sirupsen/logrus"
)

const maxAllocSize = 0x7FFFFFFF

// page is one contiguous raw region holding ObjectsPerPage blocks.
// The first wordSize bytes of buf mirror next as a raw address, so the
// page chain can be walked from PageList() without the Go-side nodes.
type page struct {
	buf  []byte
	next *page
}

func (p *page) base() uintptr {
	return uintptr(unsafe.Pointer(&p.buf[0]))
}

func (p *page) contains(addr uintptr, pageSize int) bool {
	base := p.base()
	return addr >= base && addr < base+uintptr(pageSize)
}

func bytesAt(addr uintptr, n int) []byte {
	bs := (*[maxAllocSize]byte)(unsafe.Pointer(addr))
	return (*bs)[:n:n]
}

// pageFor returns the page whose region contains addr, or nil.
func (a *Allocator) pageFor(addr uintptr) *page {
	for p := a.pages; p != nil; p = p.next {
		if p.contains(addr, a.stats.PageSize) {
			return p
		}
	}
	return nil
}

// allocateNewPage maps a fresh region, links it at the head of the page
// list and threads every payload slot onto the free list.
func (a *Allocator) allocateNewPage() error {
	if a.config.MaxPages > 0 && a.stats.PagesInUse >= a.config.MaxPages {
		return NoPagesError
	}

	buf, err := mapRegion(a.stats.PageSize + wordSize)
	if err != nil {
		logrus.Errorf("page region of %d bytes refused. %s", a.stats.PageSize+wordSize, err)
		return NoMemoryError
	}

	if a.config.DebugOn {
		paint(buf[:a.stats.PageSize], AlignPattern)
	}

	pg := &page{buf: buf, next: a.pages}
	var prevBase uintptr
	if a.pages != nil {
		prevBase = a.pages.base()
	}
	setFreeLink(pg.base(), prevBase)
	a.pages = pg
	a.stats.PagesInUse++
	pagesInUseMetric.Inc()
	pageCreatedMetric.Inc()

	objectSize := a.stats.ObjectSize
	padBytes := a.config.PadBytes
	headerSize := a.config.HeaderBlock.Size()

	for k := 0; k < a.config.ObjectsPerPage; k++ {
		off := a.pageHeader + k*a.stride

		// the header bytes start zeroed even in debug mode
		paint(buf[off-padBytes-headerSize:off-padBytes], 0)

		addr := pg.base() + uintptr(off)
		a.pushFree(addr)

		if a.config.DebugOn {
			// the first wordSize payload bytes hold the free-list
			// link written by pushFree, skip them
			paint(buf[off+wordSize:off+objectSize], UnallocatedPattern)
			paint(buf[off-padBytes:off], PadPattern)
			paint(buf[off+objectSize:off+objectSize+padBytes], PadPattern)
		}
	}

	logrus.Debugf("allocated page %d at %#x, %d free objects", a.stats.PagesInUse, pg.base(), a.stats.FreeObjects)
	return nil
}

// FreeEmptyPages releases every page whose blocks are all on the free
// list and returns the number of pages released.
func (a *Allocator) FreeEmptyPages() int {
	if a.pages == nil {
		return 0
	}

	pagesFreed := 0
	for a.pages != nil { // empty pages at the head of the page list
		if !a.isPageEmpty(a.pages) {
			break
		}
		pg := a.pages
		a.pages = pg.next
		a.freePage(pg)
		pagesFreed++
	}

	if a.pages != nil { // every other node
		prev := a.pages
		for pg := prev.next; pg != nil; {
			if !a.isPageEmpty(pg) {
				prev = pg
				pg = pg.next
				continue
			}
			prev.next = pg.next
			setFreeLink(prev.base(), nextBase(pg))
			a.freePage(pg)
			pg = prev.next
			pagesFreed++
		}
	}

	if pagesFreed > 0 {
		logrus.Debugf("reclaimed %d empty pages, %d remain", pagesFreed, a.stats.PagesInUse)
	}
	return pagesFreed
}

func nextBase(pg *page) uintptr {
	if pg.next == nil {
		return 0
	}
	return pg.next.base()
}

// isPageEmpty reports whether all of the page's blocks are on the free
// list. Detection tallies free-list nodes falling inside the page
// rather than keeping a per-page counter.
func (a *Allocator) isPageEmpty(pg *page) bool {
	count := 0
	for addr := a.freeHead; addr != 0; addr = freeLink(addr) {
		if pg.contains(addr, a.stats.PageSize) {
			count++
			if count >= a.config.ObjectsPerPage {
				return true
			}
		}
	}
	return false
}

// freePage unlinks every free-list node inside pg and releases the
// region. The caller has already removed pg from the page list.
func (a *Allocator) freePage(pg *page) {
	for a.freeHead != 0 { // nodes at the head of the free list
		if !pg.contains(a.freeHead, a.stats.PageSize) {
			break
		}
		a.freeHead = freeLink(a.freeHead)
		a.stats.FreeObjects--
		freeObjectsMetric.Dec()
	}

	if a.freeHead != 0 { // every other node
		prev := a.freeHead
		for addr := freeLink(prev); addr != 0; {
			if !pg.contains(addr, a.stats.PageSize) {
				prev = addr
				addr = freeLink(addr)
				continue
			}
			setFreeLink(prev, freeLink(addr))
			addr = freeLink(prev)
			a.stats.FreeObjects--
			freeObjectsMetric.Dec()
		}
	}

	if err := unmapRegion(pg.buf); err != nil {
		logrus.Errorf("error when unmapping page at %#x. %s", pg.base(), err)
	}
	pg.buf = nil
	a.stats.PagesInUse--
	pagesInUseMetric.Dec()
	pageReclaimedMetric.Inc()
}
