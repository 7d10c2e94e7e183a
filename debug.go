package minipool

// Byte patterns painted into block regions when DebugOn is set.
const (
	UnallocatedPattern = 0xAA // fresh, never-used payload bytes
	AllocatedPattern   = 0xBB // payload at the time it is handed out
	FreedPattern       = 0xCC // payload after Free
	PadPattern         = 0xDD // left and right pad bytes
	AlignPattern       = 0xEE // alignment slack
)

// DumpCallback receives each leaked block from DumpMemoryInUse.
type DumpCallback func(obj []byte, size int)

// ValidateCallback receives each corrupted block from ValidatePages.
type ValidateCallback func(obj []byte, size int)

func paint(buf []byte, pattern byte) {
	for i := range buf {
		buf[i] = pattern
	}
}

// checkBoundary rejects pointers outside every page as well as
// pointers inside a page that do not sit on a payload offset.
func (a *Allocator) checkBoundary(addr uintptr) error {
	pg := a.pageFor(addr)
	if pg == nil {
		return BadBoundaryError
	}

	first := pg.base() + uintptr(a.pageHeader)
	if addr < first {
		return BadBoundaryError
	}
	rel := int(addr - first)
	if rel%a.stride != 0 || rel/a.stride >= a.config.ObjectsPerPage {
		return BadBoundaryError
	}
	return nil
}

func (a *Allocator) checkPadding(addr uintptr) error {
	padBytes := a.config.PadBytes
	if padBytes == 0 {
		return nil
	}

	left := bytesAt(addr-uintptr(padBytes), padBytes)
	right := bytesAt(addr+uintptr(a.stats.ObjectSize), padBytes)
	for i := 0; i < padBytes; i++ {
		if left[i] != PadPattern || right[i] != PadPattern {
			return CorruptedBlockError
		}
	}
	return nil
}

// checkMultipleFree detects a second Free of the same block. Free
// paints the whole payload with FreedPattern while Allocate repaints
// the first wordSize bytes, so the byte just past the link is a
// reliable sentinel whenever the payload is larger than a link. For
// smaller payloads the free list itself is searched.
func (a *Allocator) checkMultipleFree(addr uintptr) error {
	if a.stats.ObjectSize > wordSize {
		if bytesAt(addr+uintptr(wordSize), 1)[0] == FreedPattern {
			return MultipleFreeError
		}
		return nil
	}
	for cur := a.freeHead; cur != 0; cur = freeLink(cur) {
		if cur == addr {
			return MultipleFreeError
		}
	}
	return nil
}

// DumpMemoryInUse invokes fn for every block still held by a client
// and returns the number of such blocks. Liveness comes from the
// in-use flag for the basic and extended flavors and from the info
// record registry for external. Flavor none keeps no per-block state,
// so nothing can be reported.
func (a *Allocator) DumpMemoryInUse(fn DumpCallback) int {
	headerType := a.config.HeaderBlock.Type
	if headerType == HeaderNone {
		return 0
	}

	leaks := 0
	for pg := a.pages; pg != nil; pg = pg.next {
		for k := 0; k < a.config.ObjectsPerPage; k++ {
			addr := pg.base() + uintptr(a.pageHeader+k*a.stride)

			live := false
			switch headerType {
			case HeaderBasic:
				live = a.headerAt(addr)[4] != 0
			case HeaderExtended:
				live = a.headerAt(addr)[a.config.HeaderBlock.Additional+6] != 0
			case HeaderExternal:
				_, live = a.extern[addr]
			}

			if live {
				leaks++
				fn(bytesAt(addr, a.stats.ObjectSize), a.stats.ObjectSize)
			}
		}
	}
	return leaks
}

// ValidatePages scans every pad of every block and invokes fn once per
// corrupted block. Without debugging or pads there is nothing to scan.
func (a *Allocator) ValidatePages(fn ValidateCallback) int {
	if !a.config.DebugOn || a.config.PadBytes == 0 {
		return 0
	}

	corrupted := 0
	for pg := a.pages; pg != nil; pg = pg.next {
		for k := 0; k < a.config.ObjectsPerPage; k++ {
			addr := pg.base() + uintptr(a.pageHeader+k*a.stride)
			if a.checkPadding(addr) != nil {
				corrupted++
				fn(bytesAt(addr, a.stats.ObjectSize), a.stats.ObjectSize)
			}
		}
	}
	return corrupted
}
