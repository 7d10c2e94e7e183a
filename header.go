package minipool

import (
	"encoding/binary"
)

// BlockInfo is the out-of-band record kept for every live block under
// the external header flavor.
type BlockInfo struct {
	InUse    bool
	Label    string
	AllocNum uint32
}

// headerAt returns the header bytes in front of the payload at addr.
func (a *Allocator) headerAt(addr uintptr) []byte {
	size := a.config.HeaderBlock.Size()
	return bytesAt(addr-uintptr(a.config.PadBytes)-uintptr(size), size)
}

// writeHeader marks the block at addr as live. The allocation number
// is stats.Allocations after its increment, so it is 1-based and never
// reused.
func (a *Allocator) writeHeader(addr uintptr, label string) {
	switch a.config.HeaderBlock.Type {
	case HeaderBasic:
		header := a.headerAt(addr)
		binary.LittleEndian.PutUint32(header, a.stats.Allocations)
		header[4] = 1
	case HeaderExtended:
		header := a.headerAt(addr)
		user := a.config.HeaderBlock.Additional
		useCount := binary.LittleEndian.Uint16(header[user:])
		binary.LittleEndian.PutUint16(header[user:], useCount+1)
		binary.LittleEndian.PutUint32(header[user+2:], a.stats.Allocations)
		header[user+6] = 1
	case HeaderExternal:
		a.extern[addr] = &BlockInfo{
			InUse:    true,
			Label:    label,
			AllocNum: a.stats.Allocations,
		}
		// the header word mirrors liveness with the registry key
		setFreeLink(addr-uintptr(a.config.PadBytes)-uintptr(ExternalHeaderSize), addr)
	}
}

// clearHeader marks the block at addr as free. The extended flavor
// keeps its user bytes and use count across frees.
func (a *Allocator) clearHeader(addr uintptr) {
	switch a.config.HeaderBlock.Type {
	case HeaderBasic:
		paint(a.headerAt(addr), 0)
	case HeaderExtended:
		header := a.headerAt(addr)
		user := a.config.HeaderBlock.Additional
		paint(header[user+2:], 0)
	case HeaderExternal:
		delete(a.extern, addr)
		setFreeLink(addr-uintptr(a.config.PadBytes)-uintptr(ExternalHeaderSize), 0)
	}
}

// BlockInfoFor returns the external info record of a live block, nil
// when the block is free or the flavor is not external.
func (a *Allocator) BlockInfoFor(obj []byte) *BlockInfo {
	if len(obj) == 0 || a.extern == nil {
		return nil
	}
	return a.extern[addrOf(obj)]
}
