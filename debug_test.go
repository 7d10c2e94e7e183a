package minipool

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func Test_fresh_page_painting(t *testing.T) {
	pool := newTestPool(t, 16, Config{ObjectsPerPage: 4, PadBytes: 2, Alignment: 16, DebugOn: true})

	buf := pool.pages.buf
	config := pool.Config()

	// left alignment slack sits between the next-page slot and the
	// first header
	assert.Equal(t, 16, pool.pageHeader)
	for i := wordSize; i < wordSize+config.LeftAlignSize; i++ {
		assert.Equal(t, byte(AlignPattern), buf[i])
	}

	for k := 0; k < 4; k++ {
		off := pool.pageHeader + k*pool.stride

		// intrusive link occupies the first wordSize payload bytes
		for i := off + wordSize; i < off+16; i++ {
			assert.Equal(t, byte(UnallocatedPattern), buf[i])
		}
		for i := off - 2; i < off; i++ {
			assert.Equal(t, byte(PadPattern), buf[i])
		}
		for i := off + 16; i < off+18; i++ {
			assert.Equal(t, byte(PadPattern), buf[i])
		}
	}
}

func Test_allocated_and_freed_patterns(t *testing.T) {
	pool := newTestPool(t, 16, Config{ObjectsPerPage: 4, DebugOn: true})

	obj, err := pool.Allocate("")
	assert.Nil(t, err)
	for _, b := range obj {
		assert.Equal(t, byte(AllocatedPattern), b)
	}

	addr := addrOf(obj)
	assert.Nil(t, pool.Free(obj))
	payload := bytesAt(addr, 16)
	for i := wordSize; i < 16; i++ {
		assert.Equal(t, byte(FreedPattern), payload[i])
	}
}

func Test_pad_corruption(t *testing.T) {
	t.Run("left pad", func(t *testing.T) {
		pool := newTestPool(t, 8, Config{ObjectsPerPage: 4, PadBytes: 2, DebugOn: true})
		obj, err := pool.Allocate("")
		assert.Nil(t, err)

		bytesAt(addrOf(obj)-1, 1)[0] = 0x00
		assert.Equal(t, CorruptedBlockError, pool.Free(obj))
	})

	t.Run("right pad", func(t *testing.T) {
		pool := newTestPool(t, 8, Config{ObjectsPerPage: 4, PadBytes: 2, DebugOn: true})
		obj, err := pool.Allocate("")
		assert.Nil(t, err)

		bytesAt(addrOf(obj)+8, 1)[0] = 0x00
		assert.Equal(t, CorruptedBlockError, pool.Free(obj))
	})
}

func Test_failed_free_keeps_stats(t *testing.T) {
	pool := newTestPool(t, 8, Config{ObjectsPerPage: 4, PadBytes: 2, DebugOn: true})
	obj, err := pool.Allocate("")
	assert.Nil(t, err)
	before := pool.Stats()

	bytesAt(addrOf(obj)-1, 1)[0] = 0x00
	assert.Equal(t, CorruptedBlockError, pool.Free(obj))
	assert.Equal(t, before, pool.Stats())
}

func Test_multiple_free(t *testing.T) {
	t.Run("sentinel byte", func(t *testing.T) {
		pool := newTestPool(t, 16, Config{ObjectsPerPage: 4, DebugOn: true})
		obj, err := pool.Allocate("")
		assert.Nil(t, err)

		assert.Nil(t, pool.Free(obj))
		assert.Equal(t, MultipleFreeError, pool.Free(obj))
	})

	t.Run("free list walk", func(t *testing.T) {
		// payload as small as the link, the sentinel byte does not
		// exist and the free list is searched instead
		pool := newTestPool(t, wordSize, Config{ObjectsPerPage: 4, DebugOn: true})
		obj, err := pool.Allocate("")
		assert.Nil(t, err)

		assert.Nil(t, pool.Free(obj))
		assert.Equal(t, MultipleFreeError, pool.Free(obj))
	})

	t.Run("distinct blocks are unaffected", func(t *testing.T) {
		pool := newTestPool(t, 16, Config{ObjectsPerPage: 4, DebugOn: true})
		obj1, err := pool.Allocate("")
		assert.Nil(t, err)
		obj2, err := pool.Allocate("")
		assert.Nil(t, err)

		assert.Nil(t, pool.Free(obj1))
		assert.Nil(t, pool.Free(obj2))
	})
}

func Test_boundary_check(t *testing.T) {
	pool := newTestPool(t, 16, Config{ObjectsPerPage: 4, DebugOn: true})
	obj, err := pool.Allocate("")
	assert.Nil(t, err)

	t.Run("foreign pointer", func(t *testing.T) {
		foreign := make([]byte, 16)
		assert.Equal(t, BadBoundaryError, pool.Free(foreign))
	})

	t.Run("interior misaligned pointer", func(t *testing.T) {
		assert.Equal(t, BadBoundaryError, pool.Free(obj[1:]))
	})

	t.Run("page header pointer", func(t *testing.T) {
		header := pool.pages.buf[1:wordSize]
		assert.Equal(t, BadBoundaryError, pool.Free(header))
	})

	t.Run("nil slice", func(t *testing.T) {
		assert.Equal(t, BadBoundaryError, pool.Free(nil))
	})
}

func Test_validate_pages(t *testing.T) {
	pool := newTestPool(t, 8, Config{ObjectsPerPage: 4, PadBytes: 2, DebugOn: true})

	obj1, err := pool.Allocate("")
	assert.Nil(t, err)
	obj2, err := pool.Allocate("")
	assert.Nil(t, err)

	var reported [][]byte
	fn := func(obj []byte, size int) {
		assert.Equal(t, 8, size)
		reported = append(reported, obj)
	}

	assert.Equal(t, 0, pool.ValidatePages(fn))

	bytesAt(addrOf(obj1)-1, 1)[0] = 0x00
	bytesAt(addrOf(obj2)+8, 1)[0] = 0x00
	assert.Equal(t, 2, pool.ValidatePages(fn))
	assert.Equal(t, 2, len(reported))

	pool.SetDebugState(false)
	assert.Equal(t, 0, pool.ValidatePages(fn))
}

func Test_validate_pages_without_pads(t *testing.T) {
	pool := newTestPool(t, 8, Config{ObjectsPerPage: 4, DebugOn: true})
	called := false
	assert.Equal(t, 0, pool.ValidatePages(func(obj []byte, size int) { called = true }))
	assert.False(t, called)
}

func Test_dump_memory_in_use(t *testing.T) {
	t.Run("basic header", func(t *testing.T) {
		pool := newTestPool(t, 16, Config{
			ObjectsPerPage: 4,
			DebugOn:        true,
			HeaderBlock:    HeaderInfo{Type: HeaderBasic},
		})

		obj1, err := pool.Allocate("")
		assert.Nil(t, err)
		_, err = pool.Allocate("")
		assert.Nil(t, err)
		obj3, err := pool.Allocate("")
		assert.Nil(t, err)
		assert.Nil(t, pool.Free(obj3))

		leaks := 0
		count := pool.DumpMemoryInUse(func(obj []byte, size int) {
			leaks++
			assert.Equal(t, 16, size)
		})
		assert.Equal(t, 2, count)
		assert.Equal(t, 2, leaks)
		_ = obj1
	})

	t.Run("external header", func(t *testing.T) {
		pool := newTestPool(t, 16, Config{
			ObjectsPerPage: 4,
			DebugOn:        true,
			HeaderBlock:    HeaderInfo{Type: HeaderExternal},
		})

		obj, err := pool.Allocate("leaked")
		assert.Nil(t, err)
		_ = obj

		assert.Equal(t, 1, pool.DumpMemoryInUse(func(obj []byte, size int) {}))
	})

	t.Run("no header", func(t *testing.T) {
		pool := newTestPool(t, 16, Config{ObjectsPerPage: 4, DebugOn: true})
		_, err := pool.Allocate("")
		assert.Nil(t, err)

		assert.Equal(t, 0, pool.DumpMemoryInUse(func(obj []byte, size int) {}))
	})
}
