package kernel

import (
	"debug/elf"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRelocatableKernel(t *testing.T) {
	t.Parallel()

	// A single relocation pointing at offset 0x10 with addend 0x5: loading
	// at base 0x4000 must write 0x4005 there.
	data := buildKernel(t, kernelSpec{
		entry: 0x1234,
		segments: []testSegment{
			{vaddr: 0x1000, data: make([]byte, 0x100), memsz: 0x2000},
		},
		relas: []testRela{{off: 0x10, typ: relRelative, addend: 0x5}},
	})

	obj, err := Parse(data)
	require.NoError(t, err)
	require.Equal(t, uint64(0x2000), obj.MemSize())

	memory := make([]byte, obj.MemSize())
	loaded, err := obj.LoadKernel(memory, 0x4000)
	require.NoError(t, err)

	assert.Equal(t, uint64(0x4005), binary.NativeEndian.Uint64(memory[0x10:]))
	assert.Equal(t, uint64(0x4000), loaded.LoadInfo.KernelImageAddrRange.Start)
	assert.Equal(t, uint64(0x6000), loaded.LoadInfo.KernelImageAddrRange.End)
	assert.Equal(t, uint64(0x5234), loaded.EntryPoint)
	assert.Nil(t, loaded.LoadInfo.TLS)
}

func TestLoadFixedKernel(t *testing.T) {
	t.Parallel()

	data := buildKernel(t, kernelSpec{
		typ:      elf.ET_EXEC,
		entry:    0x200040,
		segments: []testSegment{{vaddr: 0x200000, data: []byte("kernel code"), memsz: 0x1000}},
	})

	obj, err := Parse(data)
	require.NoError(t, err)

	memory := make([]byte, obj.MemSize())
	loaded, err := obj.LoadKernel(memory, 0x200000)
	require.NoError(t, err)

	assert.Equal(t, []byte("kernel code"), memory[:11])
	// A fixed entry point is taken as is.
	assert.Equal(t, uint64(0x200040), loaded.EntryPoint)
}

func TestLoadRejectsWrongAddress(t *testing.T) {
	t.Parallel()

	data := buildKernel(t, kernelSpec{
		typ:      elf.ET_EXEC,
		segments: []testSegment{{vaddr: 0x200000, data: []byte("code")}},
	})

	obj, err := Parse(data)
	require.NoError(t, err)

	_, err = obj.LoadKernel(make([]byte, obj.MemSize()), 0x300000)
	assert.ErrorIs(t, err, ErrBadLoadAddress)
}

func TestLoadRejectsWrongMemorySize(t *testing.T) {
	t.Parallel()

	data := buildKernel(t, kernelSpec{
		segments: []testSegment{{vaddr: 0x1000, data: []byte("code"), memsz: 0x1000}},
	})

	obj, err := Parse(data)
	require.NoError(t, err)

	_, err = obj.LoadKernel(make([]byte, obj.MemSize()-1), 0x4000)
	assert.ErrorIs(t, err, ErrBadMemorySize)
	_, err = obj.LoadKernel(make([]byte, obj.MemSize()+1), 0x4000)
	assert.ErrorIs(t, err, ErrBadMemorySize)
}

func TestLoadClearsSegmentTail(t *testing.T) {
	t.Parallel()

	data := buildKernel(t, kernelSpec{
		segments: []testSegment{{vaddr: 0x1000, data: []byte("hello"), memsz: 64}},
	})

	obj, err := Parse(data)
	require.NoError(t, err)

	memory := make([]byte, obj.MemSize())
	for i := range memory {
		memory[i] = 0xFF
	}
	_, err = obj.LoadKernel(memory, 0x4000)
	require.NoError(t, err)

	assert.Equal(t, []byte("hello"), memory[:5])
	assert.Equal(t, make([]byte, 64-5), memory[5:64])
}

func TestLoadDeterministic(t *testing.T) {
	t.Parallel()

	data := buildKernel(t, kernelSpec{
		entry:    0x40,
		segments: []testSegment{{vaddr: 0x1000, data: []byte("code"), memsz: 0x100}},
		relas:    []testRela{{off: 0x20, typ: relRelative, addend: 0x8}},
	})

	obj, err := Parse(data)
	require.NoError(t, err)

	first := make([]byte, obj.MemSize())
	second := make([]byte, obj.MemSize())
	firstLoaded, err := obj.LoadKernel(first, 0x9000)
	require.NoError(t, err)
	secondLoaded, err := obj.LoadKernel(second, 0x9000)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, firstLoaded, secondLoaded)
}

func TestLoadSymbolRelocation(t *testing.T) {
	t.Parallel()

	data := buildKernel(t, kernelSpec{
		segments: []testSegment{{vaddr: 0x1000, data: make([]byte, 0x80), memsz: 0x100}},
		relas:    []testRela{{off: 0x18, typ: relAbs64, sym: 1, addend: 0x8}},
		dynsyms: []testSym{
			{}, // mandatory null symbol
			{info: uint8(elf.STB_GLOBAL) << 4, shndx: 1, value: 0x100},
		},
	})

	obj, err := Parse(data)
	require.NoError(t, err)

	memory := make([]byte, obj.MemSize())
	_, err = obj.LoadKernel(memory, 0x4000)
	require.NoError(t, err)

	assert.Equal(t, uint64(0x4000+0x100+0x8), binary.NativeEndian.Uint64(memory[0x18:]))
}

func TestLoadWeakUndefinedSymbol(t *testing.T) {
	t.Parallel()

	spec := kernelSpec{
		segments: []testSegment{{vaddr: 0x1000, data: make([]byte, 0x80), memsz: 0x100}},
		relas:    []testRela{{off: 0x18, typ: relAbs64, sym: 1}},
		dynsyms: []testSym{
			{},
			{info: uint8(elf.STB_WEAK) << 4, shndx: uint16(elf.SHN_UNDEF)},
		},
	}

	t.Run("zero target resolves to zero", func(t *testing.T) {
		t.Parallel()

		obj, err := Parse(buildKernel(t, spec))
		require.NoError(t, err)

		memory := make([]byte, obj.MemSize())
		_, err = obj.LoadKernel(memory, 0x4000)
		require.NoError(t, err)
		assert.Equal(t, uint64(0), binary.NativeEndian.Uint64(memory[0x18:]))
	})

	t.Run("nonzero target is rejected", func(t *testing.T) {
		t.Parallel()

		bad := spec
		bad.segments = []testSegment{{vaddr: 0x1000, data: make([]byte, 0x80), memsz: 0x100}}
		bad.segments[0].data[0x18] = 0xAA

		obj, err := Parse(buildKernel(t, bad))
		require.NoError(t, err)

		_, err = obj.LoadKernel(make([]byte, obj.MemSize()), 0x4000)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not zero")
	})
}

func TestLoadGlobDatRelocation(t *testing.T) {
	t.Parallel()

	if !hasGlobDat {
		t.Skip("architecture has no GLOB_DAT relocation")
	}

	spec := kernelSpec{
		segments: []testSegment{{vaddr: 0x1000, data: make([]byte, 0x80), memsz: 0x100}},
		relas:    []testRela{{off: 0x18, typ: relGlobDat, sym: 1}},
		dynsyms: []testSym{
			{},
			{info: uint8(elf.STB_GLOBAL) << 4, shndx: 1, value: 0x40},
		},
	}

	obj, err := Parse(buildKernel(t, spec))
	require.NoError(t, err)

	memory := make([]byte, obj.MemSize())
	_, err = obj.LoadKernel(memory, 0x4000)
	require.NoError(t, err)
	assert.Equal(t, uint64(0x4040), binary.NativeEndian.Uint64(memory[0x18:]))

	if globDatZeroAddend {
		spec.relas[0].addend = 8
		obj, err := Parse(buildKernel(t, spec))
		require.NoError(t, err)

		_, err = obj.LoadKernel(make([]byte, obj.MemSize()), 0x4000)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "nonzero addend")
	}
}

func TestLoadRelocationErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		rela testRela
		want string
	}{
		{
			name: "unsupported type",
			rela: testRela{off: 0x18, typ: 0x7fffffff},
			want: "unsupported relocation type",
		},
		{
			name: "offset out of range",
			rela: testRela{off: 0x1_0000, typ: relRelative},
			want: "out of range",
		},
		{
			name: "invalid symbol index",
			rela: testRela{off: 0x18, typ: relAbs64, sym: 7},
			want: "invalid symbol",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			data := buildKernel(t, kernelSpec{
				segments: []testSegment{{vaddr: 0x1000, data: make([]byte, 0x80), memsz: 0x100}},
				relas:    []testRela{tt.rela},
				dynsyms:  []testSym{{}},
			})

			obj, err := Parse(data)
			require.NoError(t, err)

			_, err = obj.LoadKernel(make([]byte, obj.MemSize()), 0x4000)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadTLSInfo(t *testing.T) {
	t.Parallel()

	tls := &testTLS{vaddr: 0x1800, filesz: 0x10, memsz: 0x40, align: 8}

	t.Run("relocatable kernel shifts the segment", func(t *testing.T) {
		t.Parallel()

		data := buildKernel(t, kernelSpec{
			segments: []testSegment{{vaddr: 0x1000, data: []byte("code"), memsz: 0x1000}},
			tls:      tls,
		})

		obj, err := Parse(data)
		require.NoError(t, err)

		loaded, err := obj.LoadKernel(make([]byte, obj.MemSize()), 0x4000)
		require.NoError(t, err)

		require.NotNil(t, loaded.LoadInfo.TLS)
		assert.Equal(t, uint64(0x4000+0x1800), loaded.LoadInfo.TLS.Start)
		assert.Equal(t, uint64(0x10), loaded.LoadInfo.TLS.Filesz)
		assert.Equal(t, uint64(0x40), loaded.LoadInfo.TLS.Memsz)
		assert.Equal(t, uint64(8), loaded.LoadInfo.TLS.Align)
	})

	t.Run("fixed kernel keeps the address", func(t *testing.T) {
		t.Parallel()

		data := buildKernel(t, kernelSpec{
			typ:      elf.ET_EXEC,
			segments: []testSegment{{vaddr: 0x1000, data: []byte("code"), memsz: 0x1000}},
			tls:      tls,
		})

		obj, err := Parse(data)
		require.NoError(t, err)

		loaded, err := obj.LoadKernel(make([]byte, obj.MemSize()), 0x1000)
		require.NoError(t, err)

		require.NotNil(t, loaded.LoadInfo.TLS)
		assert.Equal(t, uint64(0x1800), loaded.LoadInfo.TLS.Start)
	})
}
