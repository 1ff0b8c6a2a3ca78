package store

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

func TestStoreManager_addressesAndLookup(t *testing.T) {
	s := NewStoreManager()

	mod := NewModuleInstance("m", true)
	modAddr := s.ImportModule(mod)

	ft := &wasm.FunctionType{}
	fAddr := s.AllocateFunction(&FunctionInstance{Owner: modAddr, Type: ft, TypeID: s.GetTypeID(ft)})
	gAddr := s.AllocateGlobal(&GlobalInstance{Owner: modAddr, Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32}, Val: api.I32(1)})

	f, err := s.GetFunction(fAddr)
	require.NoError(t, err)
	require.Equal(t, modAddr, f.Owner)

	g, err := s.GetGlobal(gAddr)
	require.NoError(t, err)
	require.Equal(t, int32(1), g.Val.AsI32())

	_, err = s.GetFunction(99)
	require.ErrorIs(t, err, errcode.ErrWrongInstanceAddress)
	_, err = s.GetModule(99)
	require.ErrorIs(t, err, errcode.ErrWrongInstanceAddress)
}

func TestStoreManager_resetPreservesRegistered(t *testing.T) {
	s := NewStoreManager()

	host := NewModuleInstance("env", true)
	hostAddr := s.ImportModule(host)
	hostFn := s.AllocateFunction(&FunctionInstance{Owner: hostAddr, Type: &wasm.FunctionType{}})
	host.FuncAddrs = append(host.FuncAddrs, hostFn)

	anon := NewModuleInstance("scratch", false)
	anonAddr := s.ImportModule(anon)
	anonFn := s.AllocateFunction(&FunctionInstance{Owner: anonAddr, Type: &wasm.FunctionType{}})
	anonMem := s.AllocateMemory(NewMemoryInstance(anonAddr, 1, 1))

	s.Reset()

	// Host entities survive; the anonymous module's are dead.
	_, err := s.GetFunction(hostFn)
	require.NoError(t, err)
	_, err = s.GetFunction(anonFn)
	require.ErrorIs(t, err, errcode.ErrWrongInstanceAddress)
	_, err = s.GetMemory(anonMem)
	require.ErrorIs(t, err, errcode.ErrWrongInstanceAddress)
	_, err = s.GetModule(anonAddr)
	require.ErrorIs(t, err, errcode.ErrWrongInstanceAddress)

	_, ok := s.FindModule("env")
	require.True(t, ok)
	_, ok = s.FindModule("scratch")
	require.False(t, ok)

	// Dead addresses are not reused by later allocations.
	next := s.AllocateFunction(&FunctionInstance{Owner: hostAddr, Type: &wasm.FunctionType{}})
	require.Greater(t, next, anonFn)
}

func TestStoreManager_rollback(t *testing.T) {
	s := NewStoreManager()
	keep := s.ImportModule(NewModuleInstance("keep", true))
	s.AllocateFunction(&FunctionInstance{Owner: keep, Type: &wasm.FunctionType{}})

	before := s.Snapshot()
	funcsBefore, _, _, _ := s.LiveCounts()

	addr := s.ImportModule(NewModuleInstance("doomed", false))
	s.AllocateFunction(&FunctionInstance{Owner: addr, Type: &wasm.FunctionType{}})
	s.AllocateGlobal(&GlobalInstance{Owner: addr, Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32}})
	s.AllocateTable(NewTableInstance(addr, 2, nil))
	s.AllocateMemory(NewMemoryInstance(addr, 1, 2))

	s.Rollback(before)

	funcsAfter, tables, mems, globals := s.LiveCounts()
	require.Equal(t, funcsBefore, funcsAfter)
	require.Zero(t, tables)
	require.Zero(t, mems)
	require.Zero(t, globals)
	_, ok := s.FindModule("doomed")
	require.False(t, ok)
	_, ok = s.FindModule("keep")
	require.True(t, ok)
}

func TestGetTypeID_interning(t *testing.T) {
	s := NewStoreManager()
	a := s.GetTypeID(&wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}})
	b := s.GetTypeID(&wasm.FunctionType{Params: []wasm.ValueType{wasm.ValueTypeI32}})
	c := s.GetTypeID(&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}})
	require.Equal(t, a, b)
	require.NotEqual(t, a, c)
}

func TestMemoryInstance_grow(t *testing.T) {
	m := NewMemoryInstance(0, 1, 3)
	require.Equal(t, uint32(1), m.PageSize())
	require.Equal(t, uint32(65536), m.Size())

	require.Equal(t, uint32(1), m.Grow(2))
	require.Equal(t, uint32(3), m.PageSize())

	// Beyond max: -1 as i32, with the buffer untouched.
	require.Equal(t, uint32(math.MaxUint32), m.Grow(1))
	require.Equal(t, uint32(3), m.PageSize())

	require.Equal(t, uint32(3), m.Grow(0))
}

func TestMemoryInstance_accessors(t *testing.T) {
	m := NewMemoryInstance(0, 1, 1)

	require.True(t, m.WriteUint32Le(0, 0xdeadbeef))
	v, ok := m.ReadUint32Le(0)
	require.True(t, ok)
	require.Equal(t, uint32(0xdeadbeef), v)

	// The last valid byte offset is size-1; size-3 can't hold a uint32.
	require.False(t, m.WriteUint32Le(m.Size()-3, 1))
	_, ok = m.ReadUint32Le(m.Size() - 3)
	require.False(t, ok)

	require.True(t, m.WriteByte(m.Size()-1, 0x7f))
	b, ok := m.ReadByte(m.Size() - 1)
	require.True(t, ok)
	require.Equal(t, byte(0x7f), b)
}

func TestTableInstance_uninitializedSlots(t *testing.T) {
	tab := NewTableInstance(0, 4, nil)
	require.Equal(t, uint32(4), tab.Len())
	for _, e := range tab.Elements {
		require.Equal(t, UninitializedTypeID, e.TypeID)
	}
}

func TestGlobalInstance_set(t *testing.T) {
	g := &GlobalInstance{Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: false}, Val: api.I32(7)}
	require.ErrorIs(t, g.Set(api.I32(8)), errcode.ErrImmutableGlobal)
	require.Equal(t, int32(7), g.Val.AsI32())

	g.Type.Mutable = true
	require.ErrorIs(t, g.Set(api.I64(8)), errcode.ErrTypeMismatch)
	require.NoError(t, g.Set(api.I32(8)))
	require.Equal(t, int32(8), g.Val.AsI32())
}
