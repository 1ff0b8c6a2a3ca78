package interpreter

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/zenovm/zeno/api"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/moremath"
	"github.com/zenovm/zeno/internal/store"
	"github.com/zenovm/zeno/internal/wasm"
)

// singleFuncModule exports one function "f" with the given signature and body.
func singleFuncModule(ft *wasm.FunctionType, body []wasm.Instruction, locals ...wasm.ValueType) *wasm.Module {
	return &wasm.Module{
		TypeSection:     []*wasm.FunctionType{ft},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{LocalTypes: locals, Body: body}},
		ExportSection:   []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 0}},
	}
}

// instantiateForTest instantiates m and returns the address of export "f".
func instantiateForTest(t *testing.T, it *Interpreter, s *store.StoreManager, m *wasm.Module) store.Address {
	t.Helper()
	require.NoError(t, m.Validate())
	addr, err := it.InstantiateModule(s, m, "")
	require.NoError(t, err)
	inst, err := s.GetModule(addr)
	require.NoError(t, err)
	fAddr, ok := inst.ExportFuncs["f"]
	require.True(t, ok)
	return fAddr
}

var (
	i32i32_i32 = &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32, wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	i32_i32 = &wasm.FunctionType{
		Params:  []wasm.ValueType{wasm.ValueTypeI32},
		Results: []wasm.ValueType{wasm.ValueTypeI32},
	}
	v_v = &wasm.FunctionType{}
)

func TestInvoke_add(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(i32i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{Opcode: wasm.OpcodeLocalGet, Index: 1},
		{Opcode: wasm.OpcodeI32Add},
	}))

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(3), api.I32(4)})
	require.NoError(t, err)
	require.Equal(t, []wasm.Value{api.I32(7)}, results)

	// Two's-complement wrap, no trap.
	results, err = it.Invoke(s, f, []wasm.Value{api.I32(math.MaxInt32), api.I32(1)})
	require.NoError(t, err)
	require.Equal(t, int32(math.MinInt32), results[0].AsI32())
}

func TestInvoke_signatureGate(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(i32i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{Opcode: wasm.OpcodeLocalGet, Index: 1},
		{Opcode: wasm.OpcodeI32Add},
	}))

	_, err := it.Invoke(s, f, []wasm.Value{api.I32(3)})
	require.ErrorIs(t, err, errcode.ErrFuncSigMismatch)
	_, err = it.Invoke(s, f, []wasm.Value{api.I32(3), api.I64(4)})
	require.ErrorIs(t, err, errcode.ErrFuncSigMismatch)
}

func TestInvoke_divTraps(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(i32i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{Opcode: wasm.OpcodeLocalGet, Index: 1},
		{Opcode: wasm.OpcodeI32DivS},
	}))

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(10), api.I32(3)})
	require.NoError(t, err)
	require.Equal(t, int32(3), results[0].AsI32())

	_, err = it.Invoke(s, f, []wasm.Value{api.I32(10), api.I32(0)})
	require.ErrorIs(t, err, errcode.ErrDivideByZero)

	_, err = it.Invoke(s, f, []wasm.Value{api.I32(math.MinInt32), api.I32(-1)})
	require.ErrorIs(t, err, errcode.ErrIntegerOverflow)
}

func TestInvoke_unreachable(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(v_v, []wasm.Instruction{
		{Opcode: wasm.OpcodeUnreachable},
	}))
	_, err := it.Invoke(s, f, nil)
	require.ErrorIs(t, err, errcode.ErrUnreachable)
}

// TestInvoke_loopSum computes sum(1..n) with a block/loop/br_if skeleton,
// exercising label push/pop, the loop continuation and stack snapshots.
func TestInvoke_loopSum(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	// local 1 = acc. loop: acc += n; n -= 1; br_if loop if n != 0.
	f := instantiateForTest(t, it, s, singleFuncModule(i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeBlock, BlockType: wasm.BlockTypeEmpty, Body: []wasm.Instruction{
			// Skip the loop entirely for n == 0.
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeI32Eqz},
			{Opcode: wasm.OpcodeBrIf, Index: 0},
			{Opcode: wasm.OpcodeLoop, BlockType: wasm.BlockTypeEmpty, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 1},
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Add},
				{Opcode: wasm.OpcodeLocalSet, Index: 1},
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
				{Opcode: wasm.OpcodeI32Sub},
				{Opcode: wasm.OpcodeLocalTee, Index: 0},
				{Opcode: wasm.OpcodeDrop},
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeBrIf, Index: 0},
			}},
		}},
		{Opcode: wasm.OpcodeLocalGet, Index: 1},
	}, wasm.ValueTypeI32))

	for _, tc := range []struct{ n, expected int32 }{{0, 0}, {1, 1}, {5, 15}, {100, 5050}} {
		results, err := it.Invoke(s, f, []wasm.Value{api.I32(tc.n)})
		require.NoError(t, err)
		require.Equal(t, tc.expected, results[0].AsI32(), "n=%d", tc.n)
	}
}

func TestInvoke_ifElse(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	// f(x) = x != 0 ? 100 : 200, with the if yielding an i32.
	f := instantiateForTest(t, it, s, singleFuncModule(i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{
			Opcode:    wasm.OpcodeIf,
			BlockType: wasm.ValueTypeI32,
			Body:      []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Val: api.I32(100)}},
			ElseBody:  []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Val: api.I32(200)}},
		},
	}))

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(1)})
	require.NoError(t, err)
	require.Equal(t, int32(100), results[0].AsI32())

	results, err = it.Invoke(s, f, []wasm.Value{api.I32(0)})
	require.NoError(t, err)
	require.Equal(t, int32(200), results[0].AsI32())
}

func TestInvoke_brTable(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	// Classic switch: br_table over three nested blocks, returning 10, 20
	// or 99 for the default.
	f := instantiateForTest(t, it, s, singleFuncModule(i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeBlock, BlockType: wasm.BlockTypeEmpty, Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeBlock, BlockType: wasm.BlockTypeEmpty, Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeBrTable, Labels: []wasm.Index{0, 1}, Index: 1},
			}},
			// br_table 0 lands here
			{Opcode: wasm.OpcodeI32Const, Val: api.I32(10)},
			{Opcode: wasm.OpcodeReturn},
		}},
		// br_table 1 and the default land here
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{Opcode: wasm.OpcodeI32Eqz},
		{
			Opcode:    wasm.OpcodeIf,
			BlockType: wasm.ValueTypeI32,
			Body:      []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Val: api.I32(99)}},
			ElseBody: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
				{Opcode: wasm.OpcodeI32Eq},
				{
					Opcode:    wasm.OpcodeIf,
					BlockType: wasm.ValueTypeI32,
					Body:      []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Val: api.I32(20)}},
					ElseBody:  []wasm.Instruction{{Opcode: wasm.OpcodeI32Const, Val: api.I32(99)}},
				},
			},
		},
	}))

	for _, tc := range []struct{ n, expected int32 }{{0, 10}, {1, 20}, {2, 99}, {7, 99}} {
		results, err := it.Invoke(s, f, []wasm.Value{api.I32(tc.n)})
		require.NoError(t, err)
		require.Equal(t, tc.expected, results[0].AsI32(), "n=%d", tc.n)
	}
}

func TestInvoke_select(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(-1)},
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{Opcode: wasm.OpcodeSelect},
	}))

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(5)})
	require.NoError(t, err)
	require.Equal(t, int32(-1), results[0].AsI32())

	results, err = it.Invoke(s, f, []wasm.Value{api.I32(0)})
	require.NoError(t, err)
	require.Equal(t, int32(1), results[0].AsI32())
}

func TestInvoke_selectTypeMismatch(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}, []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
		{Opcode: wasm.OpcodeI64Const, Val: api.I64(2)},
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(0)},
		{Opcode: wasm.OpcodeSelect},
	}))
	_, err := it.Invoke(s, f, nil)
	require.ErrorIs(t, err, errcode.ErrTypeMismatch)
}

func TestInvoke_callAndStackCeiling(t *testing.T) {
	it, s := New(WithCallDepthCeiling(64)), store.NewStoreManager()
	// Function 0 calls itself forever.
	m := singleFuncModule(v_v, []wasm.Instruction{{Opcode: wasm.OpcodeCall, Index: 0}})
	f := instantiateForTest(t, it, s, m)
	_, err := it.Invoke(s, f, nil)
	require.ErrorIs(t, err, errcode.ErrCallStackExhausted)
}

func TestInvoke_callHelper(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	// f(x) = double(x) + 1, where double is a second module function.
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{i32_i32},
		FunctionSection: []wasm.Index{0, 0},
		CodeSection: []*wasm.Code{
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeCall, Index: 1},
				{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
				{Opcode: wasm.OpcodeI32Add},
			}},
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeI32Add},
			}},
		},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 0}},
	}
	f := instantiateForTest(t, it, s, m)
	results, err := it.Invoke(s, f, []wasm.Value{api.I32(20)})
	require.NoError(t, err)
	require.Equal(t, int32(41), results[0].AsI32())
}

func TestInvoke_callIndirect(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	// Table of 4: slots 0..2 hold add(i32,i32), sub via type 0, and a
	// mismatched v_v function at slot 2; slot 3 stays uninitialized.
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{i32i32_i32, v_v, i32_i32},
		FunctionSection: []wasm.Index{0, 0, 1, 2},
		TableSection:    []*wasm.Table{{ElemType: wasm.ElemTypeFuncref, Limit: &wasm.Limits{Min: 4}}},
		CodeSection: []*wasm.Code{
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeLocalGet, Index: 1},
				{Opcode: wasm.OpcodeI32Add},
			}},
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeLocalGet, Index: 1},
				{Opcode: wasm.OpcodeI32Sub},
			}},
			{Body: []wasm.Instruction{{Opcode: wasm.OpcodeNop}}},
			// f(i) = call_indirect[(i32,i32)->i32] (7, 5) via table[i]
			{Body: []wasm.Instruction{
				{Opcode: wasm.OpcodeI32Const, Val: api.I32(7)},
				{Opcode: wasm.OpcodeI32Const, Val: api.I32(5)},
				{Opcode: wasm.OpcodeLocalGet, Index: 0},
				{Opcode: wasm.OpcodeCallIndirect, Index: 0},
			}},
		},
		ElementSection: []*wasm.ElementSegment{{
			TableIndex: 0,
			OffsetExpr: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Val: api.I32(0)},
			Init:       []wasm.Index{0, 1, 2},
		}},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 3}},
	}
	f := instantiateForTest(t, it, s, m)

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(0)})
	require.NoError(t, err)
	require.Equal(t, int32(12), results[0].AsI32())

	results, err = it.Invoke(s, f, []wasm.Value{api.I32(1)})
	require.NoError(t, err)
	require.Equal(t, int32(2), results[0].AsI32())

	_, err = it.Invoke(s, f, []wasm.Value{api.I32(2)})
	require.ErrorIs(t, err, errcode.ErrIndirectCallTypeMismatch)

	_, err = it.Invoke(s, f, []wasm.Value{api.I32(3)})
	require.ErrorIs(t, err, errcode.ErrUninitializedElement)

	_, err = it.Invoke(s, f, []wasm.Value{api.I32(4)})
	require.ErrorIs(t, err, errcode.ErrUndefinedElement)
}

func TestInvoke_globals(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{i32_i32},
		FunctionSection: []wasm.Index{0},
		GlobalSection: []*wasm.Global{
			{
				Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: true},
				Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Val: api.I32(10)},
			},
		},
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeGlobalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeI32Add},
			{Opcode: wasm.OpcodeGlobalSet, Index: 0},
			{Opcode: wasm.OpcodeGlobalGet, Index: 0},
		}}},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 0}},
	}
	f := instantiateForTest(t, it, s, m)

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(5)})
	require.NoError(t, err)
	require.Equal(t, int32(15), results[0].AsI32())

	// The global persists between invocations within the same instance.
	results, err = it.Invoke(s, f, []wasm.Value{api.I32(5)})
	require.NoError(t, err)
	require.Equal(t, int32(20), results[0].AsI32())
}

func TestInvoke_immutableGlobalSet(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	m := singleFuncModule(v_v, []wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
		{Opcode: wasm.OpcodeGlobalSet, Index: 0},
	})
	m.GlobalSection = []*wasm.Global{{
		Type: &wasm.GlobalType{ValType: wasm.ValueTypeI32, Mutable: false},
		Init: &wasm.ConstantExpression{Opcode: wasm.OpcodeI32Const, Val: api.I32(3)},
	}}
	f := instantiateForTest(t, it, s, m)
	_, err := it.Invoke(s, f, nil)
	require.ErrorIs(t, err, errcode.ErrImmutableGlobal)
}

func TestInvoke_memoryOps(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{i32i32_i32},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []*wasm.Memory{{Min: 1, Max: 2}},
		// f(addr, v): store v at addr, then load16_u it back.
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 1},
			{Opcode: wasm.OpcodeI32Store, Offset: 0},
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeI32Load16U, Offset: 0},
		}}},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 0}},
	}
	f := instantiateForTest(t, it, s, m)

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(8), api.I32(0x1234_abcd)})
	require.NoError(t, err)
	require.Equal(t, int32(0xabcd), results[0].AsI32())

	// Last valid i32 slot is 65532; 65533 overhangs by one byte.
	_, err = it.Invoke(s, f, []wasm.Value{api.I32(65533), api.I32(1)})
	require.ErrorIs(t, err, errcode.ErrMemoryOutOfBounds)

	// A negative base is a huge unsigned effective address.
	_, err = it.Invoke(s, f, []wasm.Value{api.I32(-4), api.I32(1)})
	require.ErrorIs(t, err, errcode.ErrMemoryOutOfBounds)
}

func TestInvoke_memorySizeGrow(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	m := &wasm.Module{
		TypeSection:     []*wasm.FunctionType{i32_i32},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []*wasm.Memory{{Min: 1, Max: 3}},
		// f(delta) = grow(delta), leaving the old page count.
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeMemoryGrow},
		}}},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 0}},
	}
	f := instantiateForTest(t, it, s, m)

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(2)})
	require.NoError(t, err)
	require.Equal(t, int32(1), results[0].AsI32())

	results, err = it.Invoke(s, f, []wasm.Value{api.I32(1)})
	require.NoError(t, err)
	require.Equal(t, int32(-1), results[0].AsI32())
}

func TestInvoke_nanCanonicalization(t *testing.T) {
	it, s := New(), store.NewStoreManager()

	t.Run("f32 0/0", func(t *testing.T) {
		f := instantiateForTest(t, it, s, singleFuncModule(&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF32}}, []wasm.Instruction{
			{Opcode: wasm.OpcodeF32Const, Val: api.F32(0)},
			{Opcode: wasm.OpcodeF32Const, Val: api.F32(0)},
			{Opcode: wasm.OpcodeF32Div},
		}))
		results, err := it.Invoke(s, f, nil)
		require.NoError(t, err)
		require.Equal(t, uint64(moremath.CanonicalNaNBits32), results[0].Raw)
	})

	t.Run("f64 inf + -inf", func(t *testing.T) {
		f := instantiateForTest(t, it, s, singleFuncModule(&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF64}}, []wasm.Instruction{
			{Opcode: wasm.OpcodeF64Const, Val: api.F64(math.Inf(1))},
			{Opcode: wasm.OpcodeF64Const, Val: api.F64(math.Inf(-1))},
			{Opcode: wasm.OpcodeF64Add},
		}))
		results, err := it.Invoke(s, f, nil)
		require.NoError(t, err)
		require.Equal(t, moremath.CanonicalNaNBits64, results[0].Raw)
	})

	t.Run("dirty NaN operand", func(t *testing.T) {
		dirty := math.Float64frombits(0x7ff0_dead_beef_0001)
		f := instantiateForTest(t, it, s, singleFuncModule(&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeF64}}, []wasm.Instruction{
			{Opcode: wasm.OpcodeF64Const, Val: api.F64(dirty)},
			{Opcode: wasm.OpcodeF64Const, Val: api.F64(1)},
			{Opcode: wasm.OpcodeF64Mul},
		}))
		results, err := it.Invoke(s, f, nil)
		require.NoError(t, err)
		require.Equal(t, moremath.CanonicalNaNBits64, results[0].Raw)
	})
}

func TestInvoke_truncTraps(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	build := func(v float64) store.Address {
		return instantiateForTest(t, it, s, singleFuncModule(&wasm.FunctionType{Results: []wasm.ValueType{wasm.ValueTypeI32}}, []wasm.Instruction{
			{Opcode: wasm.OpcodeF64Const, Val: api.F64(v)},
			{Opcode: wasm.OpcodeI32TruncF64S},
		}))
	}

	results, err := it.Invoke(s, build(-3.99), nil)
	require.NoError(t, err)
	require.Equal(t, int32(-3), results[0].AsI32())

	_, err = it.Invoke(s, build(math.NaN()), nil)
	require.ErrorIs(t, err, errcode.ErrInvalidConversionToInteger)

	_, err = it.Invoke(s, build(2147483648), nil)
	require.ErrorIs(t, err, errcode.ErrIntegerOverflow)

	_, err = it.Invoke(s, build(math.Inf(-1)), nil)
	require.ErrorIs(t, err, errcode.ErrIntegerOverflow)
}

func TestInvoke_numericSamples(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	run := func(body []wasm.Instruction, result wasm.ValueType) wasm.Value {
		f := instantiateForTest(t, it, s, singleFuncModule(&wasm.FunctionType{Results: []wasm.ValueType{result}}, body))
		results, err := it.Invoke(s, f, nil)
		require.NoError(t, err)
		return results[0]
	}

	// i32.clz(1) = 31
	require.Equal(t, int32(31), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
		{Opcode: wasm.OpcodeI32Clz},
	}, wasm.ValueTypeI32).AsI32())

	// i64.popcnt(0xff00ff) = 16
	require.Equal(t, int64(16), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI64Const, Val: api.I64(0xff00ff)},
		{Opcode: wasm.OpcodeI64Popcnt},
	}, wasm.ValueTypeI64).AsI64())

	// i32.shr_s(-8, 1) = -4 (arithmetic), i32.shr_u shifts in a zero bit
	require.Equal(t, int32(-4), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(-8)},
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
		{Opcode: wasm.OpcodeI32ShrS},
	}, wasm.ValueTypeI32).AsI32())
	require.Equal(t, int32(0x7ffffffc), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(-8)},
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(33)}, // masked to 1
		{Opcode: wasm.OpcodeI32ShrU},
	}, wasm.ValueTypeI32).AsI32())

	// i32.rotl(0x80000000, 1) = 1
	require.Equal(t, int32(1), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(math.MinInt32)},
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
		{Opcode: wasm.OpcodeI32Rotl},
	}, wasm.ValueTypeI32).AsI32())

	// i64.rem_s(MinInt64, -1) = 0, no trap
	require.Equal(t, int64(0), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI64Const, Val: api.I64(math.MinInt64)},
		{Opcode: wasm.OpcodeI64Const, Val: api.I64(-1)},
		{Opcode: wasm.OpcodeI64RemS},
	}, wasm.ValueTypeI64).AsI64())

	// f64.min(-0, +0) = -0
	minZero := run([]wasm.Instruction{
		{Opcode: wasm.OpcodeF64Const, Val: api.F64(math.Copysign(0, -1))},
		{Opcode: wasm.OpcodeF64Const, Val: api.F64(0)},
		{Opcode: wasm.OpcodeF64Min},
	}, wasm.ValueTypeF64)
	require.True(t, math.Signbit(minZero.AsF64()))

	// f32.abs preserves a NaN payload (sign-bit op, not arithmetic)
	dirty := math.Float32frombits(0xffc0_0001)
	absNaN := run([]wasm.Instruction{
		{Opcode: wasm.OpcodeF32Const, Val: api.F32(dirty)},
		{Opcode: wasm.OpcodeF32Abs},
	}, wasm.ValueTypeF32)
	require.Equal(t, uint64(0x7fc0_0001), absNaN.Raw)

	// i64.extend_i32_s sign-extends, _u zero-extends
	require.Equal(t, int64(-1), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(-1)},
		{Opcode: wasm.OpcodeI64ExtendI32S},
	}, wasm.ValueTypeI64).AsI64())
	require.Equal(t, int64(0xffffffff), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeI32Const, Val: api.I32(-1)},
		{Opcode: wasm.OpcodeI64ExtendI32U},
	}, wasm.ValueTypeI64).AsI64())

	// reinterpret round-trips the bit pattern
	require.Equal(t, int32(0x3f800000), run([]wasm.Instruction{
		{Opcode: wasm.OpcodeF32Const, Val: api.F32(1.0)},
		{Opcode: wasm.OpcodeI32ReinterpretF32},
	}, wasm.ValueTypeI32).AsI32())
}

func TestInvoke_hostFunction(t *testing.T) {
	it, s := New(), store.NewStoreManager()

	var sawMemory api.Memory
	host := &HostModule{
		Name: "env",
		Functions: map[string]api.HostFunction{
			"mul3": &api.GoFunc{
				FuncType: i32_i32,
				Fn: func(mem api.Memory, params []api.Value) ([]api.Value, error) {
					sawMemory = mem
					return []api.Value{api.I32(params[0].AsI32() * 3)}, nil
				},
			},
		},
	}
	_, err := it.RegisterHostModule(s, host)
	require.NoError(t, err)

	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{i32_i32},
		ImportSection: []*wasm.Import{
			{Type: wasm.ExternTypeFunc, Module: "env", Name: "mul3", DescFunc: 0},
		},
		FunctionSection: []wasm.Index{0},
		MemorySection:   []*wasm.Memory{{Min: 1, Max: 1}},
		// f(x) = mul3(x) + 1; function index 1 (import is 0).
		CodeSection: []*wasm.Code{{Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeLocalGet, Index: 0},
			{Opcode: wasm.OpcodeCall, Index: 0},
			{Opcode: wasm.OpcodeI32Const, Val: api.I32(1)},
			{Opcode: wasm.OpcodeI32Add},
		}}},
		ExportSection: []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 1}},
	}
	f := instantiateForTest(t, it, s, m)

	results, err := it.Invoke(s, f, []wasm.Value{api.I32(5)})
	require.NoError(t, err)
	require.Equal(t, int32(16), results[0].AsI32())
	// The host saw the calling module's memory.
	require.NotNil(t, sawMemory)
	require.Equal(t, uint32(65536), sawMemory.Size())
}

func TestInvoke_hostTrapPropagates(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	_, err := it.RegisterHostModule(s, &HostModule{
		Name: "env",
		Functions: map[string]api.HostFunction{
			"boom": &api.GoFunc{
				FuncType: v_v,
				Fn: func(api.Memory, []api.Value) ([]api.Value, error) {
					return nil, errcode.ErrUnreachable
				},
			},
		},
	})
	require.NoError(t, err)

	m := &wasm.Module{
		TypeSection: []*wasm.FunctionType{v_v},
		ImportSection: []*wasm.Import{
			{Type: wasm.ExternTypeFunc, Module: "env", Name: "boom", DescFunc: 0},
		},
		FunctionSection: []wasm.Index{0},
		CodeSection:     []*wasm.Code{{Body: []wasm.Instruction{{Opcode: wasm.OpcodeCall, Index: 0}}}},
		ExportSection:   []*wasm.Export{{Type: wasm.ExternTypeFunc, Name: "f", Index: 1}},
	}
	f := instantiateForTest(t, it, s, m)
	_, err = it.Invoke(s, f, nil)
	require.ErrorIs(t, err, errcode.ErrUnreachable)
}

func TestInvoke_tickInterrupt(t *testing.T) {
	fuel := 10
	it := New(WithTick(func() bool {
		fuel--
		return fuel < 0
	}))
	s := store.NewStoreManager()

	// An infinite loop, stoppable only by the tick hook.
	f := instantiateForTest(t, it, s, singleFuncModule(v_v, []wasm.Instruction{
		{Opcode: wasm.OpcodeLoop, BlockType: wasm.BlockTypeEmpty, Body: []wasm.Instruction{
			{Opcode: wasm.OpcodeBr, Index: 0},
		}},
	}))
	_, err := it.Invoke(s, f, nil)
	require.ErrorIs(t, err, errcode.ErrInterrupted)
}

// TestInvoke_trapDeterminism runs the same trapping input twice and expects
// the identical error, including the decorated context.
func TestInvoke_trapDeterminism(t *testing.T) {
	it, s := New(), store.NewStoreManager()
	f := instantiateForTest(t, it, s, singleFuncModule(i32i32_i32, []wasm.Instruction{
		{Opcode: wasm.OpcodeLocalGet, Index: 0},
		{Opcode: wasm.OpcodeLocalGet, Index: 1},
		{Opcode: wasm.OpcodeI32DivS},
	}))
	_, err1 := it.Invoke(s, f, []wasm.Value{api.I32(1), api.I32(0)})
	_, err2 := it.Invoke(s, f, []wasm.Value{api.I32(1), api.I32(0)})
	require.Error(t, err1)
	require.Equal(t, err1.Error(), err2.Error())
}
