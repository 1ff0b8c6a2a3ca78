package store

// TableElement is one table slot: the function address it targets plus the
// type id used for the call_indirect check. TypeID is UninitializedTypeID
// until an element segment writes the slot.
type TableElement struct {
	FunctionAddr Address
	TypeID       FunctionTypeID
}

// TableInstance represents a table instance in a store. Element type is
// fixed to funcref in WebAssembly 1.0 (20191205).
//
// See https://www.w3.org/TR/2019/REC-wasm-core-1-20191205/#table-instances%E2%91%A0
type TableInstance struct {
	Owner    Address
	Elements []TableElement
	Min      uint32
	Max      *uint32
}

// NewTableInstance returns a table of min uninitialized slots.
func NewTableInstance(owner Address, min uint32, max *uint32) *TableInstance {
	t := &TableInstance{
		Owner:    owner,
		Elements: make([]TableElement, min),
		Min:      min,
		Max:      max,
	}
	for i := range t.Elements {
		t.Elements[i] = TableElement{TypeID: UninitializedTypeID}
	}
	return t
}

// Len returns the current slot count.
func (t *TableInstance) Len() uint32 { return uint32(len(t.Elements)) }
