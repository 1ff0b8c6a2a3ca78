package binary

import (
	"bytes"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/binreader"
	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/wasm"
)

// DecodeModule parses the WebAssembly 1.0 (20191205) Binary Format into a
// wasm.Module. The framing rules are enforced here: magic and version
// first, then sections identified by id with a declared size each, the
// non-custom ids in strictly canonical order, each consuming its size
// exactly. Cross-section index validation runs once all sections are in,
// so a violation yields an error rather than a module.
func DecodeModule(r *binreader.Reader) (*wasm.Module, error) {
	magic, err := r.ReadBytes(4)
	if err != nil || !bytes.Equal(magic, Magic) {
		return nil, errcode.ErrInvalidMagic
	}
	v, err := r.ReadBytes(4)
	if err != nil || !bytes.Equal(v, version) {
		return nil, errcode.ErrInvalidVersion
	}

	m := &wasm.Module{}
	lastSection := wasm.SectionIDCustom
	for r.Len() > 0 {
		sectionID, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		sectionSize, err := r.ReadU32()
		if err != nil {
			return nil, errors.WithMessagef(err, "section %s size", wasm.SectionIDName(sectionID))
		}
		section, err := r.Sub(sectionSize)
		if err != nil {
			return nil, errcode.WithSection(err, wasm.SectionIDName(sectionID))
		}

		if sectionID != wasm.SectionIDCustom {
			if sectionID > wasm.SectionIDData {
				return nil, errors.Wrapf(errcode.ErrMalformedBinary, "invalid section id %d", sectionID)
			}
			// Each non-custom section appears at most once, in id order.
			if sectionID <= lastSection {
				return nil, errors.Wrapf(errcode.ErrSectionOrder,
					"section %s after %s", wasm.SectionIDName(sectionID), wasm.SectionIDName(lastSection))
			}
			lastSection = sectionID
		}

		if err := decodeSection(m, sectionID, section); err != nil {
			return nil, errcode.WithSection(err, wasm.SectionIDName(sectionID))
		}
		if err := section.Finish(); err != nil {
			return nil, errcode.WithSection(err, wasm.SectionIDName(sectionID))
		}
	}

	if err := m.ValidateIndices(); err != nil {
		return nil, err
	}
	return m, nil
}

// DecodeModuleBytes is DecodeModule over an in-memory binary.
func DecodeModuleBytes(bin []byte) (*wasm.Module, error) {
	return DecodeModule(binreader.NewReader(bin))
}

func decodeSection(m *wasm.Module, sectionID wasm.SectionID, r *binreader.Reader) error {
	switch sectionID {
	case wasm.SectionIDCustom:
		return decodeCustomSection(m, r)
	case wasm.SectionIDType:
		return decodeVec(r, func() (err error) {
			t, err := decodeFunctionType(r)
			if err == nil {
				m.TypeSection = append(m.TypeSection, t)
			}
			return
		})
	case wasm.SectionIDImport:
		return decodeVec(r, func() (err error) {
			i, err := decodeImport(r)
			if err == nil {
				m.ImportSection = append(m.ImportSection, i)
			}
			return
		})
	case wasm.SectionIDFunction:
		return decodeVec(r, func() (err error) {
			idx, err := r.ReadU32()
			if err == nil {
				m.FunctionSection = append(m.FunctionSection, idx)
			}
			return
		})
	case wasm.SectionIDTable:
		return decodeVec(r, func() (err error) {
			t, err := decodeTable(r)
			if err == nil {
				m.TableSection = append(m.TableSection, t)
			}
			return
		})
	case wasm.SectionIDMemory:
		return decodeVec(r, func() (err error) {
			mem, err := decodeMemory(r)
			if err == nil {
				m.MemorySection = append(m.MemorySection, mem)
			}
			return
		})
	case wasm.SectionIDGlobal:
		return decodeVec(r, func() (err error) {
			g, err := decodeGlobal(r)
			if err == nil {
				m.GlobalSection = append(m.GlobalSection, g)
			}
			return
		})
	case wasm.SectionIDExport:
		return decodeVec(r, func() (err error) {
			e, err := decodeExport(r)
			if err == nil {
				m.ExportSection = append(m.ExportSection, e)
			}
			return
		})
	case wasm.SectionIDStart:
		if m.StartSection != nil {
			return errors.Wrap(errcode.ErrMalformedBinary, "multiple start sections")
		}
		idx, err := r.ReadU32()
		if err != nil {
			return err
		}
		m.StartSection = &idx
		return nil
	case wasm.SectionIDElement:
		return decodeVec(r, func() (err error) {
			e, err := decodeElementSegment(r)
			if err == nil {
				m.ElementSection = append(m.ElementSection, e)
			}
			return
		})
	case wasm.SectionIDCode:
		return decodeVec(r, func() (err error) {
			c, err := decodeCode(r)
			if err == nil {
				m.CodeSection = append(m.CodeSection, c)
			}
			return
		})
	case wasm.SectionIDData:
		return decodeVec(r, func() (err error) {
			d, err := decodeDataSegment(r)
			if err == nil {
				m.DataSection = append(m.DataSection, d)
			}
			return
		})
	default:
		return errors.Wrapf(errcode.ErrMalformedBinary, "invalid section id %d", sectionID)
	}
}

// decodeVec reads a LEB128 count then runs decodeOne that many times.
func decodeVec(r *binreader.Reader, decodeOne func() error) error {
	count, err := r.ReadU32()
	if err != nil {
		return errors.WithMessage(err, "vector size")
	}
	for i := uint32(0); i < count; i++ {
		if err := decodeOne(); err != nil {
			return errors.WithMessagef(err, "entry %d", i)
		}
	}
	return nil
}

// decodeCustomSection retains an id-0 section uninterpreted: the name, then
// whatever bytes remain within the section bound.
func decodeCustomSection(m *wasm.Module, r *binreader.Reader) error {
	name, err := r.ReadName()
	if err != nil {
		return errors.WithMessage(err, "custom section name")
	}
	data, err := r.ReadBytes(uint32(r.Len()))
	if err != nil {
		return err
	}
	owned := make([]byte, len(data))
	copy(owned, data)
	m.CustomSections = append(m.CustomSections, &wasm.CustomSection{Name: name, Data: owned})
	return nil
}
