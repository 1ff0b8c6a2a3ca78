// Package binreader provides the pull-style byte-stream reader the decoder
// runs on. A Reader is backed by a file or an in-memory buffer and offers
// the binary-format primitives: LEB128 integers with their size bounds,
// little-endian IEEE-754 floats, length-prefixed byte vectors and names,
// seek/tell, and bounded sub-readers for section framing.
package binreader

import (
	"io"
	"os"
	"unicode/utf8"

	"github.com/pkg/errors"

	"github.com/zenovm/zeno/internal/errcode"
	"github.com/zenovm/zeno/internal/ieee754"
	"github.com/zenovm/zeno/internal/leb128"
)

// Reader is a bounded cursor over a byte buffer. Sub-readers share the
// backing buffer with a narrowed bound, so Tell reports absolute offsets
// usable in error messages regardless of nesting.
type Reader struct {
	data  []byte
	pos   int
	limit int
}

// NewReader returns a memory-backed Reader over data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data, limit: len(data)}
}

// NewFileReader returns a Reader over the entire content of the file at
// path. Open failures map to ErrInvalidPath; short reads to ErrEndOfFile;
// any other failure to ErrReadError.
func NewFileReader(path string) (*Reader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(errcode.ErrInvalidPath, "%s", path)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return nil, errors.Wrapf(errcode.ErrReadError, "stat %s", path)
	}
	buf := make([]byte, info.Size())
	if _, err := io.ReadFull(f, buf); err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, errors.Wrapf(errcode.ErrEndOfFile, "%s", path)
		}
		return nil, errors.Wrapf(errcode.ErrReadError, "%s", path)
	}
	return NewReader(buf), nil
}

// Len returns the number of unread bytes within the current bound.
func (r *Reader) Len() int { return r.limit - r.pos }

// Tell returns the absolute offset of the next byte to read.
func (r *Reader) Tell() uint64 { return uint64(r.pos) }

// Seek moves the cursor to the absolute offset, which must lie within the
// current bound.
func (r *Reader) Seek(offset uint64) error {
	if offset > uint64(r.limit) {
		return errcode.WithOffset(errcode.ErrUnexpectedEnd, offset)
	}
	r.pos = int(offset)
	return nil
}

// ReadByte implements io.ByteReader.
func (r *Reader) ReadByte() (byte, error) {
	if r.pos >= r.limit {
		return 0, errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
	b := r.data[r.pos]
	r.pos++
	return b, nil
}

// Read implements io.Reader within the current bound.
func (r *Reader) Read(p []byte) (int, error) {
	if r.pos >= r.limit {
		return 0, io.EOF
	}
	n := copy(p, r.data[r.pos:r.limit])
	r.pos += n
	return n, nil
}

// ReadBytes returns the next n bytes raw.
func (r *Reader) ReadBytes(n uint32) ([]byte, error) {
	if uint64(r.Len()) < uint64(n) {
		return nil, errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
	b := r.data[r.pos : r.pos+int(n)]
	r.pos += int(n)
	return b, nil
}

// ReadU32 reads an unsigned 32-bit LEB128 integer, bounded to 5 bytes.
func (r *Reader) ReadU32() (uint32, error) {
	v, _, err := leb128.DecodeUint32(r)
	return v, r.lebErr(err)
}

// ReadU64 reads an unsigned 64-bit LEB128 integer, bounded to 10 bytes.
func (r *Reader) ReadU64() (uint64, error) {
	v, _, err := leb128.DecodeUint64(r)
	return v, r.lebErr(err)
}

// ReadS32 reads a signed, sign-extended 32-bit LEB128 integer.
func (r *Reader) ReadS32() (int32, error) {
	v, _, err := leb128.DecodeInt32(r)
	return v, r.lebErr(err)
}

// ReadS33 reads a signed 33-bit LEB128 integer, the encoding of block
// signatures.
func (r *Reader) ReadS33() (int64, error) {
	v, _, err := leb128.DecodeInt33AsInt64(r)
	return v, r.lebErr(err)
}

// ReadS64 reads a signed, sign-extended 64-bit LEB128 integer.
func (r *Reader) ReadS64() (int64, error) {
	v, _, err := leb128.DecodeInt64(r)
	return v, r.lebErr(err)
}

// ReadF32 reads a little-endian IEEE-754 single, preserving the bit pattern
// verbatim, NaN payloads included.
func (r *Reader) ReadF32() (float32, error) {
	if r.Len() < 4 {
		return 0, errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
	return ieee754.DecodeFloat32(r)
}

// ReadF64 reads a little-endian IEEE-754 double, preserving the bit pattern.
func (r *Reader) ReadF64() (float64, error) {
	if r.Len() < 8 {
		return 0, errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
	return ieee754.DecodeFloat64(r)
}

// ReadByteVector reads a LEB128 length followed by that many raw bytes.
func (r *Reader) ReadByteVector() ([]byte, error) {
	n, err := r.ReadU32()
	if err != nil {
		return nil, err
	}
	return r.ReadBytes(n)
}

// ReadName reads a byte vector and reinterprets it as UTF-8.
func (r *Reader) ReadName() (string, error) {
	b, err := r.ReadByteVector()
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errcode.WithOffset(errcode.ErrInvalidUTF8, r.Tell())
	}
	return string(b), nil
}

// Sub returns a sub-reader bounded to the next size bytes and advances this
// reader past them. The sub-reader's Finish reports whether its content
// consumed exactly the declared size.
func (r *Reader) Sub(size uint32) (*Reader, error) {
	if uint64(r.Len()) < uint64(size) {
		return nil, errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
	sub := &Reader{data: r.data, pos: r.pos, limit: r.pos + int(size)}
	r.pos += int(size)
	return sub, nil
}

// Finish fails with ErrSectionSizeMismatch when unread bytes remain within
// the bound. Call it after decoding a sub-reader's content.
func (r *Reader) Finish() error {
	if r.Len() != 0 {
		return errors.Wrapf(errcode.ErrSectionSizeMismatch, "%d byte(s) remain at offset %#x", r.Len(), r.Tell())
	}
	return nil
}

// lebErr maps leb128 and io errors onto the decode taxonomy.
func (r *Reader) lebErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, leb128.ErrOverflow32),
		errors.Is(err, leb128.ErrOverflow33),
		errors.Is(err, leb128.ErrOverflow64):
		return errcode.WithOffset(errcode.ErrIntegerTooLong, r.Tell())
	case errors.Is(err, errcode.ErrUnexpectedEnd):
		return err
	default:
		return errcode.WithOffset(errcode.ErrUnexpectedEnd, r.Tell())
	}
}
