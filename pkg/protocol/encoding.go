// Copyright 2025 Alexander Alten (novatechflow), NovaTechflow (novatechflow.com).
// This project is supported and financed by Scalytics, Inc. (www.scalytics.io).
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrOutOfBounds is returned when a read would run past the end of the buffer.
	ErrOutOfBounds = errors.New("read out of bounds")
	// ErrMalformedVarint is returned for varints longer than their type allows.
	ErrMalformedVarint = errors.New("malformed varint")
)

const (
	maxVarintLen32 = 5
	maxVarintLen64 = 10
)

// Reader is a bounds-checked cursor over a byte slice. A failed read leaves
// the position unchanged.
type Reader struct {
	buf []byte
	pos int
}

// NewReader returns a Reader positioned at the start of b.
func NewReader(b []byte) *Reader {
	return &Reader{buf: b}
}

// Remaining reports the number of unread bytes.
func (r *Reader) Remaining() int {
	return len(r.buf) - r.pos
}

// Offset reports the current read position.
func (r *Reader) Offset() int {
	return r.pos
}

// EOF reports whether every byte has been consumed.
func (r *Reader) EOF() bool {
	return r.pos >= len(r.buf)
}

func (r *Reader) read(n int) ([]byte, error) {
	if n < 0 || r.Remaining() < n {
		return nil, fmt.Errorf("%w: need %d have %d at offset %d", ErrOutOfBounds, n, r.Remaining(), r.pos)
	}
	start := r.pos
	r.pos += n
	return r.buf[start:r.pos], nil
}

// Raw returns the next n bytes. The slice aliases the underlying buffer.
func (r *Reader) Raw(n int) ([]byte, error) {
	return r.read(n)
}

// Skip advances the cursor by n bytes.
func (r *Reader) Skip(n int) error {
	_, err := r.read(n)
	return err
}

func (r *Reader) Int8() (int8, error) {
	b, err := r.read(1)
	if err != nil {
		return 0, err
	}
	return int8(b[0]), nil
}

// PeekInt8 returns the next byte without consuming it.
func (r *Reader) PeekInt8() (int8, error) {
	if r.Remaining() < 1 {
		return 0, fmt.Errorf("%w: need 1 have 0 at offset %d", ErrOutOfBounds, r.pos)
	}
	return int8(r.buf[r.pos]), nil
}

func (r *Reader) Int16() (int16, error) {
	b, err := r.read(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.BigEndian.Uint16(b)), nil
}

func (r *Reader) Int32() (int32, error) {
	b, err := r.read(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.BigEndian.Uint32(b)), nil
}

func (r *Reader) Int64() (int64, error) {
	b, err := r.read(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.BigEndian.Uint64(b)), nil
}

func (r *Reader) UUID() ([16]byte, error) {
	b, err := r.read(16)
	if err != nil {
		return [16]byte{}, err
	}
	var id [16]byte
	copy(id[:], b)
	return id, nil
}

func (r *Reader) Bool() (bool, error) {
	if r.Remaining() < 1 {
		return false, fmt.Errorf("%w: need 1 have 0 at offset %d", ErrOutOfBounds, r.pos)
	}
	switch r.buf[r.pos] {
	case 0:
		r.pos++
		return false, nil
	case 1:
		r.pos++
		return true, nil
	default:
		return false, fmt.Errorf("invalid bool: %d", r.buf[r.pos])
	}
}

// ReadString returns the next n bytes as a string.
func (r *Reader) ReadString(n int) (string, error) {
	b, err := r.read(n)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// PrefixedString reads an int16 length-prefixed, non-null string.
func (r *Reader) PrefixedString() (string, error) {
	start := r.pos
	l, err := r.Int16()
	if err != nil {
		return "", err
	}
	if l < 0 {
		r.pos = start
		return "", fmt.Errorf("invalid string length: %d", l)
	}
	b, err := r.read(int(l))
	if err != nil {
		r.pos = start
		return "", err
	}
	return string(b), nil
}

func (r *Reader) NullableString() (*string, error) {
	start := r.pos
	l, err := r.Int16()
	if err != nil {
		return nil, err
	}
	if l == -1 {
		return nil, nil
	}
	if l < 0 {
		r.pos = start
		return nil, fmt.Errorf("invalid string length: %d", l)
	}
	b, err := r.read(int(l))
	if err != nil {
		r.pos = start
		return nil, err
	}
	str := string(b)
	return &str, nil
}

func (r *Reader) CompactString() (string, error) {
	start := r.pos
	s, err := r.CompactNullableString()
	if err != nil {
		return "", err
	}
	if s == nil {
		r.pos = start
		return "", fmt.Errorf("compact string is null")
	}
	return *s, nil
}

func (r *Reader) CompactNullableString() (*string, error) {
	start := r.pos
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	b, err := r.read(length)
	if err != nil {
		r.pos = start
		return nil, err
	}
	str := string(b)
	return &str, nil
}

// Bytes reads int32 length-prefixed bytes; a negative length yields nil.
func (r *Reader) Bytes() ([]byte, error) {
	start := r.pos
	length, err := r.Int32()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	b, err := r.read(int(length))
	if err != nil {
		r.pos = start
		return nil, err
	}
	return b, nil
}

func (r *Reader) CompactBytes() ([]byte, error) {
	start := r.pos
	length, err := r.compactLength()
	if err != nil {
		return nil, err
	}
	if length < 0 {
		return nil, nil
	}
	b, err := r.read(length)
	if err != nil {
		r.pos = start
		return nil, err
	}
	return b, nil
}

func (r *Reader) peekUvarint(maxLen int) (uint64, int, error) {
	var v uint64
	for i := 0; i < maxLen; i++ {
		if r.pos+i >= len(r.buf) {
			return 0, 0, fmt.Errorf("%w: truncated varint at offset %d", ErrOutOfBounds, r.pos)
		}
		b := r.buf[r.pos+i]
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b&0x80 == 0 {
			return v, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: more than %d bytes at offset %d", ErrMalformedVarint, maxLen, r.pos)
}

// UVarint reads an unsigned varint of at most five bytes.
func (r *Reader) UVarint() (uint32, error) {
	v, n, err := r.peekUvarint(maxVarintLen32)
	if err != nil {
		return 0, err
	}
	if v > 0xffffffff {
		return 0, fmt.Errorf("%w: uvarint overflows 32 bits at offset %d", ErrMalformedVarint, r.pos)
	}
	r.pos += n
	return uint32(v), nil
}

// Varint reads a zigzag-encoded signed varint of at most five bytes.
func (r *Reader) Varint() (int32, error) {
	v, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	return int32(v>>1) ^ -int32(v&1), nil
}

// Varlong reads a zigzag-encoded signed varint of at most ten bytes.
func (r *Reader) Varlong() (int64, error) {
	v, n, err := r.peekUvarint(maxVarintLen64)
	if err != nil {
		return 0, err
	}
	r.pos += n
	return int64(v>>1) ^ -int64(v&1), nil
}

// CompactArrayLen returns the element count of a compact array, or -1 for null.
func (r *Reader) CompactArrayLen() (int32, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	return int32(val - 1), nil
}

func (r *Reader) SkipTaggedFields() error {
	start := r.pos
	count, err := r.UVarint()
	if err != nil {
		return err
	}
	for i := uint32(0); i < count; i++ {
		if _, err := r.UVarint(); err != nil {
			r.pos = start
			return err
		}
		size, err := r.UVarint()
		if err != nil {
			r.pos = start
			return err
		}
		if err := r.Skip(int(size)); err != nil {
			r.pos = start
			return err
		}
	}
	return nil
}

func (r *Reader) compactLength() (int, error) {
	val, err := r.UVarint()
	if err != nil {
		return 0, err
	}
	if val == 0 {
		return -1, nil
	}
	return int(val - 1), nil
}

// Writer appends big-endian and varint encoded values to a growing buffer.
type Writer struct {
	buf []byte
}

// NewWriter returns a Writer with the given initial capacity.
func NewWriter(capacity int) *Writer {
	return &Writer{buf: make([]byte, 0, capacity)}
}

// Raw appends b unchanged.
func (w *Writer) Raw(b []byte) {
	w.buf = append(w.buf, b...)
}

func (w *Writer) Int8(v int8) {
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) Int16(v int16) {
	w.buf = binary.BigEndian.AppendUint16(w.buf, uint16(v))
}

func (w *Writer) Int32(v int32) {
	w.buf = binary.BigEndian.AppendUint32(w.buf, uint32(v))
}

func (w *Writer) Int64(v int64) {
	w.buf = binary.BigEndian.AppendUint64(w.buf, uint64(v))
}

func (w *Writer) UUID(id [16]byte) {
	w.buf = append(w.buf, id[:]...)
}

func (w *Writer) Bool(v bool) {
	if v {
		w.buf = append(w.buf, 1)
	} else {
		w.buf = append(w.buf, 0)
	}
}

func (w *Writer) PrefixedString(v string) {
	if len(v) > 0x7fff {
		panic("string too long")
	}
	w.Int16(int16(len(v)))
	w.buf = append(w.buf, v...)
}

func (w *Writer) NullableString(v *string) {
	if v == nil {
		w.Int16(-1)
		return
	}
	w.PrefixedString(*v)
}

func (w *Writer) CompactString(v string) {
	w.compactLength(len(v))
	w.buf = append(w.buf, v...)
}

func (w *Writer) CompactNullableString(v *string) {
	if v == nil {
		w.compactLength(-1)
		return
	}
	w.CompactString(*v)
}

// BytesWithLength writes int32 length-prefixed bytes; nil is written as -1.
func (w *Writer) BytesWithLength(b []byte) {
	if b == nil {
		w.Int32(-1)
		return
	}
	w.Int32(int32(len(b)))
	w.buf = append(w.buf, b...)
}

func (w *Writer) CompactBytes(b []byte) {
	if b == nil {
		w.compactLength(-1)
		return
	}
	w.compactLength(len(b))
	w.buf = append(w.buf, b...)
}

func (w *Writer) UVarint(v uint32) {
	for v >= 0x80 {
		w.buf = append(w.buf, byte(v)|0x80)
		v >>= 7
	}
	w.buf = append(w.buf, byte(v))
}

func (w *Writer) Varint(v int32) {
	w.UVarint(uint32(v<<1) ^ uint32(v>>31))
}

func (w *Writer) Varlong(v int64) {
	u := uint64(v<<1) ^ uint64(v>>63)
	for u >= 0x80 {
		w.buf = append(w.buf, byte(u)|0x80)
		u >>= 7
	}
	w.buf = append(w.buf, byte(u))
}

func (w *Writer) CompactArrayLen(length int) {
	w.compactLength(length)
}

// WriteTaggedFields writes an empty tagged-field section when count is 0.
func (w *Writer) WriteTaggedFields(count int) {
	w.UVarint(uint32(count))
}

// Len reports the number of bytes written so far.
func (w *Writer) Len() int {
	return len(w.buf)
}

func (w *Writer) Bytes() []byte {
	return w.buf
}

func (w *Writer) compactLength(length int) {
	if length < 0 {
		w.UVarint(0)
		return
	}
	w.UVarint(uint32(length) + 1)
}
