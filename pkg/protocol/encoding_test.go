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
	"bytes"
	"errors"
	"testing"

	"github.com/twmb/franz-go/pkg/kbin"
)

func TestVarintRoundTrip(t *testing.T) {
	values := []int32{0, 1, -1, 63, -64, 64, 300, -300, 1 << 20, -(1 << 20), 2147483647, -2147483648}
	for _, v := range values {
		w := NewWriter(8)
		w.Varint(v)
		if want := kbin.AppendVarint(nil, v); !bytes.Equal(w.Bytes(), want) {
			t.Fatalf("varint %d encoded %x want %x", v, w.Bytes(), want)
		}
		if len(w.Bytes()) > 5 {
			t.Fatalf("varint %d used %d bytes", v, len(w.Bytes()))
		}
		r := NewReader(w.Bytes())
		got, err := r.Varint()
		if err != nil {
			t.Fatalf("Varint(%d): %v", v, err)
		}
		if got != v || !r.EOF() {
			t.Fatalf("varint round trip %d -> %d (eof=%v)", v, got, r.EOF())
		}
	}
}

func TestUVarintRoundTrip(t *testing.T) {
	values := []uint32{0, 1, 127, 128, 16383, 16384, 1 << 28, 0xffffffff}
	for _, v := range values {
		w := NewWriter(8)
		w.UVarint(v)
		if want := kbin.AppendUvarint(nil, v); !bytes.Equal(w.Bytes(), want) {
			t.Fatalf("uvarint %d encoded %x want %x", v, w.Bytes(), want)
		}
		r := NewReader(w.Bytes())
		got, err := r.UVarint()
		if err != nil {
			t.Fatalf("UVarint(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("uvarint round trip %d -> %d", v, got)
		}
	}
}

func TestVarlongRoundTrip(t *testing.T) {
	values := []int64{0, -1, 1, 1 << 40, -(1 << 40), 9223372036854775807, -9223372036854775808}
	for _, v := range values {
		w := NewWriter(10)
		w.Varlong(v)
		if want := kbin.AppendVarlong(nil, v); !bytes.Equal(w.Bytes(), want) {
			t.Fatalf("varlong %d encoded %x want %x", v, w.Bytes(), want)
		}
		got, err := NewReader(w.Bytes()).Varlong()
		if err != nil {
			t.Fatalf("Varlong(%d): %v", v, err)
		}
		if got != v {
			t.Fatalf("varlong round trip %d -> %d", v, got)
		}
	}
}

func TestVarintRejectsSixthByte(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01})
	if _, err := r.Varint(); !errors.Is(err, ErrMalformedVarint) {
		t.Fatalf("expected ErrMalformedVarint, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("failed read advanced cursor to %d", r.Offset())
	}
}

func TestVarintTruncated(t *testing.T) {
	r := NewReader([]byte{0x80, 0x80})
	if _, err := r.Varint(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
}

func TestReaderBoundsLeaveCursorUnchanged(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01, 0x02})
	if _, err := r.Int32(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if r.Offset() != 0 || r.Remaining() != 3 {
		t.Fatalf("cursor moved after failed read: offset=%d remaining=%d", r.Offset(), r.Remaining())
	}
	if _, err := r.Raw(4); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds for Raw, got %v", err)
	}
	if err := r.Skip(3); err != nil {
		t.Fatalf("Skip: %v", err)
	}
	if !r.EOF() {
		t.Fatalf("expected EOF after consuming all bytes")
	}
	if _, err := r.Int8(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds at EOF, got %v", err)
	}
}

func TestStringEncodings(t *testing.T) {
	w := NewWriter(32)
	w.PrefixedString("abc")
	w.NullableString(nil)
	w.CompactString("orders")
	w.CompactNullableString(nil)
	w.CompactBytes([]byte{9})

	r := NewReader(w.Bytes())
	if s, err := r.PrefixedString(); err != nil || s != "abc" {
		t.Fatalf("PrefixedString: %q %v", s, err)
	}
	if s, err := r.NullableString(); err != nil || s != nil {
		t.Fatalf("NullableString: %v %v", s, err)
	}
	if s, err := r.CompactString(); err != nil || s != "orders" {
		t.Fatalf("CompactString: %q %v", s, err)
	}
	if s, err := r.CompactNullableString(); err != nil || s != nil {
		t.Fatalf("CompactNullableString: %v %v", s, err)
	}
	if b, err := r.CompactBytes(); err != nil || !bytes.Equal(b, []byte{9}) {
		t.Fatalf("CompactBytes: %v %v", b, err)
	}
	if !r.EOF() {
		t.Fatalf("expected EOF, %d bytes left", r.Remaining())
	}
}

func TestCompactStringTruncatedRestoresCursor(t *testing.T) {
	// length byte claims 5 characters, only 2 follow
	r := NewReader([]byte{0x06, 'a', 'b'})
	if _, err := r.CompactString(); !errors.Is(err, ErrOutOfBounds) {
		t.Fatalf("expected ErrOutOfBounds, got %v", err)
	}
	if r.Offset() != 0 {
		t.Fatalf("cursor moved to %d", r.Offset())
	}
}

func TestSkipTaggedFields(t *testing.T) {
	w := NewWriter(16)
	w.UVarint(2)
	w.UVarint(0)
	w.UVarint(3)
	w.Raw([]byte{1, 2, 3})
	w.UVarint(5)
	w.UVarint(0)
	w.Int16(7)

	r := NewReader(w.Bytes())
	if err := r.SkipTaggedFields(); err != nil {
		t.Fatalf("SkipTaggedFields: %v", err)
	}
	if v, err := r.Int16(); err != nil || v != 7 {
		t.Fatalf("expected trailing int16 7, got %d %v", v, err)
	}
}

func TestCompactArrayLen(t *testing.T) {
	r := NewReader([]byte{0x00, 0x01, 0x04})
	for _, want := range []int32{-1, 0, 3} {
		got, err := r.CompactArrayLen()
		if err != nil {
			t.Fatalf("CompactArrayLen: %v", err)
		}
		if got != want {
			t.Fatalf("expected %d got %d", want, got)
		}
	}
}
