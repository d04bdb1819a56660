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

// Package testutil builds synthetic KRaft metadata logs for tests.
package testutil

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/novatechflow/kraftbroker/pkg/protocol"
)

var castagnoli = crc32.MakeTable(crc32.Castagnoli)

// Partition describes a partition registration record.
type Partition struct {
	ID          int32
	TopicID     [16]byte
	Replicas    []int32
	ISR         []int32
	Removing    []int32
	Adding      []int32
	Leader      int32
	LeaderEpoch int32
}

// LogBuilder accumulates record batches in the KRaft log layout.
type LogBuilder struct {
	buf        []byte
	nextOffset int64
}

func NewLogBuilder() *LogBuilder {
	return &LogBuilder{}
}

// Batch appends one record batch holding the given record values.
func (b *LogBuilder) Batch(values ...[]byte) *LogBuilder {
	records := protocol.NewWriter(64)
	for i, v := range values {
		records.Raw(EncodeRecord(int32(i), nil, v))
	}

	w := protocol.NewWriter(61 + records.Len())
	w.Int64(b.nextOffset)
	w.Int32(int32(49 + records.Len()))
	w.Int32(1) // partition leader epoch
	w.Int8(2)  // magic
	w.Int32(0) // crc, patched below
	w.Int16(0) // attributes
	w.Int32(int32(len(values) - 1))
	w.Int64(1726045943832)
	w.Int64(1726045943832)
	w.Int64(-1) // producer id
	w.Int16(-1) // producer epoch
	w.Int32(-1) // base sequence
	w.Int32(int32(len(values)))
	w.Raw(records.Bytes())

	batch := w.Bytes()
	binary.BigEndian.PutUint32(batch[17:21], crc32.Checksum(batch[21:], castagnoli))
	b.buf = append(b.buf, batch...)
	b.nextOffset += int64(len(values))
	return b
}

// Bytes returns the log accumulated so far.
func (b *LogBuilder) Bytes() []byte {
	return b.buf
}

// EncodeRecord renders a length-prefixed record. A nil key is written as null.
func EncodeRecord(offsetDelta int32, key, value []byte) []byte {
	body := protocol.NewWriter(16 + len(key) + len(value))
	body.Int8(0)
	body.Varlong(0)
	body.Varint(offsetDelta)
	if key == nil {
		body.Varint(-1)
	} else {
		body.Varint(int32(len(key)))
		body.Raw(key)
	}
	body.Varint(int32(len(value)))
	body.Raw(value)
	body.UVarint(0) // headers

	w := protocol.NewWriter(5 + body.Len())
	w.Varint(int32(body.Len()))
	w.Raw(body.Bytes())
	return w.Bytes()
}

// TopicValue renders a TopicRecord value.
func TopicValue(name string, id [16]byte) []byte {
	w := protocol.NewWriter(32 + len(name))
	w.Int8(1)
	w.Int8(2)
	w.Int8(0)
	w.CompactString(name)
	w.UUID(id)
	w.WriteTaggedFields(0)
	return w.Bytes()
}

// PartitionValue renders a PartitionRecord value.
func PartitionValue(p Partition) []byte {
	w := protocol.NewWriter(64)
	w.Int8(1)
	w.Int8(3)
	w.Int8(1)
	w.Int32(p.ID)
	w.UUID(p.TopicID)
	writeInt32s(w, p.Replicas)
	writeInt32s(w, p.ISR)
	writeInt32s(w, p.Removing)
	writeInt32s(w, p.Adding)
	w.Int32(p.Leader)
	w.Int32(p.LeaderEpoch)
	w.Int32(0) // partition epoch
	w.WriteTaggedFields(0)
	return w.Bytes()
}

// FeatureLevelValue renders a FeatureLevelRecord value, which the parser skips.
func FeatureLevelValue(name string, level int16) []byte {
	w := protocol.NewWriter(16 + len(name))
	w.Int8(1)
	w.Int8(12)
	w.Int8(0)
	w.CompactString(name)
	w.Int16(level)
	w.WriteTaggedFields(0)
	return w.Bytes()
}

// OrdersLog returns a log with a feature-level batch followed by topic
// "orders" and its two partitions, the layout most tests start from.
func OrdersLog(topicID [16]byte) []byte {
	return NewLogBuilder().
		Batch(FeatureLevelValue("metadata.version", 20)).
		Batch(
			TopicValue("orders", topicID),
			PartitionValue(Partition{ID: 0, TopicID: topicID, Replicas: []int32{1}, ISR: []int32{1}, Leader: 1}),
			PartitionValue(Partition{ID: 1, TopicID: topicID, Replicas: []int32{1, 2}, ISR: []int32{1}, Removing: []int32{2}, Leader: 1, LeaderEpoch: 4}),
		).
		Bytes()
}

func writeInt32s(w *protocol.Writer, values []int32) {
	w.CompactArrayLen(len(values))
	for _, v := range values {
		w.Int32(v)
	}
}
