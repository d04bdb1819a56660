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

package storage

import (
	"encoding/binary"
	"fmt"
)

const (
	// RecordBatchHeaderSize is the fixed v2 record batch header length,
	// measured from the base offset through the record count.
	RecordBatchHeaderSize = 61
	// RecordBatchFrameSize covers the base offset and batch length fields
	// that precede the bytes counted by batch length.
	RecordBatchFrameSize = 12
	// RecordCountOffset is the position of the record count within a batch.
	RecordCountOffset = RecordBatchHeaderSize - 4
)

// RecordBatch summarises a v2 record batch header.
type RecordBatch struct {
	BaseOffset      int64
	LastOffsetDelta int32
	MessageCount    int32
	Bytes           []byte
}

// NewRecordBatchFromBytes parses Kafka record batch metadata and returns a RecordBatch struct.
func NewRecordBatchFromBytes(data []byte) (RecordBatch, error) {
	if len(data) < RecordBatchHeaderSize {
		return RecordBatch{}, fmt.Errorf("record batch too small: %d", len(data))
	}
	baseOffset := int64(binary.BigEndian.Uint64(data[0:8]))
	lastOffsetDelta := int32(binary.BigEndian.Uint32(data[23:27]))
	messageCount := int32(binary.BigEndian.Uint32(data[RecordCountOffset:RecordBatchHeaderSize]))
	return RecordBatch{
		BaseOffset:      baseOffset,
		LastOffsetDelta: lastOffsetDelta,
		MessageCount:    messageCount,
		Bytes:           data,
	}, nil
}

// CountRecordBatchMessages sums the message counts encoded in a record set. The
// record set is expected to be a concatenation of Kafka record batches as
// written to a partition log.
func CountRecordBatchMessages(recordSet []byte) int {
	if len(recordSet) < RecordBatchHeaderSize {
		return 0
	}
	total := 0
	offset := 0
	for offset+RecordBatchFrameSize <= len(recordSet) {
		batchLen := int(int32(binary.BigEndian.Uint32(recordSet[offset+8 : offset+12])))
		if batchLen <= 0 {
			break
		}
		frameLen := RecordBatchFrameSize + batchLen
		if offset+frameLen > len(recordSet) {
			break
		}
		batch := recordSet[offset : offset+frameLen]
		if len(batch) < RecordBatchHeaderSize {
			break
		}
		total += int(binary.BigEndian.Uint32(batch[RecordCountOffset:RecordBatchHeaderSize]))
		offset += frameLen
	}
	return total
}
