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

package metadata

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/novatechflow/kraftbroker/pkg/protocol"
	"github.com/novatechflow/kraftbroker/pkg/storage"
)

// KRaft metadata record types understood by the parser.
const (
	RecordTypeTopic     int8 = 2
	RecordTypePartition int8 = 3
)

var (
	// ErrEmptyLog indicates the metadata log holds no bytes.
	ErrEmptyLog = errors.New("metadata log is empty")
	// ErrCorruptLog indicates the metadata log could not be decoded.
	ErrCorruptLog = errors.New("metadata log is corrupt")
)

// TopicRecord is a decoded topic registration.
type TopicRecord struct {
	Name string
	ID   uuid.UUID
}

// PartitionRecord is a decoded partition registration.
type PartitionRecord struct {
	Partition   int32
	TopicID     uuid.UUID
	Replicas    []int32
	ISR         []int32
	Leader      int32
	LeaderEpoch int32
}

// BatchSummary describes one record batch of the log.
type BatchSummary struct {
	Position    int
	BaseOffset  int64
	Length      int32
	RecordCount int32
}

// Index holds everything extracted from a metadata log. It is built once and
// never modified afterwards.
type Index struct {
	Batches    []BatchSummary
	Topics     []TopicRecord
	Partitions []PartitionRecord

	topicIDs    map[string]uuid.UUID
	topicNames  map[uuid.UUID]string
	partitionsB map[uuid.UUID][][]byte
}

type batchSpan struct {
	start int
	end   int
}

// ParseLog decodes a KRaft __cluster_metadata log segment. Topic and
// partition registrations are indexed; every other record type is skipped.
func ParseLog(data []byte) (*Index, error) {
	if len(data) == 0 {
		return nil, ErrEmptyLog
	}
	spans, err := scanBatches(data)
	if err != nil {
		return nil, err
	}
	idx := &Index{
		topicIDs:    make(map[string]uuid.UUID),
		topicNames:  make(map[uuid.UUID]string),
		partitionsB: make(map[uuid.UUID][][]byte),
	}
	for _, span := range spans {
		if err := idx.parseBatch(data[span.start:span.end], span.start); err != nil {
			return nil, err
		}
	}
	return idx, nil
}

func scanBatches(data []byte) ([]batchSpan, error) {
	r := protocol.NewReader(data)
	var spans []batchSpan
	for !r.EOF() {
		start := r.Offset()
		if _, err := r.Int64(); err != nil {
			return nil, corrupt(start, "read base offset", err)
		}
		length, err := r.Int32()
		if err != nil {
			return nil, corrupt(start, "read batch length", err)
		}
		if length < 0 {
			return nil, corrupt(start, "read batch length", fmt.Errorf("negative length %d", length))
		}
		if err := r.Skip(int(length)); err != nil {
			return nil, corrupt(start, "skip batch", err)
		}
		spans = append(spans, batchSpan{start: start, end: r.Offset()})
	}
	return spans, nil
}

func (idx *Index) parseBatch(batch []byte, position int) error {
	header, err := storage.NewRecordBatchFromBytes(batch)
	if err != nil {
		return corrupt(position, "read batch header", err)
	}
	idx.Batches = append(idx.Batches, BatchSummary{
		Position:    position,
		BaseOffset:  header.BaseOffset,
		Length:      int32(len(batch) - storage.RecordBatchFrameSize),
		RecordCount: header.MessageCount,
	})
	if header.MessageCount < 0 {
		return corrupt(position, "read record count", fmt.Errorf("negative count %d", header.MessageCount))
	}

	r := protocol.NewReader(batch[storage.RecordBatchHeaderSize:])
	for i := int32(0); i < header.MessageCount; i++ {
		recordPos := position + storage.RecordBatchHeaderSize + r.Offset()
		length, err := r.Varint()
		if err != nil {
			return corrupt(recordPos, "read record length", err)
		}
		body, err := r.Raw(int(length))
		if err != nil {
			return corrupt(recordPos, "read record body", err)
		}
		if err := idx.parseRecord(body); err != nil {
			return corrupt(recordPos, "decode record", err)
		}
	}
	return nil
}

func (idx *Index) parseRecord(body []byte) error {
	r := protocol.NewReader(body)
	if _, err := r.Int8(); err != nil {
		return fmt.Errorf("attributes: %w", err)
	}
	if _, err := r.Varlong(); err != nil {
		return fmt.Errorf("timestamp delta: %w", err)
	}
	if _, err := r.Varint(); err != nil {
		return fmt.Errorf("offset delta: %w", err)
	}
	keyLen, err := r.Varint()
	if err != nil {
		return fmt.Errorf("key length: %w", err)
	}
	if keyLen > 0 {
		if err := r.Skip(int(keyLen)); err != nil {
			return fmt.Errorf("key: %w", err)
		}
	}
	valueLen, err := r.Varint()
	if err != nil {
		return fmt.Errorf("value length: %w", err)
	}
	if valueLen < 0 {
		return nil
	}
	value, err := r.Raw(int(valueLen))
	if err != nil {
		return fmt.Errorf("value: %w", err)
	}

	vr := protocol.NewReader(value)
	if _, err := vr.Int8(); err != nil {
		return fmt.Errorf("frame version: %w", err)
	}
	recordType, err := vr.Int8()
	if err != nil {
		return fmt.Errorf("record type: %w", err)
	}
	if _, err := vr.Int8(); err != nil {
		return fmt.Errorf("record version: %w", err)
	}
	switch recordType {
	case RecordTypeTopic:
		return idx.parseTopic(vr)
	case RecordTypePartition:
		return idx.parsePartition(vr)
	default:
		return nil
	}
}

func (idx *Index) parseTopic(r *protocol.Reader) error {
	name, err := r.CompactString()
	if err != nil {
		return fmt.Errorf("topic name: %w", err)
	}
	id, err := r.UUID()
	if err != nil {
		return fmt.Errorf("topic id: %w", err)
	}
	topicID := uuid.UUID(id)
	if prev, ok := idx.topicIDs[name]; ok {
		delete(idx.topicNames, prev)
		for i := range idx.Topics {
			if idx.Topics[i].Name == name {
				idx.Topics[i].ID = topicID
			}
		}
	} else {
		idx.Topics = append(idx.Topics, TopicRecord{Name: name, ID: topicID})
	}
	idx.topicIDs[name] = topicID
	idx.topicNames[topicID] = name
	return nil
}

func (idx *Index) parsePartition(r *protocol.Reader) error {
	partition, err := r.Int32()
	if err != nil {
		return fmt.Errorf("partition id: %w", err)
	}
	id, err := r.UUID()
	if err != nil {
		return fmt.Errorf("partition topic id: %w", err)
	}
	replicas, err := readCompactInt32s(r)
	if err != nil {
		return fmt.Errorf("replicas: %w", err)
	}
	isr, err := readCompactInt32s(r)
	if err != nil {
		return fmt.Errorf("isr: %w", err)
	}
	// removing and adding replicas
	for i := 0; i < 2; i++ {
		if _, err := readCompactInt32s(r); err != nil {
			return fmt.Errorf("replica reassignment: %w", err)
		}
	}
	leader, err := r.Int32()
	if err != nil {
		return fmt.Errorf("leader: %w", err)
	}
	leaderEpoch, err := r.Int32()
	if err != nil {
		return fmt.Errorf("leader epoch: %w", err)
	}

	rec := PartitionRecord{
		Partition:   partition,
		TopicID:     uuid.UUID(id),
		Replicas:    replicas,
		ISR:         isr,
		Leader:      leader,
		LeaderEpoch: leaderEpoch,
	}
	idx.Partitions = append(idx.Partitions, rec)
	idx.partitionsB[rec.TopicID] = append(idx.partitionsB[rec.TopicID], protocol.EncodeDescribeTopicPartitionsPartition(protocol.DescribeTopicPartitionsPartition{
		ErrorCode:      protocol.NONE,
		PartitionIndex: rec.Partition,
		LeaderID:       rec.Leader,
		LeaderEpoch:    rec.LeaderEpoch,
		ReplicaNodes:   rec.Replicas,
		IsrNodes:       rec.ISR,
	}))
	return nil
}

func readCompactInt32s(r *protocol.Reader) ([]int32, error) {
	n, err := r.CompactArrayLen()
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []int32{}, nil
	}
	if int(n)*4 > r.Remaining() {
		return nil, fmt.Errorf("%w: array of %d int32 with %d bytes left", protocol.ErrOutOfBounds, n, r.Remaining())
	}
	out := make([]int32, n)
	for i := range out {
		if out[i], err = r.Int32(); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func corrupt(offset int, op string, err error) error {
	return fmt.Errorf("%w: %s at byte %d: %w", ErrCorruptLog, op, offset, err)
}
