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
	"sort"

	"github.com/google/uuid"
)

// Store exposes read-only access to cluster metadata used by Kafka protocol handlers.
type Store interface {
	// IsTopicKnown reports whether a topic with this name was registered.
	IsTopicKnown(name string) bool
	// IsTopicIDKnown reports whether any topic carries this id.
	IsTopicIDKnown(id uuid.UUID) bool
	// TopicID returns the topic id for name, or the zero UUID when unknown.
	TopicID(name string) uuid.UUID
	// TopicName returns the name registered for id.
	TopicName(id uuid.UUID) (string, bool)
	// SerializedPartitions returns the encoded DescribeTopicPartitions
	// partition entries for id in log order, or nil when there are none.
	SerializedPartitions(id uuid.UUID) [][]byte
	// Topics lists every topic sorted by name.
	Topics() []TopicInfo
}

// TopicInfo summarises one topic for listings.
type TopicInfo struct {
	Name       string
	ID         uuid.UUID
	Partitions []PartitionRecord
}

// LogStore is a Store backed by an Index parsed from a metadata log. It has no
// mutators, so concurrent readers need no locking.
type LogStore struct {
	index  *Index
	topics []TopicInfo
}

// NewLogStore wraps a parsed index.
func NewLogStore(idx *Index) *LogStore {
	byTopic := make(map[uuid.UUID][]PartitionRecord)
	for _, p := range idx.Partitions {
		byTopic[p.TopicID] = append(byTopic[p.TopicID], p)
	}
	topics := make([]TopicInfo, 0, len(idx.Topics))
	for _, t := range idx.Topics {
		topics = append(topics, TopicInfo{Name: t.Name, ID: t.ID, Partitions: byTopic[t.ID]})
	}
	sort.Slice(topics, func(i, j int) bool { return topics[i].Name < topics[j].Name })
	return &LogStore{index: idx, topics: topics}
}

// Index returns the parsed index backing the store.
func (s *LogStore) Index() *Index {
	return s.index
}

// IsTopicKnown implements Store.
func (s *LogStore) IsTopicKnown(name string) bool {
	_, ok := s.index.topicIDs[name]
	return ok
}

// IsTopicIDKnown implements Store.
func (s *LogStore) IsTopicIDKnown(id uuid.UUID) bool {
	_, ok := s.index.topicNames[id]
	return ok
}

// TopicID implements Store.
func (s *LogStore) TopicID(name string) uuid.UUID {
	return s.index.topicIDs[name]
}

// TopicName implements Store.
func (s *LogStore) TopicName(id uuid.UUID) (string, bool) {
	name, ok := s.index.topicNames[id]
	return name, ok
}

// SerializedPartitions implements Store.
func (s *LogStore) SerializedPartitions(id uuid.UUID) [][]byte {
	return s.index.partitionsB[id]
}

// Topics implements Store. The returned slice must not be modified.
func (s *LogStore) Topics() []TopicInfo {
	return s.topics
}
