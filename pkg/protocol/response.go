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

import "fmt"

// ApiVersionsResponse describes server capabilities.
type ApiVersionsResponse struct {
	CorrelationID int32
	ErrorCode     int16
	ThrottleMs    int32
	Versions      []ApiVersion
}

// FetchResponse represents data returned to consumers.
type FetchResponse struct {
	CorrelationID int32
	ThrottleMs    int32
	ErrorCode     int16
	SessionID     int32
	Topics        []FetchTopicResponse
}

type FetchTopicResponse struct {
	Name       string
	TopicID    [16]byte
	Partitions []FetchPartitionResponse
}

type FetchAbortedTransaction struct {
	ProducerID  int64
	FirstOffset int64
}

type FetchPartitionResponse struct {
	Partition            int32
	ErrorCode            int16
	HighWatermark        int64
	LastStableOffset     int64
	LogStartOffset       int64
	PreferredReadReplica int32
	RecordSet            []byte
	AbortedTransactions  []FetchAbortedTransaction
}

// DescribeTopicPartitionsResponse is the v0 response. Partition entries are
// already encoded with EncodeDescribeTopicPartitionsPartition.
type DescribeTopicPartitionsResponse struct {
	CorrelationID int32
	ThrottleMs    int32
	Topics        []DescribeTopicPartitionsTopic
	NextCursor    *DescribeTopicPartitionsCursor
}

type DescribeTopicPartitionsTopic struct {
	ErrorCode            int16
	Name                 string
	TopicID              [16]byte
	IsInternal           bool
	Partitions           [][]byte
	AuthorizedOperations int32
}

// DescribeTopicPartitionsPartition is one partition entry of a
// DescribeTopicPartitions topic.
type DescribeTopicPartitionsPartition struct {
	ErrorCode              int16
	PartitionIndex         int32
	LeaderID               int32
	LeaderEpoch            int32
	ReplicaNodes           []int32
	IsrNodes               []int32
	EligibleLeaderReplicas []int32
	LastKnownELR           []int32
	OfflineReplicas        []int32
}

// EncodeApiVersionsResponse renders bytes ready to send on the wire. The
// response header never carries tagged fields, even for flexible versions.
func EncodeApiVersionsResponse(resp *ApiVersionsResponse, version int16) ([]byte, error) {
	if version < 0 || version > ApiVersionsMaxVersion {
		return nil, fmt.Errorf("api versions response version %d not supported", version)
	}
	flexible := version >= 3
	w := NewWriter(16 + 7*len(resp.Versions))
	w.Int32(resp.CorrelationID)
	w.Int16(resp.ErrorCode)
	if flexible {
		w.CompactArrayLen(len(resp.Versions))
	} else {
		w.Int32(int32(len(resp.Versions)))
	}
	for _, v := range resp.Versions {
		w.Int16(v.APIKey)
		w.Int16(v.MinVersion)
		w.Int16(v.MaxVersion)
		if flexible {
			w.WriteTaggedFields(0)
		}
	}
	if version >= 1 {
		w.Int32(resp.ThrottleMs)
	}
	if flexible {
		w.WriteTaggedFields(0)
	}
	return w.Bytes(), nil
}

// EncodeFetchResponse renders bytes for fetch responses v0 through v16.
func EncodeFetchResponse(resp *FetchResponse, version int16) ([]byte, error) {
	if version < FetchMinVersion || version > FetchMaxVersion {
		return nil, fmt.Errorf("fetch response version %d not supported", version)
	}
	flexible := version >= 12
	w := NewWriter(256)
	w.Int32(resp.CorrelationID)
	if flexible {
		w.WriteTaggedFields(0)
	}
	if version >= 1 {
		w.Int32(resp.ThrottleMs)
	}
	if version >= 7 {
		w.Int16(resp.ErrorCode)
		w.Int32(resp.SessionID)
	} else if resp.ErrorCode != 0 || resp.SessionID != 0 {
		return nil, fmt.Errorf("fetch version %d cannot include session fields", version)
	}
	writeArrayLen(w, flexible, len(resp.Topics))
	for _, topic := range resp.Topics {
		if version >= 13 {
			w.UUID(topic.TopicID)
		} else if flexible {
			w.CompactString(topic.Name)
		} else {
			w.PrefixedString(topic.Name)
		}
		writeArrayLen(w, flexible, len(topic.Partitions))
		for _, part := range topic.Partitions {
			w.Int32(part.Partition)
			w.Int16(part.ErrorCode)
			w.Int64(part.HighWatermark)
			if version >= 4 {
				w.Int64(part.LastStableOffset)
			}
			if version >= 5 {
				w.Int64(part.LogStartOffset)
			}
			if version >= 4 {
				writeArrayLen(w, flexible, len(part.AbortedTransactions))
				for _, aborted := range part.AbortedTransactions {
					w.Int64(aborted.ProducerID)
					w.Int64(aborted.FirstOffset)
					if flexible {
						w.WriteTaggedFields(0)
					}
				}
			}
			if version >= 11 {
				w.Int32(part.PreferredReadReplica)
			}
			if flexible {
				w.compactLength(len(part.RecordSet))
				w.Raw(part.RecordSet)
				w.WriteTaggedFields(0)
			} else {
				w.Int32(int32(len(part.RecordSet)))
				w.Raw(part.RecordSet)
			}
		}
		if flexible {
			w.WriteTaggedFields(0)
		}
	}
	if flexible {
		w.WriteTaggedFields(0)
	}
	return w.Bytes(), nil
}

// EncodeDescribeTopicPartitionsPartition renders one partition entry in the
// DescribeTopicPartitions v0 layout, including its trailing tag buffer.
func EncodeDescribeTopicPartitionsPartition(p DescribeTopicPartitionsPartition) []byte {
	w := NewWriter(32 + 4*(len(p.ReplicaNodes)+len(p.IsrNodes)))
	w.Int16(p.ErrorCode)
	w.Int32(p.PartitionIndex)
	w.Int32(p.LeaderID)
	w.Int32(p.LeaderEpoch)
	writeCompactInt32s(w, p.ReplicaNodes)
	writeCompactInt32s(w, p.IsrNodes)
	writeCompactInt32s(w, p.EligibleLeaderReplicas)
	writeCompactInt32s(w, p.LastKnownELR)
	writeCompactInt32s(w, p.OfflineReplicas)
	w.WriteTaggedFields(0)
	return w.Bytes()
}

// EncodeDescribeTopicPartitionsResponse renders a v0 response. The response
// header is flexible, so a tag buffer follows the correlation id.
func EncodeDescribeTopicPartitionsResponse(resp *DescribeTopicPartitionsResponse) ([]byte, error) {
	w := NewWriter(128)
	w.Int32(resp.CorrelationID)
	w.WriteTaggedFields(0)
	w.Int32(resp.ThrottleMs)
	w.CompactArrayLen(len(resp.Topics))
	for _, topic := range resp.Topics {
		w.Int16(topic.ErrorCode)
		w.CompactString(topic.Name)
		w.UUID(topic.TopicID)
		w.Bool(topic.IsInternal)
		w.CompactArrayLen(len(topic.Partitions))
		for _, part := range topic.Partitions {
			w.Raw(part)
		}
		w.Int32(topic.AuthorizedOperations)
		w.WriteTaggedFields(0)
	}
	if resp.NextCursor == nil {
		w.Int8(-1)
	} else {
		w.CompactString(resp.NextCursor.TopicName)
		w.Int32(resp.NextCursor.PartitionIndex)
		w.WriteTaggedFields(0)
	}
	w.WriteTaggedFields(0)
	return w.Bytes(), nil
}

// EncodeErrorResponse renders the minimal payload sent for requests the broker
// cannot serve: the correlation id followed by an error code.
func EncodeErrorResponse(correlationID int32, errorCode int16) []byte {
	w := NewWriter(6)
	w.Int32(correlationID)
	w.Int16(errorCode)
	return w.Bytes()
}

func writeArrayLen(w *Writer, flexible bool, n int) {
	if flexible {
		w.CompactArrayLen(n)
	} else {
		w.Int32(int32(n))
	}
}

func writeCompactInt32s(w *Writer, values []int32) {
	w.CompactArrayLen(len(values))
	for _, v := range values {
		w.Int32(v)
	}
}
