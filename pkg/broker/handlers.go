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

package broker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/novatechflow/kraftbroker/pkg/metadata"
	"github.com/novatechflow/kraftbroker/pkg/protocol"
	"github.com/novatechflow/kraftbroker/pkg/storage"
)

// DescribeTopicPartitionsHandler answers DescribeTopicPartitions v0 from the
// metadata store. Topics are reported in request order.
type DescribeTopicPartitionsHandler struct {
	Store  metadata.Store
	Logger *slog.Logger
}

func (h *DescribeTopicPartitionsHandler) Handle(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error) {
	describeReq, ok := req.(*protocol.DescribeTopicPartitionsRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected request type %T", req)
	}
	resp := &protocol.DescribeTopicPartitionsResponse{
		CorrelationID: header.CorrelationID,
		Topics:        make([]protocol.DescribeTopicPartitionsTopic, 0, len(describeReq.Topics)),
	}
	for _, name := range describeReq.Topics {
		topic := protocol.DescribeTopicPartitionsTopic{
			Name:                 name,
			AuthorizedOperations: protocol.TopicAuthorizedOperations,
		}
		if h.Store.IsTopicKnown(name) {
			id := h.Store.TopicID(name)
			topic.TopicID = id
			topic.Partitions = h.Store.SerializedPartitions(id)
		} else {
			topic.ErrorCode = protocol.UNKNOWN_TOPIC_OR_PARTITION
			loggerOrDefault(h.Logger).Debug("describe unknown topic", "topic", name, "error", errorName(topic.ErrorCode))
		}
		resp.Topics = append(resp.Topics, topic)
	}
	return protocol.EncodeDescribeTopicPartitionsResponse(resp)
}

// FetchHandler answers Fetch by returning each requested partition's data
// file in full. Topics are resolved by id from v13 and by name before that.
type FetchHandler struct {
	Store    metadata.Store
	Segments storage.SegmentReader
	// Health, when set, records the latency and outcome of every read.
	Health   *HealthMonitor
	Logger   *slog.Logger
}

func (h *FetchHandler) Handle(ctx context.Context, header *protocol.RequestHeader, req protocol.Request) ([]byte, error) {
	fetchReq, ok := req.(*protocol.FetchRequest)
	if !ok {
		return nil, fmt.Errorf("unexpected request type %T", req)
	}
	version := header.APIVersion
	resp := &protocol.FetchResponse{
		CorrelationID: header.CorrelationID,
		Topics:        make([]protocol.FetchTopicResponse, 0, len(fetchReq.Topics)),
	}
	for _, topic := range fetchReq.Topics {
		name, known, missingCode := h.resolveTopic(topic, version)
		topicResp := protocol.FetchTopicResponse{
			Name:       topic.Name,
			TopicID:    topic.TopicID,
			Partitions: make([]protocol.FetchPartitionResponse, 0, len(topic.Partitions)),
		}
		for _, part := range topic.Partitions {
			partResp := protocol.FetchPartitionResponse{
				Partition:            part.Partition,
				HighWatermark:        -1,
				LastStableOffset:     -1,
				LogStartOffset:       -1,
				PreferredReadReplica: -1,
				RecordSet:            []byte{},
			}
			if !known {
				partResp.ErrorCode = missingCode
			} else {
				records, code, err := h.readPartition(ctx, name, part.Partition)
				if err != nil {
					return nil, err
				}
				partResp.ErrorCode = code
				partResp.RecordSet = records
			}
			topicResp.Partitions = append(topicResp.Partitions, partResp)
		}
		resp.Topics = append(resp.Topics, topicResp)
	}
	return protocol.EncodeFetchResponse(resp, version)
}

func (h *FetchHandler) resolveTopic(topic protocol.FetchTopicRequest, version int16) (string, bool, int16) {
	if version >= 13 {
		name, ok := h.Store.TopicName(uuid.UUID(topic.TopicID))
		return name, ok, protocol.UNKNOWN_TOPIC_ID
	}
	return topic.Name, h.Store.IsTopicKnown(topic.Name), protocol.UNKNOWN_TOPIC_OR_PARTITION
}

// readPartition returns the partition's record batches. A missing data file
// is an empty partition; other storage failures are reported to the client
// as UNKNOWN_SERVER_ERROR for that partition.
func (h *FetchHandler) readPartition(ctx context.Context, topic string, partition int32) ([]byte, int16, error) {
	start := time.Now()
	records, err := h.Segments.ReadPartition(ctx, topic, partition)
	if errors.Is(err, storage.ErrSegmentNotFound) {
		h.Health.RecordRead(time.Since(start), nil)
	} else if !errors.Is(err, context.Canceled) {
		h.Health.RecordRead(time.Since(start), err)
	}
	switch {
	case err == nil:
	case errors.Is(err, storage.ErrSegmentNotFound):
		return []byte{}, protocol.NONE, nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return nil, 0, err
	default:
		loggerOrDefault(h.Logger).Error("read partition data failed",
			"topic", topic,
			"partition", partition,
			"error", err)
		return []byte{}, protocol.UNKNOWN_SERVER_ERROR, nil
	}
	fetchBytes.WithLabelValues(topic).Add(float64(len(records)))
	fetchRecords.WithLabelValues(topic).Add(float64(storage.CountRecordBatchMessages(records)))
	return records, protocol.NONE, nil
}

func loggerOrDefault(logger *slog.Logger) *slog.Logger {
	if logger != nil {
		return logger
	}
	return slog.Default()
}
