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
	"fmt"
)

// RequestHeader represents the common Kafka request header.
type RequestHeader struct {
	APIKey        int16
	APIVersion    int16
	CorrelationID int32
	ClientID      *string
}

// Request is implemented by decoded request bodies.
type Request interface {
	APIKey() int16
}

// ApiVersionsRequest carries the client software identity sent from v3.
type ApiVersionsRequest struct {
	ClientSoftwareName    string
	ClientSoftwareVersion string
}

func (ApiVersionsRequest) APIKey() int16 { return APIKeyApiVersion }

// FetchRequest represents Kafka FetchRequest v0 through v16.
type FetchRequest struct {
	ReplicaID      int32
	MaxWaitMs      int32
	MinBytes       int32
	MaxBytes       int32
	IsolationLevel int8
	SessionID      int32
	SessionEpoch   int32
	Topics         []FetchTopicRequest
	Forgotten      []FetchForgottenTopic
	RackID         string
}

// FetchTopicRequest identifies a topic by Name below v13 and by TopicID from v13.
type FetchTopicRequest struct {
	Name       string
	TopicID    [16]byte
	Partitions []FetchPartitionRequest
}

type FetchPartitionRequest struct {
	Partition          int32
	CurrentLeaderEpoch int32
	FetchOffset        int64
	LastFetchedEpoch   int32
	LogStartOffset     int64
	MaxBytes           int32
}

type FetchForgottenTopic struct {
	Name       string
	TopicID    [16]byte
	Partitions []int32
}

func (FetchRequest) APIKey() int16 { return APIKeyFetch }

// DescribeTopicPartitionsRequest is the v0 request body.
type DescribeTopicPartitionsRequest struct {
	Topics                 []string
	ResponsePartitionLimit int32
	Cursor                 *DescribeTopicPartitionsCursor
}

// DescribeTopicPartitionsCursor marks where a paginated listing resumes.
type DescribeTopicPartitionsCursor struct {
	TopicName      string
	PartitionIndex int32
}

func (DescribeTopicPartitionsRequest) APIKey() int16 { return APIKeyDescribeTopicPartitions }

// IsFlexibleRequest reports whether the request uses compact encodings and a
// tagged request header.
func IsFlexibleRequest(apiKey, version int16) bool {
	switch apiKey {
	case APIKeyApiVersion:
		return version >= 3
	case APIKeyFetch:
		return version >= 12
	case APIKeyDescribeTopicPartitions:
		return true
	default:
		return false
	}
}

func compactArrayLenNonNull(r *Reader) (int32, error) {
	n, err := r.CompactArrayLen()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("compact array is null")
	}
	return checkArrayLen(r, n)
}

// checkArrayLen rejects counts that cannot fit in the unread bytes. Every
// element takes at least one byte, so the count bounds any later allocation.
func checkArrayLen(r *Reader, n int32) (int32, error) {
	if int(n) > r.Remaining() {
		return 0, fmt.Errorf("%w: array of %d elements with %d bytes left at offset %d", ErrOutOfBounds, n, r.Remaining(), r.Offset())
	}
	return n, nil
}

func arrayLen(r *Reader, flexible bool) (int32, error) {
	if flexible {
		return compactArrayLenNonNull(r)
	}
	n, err := r.Int32()
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("invalid array length %d", n)
	}
	return checkArrayLen(r, n)
}

func readString(r *Reader, flexible bool) (string, error) {
	if flexible {
		return r.CompactString()
	}
	return r.PrefixedString()
}

// ParseRequestHeader decodes the header portion from raw bytes and returns the
// undecoded body.
func ParseRequestHeader(b []byte) (*RequestHeader, []byte, error) {
	reader := NewReader(b)
	apiKey, err := reader.Int16()
	if err != nil {
		return nil, nil, fmt.Errorf("read api key: %w", err)
	}
	version, err := reader.Int16()
	if err != nil {
		return nil, nil, fmt.Errorf("read api version: %w", err)
	}
	correlationID, err := reader.Int32()
	if err != nil {
		return nil, nil, fmt.Errorf("read correlation id: %w", err)
	}
	clientID, err := reader.NullableString()
	if err != nil {
		return nil, nil, fmt.Errorf("read client id: %w", err)
	}
	if IsFlexibleRequest(apiKey, version) {
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, nil, fmt.Errorf("skip header tags: %w", err)
		}
	}
	body, _ := reader.Raw(reader.Remaining())
	return &RequestHeader{
		APIKey:        apiKey,
		APIVersion:    version,
		CorrelationID: correlationID,
		ClientID:      clientID,
	}, body, nil
}

// ParseRequestBody decodes the body of a request whose header was already
// parsed. Unknown API keys return an error.
func ParseRequestBody(header *RequestHeader, body []byte) (Request, error) {
	reader := NewReader(body)
	var (
		req Request
		err error
	)
	switch header.APIKey {
	case APIKeyApiVersion:
		req, err = parseApiVersionsRequest(reader, header.APIVersion)
	case APIKeyFetch:
		req, err = parseFetchRequest(reader, header.APIVersion)
	case APIKeyDescribeTopicPartitions:
		req, err = parseDescribeTopicPartitionsRequest(reader)
	default:
		return nil, fmt.Errorf("unsupported api key %d", header.APIKey)
	}
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ParseRequest decodes a request header and body from bytes.
func ParseRequest(b []byte) (*RequestHeader, Request, error) {
	header, body, err := ParseRequestHeader(b)
	if err != nil {
		return nil, nil, err
	}
	req, err := ParseRequestBody(header, body)
	if err != nil {
		return nil, nil, err
	}
	return header, req, nil
}

func parseApiVersionsRequest(reader *Reader, version int16) (*ApiVersionsRequest, error) {
	req := &ApiVersionsRequest{}
	if version < 3 {
		return req, nil
	}
	// Probes for newer versions may omit the software identity.
	if reader.EOF() {
		return req, nil
	}
	name, err := reader.CompactString()
	if err != nil {
		return nil, fmt.Errorf("read client software name: %w", err)
	}
	softwareVersion, err := reader.CompactString()
	if err != nil {
		return nil, fmt.Errorf("read client software version: %w", err)
	}
	if err := reader.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("skip api versions tags: %w", err)
	}
	req.ClientSoftwareName = name
	req.ClientSoftwareVersion = softwareVersion
	return req, nil
}

func parseFetchRequest(reader *Reader, version int16) (*FetchRequest, error) {
	flexible := version >= 12
	req := &FetchRequest{ReplicaID: -1, MaxBytes: 0x7fffffff}
	var err error
	if version < 15 {
		if req.ReplicaID, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch replica id: %w", err)
		}
	}
	if req.MaxWaitMs, err = reader.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch max wait: %w", err)
	}
	if req.MinBytes, err = reader.Int32(); err != nil {
		return nil, fmt.Errorf("read fetch min bytes: %w", err)
	}
	if version >= 3 {
		if req.MaxBytes, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch max bytes: %w", err)
		}
	}
	if version >= 4 {
		if req.IsolationLevel, err = reader.Int8(); err != nil {
			return nil, fmt.Errorf("read fetch isolation level: %w", err)
		}
	}
	if version >= 7 {
		if req.SessionID, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch session id: %w", err)
		}
		if req.SessionEpoch, err = reader.Int32(); err != nil {
			return nil, fmt.Errorf("read fetch session epoch: %w", err)
		}
	}
	topicCount, err := arrayLen(reader, flexible)
	if err != nil {
		return nil, fmt.Errorf("read fetch topic count: %w", err)
	}
	req.Topics = make([]FetchTopicRequest, 0, topicCount)
	for i := int32(0); i < topicCount; i++ {
		var topic FetchTopicRequest
		if version >= 13 {
			if topic.TopicID, err = reader.UUID(); err != nil {
				return nil, fmt.Errorf("read fetch topic id: %w", err)
			}
		} else {
			if topic.Name, err = readString(reader, flexible); err != nil {
				return nil, fmt.Errorf("read fetch topic name: %w", err)
			}
		}
		partCount, err := arrayLen(reader, flexible)
		if err != nil {
			return nil, fmt.Errorf("read fetch partition count: %w", err)
		}
		topic.Partitions = make([]FetchPartitionRequest, 0, partCount)
		for j := int32(0); j < partCount; j++ {
			part := FetchPartitionRequest{CurrentLeaderEpoch: -1, LastFetchedEpoch: -1, LogStartOffset: -1}
			if part.Partition, err = reader.Int32(); err != nil {
				return nil, fmt.Errorf("read fetch partition: %w", err)
			}
			if version >= 9 {
				if part.CurrentLeaderEpoch, err = reader.Int32(); err != nil {
					return nil, fmt.Errorf("read fetch leader epoch: %w", err)
				}
			}
			if part.FetchOffset, err = reader.Int64(); err != nil {
				return nil, fmt.Errorf("read fetch offset: %w", err)
			}
			if version >= 12 {
				if part.LastFetchedEpoch, err = reader.Int32(); err != nil {
					return nil, fmt.Errorf("read fetch last fetched epoch: %w", err)
				}
			}
			if version >= 5 {
				if part.LogStartOffset, err = reader.Int64(); err != nil {
					return nil, fmt.Errorf("read fetch log start offset: %w", err)
				}
			}
			if part.MaxBytes, err = reader.Int32(); err != nil {
				return nil, fmt.Errorf("read fetch partition max bytes: %w", err)
			}
			if flexible {
				if err := reader.SkipTaggedFields(); err != nil {
					return nil, fmt.Errorf("skip fetch partition tags: %w", err)
				}
			}
			topic.Partitions = append(topic.Partitions, part)
		}
		if flexible {
			if err := reader.SkipTaggedFields(); err != nil {
				return nil, fmt.Errorf("skip fetch topic tags: %w", err)
			}
		}
		req.Topics = append(req.Topics, topic)
	}
	if version >= 7 {
		forgottenCount, err := arrayLen(reader, flexible)
		if err != nil {
			return nil, fmt.Errorf("read forgotten topics count: %w", err)
		}
		for i := int32(0); i < forgottenCount; i++ {
			var forgotten FetchForgottenTopic
			if version >= 13 {
				if forgotten.TopicID, err = reader.UUID(); err != nil {
					return nil, fmt.Errorf("read forgotten topic id: %w", err)
				}
			} else {
				if forgotten.Name, err = readString(reader, flexible); err != nil {
					return nil, fmt.Errorf("read forgotten topic name: %w", err)
				}
			}
			partCount, err := arrayLen(reader, flexible)
			if err != nil {
				return nil, fmt.Errorf("read forgotten partitions: %w", err)
			}
			for j := int32(0); j < partCount; j++ {
				p, err := reader.Int32()
				if err != nil {
					return nil, fmt.Errorf("read forgotten partition: %w", err)
				}
				forgotten.Partitions = append(forgotten.Partitions, p)
			}
			if flexible {
				if err := reader.SkipTaggedFields(); err != nil {
					return nil, fmt.Errorf("skip forgotten topic tags: %w", err)
				}
			}
			req.Forgotten = append(req.Forgotten, forgotten)
		}
	}
	if version >= 11 {
		var rack *string
		if flexible {
			rack, err = reader.CompactNullableString()
		} else {
			rack, err = reader.NullableString()
		}
		if err != nil {
			return nil, fmt.Errorf("read rack id: %w", err)
		}
		if rack != nil {
			req.RackID = *rack
		}
	}
	if flexible {
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip fetch request tags: %w", err)
		}
	}
	return req, nil
}

func parseDescribeTopicPartitionsRequest(reader *Reader) (*DescribeTopicPartitionsRequest, error) {
	topicCount, err := compactArrayLenNonNull(reader)
	if err != nil {
		return nil, fmt.Errorf("read describe topic partitions topic count: %w", err)
	}
	req := &DescribeTopicPartitionsRequest{Topics: make([]string, 0, topicCount)}
	for i := int32(0); i < topicCount; i++ {
		name, err := reader.CompactString()
		if err != nil {
			return nil, fmt.Errorf("read topic name: %w", err)
		}
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip topic tags: %w", err)
		}
		req.Topics = append(req.Topics, name)
	}
	if req.ResponsePartitionLimit, err = reader.Int32(); err != nil {
		return nil, fmt.Errorf("read response partition limit: %w", err)
	}
	marker, err := reader.PeekInt8()
	if err != nil {
		return nil, fmt.Errorf("read cursor: %w", err)
	}
	if marker == -1 {
		_ = reader.Skip(1)
	} else {
		name, err := reader.CompactString()
		if err != nil {
			return nil, fmt.Errorf("read cursor topic name: %w", err)
		}
		partition, err := reader.Int32()
		if err != nil {
			return nil, fmt.Errorf("read cursor partition: %w", err)
		}
		if err := reader.SkipTaggedFields(); err != nil {
			return nil, fmt.Errorf("skip cursor tags: %w", err)
		}
		req.Cursor = &DescribeTopicPartitionsCursor{TopicName: name, PartitionIndex: partition}
	}
	if err := reader.SkipTaggedFields(); err != nil {
		return nil, fmt.Errorf("skip describe topic partitions tags: %w", err)
	}
	return req, nil
}
