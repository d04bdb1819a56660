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
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/novatechflow/kraftbroker/pkg/cache"
)

// FirstSegmentName is the file name of a partition's first log segment.
const FirstSegmentName = "00000000000000000000.log"

// ErrSegmentNotFound indicates the partition has no data file.
var ErrSegmentNotFound = errors.New("segment not found")

// SegmentReader returns the raw record batches stored for a partition.
type SegmentReader interface {
	ReadPartition(ctx context.Context, topic string, partition int32) ([]byte, error)
}

// PartitionDir returns the directory name Kafka uses for a partition.
func PartitionDir(topic string, partition int32) string {
	return fmt.Sprintf("%s-%d", topic, partition)
}

func validTopicName(topic string) bool {
	return topic != "" && topic != "." && topic != ".." && !strings.ContainsAny(topic, `/\`)
}

// FileSegmentReader reads <Root>/<topic>-<partition>/00000000000000000000.log.
type FileSegmentReader struct {
	Root string
}

func (r *FileSegmentReader) ReadPartition(ctx context.Context, topic string, partition int32) ([]byte, error) {
	if !validTopicName(topic) {
		return nil, fmt.Errorf("invalid topic name %q", topic)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := filepath.Join(r.Root, PartitionDir(topic, partition), FirstSegmentName)
	data, err := os.ReadFile(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", p, ErrSegmentNotFound)
		}
		return nil, fmt.Errorf("read partition data: %w", err)
	}
	return data, nil
}

// S3SegmentReader reads <Prefix>/<topic>-<partition>/00000000000000000000.log
// objects through an S3Client.
type S3SegmentReader struct {
	Client S3Client
	Prefix string
}

// SegmentKey returns the object key for a partition's data file.
func (r *S3SegmentReader) SegmentKey(topic string, partition int32) string {
	return path.Join(r.Prefix, PartitionDir(topic, partition), FirstSegmentName)
}

func (r *S3SegmentReader) ReadPartition(ctx context.Context, topic string, partition int32) ([]byte, error) {
	if !validTopicName(topic) {
		return nil, fmt.Errorf("invalid topic name %q", topic)
	}
	return r.Client.DownloadSegment(ctx, r.SegmentKey(topic, partition))
}

// CachedSegmentReader serves repeated reads of the same partition from an
// LRU cache in front of another reader. Missing partitions are not cached.
type CachedSegmentReader struct {
	Next  SegmentReader
	Cache *cache.PartitionCache
}

func (r *CachedSegmentReader) ReadPartition(ctx context.Context, topic string, partition int32) ([]byte, error) {
	if data, ok := r.Cache.Get(topic, partition); ok {
		return data, nil
	}
	data, err := r.Next.ReadPartition(ctx, topic, partition)
	if err != nil {
		return nil, err
	}
	r.Cache.Set(topic, partition, data)
	return data, nil
}
