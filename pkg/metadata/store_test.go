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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/novatechflow/kraftbroker/internal/testutil"
)

func newOrdersStore(t *testing.T) *LogStore {
	t.Helper()
	idx, err := ParseLog(testutil.OrdersLog(ordersID))
	if err != nil {
		t.Fatalf("ParseLog: %v", err)
	}
	return NewLogStore(idx)
}

func TestLogStoreLookups(t *testing.T) {
	store := newOrdersStore(t)

	if !store.IsTopicKnown("orders") || store.IsTopicKnown("missing") {
		t.Fatalf("unexpected topic membership")
	}
	if store.TopicID("orders") != ordersID {
		t.Fatalf("unexpected topic id %s", store.TopicID("orders"))
	}
	if store.TopicID("missing") != uuid.Nil {
		t.Fatalf("expected zero uuid for unknown topic")
	}
	if !store.IsTopicIDKnown(ordersID) || store.IsTopicIDKnown(uuid.New()) {
		t.Fatalf("unexpected topic id membership")
	}
	if name, ok := store.TopicName(ordersID); !ok || name != "orders" {
		t.Fatalf("unexpected topic name %q %v", name, ok)
	}
	if store.SerializedPartitions(uuid.New()) != nil {
		t.Fatalf("expected nil partitions for unknown id")
	}
	topics := store.Topics()
	if len(topics) != 1 || len(topics[0].Partitions) != 2 {
		t.Fatalf("unexpected topic listing: %+v", topics)
	}
}

func TestLogStoreConcurrentReaders(t *testing.T) {
	store := newOrdersStore(t)
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 1000; j++ {
				if len(store.SerializedPartitions(store.TopicID("orders"))) != 2 {
					t.Errorf("unexpected partition count")
					return
				}
			}
		}()
	}
	wg.Wait()
}

func TestLoadLog(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "00000000000000000000.log")
	if err := os.WriteFile(path, testutil.OrdersLog(ordersID), 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	for _, useMmap := range []bool{false, true} {
		store, err := LoadLog(path, LoadOptions{UseMmap: useMmap})
		if err != nil {
			t.Fatalf("LoadLog(mmap=%v): %v", useMmap, err)
		}
		if !store.IsTopicKnown("orders") || len(store.SerializedPartitions(ordersID)) != 2 {
			t.Fatalf("mmap=%v: unexpected store contents", useMmap)
		}
	}
}

func TestLoadLogMissingAndEmpty(t *testing.T) {
	dir := t.TempDir()
	if _, err := LoadLog(filepath.Join(dir, "absent.log"), LoadOptions{}); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
	empty := filepath.Join(dir, "empty.log")
	if err := os.WriteFile(empty, nil, 0o644); err != nil {
		t.Fatalf("write empty log: %v", err)
	}
	if _, err := LoadLog(empty, LoadOptions{UseMmap: true}); !errors.Is(err, ErrEmptyLog) {
		t.Fatalf("expected ErrEmptyLog, got %v", err)
	}
}

func TestLoadLogCorrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "corrupt.log")
	if err := os.WriteFile(path, []byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 1, 0}, 0o644); err != nil {
		t.Fatalf("write log: %v", err)
	}
	if _, err := LoadLog(path, LoadOptions{}); !errors.Is(err, ErrCorruptLog) {
		t.Fatalf("expected ErrCorruptLog, got %v", err)
	}
}
