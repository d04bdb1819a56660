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
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
)

// DefaultLogPath is where a single-node KRaft controller keeps its metadata log.
const DefaultLogPath = "/tmp/kraft-combined-logs/__cluster_metadata-0/00000000000000000000.log"

// LoadOptions controls how the metadata log is read.
type LoadOptions struct {
	// UseMmap maps the file read-only instead of copying it into memory.
	UseMmap bool
}

// LoadLog reads and parses the metadata log at path. Missing or empty files
// are errors.
func LoadLog(path string, opts LoadOptions) (*LogStore, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("stat metadata log: %w", err)
	}
	if info.Size() == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmptyLog)
	}

	var idx *Index
	if opts.UseMmap {
		idx, err = parseMapped(path)
	} else {
		var data []byte
		data, err = os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read metadata log: %w", err)
		}
		idx, err = ParseLog(data)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return NewLogStore(idx), nil
}

// parseMapped parses the log straight from a read-only mapping. The index owns
// copies of everything it keeps, so the mapping is released before returning.
func parseMapped(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open metadata log: %w", err)
	}
	defer f.Close()
	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		return nil, fmt.Errorf("mmap metadata log: %w", err)
	}
	defer m.Unmap()
	return ParseLog(m)
}
