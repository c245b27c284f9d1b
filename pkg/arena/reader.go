// Copyright 2024 The PROBE Authors.
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

package arena

import (
	"fmt"
	"os"
)

// Header is the parsed form of a segment's on-disk header, exported for
// read-only consumers (cmd/probe-dump, tests) that never map the segment
// for writing.
type Header struct {
	Instantiation uint64
	Base          uint64
	Capacity      uint64
	Used          uint64
}

// ReadHeader opens path read-only and decodes its segment header without
// mapping the rest of the file, satisfying spec.md §8 invariant 4 ("its
// on-disk length equals its header's capacity; used <= capacity; segment
// index in filename equals header's instantiation").
func ReadHeader(path string) (Header, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return Header{}, 0, err
	}
	defer f.Close()

	buf := make([]byte, headerSize)
	if _, err := f.ReadAt(buf, 0); err != nil {
		return Header{}, 0, fmt.Errorf("arena: read header of %s: %w", path, err)
	}
	fi, err := f.Stat()
	if err != nil {
		return Header{}, 0, err
	}
	h := decodeHeader(buf)
	return Header{
		Instantiation: h.Instantiation,
		Base:          h.Base,
		Capacity:      h.Capacity,
		Used:          h.Used,
	}, fi.Size(), nil
}
