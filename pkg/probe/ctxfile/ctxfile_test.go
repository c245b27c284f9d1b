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

package ctxfile

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWriteThenValidateRoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := Header{Magic: Magic, Version: Version, CreatedAtNanos: 123456, RootPID: 4242}
	require.NoError(t, Write(dir, want))

	got, err := Validate(dir)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestValidateRejectsBadMagic(t *testing.T) {
	dir := t.TempDir()
	h := Header{Magic: 0xdeadbeef, Version: Version}
	require.NoError(t, Write(dir, h))

	_, err := Validate(dir)
	require.Error(t, err)
}

func TestValidateRejectsBadVersion(t *testing.T) {
	dir := t.TempDir()
	h := Header{Magic: Magic, Version: 99}
	require.NoError(t, Write(dir, h))

	_, err := Validate(dir)
	require.Error(t, err)
}

func TestValidateMissingFile(t *testing.T) {
	dir := t.TempDir()
	_, err := Validate(dir)
	require.Error(t, err)
}

func TestValidateTruncatedFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(dir+"/"+Name, []byte{1, 2, 3}, 0o644))

	_, err := Validate(dir)
	require.Error(t, err)
}
