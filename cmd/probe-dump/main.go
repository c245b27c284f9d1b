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

// Command probe-dump is a tiny read-only debugging companion (SPEC_FULL.md
// §4.10): it opens $DIR/pids/**/ops|data/*.dat segment headers and prints
// instantiation index, capacity, and used bytes, making the arena
// invariants of spec.md §8 item 4 eyeball-checkable during development.
// It is explicitly not the offline reader/causal-graph builder, which
// spec.md §1 places out of scope.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/subcommands"

	"github.com/probe-trace/probe/pkg/arena"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&segmentsCommand{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

type segmentsCommand struct{}

func (*segmentsCommand) Name() string     { return "segments" }
func (*segmentsCommand) Synopsis() string { return "list every arena segment under $DIR" }
func (*segmentsCommand) Usage() string    { return "segments <probe-dir>\n" }
func (*segmentsCommand) SetFlags(*flag.FlagSet) {}

func (*segmentsCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	if f.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "probe-dump: expected exactly one probe-dir argument")
		return subcommands.ExitUsageError
	}
	root := f.Arg(0)

	var count int
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() || filepath.Ext(path) != ".dat" {
			return err
		}
		hdr, size, err := arena.ReadHeader(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			return nil
		}
		count++
		fmt.Printf("%-60s inst=%d cap=%d used=%d size=%d\n", path, hdr.Instantiation, hdr.Capacity, hdr.Used, size)
		return nil
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe-dump:", err)
		return subcommands.ExitFailure
	}
	fmt.Printf("%d segment(s)\n", count)
	return subcommands.ExitSuccess
}
