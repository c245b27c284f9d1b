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

// Command probe-run is the launcher's CLI surface, shaped like the
// teacher's own runsc CLI (subcommands.Register), SPEC_FULL.md §4.9.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/google/subcommands"

	"github.com/probe-trace/probe/pkg/launcher"
)

func main() {
	subcommands.Register(subcommands.HelpCommand(), "")
	subcommands.Register(subcommands.FlagsCommand(), "")
	subcommands.Register(&runCommand{}, "")

	flag.Parse()
	os.Exit(int(subcommands.Execute(context.Background())))
}

type runCommand struct {
	configPath string
}

func (*runCommand) Name() string     { return "run" }
func (*runCommand) Synopsis() string { return "launch a program under PROBE" }
func (*runCommand) Usage() string {
	return "run -config probe.toml -- <program> [args...]\n"
}

func (r *runCommand) SetFlags(f *flag.FlagSet) {
	f.StringVar(&r.configPath, "config", "probe.toml", "path to probe.toml")
}

func (r *runCommand) Execute(_ context.Context, f *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	args := f.Args()
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "probe-run: no program given")
		return subcommands.ExitUsageError
	}

	cfg, err := launcher.LoadConfig(r.configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe-run:", err)
		return subcommands.ExitFailure
	}

	l, err := launcher.New(cfg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe-run:", err)
		return subcommands.ExitFailure
	}

	state, err := l.Run(launcher.ProcessSpec{
		Args: args,
		Env:  os.Environ(),
		Cwd:  mustGetwd(),
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "probe-run:", err)
		return subcommands.ExitFailure
	}
	if !state.Success() {
		return subcommands.ExitFailure
	}
	return subcommands.ExitSuccess
}

func mustGetwd() string {
	wd, err := os.Getwd()
	if err != nil {
		return "."
	}
	return wd
}
