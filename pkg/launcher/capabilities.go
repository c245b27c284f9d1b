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

package launcher

import (
	"fmt"
	"strings"

	"github.com/syndtr/gocapability/capability"
)

// capsByName maps the "CAP_..." spelling used in probe.toml's
// capabilities_kept to the library's constants, covering the ones the
// teacher's sandbox layer itself drops down to (runsc/sandbox/sandbox.go:
// CAP_SYS_ADMIN, CAP_SYS_CHROOT, CAP_SETPCAP) plus the handful its boot
// loader checks for (runsc/boot/loader.go: CAP_NET_RAW) and the identity
// ones sandbox.go tests for before re-execing as a non-root user
// (CAP_SETUID, CAP_SETGID).
var capsByName = map[string]capability.Cap{
	"CAP_SYS_ADMIN":  capability.CAP_SYS_ADMIN,
	"CAP_SYS_CHROOT": capability.CAP_SYS_CHROOT,
	"CAP_SETPCAP":    capability.CAP_SETPCAP,
	"CAP_NET_RAW":    capability.CAP_NET_RAW,
	"CAP_SETUID":     capability.CAP_SETUID,
	"CAP_SETGID":     capability.CAP_SETGID,
}

// dropCapabilities bounds pid's capability sets down to keep, clearing
// everything else (SPEC_FULL.md §4.9 addition: the launcher narrows the
// traced process's privilege the same way the teacher's sandbox process
// narrows its own before running untrusted guest code,
// runsc/sandbox/sandbox.go's CAP_SYS_ADMIN/CAP_SYS_CHROOT/CAP_SETPCAP
// bounding-set trim). An empty keep drops every capability.
func dropCapabilities(pid int, keep []string) error {
	caps, err := capability.NewPid2(pid)
	if err != nil {
		return fmt.Errorf("launcher: load capabilities for pid %d: %w", pid, err)
	}
	if err := caps.Load(); err != nil {
		return fmt.Errorf("launcher: read current capabilities for pid %d: %w", pid, err)
	}

	caps.Clear(capability.CAPS)
	for _, name := range keep {
		c, ok := capsByName[strings.ToUpper(name)]
		if !ok {
			return fmt.Errorf("launcher: unknown capability %q in capabilities_kept", name)
		}
		caps.Set(capability.CAPS, c)
	}

	if err := caps.Apply(capability.CAPS); err != nil {
		return fmt.Errorf("launcher: apply trimmed capabilities to pid %d: %w", pid, err)
	}
	return nil
}
