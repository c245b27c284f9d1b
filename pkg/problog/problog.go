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

// Package problog is PROBE's debug channel (spec.md §7): the landing
// point for tracee-error diagnostics and the single path by which a
// tracer-internal error aborts the traced process. SPEC_FULL.md §4.8.
package problog

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sys/unix"
	"golang.org/x/time/rate"
)

// rateLimit matches SPEC_FULL.md §4.8: 5 events/sec, burst 10, shared by
// every warning emitted from inside a wrapper so a tight loop of failing
// syscalls cannot itself become the bottleneck.
const (
	rateLimitPerSec = 5
	rateLimitBurst  = 10
)

var (
	once    sync.Once
	logger  *logrus.Logger
	limiter *rate.Limiter

	// abort is called by Fatal after logging. Replaceable in tests.
	abort = func() {
		unix.Kill(unix.Getpid(), unix.SIGABRT)
	}
)

func initDefault() {
	logger = logrus.New()
	logger.SetOutput(os.Stderr)
	if _, underProbe := os.LookupEnv("__PROBE_DIR"); underProbe {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{})
	}
	logger.SetLevel(logrus.InfoLevel)
	limiter = rate.NewLimiter(rate.Limit(rateLimitPerSec), rateLimitBurst)
}

func get() *logrus.Logger {
	once.Do(initDefault)
	return logger
}

// Configure replaces the default logger and/or abort function; tests use
// it to capture output and to avoid actually raising SIGABRT.
func Configure(l *logrus.Logger, abortFn func()) {
	once.Do(func() {}) // ensure get()'s lazy init never clobbers this
	if l != nil {
		logger = l
	}
	if abortFn != nil {
		abort = abortFn
	}
	if limiter == nil {
		limiter = rate.NewLimiter(rate.Limit(rateLimitPerSec), rateLimitBurst)
	}
}

// SetVerbose raises or lowers the logger's level; wired to PROBE_VERBOSE.
func SetVerbose(v bool) {
	l := get()
	if v {
		l.SetLevel(logrus.DebugLevel)
	} else {
		l.SetLevel(logrus.InfoLevel)
	}
}

// Warn logs a rate-limited tracee-error diagnostic (spec.md §7, "tracee
// errors ... recorded verbatim ... never surfaced to the tracee", but
// still debug-logged). Silently dropped once the token bucket is empty.
func Warn(msg string, fields logrus.Fields) {
	l := get()
	if !limiter.Allow() {
		return
	}
	l.WithFields(fields).Warn(msg)
}

// Debug logs unconditionally at debug level (no rate limit, intended for
// PROBE_VERBOSE-gated tracing rather than hot-path warnings).
func Debug(msg string, fields logrus.Fields) {
	get().WithFields(fields).Debug(msg)
}

// Fatal logs msg at error level, then calls the configured abort
// function. This is the only path by which a tracer-internal error (spec.md
// §7's second taxonomy bucket) aborts the tracee; it never returns in
// production, though tests may configure a no-op abort to observe the log.
func Fatal(msg string, fields logrus.Fields) {
	get().WithFields(fields).Error(msg)
	abort()
}
