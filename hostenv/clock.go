// Copyright 2025 Google LLC
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

package hostenv

import (
	"golang.org/x/sys/unix"

	"github.com/mgord9518/zware/zware"
)

const (
	clockRealtime  uint32 = 0
	clockMonotonic uint32 = 1
)

const clockResolutionNs = 1

func nowNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		return 0
	}
	return ts.Sec*1e9 + ts.Nsec
}

func realtimeNs() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_REALTIME, &ts); err != nil {
		return 0
	}
	return ts.Sec*1e9 + ts.Nsec
}

func (env *Environment) clockResGet(caller *zware.Instance, args []any) ([]any, error) {
	clockID := uint32(args[0].(int32))
	if clockID != clockRealtime && clockID != clockMonotonic {
		return []any{ErrnoInval}, nil
	}
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	return []any{putU64(mem, uint32(args[1].(int32)), clockResolutionNs)}, nil
}

func (env *Environment) clockTimeGet(caller *zware.Instance, args []any) ([]any, error) {
	clockID := uint32(args[0].(int32))
	// args[1] is the requested precision; every clock here is nanosecond
	// resolution already, so it is ignored.
	resPtr := uint32(args[2].(int32))

	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}

	var now int64
	switch clockID {
	case clockRealtime:
		now = realtimeNs()
	case clockMonotonic:
		now = nowNs() - env.boot
	default:
		return []any{ErrnoInval}, nil
	}
	return []any{putU64(mem, resPtr, uint64(now))}, nil
}
