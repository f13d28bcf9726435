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
	"crypto/rand"

	"github.com/mgord9518/zware/zware"
)

func (env *Environment) randomGet(caller *zware.Instance, args []any) ([]any, error) {
	mem, errno := memoryOf(caller)
	if errno != ErrnoSuccess {
		return []any{errno}, nil
	}
	bufPtr := uint32(args[0].(int32))
	bufLen := uint32(args[1].(int32))

	buf := make([]byte, bufLen)
	if _, err := rand.Read(buf); err != nil {
		return []any{ErrnoIO}, nil
	}
	if err := mem.Set(bufPtr, 0, buf); err != nil {
		return []any{ErrnoFault}, nil
	}
	return []any{ErrnoSuccess}, nil
}
