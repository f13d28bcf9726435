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

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mgord9518/zware/zware"
	"github.com/mgord9518/zware/decode"
	"github.com/mgord9518/zware/hostenv"
	"github.com/mgord9518/zware/runtime"
)

func newRunCommand() *cobra.Command {
	var (
		invoke   string
		preopens []string
		verbose  bool
	)

	cmd := &cobra.Command{
		Use:   "run <module.wasm> [args...]",
		Short: "Instantiate a module and invoke an exported function",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runModule(args[0], args[1:], invoke, preopens, verbose)
		},
	}

	cmd.Flags().StringVar(&invoke, "invoke", "_start", "exported function to call after instantiation")
	cmd.Flags().StringArrayVar(&preopens, "dir", nil, "preopen a host directory as guest:host (repeatable)")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "log instantiation details")
	return cmd
}

func runModule(path string, funcArgs []string, invoke string, preopenFlags []string, verbose bool) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mod, err := decode.NewDecoder(f).Decode()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	preopens, err := parsePreopens(preopenFlags)
	if err != nil {
		return err
	}
	env, err := hostenv.New(preopens)
	if err != nil {
		return fmt.Errorf("opening preopens: %w", err)
	}
	defer env.Close()

	rt := runtime.NewRuntime()
	if verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return err
		}
		rt = rt.WithLogger(logger)
	}

	imports := map[string]map[string]zware.ImportValue{
		hostenv.ModuleName: env.Imports(),
	}

	inst, err := rt.Instantiate(mod, imports)
	if err != nil {
		return fmt.Errorf("instantiating %s: %w", path, err)
	}

	if invoke == "" {
		return nil
	}
	ft, err := inst.FunctionType(invoke)
	if err != nil {
		return err
	}
	if len(funcArgs) != len(ft.ParamTypes) {
		return fmt.Errorf("%s wants %d args, got %d", invoke, len(ft.ParamTypes), len(funcArgs))
	}
	parsed := make([]any, len(funcArgs))
	for i, a := range funcArgs {
		v, err := parseArg(a, ft.ParamTypes[i])
		if err != nil {
			return err
		}
		parsed[i] = v
	}
	results, err := inst.InvokeTyped(invoke, nil, parsed...)
	if err != nil {
		return fmt.Errorf("invoking %s: %w", invoke, err)
	}
	for _, r := range results {
		fmt.Println(r)
	}
	return nil
}

// parsePreopens parses a "guest:host" flag value into a hostenv.Preopen,
// defaulting the guest side to "/" when no colon is present.
func parsePreopens(flags []string) ([]hostenv.Preopen, error) {
	var out []hostenv.Preopen
	for _, f := range flags {
		guest, host, ok := strings.Cut(f, ":")
		if !ok {
			guest, host = "/", f
		}
		out = append(out, hostenv.Preopen{GuestPath: guest, HostPath: host})
	}
	return out, nil
}

// parseArg converts a command-line string to the Go type InvokeTyped
// expects for paramType.
func parseArg(s string, paramType zware.ValueType) (any, error) {
	switch paramType {
	case zware.I32, zware.FuncRefType, zware.ExternRefType:
		v, err := strconv.ParseInt(s, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as i32: %w", s, err)
		}
		return int32(v), nil
	case zware.I64:
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as i64: %w", s, err)
		}
		return v, nil
	case zware.F32:
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as f32: %w", s, err)
		}
		return float32(v), nil
	case zware.F64:
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return nil, fmt.Errorf("parsing %q as f64: %w", s, err)
		}
		return v, nil
	default:
		return nil, fmt.Errorf("unsupported param type %v", paramType)
	}
}
