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

	"github.com/spf13/cobra"

	"github.com/mgord9518/zware/zware"
	"github.com/mgord9518/zware/decode"
)

func newInspectCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "inspect <module.wasm>",
		Short: "Print a module's imports, exports, and section counts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return inspectModule(args[0])
		},
	}
}

func inspectModule(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	mod, err := decode.NewDecoder(f).Decode()
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	fmt.Printf("types:    %d\n", len(mod.Types))
	fmt.Printf("funcs:    %d (%d imported)\n", len(mod.Funcs), mod.ImportCount(zware.FuncImportKind))
	fmt.Printf("tables:   %d (%d imported)\n", len(mod.Tables), mod.ImportCount(zware.TableImportKind))
	fmt.Printf("memories: %d (%d imported)\n", len(mod.Memories), mod.ImportCount(zware.MemoryImportKind))
	fmt.Printf("globals:  %d (%d imported)\n", len(mod.GlobalVariables), mod.ImportCount(zware.GlobalImportKind))
	fmt.Printf("elements: %d\n", len(mod.ElementSegments))
	fmt.Printf("data:     %d\n", len(mod.DataSegments))
	if mod.StartIndex != nil {
		fmt.Printf("start:    func %d\n", *mod.StartIndex)
	}

	fmt.Println("\nimports:")
	for _, imp := range mod.Imports {
		fmt.Printf("  %s.%s\n", imp.ModuleName, imp.Name)
	}

	fmt.Println("\nexports:")
	for _, exp := range mod.Exports {
		fmt.Printf("  %-8s %s\n", exportKindName(exp.Kind), exp.Name)
	}
	return nil
}

func exportKindName(k zware.ExportKind) string {
	switch k {
	case zware.FuncExportKind:
		return "func"
	case zware.TableExportKind:
		return "table"
	case zware.MemoryExportKind:
		return "memory"
	case zware.GlobalExportKind:
		return "global"
	default:
		return "?"
	}
}
