// Command wasmrun loads a Wasm binary, instantiates it against a small
// demo host-import table and invokes one exported function with
// integer arguments parsed from argv.
//
// Usage: wasmrun <file.wasm> <export-name> [arg...]
package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/neri/maystorm-wasm/value"
	"github.com/neri/maystorm-wasm/vm"
	"github.com/neri/maystorm-wasm/wasm"
)

func resolver(module, field string, sig wasm.FuncType) (vm.HostFunc, error) {
	if module == "env" && field == "print_i32" {
		return func(_ *vm.Module, args []value.Value) (value.Value, error) {
			if len(args) > 0 {
				fmt.Println(args[0].I32())
			}
			return value.Value{}, nil
		}, nil
	}
	return nil, fmt.Errorf("unresolved import %s.%s", module, field)
}

func main() {
	if len(os.Args) < 3 {
		fmt.Fprintln(os.Stderr, "usage: wasmrun <file.wasm> <export-name> [arg...]")
		os.Exit(2)
	}

	data, err := os.ReadFile(os.Args[1])
	if err != nil {
		fmt.Fprintln(os.Stderr, "read:", err)
		os.Exit(1)
	}

	mod, err := vm.Instantiate(data, resolver)
	if err != nil {
		fmt.Fprintln(os.Stderr, "instantiate:", err)
		os.Exit(1)
	}

	fn, ok := mod.Func(os.Args[2])
	if !ok {
		fmt.Fprintf(os.Stderr, "no such export: %s\n", os.Args[2])
		os.Exit(1)
	}

	var params []value.ValueType
	for _, f := range mod.Funcs {
		if f.ExportName == os.Args[2] {
			params = f.Sig.Params
		}
	}
	args := make([]value.Value, len(os.Args)-3)
	for i, raw := range os.Args[3:] {
		is32 := i < len(params) && params[i] == value.I32
		bitSize := 64
		if is32 {
			bitSize = 32
		}
		n, err := strconv.ParseInt(raw, 10, bitSize)
		if err != nil {
			fmt.Fprintf(os.Stderr, "argument %q: %v\n", raw, err)
			os.Exit(2)
		}
		args[i] = value.I64Value(n)
		if is32 {
			args[i] = value.I32Value(int32(n))
		}
	}

	result, err := fn.Invoke(args...)
	if err != nil {
		fmt.Fprintln(os.Stderr, "trap:", err)
		os.Exit(1)
	}
	fmt.Println(result)
}
