// Package bench holds cross-engine benchmarks: the interpreter against
// wasmtime and wasmer on the same module, so regressions show up relative
// to the engines embedders would otherwise reach for.
package bench

// FibWasm is a recursive fibonacci module exporting fib(i32)->i32, the
// classic call-heavy interpreter workload.
func FibWasm() []byte {
	body := []byte{
		0x00,             // no locals
		0x20, 0x00,       // local.get 0
		0x41, 0x02,       // i32.const 2
		0x48,             // i32.lt_s
		0x04, 0x7f,       // if (result i32)
		0x20, 0x00,       // local.get 0
		0x05,             // else
		0x20, 0x00,       // local.get 0
		0x41, 0x01,       // i32.const 1
		0x6b,             // i32.sub
		0x10, 0x00,       // call 0
		0x20, 0x00,       // local.get 0
		0x41, 0x02,       // i32.const 2
		0x6b,             // i32.sub
		0x10, 0x00,       // call 0
		0x6a,             // i32.add
		0x0b,             // end if
		0x0b,             // end body
	}

	bin := []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}
	section := func(id byte, contents ...byte) {
		bin = append(bin, id, byte(len(contents)))
		bin = append(bin, contents...)
	}
	section(0x01, 0x01, 0x60, 0x01, 0x7f, 0x01, 0x7f)
	section(0x03, 0x01, 0x00)
	section(0x07, 0x01, 0x03, 'f', 'i', 'b', 0x00, 0x00)
	section(0x0a, append([]byte{0x01, byte(len(body))}, body...)...)
	return bin
}
