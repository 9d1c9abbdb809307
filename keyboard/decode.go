// Package keyboard turns terminal input into the key names polled by
// forever loops.
package keyboard

import (
	"unicode"
	"unicode/utf8"

	"github.com/chazu/kestrel/vm"
)

const esc = 0x1b

// Decode reads one key from the front of buf and reports how many bytes it
// used. n is zero only for an empty buffer. Input that is read in one
// chunk is assumed to hold whole escape sequences.
func Decode(buf []byte) (key string, n int) {
	if len(buf) == 0 {
		return "", 0
	}
	switch b := buf[0]; {
	case b == '\r' || b == '\n':
		return vm.KeyEnter, 1
	case b == '\t':
		return vm.KeyTab, 1
	case b == 0x7f || b == 0x08:
		return vm.KeyBackspace, 1
	case b == esc:
		return decodeEscape(buf)
	case b < 0x20:
		return vm.KeyUnknown, 1
	}

	r, size := utf8.DecodeRune(buf)
	if r == utf8.RuneError && size <= 1 {
		return vm.KeyUnknown, 1
	}
	if !unicode.IsPrint(r) {
		return vm.KeyUnknown, size
	}
	return string(r), size
}

// decodeEscape handles ESC, ESC [ X and ESC O X (application cursor mode).
func decodeEscape(buf []byte) (string, int) {
	if len(buf) < 2 || (buf[1] != '[' && buf[1] != 'O') {
		return vm.KeyEscape, 1
	}
	if len(buf) < 3 {
		return vm.KeyEscape, 1
	}
	switch buf[2] {
	case 'A':
		return vm.KeyUp, 3
	case 'B':
		return vm.KeyDown, 3
	case 'C':
		return vm.KeyRight, 3
	case 'D':
		return vm.KeyLeft, 3
	}
	// Other CSI sequences run through parameter bytes to a final byte
	// in 0x40-0x7e.
	for i := 2; i < len(buf); i++ {
		if buf[i] >= 0x40 && buf[i] <= 0x7e {
			return vm.KeyUnknown, i + 1
		}
	}
	return vm.KeyUnknown, len(buf)
}
