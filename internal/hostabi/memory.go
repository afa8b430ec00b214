package hostabi

import (
	"fmt"
	"unicode/utf8"

	"github.com/tetratelabs/wazero/api"
)

// ReadParams copies len(buf) bytes out of the guest's linear memory at ptr.
// Bounds are rechecked against the module's current memory size at the
// moment of the call, since a guest's memory can grow between the ABI call
// being dispatched and the host reading it.
func ReadParams(mod api.Module, ptr, length uint32) ([]byte, error) {
	buf, ok := mod.Memory().Read(ptr, length)
	if !ok {
		return nil, fmt.Errorf("hostabi: params out of bounds: ptr=%d len=%d mem_size=%d", ptr, length, mod.Memory().Size())
	}
	// Memory().Read returns a view into the guest's backing array; copy it
	// out so later guest writes cannot mutate data still being processed.
	out := make([]byte, len(buf))
	copy(out, buf)
	return out, nil
}

// ReadParamsString reads ptr/length as UTF-8 text, returning
// ParametersNotUtf8 if the bytes are not valid UTF-8.
func ReadParamsString(mod api.Module, ptr, length uint32) (string, ErrorCode) {
	buf, err := ReadParams(mod, ptr, length)
	if err != nil {
		return "", CouldNotGetAdequateMemory
	}
	if !utf8.Valid(buf) {
		return "", ParametersNotUtf8
	}
	return string(buf), Success
}

// WriteReturn writes data into the guest's return buffer at ptr, which has
// capacity retLen. It returns the number of bytes written, or
// ReturnBufferTooSmall if data does not fit.
func WriteReturn(mod api.Module, ptr, retLen uint32, data []byte) (int32, ErrorCode) {
	if uint32(len(data)) > retLen {
		return 0, ReturnBufferTooSmall
	}
	if len(data) == 0 {
		return 0, Success
	}
	if !mod.Memory().Write(ptr, data) {
		return 0, CouldNotGetAdequateMemory
	}
	return int32(len(data)), Success
}
