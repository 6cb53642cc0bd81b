package simulator

import "encoding/binary"

// CounterFSM is the reference application state machine used by the
// cluster harness and its tests: it interprets every committed command as
// a signed delta and keeps a running total.
type CounterFSM struct {
	X int64
}

// Apply decodes payload as a little-endian int64 delta and adds it to X.
func (f *CounterFSM) Apply(payload []byte) (interface{}, error) {
	f.X += decodeAddX(payload)
	return f.X, nil
}

// EncodeAddX builds the command payload for "add x by n".
func EncodeAddX(n int64) []byte {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(n))
	return buf
}

func decodeAddX(payload []byte) int64 {
	if len(payload) != 8 {
		return 0
	}
	return int64(binary.LittleEndian.Uint64(payload))
}
