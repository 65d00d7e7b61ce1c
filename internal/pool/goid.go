package pool

import (
	"bytes"
	"runtime"
	"strconv"
)

var goroutinePrefix = []byte("goroutine ")

// goroutineID returns the runtime id of the calling goroutine.
//
// The runtime does not export goroutine ids; the header line of the
// goroutine's own stack trace ("goroutine 42 [running]:") is the only
// stable source.
func goroutineID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := bytes.TrimPrefix(buf[:n], goroutinePrefix)
	end := bytes.IndexByte(b, ' ')
	if end < 0 {
		panic("pool: cannot parse goroutine id from stack header")
	}
	id, err := strconv.ParseInt(string(b[:end]), 10, 64)
	if err != nil {
		panic("pool: cannot parse goroutine id: " + err.Error())
	}
	return id
}
