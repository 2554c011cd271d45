package blow

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID returns the numeric id from the "goroutine N [...]" header of
// the calling goroutine's stack trace. Stop uses it to recognise a call made
// from inside a callback on the loop goroutine.
func goroutineID() uint64 {
	var buf [64]byte
	b := buf[:runtime.Stack(buf[:], false)]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, err := strconv.ParseUint(string(b), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
