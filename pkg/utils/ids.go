package utils

import (
	"fmt"
	"sync/atomic"
	"time"
)

var idSeq uint64

// genID builds a "<prefix>-<unixnano>-<seq>" identifier. The timestamp
// keeps ids roughly sortable by creation time; the atomic sequence breaks
// same-nanosecond collisions within one process.
func genID(prefix string) string {
	n := time.Now().UTC().UnixNano()
	s := atomic.AddUint64(&idSeq, 1)
	return fmt.Sprintf("%s-%d-%d", prefix, n, s)
}

// GenUserID generates a unique user id.
func GenUserID() string { return genID("usr") }

// GenConvID generates a unique conversation id.
func GenConvID() string { return genID("conv") }

// GenMsgID generates a unique message id.
func GenMsgID() string { return genID("msg") }
