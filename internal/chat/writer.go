package chat

import (
	"bufio"
	"net"
	"time"
)

// StartOutboundWriter drains out onto conn until out is closed. Each write is
// bounded by timeout. After the first failure remaining records are discarded
// so producers never wait on a dead peer. The returned channel closes when
// the goroutine exits.
func StartOutboundWriter(conn net.Conn, out <-chan []byte, timeout time.Duration) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		w := bufio.NewWriter(conn)
		failed := false
		for msg := range out {
			if failed {
				continue
			}
			if timeout > 0 {
				_ = conn.SetWriteDeadline(time.Now().Add(timeout))
			}
			if _, err := w.Write(msg); err != nil {
				failed = true
				continue
			}
			if err := w.Flush(); err != nil {
				failed = true
			}
		}
	}()
	return done
}
