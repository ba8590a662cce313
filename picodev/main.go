// Command picodev simulates the Pico's DATA CDC endpoint over TCP: it
// beacons PICO_READY, executes HID command lines against an in-memory state,
// and replies ACK/NACK exactly like the firmware. Point the host at it with
// a TCP-to-PTY bridge when no hardware is at hand.
package main

import (
	"context"
	"errors"
	"github.com/allape/picolink/logger"
	"github.com/allape/picolink/pico/device"
	"net"
	"os"
	"os/signal"
	"syscall"
)

var log = logger.New("[picodev]")

const DefaultAddr = "127.0.0.1:9789"

func main() {
	addr := DefaultAddr
	if len(os.Args) > 1 {
		addr = os.Args[1]
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalln("listen:", err)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	log.Println("simulated pico listening on", addr)

	for {
		conn, err := listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			log.Println("accept:", err)
			continue
		}

		go func(conn net.Conn) {
			defer func() {
				_ = conn.Close()
			}()
			log.Println("host connected:", conn.RemoteAddr())
			err := device.Serve(ctx, conn, device.NewStateHID())
			log.Println("host disconnected:", conn.RemoteAddr(), err)
		}(conn)
	}
}
