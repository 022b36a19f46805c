package main

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/overlaymesh/rlnc"
	"github.com/overlaymesh/rlnc/logging"
	"github.com/overlaymesh/rlnc/qlog"
)

const (
	addr         = "127.0.0.1:4242"
	datagramSize = 1000
)

// We start a server echoing every datagram it receives,
// then connect with a client over UDP, send two datagrams, and wait for the echoes.
func main() {
	go func() { log.Fatal(echoServer()) }()

	err := clientMain()
	if err != nil {
		panic(err)
	}
}

// Start a server that echos all datagrams back to the sender
func echoServer() error {
	link, err := rlnc.ListenUDP(addr, "")
	if err != nil {
		return err
	}
	conn, err := rlnc.NewConn(link, &rlnc.Config{DatagramSize: datagramSize})
	if err != nil {
		return err
	}
	defer conn.Close()

	for {
		data, err := conn.ReceiveDatagram(context.Background())
		if err != nil {
			return err
		}
		fmt.Printf("Server: Got %s...\n", data[:10])
		if err := conn.SendDatagram(context.Background(), data); err != nil {
			return err
		}
	}
}

func clientMain() error {
	link, err := rlnc.ListenUDP("127.0.0.1:0", addr)
	if err != nil {
		return err
	}
	conn, err := rlnc.NewConn(link, &rlnc.Config{
		DatagramSize: datagramSize,
		Tracer:       func() *logging.ConnectionTracer { return qlog.DefaultConnectionTracer("client") },
	})
	if err != nil {
		return err
	}
	defer conn.Close()

	A := []byte(strings.Repeat("A", datagramSize))
	B := []byte(strings.Repeat("B", datagramSize))
	for _, d := range [][]byte{A, B} {
		if err := conn.SendDatagram(context.Background(), d); err != nil {
			return err
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for i := 0; i < 2; i++ {
		data, err := conn.ReceiveDatagram(ctx)
		if err != nil {
			return err
		}
		fmt.Printf("Client: Got %s...\n", data[:10])
	}
	return nil
}
