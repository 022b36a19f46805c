package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/overlaymesh/rlnc"
)

const (
	datagramSize = 64
	numDatagrams = 1000
	lossRate     = 0.2
)

// Two connections exchange datagrams over an in-memory link that loses every fifth packet.
func main() {
	a, b := rlnc.NewPipe()
	linkA := rlnc.NewLossyLink(a, lossRate, 1)
	linkB := rlnc.NewLossyLink(b, lossRate, 2)

	conf := &rlnc.Config{DatagramSize: datagramSize, PacketRate: 20000}
	sender, err := rlnc.NewConn(linkA, conf)
	if err != nil {
		log.Fatal(err)
	}
	defer sender.Close()
	receiver, err := rlnc.NewConn(linkB, conf)
	if err != nil {
		log.Fatal(err)
	}
	defer receiver.Close()

	go func() {
		for i := 0; i < numDatagrams; i++ {
			d := make([]byte, datagramSize)
			copy(d, fmt.Sprintf("datagram %d", i))
			if err := sender.SendDatagram(context.Background(), d); err != nil {
				log.Fatal(err)
			}
		}
	}()

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := 0; i < numDatagrams; i++ {
		d, err := receiver.ReceiveDatagram(ctx)
		if err != nil {
			log.Fatal(err)
		}
		if expected := fmt.Sprintf("datagram %d", i); string(d[:len(expected)]) != expected {
			log.Fatalf("expected %q, got %q", expected, d)
		}
	}

	stats := sender.Stats()
	fmt.Printf("Received %d datagrams in order in %s\n", numDatagrams, time.Since(start))
	fmt.Printf("Sender: %d coded packets, %d acks, %d packets lost\n", stats.PacketsSent, stats.AcksSent, linkA.Dropped())
	rstats := receiver.Stats()
	fmt.Printf("Receiver: %d packets received, %d without new information\n", rstats.PacketsReceived, rstats.UselessPackets)
}
