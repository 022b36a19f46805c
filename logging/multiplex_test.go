package logging

import (
	"errors"
	"net"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Tracing", func() {
	It("returns nil when there are no tracers", func() {
		Expect(NewMultiplexedConnectionTracer()).To(BeNil())
	})

	It("returns the raw tracer when there's only one tracer", func() {
		tr := &ConnectionTracer{}
		Expect(NewMultiplexedConnectionTracer(tr)).To(Equal(tr))
	})

	Context("with multiple tracers", func() {
		var (
			calls1, calls2 []string
			tracer         *ConnectionTracer
		)

		record := func(calls *[]string) *ConnectionTracer {
			return &ConnectionTracer{
				StartedConnection: func(local, remote net.Addr) { *calls = append(*calls, "started "+remote.String()) },
				SentPacket:        func(hdr *PacketHeader, size int) { *calls = append(*calls, "sent "+hdr.Type.String()) },
				ReceivedPacket:    func(hdr *PacketHeader, size int, _ bool) { *calls = append(*calls, "received "+hdr.Type.String()) },
				DroppedPacket:     func(int, PacketDropReason) { *calls = append(*calls, "dropped") },
				DeliveredDatagram: func(int) { *calls = append(*calls, "delivered") },
				AcknowledgedDatagrams: func(count int, _ Seq) {
					*calls = append(*calls, "acknowledged")
				},
				ClosedConnection: func(e error) { *calls = append(*calls, "closed "+e.Error()) },
				Debug:            func(name, msg string) { *calls = append(*calls, name+": "+msg) },
				Close:            func() { *calls = append(*calls, "close") },
			}
		}

		BeforeEach(func() {
			calls1, calls2 = nil, nil
			// the empty tracer makes sure that missing callbacks are skipped
			tracer = NewMultiplexedConnectionTracer(record(&calls1), &ConnectionTracer{}, record(&calls2))
		})

		It("forwards every event", func() {
			remote := &net.UDPAddr{IP: net.IPv4(1, 2, 3, 4), Port: 4242}
			tracer.StartedConnection(nil, remote)
			tracer.SentPacket(&PacketHeader{Type: PacketTypeCoded}, 1031)
			tracer.ReceivedPacket(&PacketHeader{Type: PacketTypeAck}, 2, false)
			tracer.DroppedPacket(3, PacketDropMalformed)
			tracer.DeliveredDatagram(1024)
			tracer.AcknowledgedDatagrams(2, 10)
			tracer.ClosedConnection(errors.New("timeout"))
			tracer.Debug("window", "full")
			tracer.Close()
			expected := []string{
				"started 1.2.3.4:4242",
				"sent coded",
				"received ack",
				"dropped",
				"delivered",
				"acknowledged",
				"closed timeout",
				"window: full",
				"close",
			}
			Expect(calls1).To(Equal(expected))
			Expect(calls2).To(Equal(expected))
		})
	})
})
