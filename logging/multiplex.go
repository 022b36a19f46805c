package logging

import "net"

// NewMultiplexedConnectionTracer creates a new connection tracer that multiplexes events to multiple tracers.
func NewMultiplexedConnectionTracer(tracers ...*ConnectionTracer) *ConnectionTracer {
	if len(tracers) == 0 {
		return nil
	}
	if len(tracers) == 1 {
		return tracers[0]
	}
	return &ConnectionTracer{
		StartedConnection: func(local, remote net.Addr) {
			for _, t := range tracers {
				if t.StartedConnection != nil {
					t.StartedConnection(local, remote)
				}
			}
		},
		SentPacket: func(hdr *PacketHeader, size int) {
			for _, t := range tracers {
				if t.SentPacket != nil {
					t.SentPacket(hdr, size)
				}
			}
		},
		ReceivedPacket: func(hdr *PacketHeader, size int, useful bool) {
			for _, t := range tracers {
				if t.ReceivedPacket != nil {
					t.ReceivedPacket(hdr, size, useful)
				}
			}
		},
		DroppedPacket: func(size int, reason PacketDropReason) {
			for _, t := range tracers {
				if t.DroppedPacket != nil {
					t.DroppedPacket(size, reason)
				}
			}
		},
		DeliveredDatagram: func(size int) {
			for _, t := range tracers {
				if t.DeliveredDatagram != nil {
					t.DeliveredDatagram(size)
				}
			}
		},
		AcknowledgedDatagrams: func(count int, windowStart Seq) {
			for _, t := range tracers {
				if t.AcknowledgedDatagrams != nil {
					t.AcknowledgedDatagrams(count, windowStart)
				}
			}
		},
		ClosedConnection: func(e error) {
			for _, t := range tracers {
				if t.ClosedConnection != nil {
					t.ClosedConnection(e)
				}
			}
		},
		Debug: func(name, msg string) {
			for _, t := range tracers {
				if t.Debug != nil {
					t.Debug(name, msg)
				}
			}
		},
		Close: func() {
			for _, t := range tracers {
				if t.Close != nil {
					t.Close()
				}
			}
		},
	}
}
