package rlnc

import (
	"context"
	"encoding/binary"
	"errors"
	"net"
	"sync/atomic"
	"time"

	"github.com/overlaymesh/rlnc/internal/protocol"
	"github.com/overlaymesh/rlnc/internal/wire"
	"github.com/overlaymesh/rlnc/logging"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/mock/gomock"
)

func makeDatagram(i, size int) []byte {
	d := make([]byte, size)
	binary.BigEndian.PutUint32(d, uint32(i))
	for j := 4; j < size; j++ {
		d[j] = byte(i * j)
	}
	return d
}

func codedPacket(seq protocol.Seq, payload []byte) []byte {
	h := &wire.Header{Seq: seq, Combination: protocol.IdentityCombination}
	return append(h.Append(nil), payload...)
}

var _ = Describe("Conn", func() {
	// newMockLink returns a link that reads from packets, until it is closed.
	newMockLink := func(packets <-chan []byte) *MockLink {
		closed := make(chan struct{})
		mlink := NewMockLink(mockCtrl)
		mlink.EXPECT().ReadPacket(gomock.Any()).DoAndReturn(func(b []byte) (int, error) {
			select {
			case p := <-packets:
				return copy(b, p), nil
			case <-closed:
				return 0, net.ErrClosed
			}
		}).AnyTimes()
		mlink.EXPECT().Close().Do(func() error {
			close(closed)
			return nil
		})
		return mlink
	}

	It("rejects invalid configs", func() {
		_, err := NewConn(NewMockLink(mockCtrl), &Config{MaxWindowSize: 3, DatagramSize: 8})
		Expect(err).To(MatchError(ContainSubstring("invalid MaxWindowSize")))
	})

	It("rejects datagrams of the wrong size", func() {
		mlink := newMockLink(make(chan []byte))
		conn, err := NewConn(mlink, &Config{DatagramSize: 8})
		Expect(err).ToNot(HaveOccurred())
		Expect(conn.SendDatagram(context.Background(), make([]byte, 7))).To(MatchError(ErrDatagramSize))
		Expect(conn.Close()).To(Succeed())
	})

	It("closes", func() {
		mlink := newMockLink(make(chan []byte))
		conn, err := NewConn(mlink, &Config{DatagramSize: 8})
		Expect(err).ToNot(HaveOccurred())
		errChan := make(chan error, 1)
		go func() {
			defer GinkgoRecover()
			_, err := conn.ReceiveDatagram(context.Background())
			errChan <- err
		}()
		Consistently(errChan, 50*time.Millisecond).ShouldNot(Receive())
		Expect(conn.Close()).To(Succeed())
		Eventually(conn.Done()).Should(BeClosed())
		Eventually(errChan).Should(Receive(MatchError(ErrConnClosed)))
		Expect(conn.SendDatagram(context.Background(), make([]byte, 8))).To(MatchError(ErrConnClosed))
		// closing again is a no-op
		Expect(conn.Close()).To(Succeed())
	})

	It("acknowledges received packets and delivers the datagram", func() {
		packets := make(chan []byte, 1)
		mlink := newMockLink(packets)
		written := make(chan []byte, 10)
		mlink.EXPECT().WritePacket(gomock.Any()).DoAndReturn(func(b []byte) error {
			written <- append([]byte{}, b...)
			return nil
		}).AnyTimes()

		var delivered, sent atomic.Int32
		received := make(chan bool, 1)
		tracer := &logging.ConnectionTracer{
			SentPacket: func(hdr *logging.PacketHeader, size int) {
				if hdr.Type == logging.PacketTypeAck && size == protocol.AckFrameLen {
					sent.Add(1)
				}
			},
			ReceivedPacket: func(hdr *logging.PacketHeader, _ int, useful bool) {
				received <- useful && hdr.Type == logging.PacketTypeCoded && hdr.Seq == 0
			},
			DeliveredDatagram: func(int) { delivered.Add(1) },
		}
		conn, err := NewConn(mlink, &Config{
			MaxWindowSize: 4,
			DatagramSize:  4,
			PacketRate:    1000,
			Tracer:        func() *logging.ConnectionTracer { return tracer },
		})
		Expect(err).ToNot(HaveOccurred())
		defer conn.Close()

		packets <- codedPacket(0, []byte("foo!"))
		Eventually(received).Should(Receive(BeTrue()))
		d, err := conn.ReceiveDatagram(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(d).To(Equal([]byte("foo!")))
		Eventually(written).Should(Receive(Equal([]byte{1, 8})))
		Expect(delivered.Load()).To(BeEquivalentTo(1))
		Expect(sent.Load()).To(BeEquivalentTo(1))
		// nothing left to acknowledge
		Consistently(written, 50*time.Millisecond).ShouldNot(Receive())
		Expect(conn.Stats().DatagramsDelivered).To(BeEquivalentTo(1))
		Expect(conn.Stats().AcksSent).To(BeEquivalentTo(1))
	})

	It("drops malformed packets", func() {
		packets := make(chan []byte, 1)
		mlink := newMockLink(packets)
		dropped := make(chan logging.PacketDropReason, 1)
		tracer := &logging.ConnectionTracer{
			DroppedPacket: func(_ int, reason logging.PacketDropReason) { dropped <- reason },
		}
		conn, err := NewConn(mlink, &Config{
			DatagramSize: 8,
			Tracer:       func() *logging.ConnectionTracer { return tracer },
		})
		Expect(err).ToNot(HaveOccurred())
		packets <- []byte{1, 2, 3}
		Eventually(dropped).Should(Receive(Equal(logging.PacketDropMalformed)))
		Eventually(func() uint64 { return conn.Stats().MalformedPackets }).Should(BeEquivalentTo(1))
		Consistently(conn.Done(), 50*time.Millisecond).ShouldNot(BeClosed())
		Expect(conn.Close()).To(Succeed())
	})

	It("closes the connection on a protocol violation", func() {
		packets := make(chan []byte, 2)
		mlink := newMockLink(packets)
		mlink.EXPECT().WritePacket(gomock.Any()).AnyTimes()
		var closeErr atomic.Value
		tracer := &logging.ConnectionTracer{
			ClosedConnection: func(e error) { closeErr.Store(e) },
		}
		conn, err := NewConn(mlink, &Config{
			MaxWindowSize: 1,
			DatagramSize:  4,
			Tracer:        func() *logging.ConnectionTracer { return tracer },
		})
		Expect(err).ToNot(HaveOccurred())

		packets <- codedPacket(0, []byte{1, 1, 1, 1})
		packets <- codedPacket(2, []byte{2, 2, 2, 2})
		Eventually(conn.Done()).Should(BeClosed())

		// datagrams decoded before the error are still delivered
		d, err := conn.ReceiveDatagram(context.Background())
		Expect(err).ToNot(HaveOccurred())
		Expect(d).To(Equal([]byte{1, 1, 1, 1}))
		_, err = conn.ReceiveDatagram(context.Background())
		var perr *ProtocolViolationError
		Expect(errors.As(err, &perr)).To(BeTrue())
		Expect(perr.Incoming).To(Equal(protocol.Seq(2)))

		Expect(errors.As(conn.Close(), &perr)).To(BeTrue())
		Expect(closeErr.Load()).To(Equal(perr))
	})

	Context("over a pipe", func() {
		const datagramSize = 64

		var clientLink, serverLink Link

		BeforeEach(func() {
			clientLink, serverLink = NewPipe()
		})

		newPair := func(config *Config) (*Conn, *Conn) {
			client, err := NewConn(clientLink, config)
			Expect(err).ToNot(HaveOccurred())
			conf := config.Clone()
			conf.Seed++
			server, err := NewConn(serverLink, conf)
			Expect(err).ToNot(HaveOccurred())
			return client, server
		}

		send := func(conn *Conn, num int) <-chan error {
			errChan := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				for i := 0; i < num; i++ {
					if err := conn.SendDatagram(context.Background(), makeDatagram(i, datagramSize)); err != nil {
						errChan <- err
						return
					}
				}
				errChan <- nil
			}()
			return errChan
		}

		receive := func(conn *Conn, num int) <-chan error {
			errChan := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				for i := 0; i < num; i++ {
					d, err := conn.ReceiveDatagram(ctx)
					if err != nil {
						errChan <- err
						return
					}
					Expect(d).To(Equal(makeDatagram(i, datagramSize)))
				}
				errChan <- nil
			}()
			return errChan
		}

		It("transfers datagrams in both directions", func() {
			var sentPackets atomic.Int64
			config := &Config{
				MaxWindowSize: 16,
				DatagramSize:  datagramSize,
				PacketRate:    20000,
				PacketBurst:   8,
				Seed:          1,
				Tracer: func() *logging.ConnectionTracer {
					return &logging.ConnectionTracer{
						SentPacket: func(*logging.PacketHeader, int) { sentPackets.Add(1) },
					}
				},
			}
			client, server := newPair(config)
			defer client.Close()
			defer server.Close()

			const num = 300
			clientSent, serverSent := send(client, num), send(server, num)
			clientRcvd, serverRcvd := receive(client, num), receive(server, num)
			Eventually(clientSent, 10*time.Second).Should(Receive(BeNil()))
			Eventually(serverSent, 10*time.Second).Should(Receive(BeNil()))
			Eventually(clientRcvd, 10*time.Second).Should(Receive(BeNil()))
			Eventually(serverRcvd, 10*time.Second).Should(Receive(BeNil()))

			Expect(client.Stats().DatagramsDelivered).To(BeEquivalentTo(num))
			Expect(server.Stats().DatagramsDelivered).To(BeEquivalentTo(num))
			Expect(sentPackets.Load()).To(BeNumerically(">=", 2*num))
		})

		It("transfers datagrams over a lossy link", func() {
			lossy := NewLossyLink(clientLink, 0.2, 7)
			clientLink = lossy
			serverLink = NewLossyLink(serverLink, 0.2, 8)
			client, server := newPair(&Config{
				MaxWindowSize: 8,
				DatagramSize:  datagramSize,
				PacketRate:    20000,
				Seed:          3,
			})
			defer client.Close()
			defer server.Close()

			const num = 200
			sent := send(client, num)
			rcvd := receive(server, num)
			Eventually(sent, 10*time.Second).Should(Receive(BeNil()))
			Eventually(rcvd, 10*time.Second).Should(Receive(BeNil()))
			Expect(lossy.Dropped()).ToNot(BeZero())
			stats := server.Stats()
			Expect(stats.UselessPackets + stats.DatagramsDelivered).To(BeNumerically("<=", stats.PacketsReceived))
		})

		It("stops delivering while the application doesn't read", func() {
			client, server := newPair(&Config{
				MaxWindowSize:   4,
				DatagramSize:    datagramSize,
				PacketRate:      10000,
				MaxReceiveQueue: 2,
				Seed:            5,
			})
			defer client.Close()
			defer server.Close()

			const num = 20
			sent := send(client, num)
			Eventually(func() uint64 { return server.Stats().DatagramsDelivered }).Should(BeEquivalentTo(2))
			Consistently(func() uint64 { return server.Stats().DatagramsDelivered }, 100*time.Millisecond).Should(BeEquivalentTo(2))
			Expect(client.Stats().DatagramsReleased).To(BeNumerically("<", num))

			rcvd := receive(server, num)
			Eventually(rcvd, 5*time.Second).Should(Receive(BeNil()))
			Eventually(sent).Should(Receive(BeNil()))
		})

		It("advertises a reopened window again if the update is lost", func() {
			var closed, reopened atomic.Int32
			tracer := func() *logging.ConnectionTracer {
				return &logging.ConnectionTracer{
					Debug: func(name, _ string) {
						switch name {
						case "receive_window_closed":
							closed.Add(1)
						case "receive_window_reopened":
							reopened.Add(1)
						}
					},
				}
			}
			clientLink = NewLossyLink(clientLink, 0.4, 11)
			serverLink = NewLossyLink(serverLink, 0.4, 12)
			client, server := newPair(&Config{
				MaxWindowSize:   1,
				DatagramSize:    datagramSize,
				PacketRate:      20000,
				MaxReceiveQueue: 1,
				Seed:            9,
				Tracer:          tracer,
			})
			defer client.Close()
			defer server.Close()

			const num = 300
			sent := send(client, num)
			rcvd := make(chan error, 1)
			go func() {
				defer GinkgoRecover()
				ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
				defer cancel()
				for i := 0; i < num; i++ {
					// a slow reader keeps closing the receive window
					time.Sleep(time.Millisecond)
					d, err := server.ReceiveDatagram(ctx)
					if err != nil {
						rcvd <- err
						return
					}
					Expect(d).To(Equal(makeDatagram(i, datagramSize)))
				}
				rcvd <- nil
			}()
			Eventually(rcvd, 25*time.Second).Should(Receive(BeNil()))
			Eventually(sent).Should(Receive(BeNil()))
			Expect(closed.Load()).ToNot(BeZero())
			Expect(reopened.Load()).ToNot(BeZero())
		})
	})
})
