package wire

import (
	"errors"

	"github.com/overlaymesh/rlnc/internal/protocol"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Header", func() {
	const datagramSize = 4

	Context("writing", func() {
		It("writes the combination little-endian", func() {
			h := &Header{
				AckFrame:    AckFrame{FirstUnseen: 0x12, WindowSize: 7},
				Seq:         0xfe,
				Combination: 0xa0000001,
			}
			Expect(h.Append(nil)).To(Equal([]byte{0x12, 7, 0xfe, 0x01, 0x00, 0x00, 0xa0}))
			Expect(h.Length()).To(Equal(protocol.HeaderLen))
		})

		It("writes in place", func() {
			h := &Header{
				AckFrame:    AckFrame{FirstUnseen: 1, WindowSize: 2},
				Seq:         3,
				Combination: protocol.IdentityCombination,
			}
			b := make([]byte, protocol.HeaderLen+datagramSize)
			h.Write(b)
			Expect(b[:protocol.HeaderLen]).To(Equal(h.Append(nil)))
			Expect(b[protocol.HeaderLen:]).To(Equal(make([]byte, datagramSize)))
		})

		It("writes ack frames", func() {
			f := &AckFrame{FirstUnseen: 200, WindowSize: 32}
			Expect(f.Append([]byte{0xff})).To(Equal([]byte{0xff, 200, 32}))
			Expect(f.Length()).To(Equal(protocol.AckFrameLen))
		})
	})

	Context("parsing", func() {
		It("parses ack frames", func() {
			p, err := ParsePacket([]byte{9, 16}, datagramSize)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Type).To(Equal(protocol.PacketTypeAck))
			Expect(p.Header.FirstUnseen).To(Equal(protocol.Seq(9)))
			Expect(p.Header.WindowSize).To(BeEquivalentTo(16))
			Expect(p.Payload).To(BeNil())
			Expect(p.Length()).To(Equal(protocol.AckFrameLen))
		})

		It("parses coded packets", func() {
			h := &Header{
				AckFrame:    AckFrame{FirstUnseen: 42, WindowSize: 3},
				Seq:         255,
				Combination: 0xc0000000,
			}
			data := append(h.Append(nil), 1, 2, 3, 4)
			p, err := ParsePacket(data, datagramSize)
			Expect(err).ToNot(HaveOccurred())
			Expect(p.Type).To(Equal(protocol.PacketTypeCoded))
			Expect(p.Header).To(Equal(*h))
			Expect(p.Payload).To(Equal([]byte{1, 2, 3, 4}))
			Expect(p.Length()).To(Equal(len(data)))
			Expect(p.Append(nil)).To(Equal(data))
		})

		It("aliases the payload", func() {
			data := make([]byte, protocol.HeaderLen+datagramSize)
			p, err := ParsePacket(data, datagramSize)
			Expect(err).ToNot(HaveOccurred())
			data[protocol.HeaderLen] = 0x55
			Expect(p.Payload[0]).To(BeEquivalentTo(0x55))
		})

		It("rejects packets of any other length", func() {
			for _, l := range []int{0, 1, 3, protocol.HeaderLen, protocol.HeaderLen + datagramSize - 1, protocol.HeaderLen + datagramSize + 1} {
				_, err := ParsePacket(make([]byte, l), datagramSize)
				Expect(errors.Is(err, ErrMalformedPacket)).To(BeTrue(), "length %d", l)
			}
		})
	})

	It("hands out full sized buffers", func() {
		b := GetPacketBuffer()
		Expect(b.Data).To(HaveLen(MaxPacketBufferSize))
		b.Data = b.Data[:10]
		PutPacketBuffer(b)
		Expect(GetPacketBuffer().Data).To(HaveLen(MaxPacketBufferSize))
	})

	It("panics when putting a foreign buffer", func() {
		Expect(func() { PutPacketBuffer(&PacketBuffer{Data: make([]byte, 10)}) }).To(Panic())
	})
})
