package qlog

import (
	"bytes"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/overlaymesh/rlnc/logging"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

type nopWriteCloserImpl struct{ *bytes.Buffer }

func (nopWriteCloserImpl) Close() error { return nil }

type entry struct {
	Time  time.Duration
	Name  string
	Event map[string]interface{}
}

var _ = Describe("Tracing", func() {
	var (
		tracer *logging.ConnectionTracer
		buf    *bytes.Buffer
	)

	BeforeEach(func() {
		buf = &bytes.Buffer{}
		tracer = NewConnectionTracer(nopWriteCloserImpl{Buffer: buf}, "client")
	})

	exportAndParse := func() []entry {
		tracer.Close()
		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		Expect(len(lines)).To(BeNumerically(">=", 1))

		var header map[string]interface{}
		Expect(json.Unmarshal([]byte(lines[0]), &header)).To(Succeed())
		Expect(header).To(HaveKeyWithValue("qlog_format", "NDJSON"))
		Expect(header).To(HaveKey("trace"))
		trace := header["trace"].(map[string]interface{})
		Expect(trace).To(HaveKey("vantage_point"))
		Expect(trace["vantage_point"]).To(HaveKeyWithValue("name", "client"))

		var entries []entry
		for _, l := range lines[1:] {
			var m map[string]interface{}
			Expect(json.Unmarshal([]byte(l), &m)).To(Succeed())
			Expect(m).To(HaveKey("time"))
			Expect(m).To(HaveKey("name"))
			Expect(m).To(HaveKey("data"))
			entries = append(entries, entry{
				Time:  time.Duration(m["time"].(float64) * 1e6),
				Name:  m["name"].(string),
				Event: m["data"].(map[string]interface{}),
			})
		}
		return entries
	}

	exportAndParseSingle := func() entry {
		entries := exportAndParse()
		Expect(entries).To(HaveLen(1))
		return entries[0]
	}

	It("exports a trace that has a header", func() {
		Expect(exportAndParse()).To(BeEmpty())
	})

	It("records connection starts", func() {
		tracer.StartedConnection(
			&net.UDPAddr{IP: net.IPv4(192, 168, 13, 37), Port: 42},
			&net.UDPAddr{IP: net.IPv4(192, 168, 12, 34), Port: 24},
		)
		entry := exportAndParseSingle()
		Expect(entry.Time).To(BeNumerically("~", 0, time.Second))
		Expect(entry.Name).To(Equal("connectivity:connection_started"))
		Expect(entry.Event).To(HaveKeyWithValue("src", "192.168.13.37:42"))
		Expect(entry.Event).To(HaveKeyWithValue("dst", "192.168.12.34:24"))
	})

	It("records sent coded packets", func() {
		tracer.SentPacket(&logging.PacketHeader{
			Type:        logging.PacketTypeCoded,
			FirstUnseen: 3,
			WindowSize:  29,
			Seq:         250,
			Combination: 0xc0000000,
		}, 1031)
		entry := exportAndParseSingle()
		Expect(entry.Name).To(Equal("transport:packet_sent"))
		Expect(entry.Event).To(HaveKeyWithValue("size", float64(1031)))
		hdr := entry.Event["header"].(map[string]interface{})
		Expect(hdr).To(HaveKeyWithValue("packet_type", "coded"))
		Expect(hdr).To(HaveKeyWithValue("first_unseen", float64(3)))
		Expect(hdr).To(HaveKeyWithValue("window_size", float64(29)))
		Expect(hdr).To(HaveKeyWithValue("seq", float64(250)))
		Expect(hdr).To(HaveKeyWithValue("combination", "c0000000"))
	})

	It("records received ack frames", func() {
		tracer.ReceivedPacket(&logging.PacketHeader{Type: logging.PacketTypeAck, FirstUnseen: 7, WindowSize: 32}, 2, false)
		entry := exportAndParseSingle()
		Expect(entry.Name).To(Equal("transport:packet_received"))
		Expect(entry.Event).ToNot(HaveKey("useful"))
		hdr := entry.Event["header"].(map[string]interface{})
		Expect(hdr).To(HaveKeyWithValue("packet_type", "ack"))
		Expect(hdr).ToNot(HaveKey("seq"))
		Expect(hdr).ToNot(HaveKey("combination"))
	})

	It("records whether a received combination was useful", func() {
		tracer.ReceivedPacket(&logging.PacketHeader{Type: logging.PacketTypeCoded, Combination: 0x80000000}, 1031, true)
		entry := exportAndParseSingle()
		Expect(entry.Event).To(HaveKeyWithValue("useful", true))
	})

	It("records dropped packets", func() {
		tracer.DroppedPacket(5, logging.PacketDropMalformed)
		entry := exportAndParseSingle()
		Expect(entry.Name).To(Equal("transport:packet_dropped"))
		Expect(entry.Event).To(HaveKeyWithValue("size", float64(5)))
		Expect(entry.Event).To(HaveKeyWithValue("trigger", "malformed"))
	})

	It("records deliveries and acknowledgements", func() {
		tracer.DeliveredDatagram(1024)
		tracer.AcknowledgedDatagrams(3, 17)
		entries := exportAndParse()
		Expect(entries).To(HaveLen(2))
		Expect(entries[0].Name).To(Equal("transport:datagram_delivered"))
		Expect(entries[0].Event).To(HaveKeyWithValue("size", float64(1024)))
		Expect(entries[1].Name).To(Equal("recovery:datagrams_acked"))
		Expect(entries[1].Event).To(HaveKeyWithValue("count", float64(3)))
		Expect(entries[1].Event).To(HaveKeyWithValue("window_start", float64(17)))
	})

	It("records connection closes", func() {
		tracer.ClosedConnection(errors.New("link closed"))
		entry := exportAndParseSingle()
		Expect(entry.Name).To(Equal("connectivity:connection_closed"))
		Expect(entry.Event).To(HaveKeyWithValue("reason", "link closed"))
	})

	It("records debug events", func() {
		tracer.Debug("window_full", "16 datagrams queued")
		entry := exportAndParseSingle()
		Expect(entry.Name).To(Equal("transport:window_full"))
		Expect(entry.Event).To(HaveKeyWithValue("details", "16 datagrams queued"))
	})

	Context("default tracer", func() {
		AfterEach(func() {
			os.Unsetenv(logDirEnv)
		})

		It("doesn't trace without a log dir", func() {
			os.Unsetenv(logDirEnv)
			Expect(DefaultConnectionTracer("server")).To(BeNil())
		})

		It("writes a file to the log dir", func() {
			dir := filepath.Join(GinkgoT().TempDir(), "qlogs")
			os.Setenv(logDirEnv, dir)
			tr := DefaultConnectionTracer("server")
			Expect(tr).ToNot(BeNil())
			tr.DeliveredDatagram(10)
			tr.Close()
			files, err := os.ReadDir(dir)
			Expect(err).ToNot(HaveOccurred())
			Expect(files).To(HaveLen(1))
			Expect(files[0].Name()).To(HavePrefix("server_"))
			Expect(files[0].Name()).To(HaveSuffix(".qlog"))
			data, err := os.ReadFile(filepath.Join(dir, files[0].Name()))
			Expect(err).ToNot(HaveOccurred())
			Expect(string(data)).To(ContainSubstring("datagram_delivered"))
		})
	})
})
