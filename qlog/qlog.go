// Package qlog writes connection events as newline-delimited JSON.
package qlog

import (
	"bufio"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/overlaymesh/rlnc/internal/utils"
	"github.com/overlaymesh/rlnc/logging"
)

const logDirEnv = "RLNCLOGDIR"

// Setting of this only works when rlnc internal logging is enabled
const logLevelEnv = "RLNC_LOG_LEVEL"

// NewConnectionTracer creates a tracer that writes qlog events to w.
// name identifies the local endpoint.
func NewConnectionTracer(w io.WriteCloser, name string) *logging.ConnectionTracer {
	tr := &trace{
		VantagePoint: vantagePoint{Name: name, Type: "endpoint"},
		CommonFields: commonFields{ReferenceTime: time.Now()},
	}
	wr := newWriter(w, tr)
	go wr.Run()

	return &logging.ConnectionTracer{
		StartedConnection: func(local, remote net.Addr) {
			wr.RecordEvent(time.Now(), &eventConnectionStarted{Local: local, Remote: remote})
		},
		SentPacket: func(hdr *logging.PacketHeader, size int) {
			wr.RecordEvent(time.Now(), &eventPacketSent{Header: packetHeader{*hdr}, Size: size})
		},
		ReceivedPacket: func(hdr *logging.PacketHeader, size int, useful bool) {
			wr.RecordEvent(time.Now(), &eventPacketReceived{Header: packetHeader{*hdr}, Size: size, Useful: useful})
		},
		DroppedPacket: func(size int, reason logging.PacketDropReason) {
			wr.RecordEvent(time.Now(), &eventPacketDropped{Size: size, Reason: packetDropReason(reason)})
		},
		DeliveredDatagram: func(size int) {
			wr.RecordEvent(time.Now(), &eventDatagramDelivered{Size: size})
		},
		AcknowledgedDatagrams: func(count int, windowStart logging.Seq) {
			wr.RecordEvent(time.Now(), &eventDatagramsAcked{Count: count, WindowStart: int(windowStart)})
		},
		ClosedConnection: func(e error) {
			var reason string
			if e != nil {
				reason = e.Error()
			}
			wr.RecordEvent(time.Now(), &eventConnectionClosed{Reason: reason})
		},
		Debug: func(name, msg string) {
			wr.RecordEvent(time.Now(), &eventGeneric{name: name, msg: msg})
		},
		Close: func() { wr.Close() },
	}
}

// DefaultConnectionTracer creates a qlog file in the directory specified by the RLNCLOGDIR environment variable.
// File names are <name>_<time>.qlog.
// Returns nil if RLNCLOGDIR is not set.
func DefaultConnectionTracer(name string) *logging.ConnectionTracer {
	dir := os.Getenv(logDirEnv)
	if dir == "" {
		return nil
	}
	t, err := NewFileConnectionTracer(dir, name)
	if err != nil {
		log.Println(err)
		return nil
	}
	return t
}

// NewFileConnectionTracer creates a tracer writing to a new qlog file in dir.
// The directory is created if it doesn't exist yet.
func NewFileConnectionTracer(dir, name string) (*logging.ConnectionTracer, error) {
	f, err := createLogFile(dir, name)
	if err != nil {
		return nil, err
	}
	if utils.DefaultLogger.Debug() {
		utils.DefaultLogger.Debugf("writing qlog to %s (set %s to change logging)", f.Name(), logLevelEnv)
	}
	return NewConnectionTracer(newBufferedWriteCloser(bufio.NewWriter(f), f), name), nil
}

func createLogFile(dir, name string) (*os.File, error) {
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create qlog dir %s: %w", dir, err)
		}
	}
	path := filepath.Join(dir, fmt.Sprintf("%s_%s.qlog", name, time.Now().Format("20060102T150405.000")))
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create qlog file %s: %w", path, err)
	}
	return f, nil
}

type bufferedWriteCloser struct {
	*bufio.Writer
	io.Closer
}

// newBufferedWriteCloser creates an io.WriteCloser from a bufio.Writer and an io.Closer
func newBufferedWriteCloser(writer *bufio.Writer, closer io.Closer) io.WriteCloser {
	return &bufferedWriteCloser{
		Writer: writer,
		Closer: closer,
	}
}

func (h bufferedWriteCloser) Close() error {
	if err := h.Writer.Flush(); err != nil {
		return err
	}
	return h.Closer.Close()
}
