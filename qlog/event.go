package qlog

import (
	"net"
	"time"

	"github.com/francoispqt/gojay"
	"github.com/overlaymesh/rlnc/logging"
)

func milliseconds(dur time.Duration) float64 { return float64(dur.Nanoseconds()) / 1e6 }

type eventDetails interface {
	Category() category
	Name() string
	gojay.MarshalerJSONObject
}

type event struct {
	RelativeTime time.Duration
	eventDetails
}

var _ gojay.MarshalerJSONObject = event{}

func (e event) IsNil() bool { return false }
func (e event) MarshalJSONObject(enc *gojay.Encoder) {
	enc.Float64Key("time", milliseconds(e.RelativeTime))
	enc.StringKey("name", e.Category().String()+":"+e.Name())
	enc.ObjectKey("data", e.eventDetails)
}

type eventConnectionStarted struct {
	Local, Remote net.Addr
}

func (e eventConnectionStarted) Category() category { return categoryConnectivity }
func (e eventConnectionStarted) Name() string       { return "connection_started" }
func (e eventConnectionStarted) IsNil() bool        { return false }

func (e eventConnectionStarted) MarshalJSONObject(enc *gojay.Encoder) {
	if e.Local != nil {
		enc.StringKey("src", e.Local.String())
	}
	if e.Remote != nil {
		enc.StringKey("dst", e.Remote.String())
	}
}

type eventConnectionClosed struct {
	Reason string
}

func (e eventConnectionClosed) Category() category { return categoryConnectivity }
func (e eventConnectionClosed) Name() string       { return "connection_closed" }
func (e eventConnectionClosed) IsNil() bool        { return false }

func (e eventConnectionClosed) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKeyOmitEmpty("reason", e.Reason)
}

type eventPacketSent struct {
	Header packetHeader
	Size   int
}

func (e eventPacketSent) Category() category { return categoryTransport }
func (e eventPacketSent) Name() string       { return "packet_sent" }
func (e eventPacketSent) IsNil() bool        { return false }

func (e eventPacketSent) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("header", e.Header)
	enc.IntKey("size", e.Size)
}

type eventPacketReceived struct {
	Header packetHeader
	Size   int
	Useful bool
}

func (e eventPacketReceived) Category() category { return categoryTransport }
func (e eventPacketReceived) Name() string       { return "packet_received" }
func (e eventPacketReceived) IsNil() bool        { return false }

func (e eventPacketReceived) MarshalJSONObject(enc *gojay.Encoder) {
	enc.ObjectKey("header", e.Header)
	enc.IntKey("size", e.Size)
	if e.Header.Type == logging.PacketTypeCoded {
		enc.BoolKey("useful", e.Useful)
	}
}

type eventPacketDropped struct {
	Size   int
	Reason packetDropReason
}

func (e eventPacketDropped) Category() category { return categoryTransport }
func (e eventPacketDropped) Name() string       { return "packet_dropped" }
func (e eventPacketDropped) IsNil() bool        { return false }

func (e eventPacketDropped) MarshalJSONObject(enc *gojay.Encoder) {
	enc.IntKey("size", e.Size)
	enc.StringKey("trigger", e.Reason.String())
}

type eventDatagramDelivered struct {
	Size int
}

func (e eventDatagramDelivered) Category() category { return categoryTransport }
func (e eventDatagramDelivered) Name() string       { return "datagram_delivered" }
func (e eventDatagramDelivered) IsNil() bool        { return false }

func (e eventDatagramDelivered) MarshalJSONObject(enc *gojay.Encoder) {
	enc.IntKey("size", e.Size)
}

type eventDatagramsAcked struct {
	Count       int
	WindowStart int
}

func (e eventDatagramsAcked) Category() category { return categoryRecovery }
func (e eventDatagramsAcked) Name() string       { return "datagrams_acked" }
func (e eventDatagramsAcked) IsNil() bool        { return false }

func (e eventDatagramsAcked) MarshalJSONObject(enc *gojay.Encoder) {
	enc.IntKey("count", e.Count)
	enc.IntKey("window_start", e.WindowStart)
}

type eventGeneric struct {
	name string
	msg  string
}

func (e eventGeneric) Category() category { return categoryTransport }
func (e eventGeneric) Name() string       { return e.name }
func (e eventGeneric) IsNil() bool        { return false }

func (e eventGeneric) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("details", e.msg)
}
