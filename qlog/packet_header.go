package qlog

import (
	"fmt"

	"github.com/francoispqt/gojay"
	"github.com/overlaymesh/rlnc/logging"
)

type packetHeader struct {
	logging.PacketHeader
}

func (h packetHeader) IsNil() bool { return false }
func (h packetHeader) MarshalJSONObject(enc *gojay.Encoder) {
	enc.StringKey("packet_type", h.Type.String())
	enc.IntKey("first_unseen", int(h.FirstUnseen))
	enc.IntKey("window_size", int(h.WindowSize))
	if h.Type == logging.PacketTypeCoded {
		enc.IntKey("seq", int(h.Seq))
		enc.StringKey("combination", fmt.Sprintf("%08x", h.Combination))
	}
}
