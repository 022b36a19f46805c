package qlog

import (
	"fmt"

	"github.com/overlaymesh/rlnc/logging"
)

type owner uint8

const (
	ownerLocal owner = iota
	ownerRemote
)

func (o owner) String() string {
	switch o {
	case ownerLocal:
		return "local"
	case ownerRemote:
		return "remote"
	default:
		return "unknown owner"
	}
}

type packetDropReason logging.PacketDropReason

func (r packetDropReason) String() string {
	switch logging.PacketDropReason(r) {
	case logging.PacketDropMalformed:
		return "malformed"
	case logging.PacketDropLinkLoss:
		return "link_loss"
	case logging.PacketDropReceiveQueueFull:
		return "receive_queue_full"
	case logging.PacketDropUnknown:
		return "unknown"
	default:
		return fmt.Sprintf("unknown drop reason: %d", r)
	}
}

type category uint8

const (
	categoryConnectivity category = iota
	categoryTransport
	categoryRecovery
)

func (c category) String() string {
	switch c {
	case categoryConnectivity:
		return "connectivity"
	case categoryTransport:
		return "transport"
	case categoryRecovery:
		return "recovery"
	default:
		return "unknown category"
	}
}
