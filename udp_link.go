package rlnc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/overlaymesh/rlnc/internal/utils"

	"golang.org/x/net/ipv4"
)

type udpOptions struct {
	broadcast bool
	ttl       int
}

// A UDPOption configures a UDPLink.
type UDPOption func(*udpOptions)

// WithBroadcast allows sending to broadcast addresses.
func WithBroadcast() UDPOption {
	return func(o *udpOptions) { o.broadcast = true }
}

// WithTTL sets the TTL of sent packets.
func WithTTL(ttl int) UDPOption {
	return func(o *udpOptions) { o.ttl = ttl }
}

// A UDPLink is a Link over an IPv4 UDP socket.
// Without a configured remote address, it sends to the sender of the first received packet.
type UDPLink struct {
	conn  net.PacketConn
	pconn *ipv4.PacketConn

	mx     sync.RWMutex
	remote net.Addr
	// set if the remote address was configured, packets from other addresses are dropped
	fixedRemote bool

	lastTTL atomic.Int32
	logger  utils.Logger
}

var _ Link = &UDPLink{}

// ListenUDP opens a UDP socket on local. remote may be empty.
func ListenUDP(local, remote string, opts ...UDPOption) (*UDPLink, error) {
	var o udpOptions
	for _, opt := range opts {
		opt(&o)
	}
	l := &UDPLink{logger: utils.DefaultLogger.WithPrefix("udp")}
	if remote != "" {
		addr, err := net.ResolveUDPAddr("udp4", remote)
		if err != nil {
			return nil, fmt.Errorf("resolving remote address: %w", err)
		}
		l.remote = addr
		l.fixedRemote = true
	}

	lc := net.ListenConfig{Control: controlSocket(o.broadcast)}
	conn, err := lc.ListenPacket(context.Background(), "udp4", local)
	if err != nil {
		return nil, err
	}
	l.conn = conn
	l.pconn = ipv4.NewPacketConn(conn)
	if err := l.pconn.SetControlMessage(ipv4.FlagTTL, true); err != nil {
		l.logger.Debugf("Not reading the TTL of received packets: %s", err)
	}
	if o.ttl > 0 {
		if err := l.pconn.SetTTL(o.ttl); err != nil {
			conn.Close()
			return nil, fmt.Errorf("setting TTL: %w", err)
		}
	}
	return l, nil
}

// WritePacket sends b to the remote address.
// Packets are silently dropped while the remote address is unknown.
func (l *UDPLink) WritePacket(b []byte) error {
	l.mx.RLock()
	remote := l.remote
	l.mx.RUnlock()
	if remote == nil {
		return nil
	}
	_, err := l.pconn.WriteTo(b, nil, remote)
	return err
}

// ReadPacket reads the next packet sent by the remote.
func (l *UDPLink) ReadPacket(b []byte) (int, error) {
	for {
		n, cm, src, err := l.pconn.ReadFrom(b)
		if err != nil {
			return 0, err
		}
		if cm != nil {
			l.lastTTL.Store(int32(cm.TTL))
		}
		l.mx.Lock()
		switch {
		case l.remote == nil:
			l.remote = src
			l.logger.Infof("Learned remote address %s", src)
		case !sameUDPAddr(l.remote, src):
			if l.fixedRemote {
				l.mx.Unlock()
				if l.logger.Debug() {
					l.logger.Debugf("Dropping %d bytes from unexpected address %s", n, src)
				}
				continue
			}
			l.logger.Infof("Remote address changed from %s to %s", l.remote, src)
			l.remote = src
		}
		l.mx.Unlock()
		return n, nil
	}
}

func sameUDPAddr(a, b net.Addr) bool {
	ua, ok1 := a.(*net.UDPAddr)
	ub, ok2 := b.(*net.UDPAddr)
	if !ok1 || !ok2 {
		return a.String() == b.String()
	}
	return ua.IP.Equal(ub.IP) && ua.Port == ub.Port
}

// LastTTL is the TTL of the last received packet, if the platform reports it.
func (l *UDPLink) LastTTL() int {
	return int(l.lastTTL.Load())
}

// Close closes the socket.
func (l *UDPLink) Close() error {
	if err := l.conn.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
		return err
	}
	return nil
}

// LocalAddr is the address the socket is bound to.
func (l *UDPLink) LocalAddr() net.Addr {
	return l.conn.LocalAddr()
}

// RemoteAddr is the address packets are sent to. It is nil until known.
func (l *UDPLink) RemoteAddr() net.Addr {
	l.mx.RLock()
	defer l.mx.RUnlock()
	return l.remote
}
