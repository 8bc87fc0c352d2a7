package input

import (
	stderrors "errors"
	"io"
	"log/slog"
	"net"
	"sync/atomic"

	"github.com/c360/ringbuf/errors"
)

// socketBufferSize is the requested kernel receive buffer for UDP sockets.
const socketBufferSize = 2 * 1024 * 1024

// UDPSource turns datagrams received on a listening socket into a byte stream.
// Each Read returns one datagram; a datagram longer than the read buffer is
// truncated by the kernel, so size reads for the largest expected datagram.
type UDPSource struct {
	conn     net.PacketConn
	logger   *slog.Logger
	packets  atomic.Int64
	bytes    atomic.Int64
	lastPeer atomic.Value // net.Addr
}

// ListenUDP binds address and returns a source reading from it.
func ListenUDP(address string, logger *slog.Logger) (*UDPSource, error) {
	if logger == nil {
		logger = slog.Default()
	}

	conn, err := net.ListenPacket("udp", address)
	if err != nil {
		return nil, errors.WrapTransient(err, "UDPSource", "Listen", "bind socket")
	}

	if udp, ok := conn.(*net.UDPConn); ok {
		if err := udp.SetReadBuffer(socketBufferSize); err != nil {
			logger.Warn("Failed to set UDP socket buffer size",
				"requested", socketBufferSize, "error", err)
		}
	}

	logger.Info("UDP source listening", "address", conn.LocalAddr().String())

	return &UDPSource{conn: conn, logger: logger}, nil
}

// Addr returns the bound local address.
func (u *UDPSource) Addr() net.Addr {
	return u.conn.LocalAddr()
}

// Read implements io.Reader. After Close it returns io.EOF.
func (u *UDPSource) Read(p []byte) (int, error) {
	n, peer, err := u.conn.ReadFrom(p)
	if err != nil {
		if stderrors.Is(err, net.ErrClosed) {
			return 0, io.EOF
		}
		return n, errors.WrapTransient(err, "UDPSource", "Read", "receive datagram")
	}

	u.packets.Add(1)
	u.bytes.Add(int64(n))
	if peer != nil {
		u.lastPeer.Store(peer)
	}
	return n, nil
}

// Close stops the listener and unblocks a pending Read.
func (u *UDPSource) Close() error {
	return u.conn.Close()
}

// Packets returns the number of datagrams received.
func (u *UDPSource) Packets() int64 {
	return u.packets.Load()
}

// Bytes returns the number of payload bytes received.
func (u *UDPSource) Bytes() int64 {
	return u.bytes.Load()
}

// LastPeer returns the sender of the most recent datagram, or nil.
func (u *UDPSource) LastPeer() net.Addr {
	peer, _ := u.lastPeer.Load().(net.Addr)
	return peer
}
