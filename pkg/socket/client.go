// SPDX-License-Identifier: GPL-3.0-or-later

// Package socket provides a dial-per-use stream client for plain wire
// protocols. The Graphite exporter uses it to frame one connection per push.
package socket

import (
	"errors"
	"net"
	"time"
)

// New returns a new pointer to a socket client given a network address
// (tcp://host:port, udp://host:port, unix:///path, or a bare host:port,
// which dials TCP) and a timeout. It supports both IPv4 and IPv6 addresses.
func New(cfg Config) *Socket {
	return &Socket{Config: cfg}
}

// Socket is the implementation of a socket client.
type Socket struct {
	Config
	conn net.Conn
}

// Config holds the network address and the timeout applied to the dial and
// to each write.
type Config struct {
	Address string
	Timeout time.Duration
}

// ConnectAndWrite dials, writes the payload and closes the connection.
func ConnectAndWrite(cfg Config, payload []byte) error {
	sock := New(cfg)

	if err := sock.Connect(); err != nil {
		return err
	}

	defer func() { _ = sock.Disconnect() }()

	return sock.Write(payload)
}

// Connect connects to the Socket address on the named network.
// If the address is a domain name it will also perform the DNS resolution.
// Address like :2004 will attempt to connect to the localhost.
func (s *Socket) Connect() error {
	network, address := parseAddress(s.Address)

	conn, err := net.DialTimeout(network, address, s.timeout())
	if err != nil {
		return err
	}

	s.conn = conn

	return nil
}

// Disconnect closes the connection.
// Any in-flight writes will be cancelled and return errors.
func (s *Socket) Disconnect() (err error) {
	if s.conn != nil {
		err = s.conn.Close()
		s.conn = nil
	}
	return err
}

// Write sends the payload on the open connection under the configured
// deadline and returns write and timeout errors if any.
func (s *Socket) Write(payload []byte) error {
	if s.conn == nil {
		return errors.New("attempt to write on nil connection")
	}

	if err := s.conn.SetWriteDeadline(time.Now().Add(s.timeout())); err != nil {
		return err
	}

	_, err := s.conn.Write(payload)

	return err
}

func (s *Socket) timeout() time.Duration {
	if s.Timeout == 0 {
		return time.Second
	}
	return s.Timeout
}
