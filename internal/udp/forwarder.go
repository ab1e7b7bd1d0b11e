// Package udp forwards raw NMEA sentences to a UDP listener, like gpsd's
// gps2udp companion.
package udp

import (
	"fmt"
	"net"
	"strings"
	"sync/atomic"
)

type udpConn interface {
	Write(p []byte) (int, error)
	Close() error
}

type resolveFunc func(network, address string) (*net.UDPAddr, error)

type dialFunc func(network string, laddr, raddr *net.UDPAddr) (udpConn, error)

func defaultDial(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
	return net.DialUDP(network, laddr, raddr)
}

// Forwarder writes one datagram per sentence.
type Forwarder struct {
	dest string
	conn udpConn
	sent atomic.Uint64
}

func NewForwarder(dest string) (*Forwarder, error) {
	return newForwarder(dest, net.ResolveUDPAddr, defaultDial)
}

func newForwarder(dest string, resolve resolveFunc, dial dialFunc) (*Forwarder, error) {
	addr, err := resolve("udp", dest)
	if err != nil {
		return nil, fmt.Errorf("resolve dest: %w", err)
	}
	// DialUDP selects a suitable local address automatically.
	conn, err := dial("udp", nil, addr)
	if err != nil {
		return nil, fmt.Errorf("dial udp: %w", err)
	}
	return &Forwarder{dest: dest, conn: conn}, nil
}

func (f *Forwarder) Dest() string { return f.dest }

// Sent is the number of datagrams written.
func (f *Forwarder) Sent() uint64 { return f.sent.Load() }

// Forward sends one NMEA sentence terminated by CRLF. Blank input is ignored.
func (f *Forwarder) Forward(sentence string) error {
	sentence = strings.TrimRight(sentence, "\r\n")
	if sentence == "" {
		return nil
	}
	if _, err := f.conn.Write([]byte(sentence + "\r\n")); err != nil {
		return err
	}
	f.sent.Add(1)
	return nil
}

func (f *Forwarder) Close() error {
	if f.conn == nil {
		return nil
	}
	return f.conn.Close()
}
