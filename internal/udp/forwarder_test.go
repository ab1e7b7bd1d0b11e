package udp

import (
	"errors"
	"net"
	"testing"
	"time"
)

type fakeConn struct {
	writes    [][]byte
	writeErr  error
	closed    bool
	closeErr  error
	writeHits int
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.writeHits++
	if c.writeErr != nil {
		return 0, c.writeErr
	}
	cp := append([]byte(nil), p...)
	c.writes = append(c.writes, cp)
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closed = true
	return c.closeErr
}

func TestNewForwarder_DialsResolvedAddr(t *testing.T) {
	var gotNetwork string
	var gotRaddr *net.UDPAddr
	fc := &fakeConn{}

	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		gotNetwork = network
		gotRaddr = raddr
		return fc, nil
	}

	f, err := newForwarder("127.0.0.1:10110", net.ResolveUDPAddr, dial)
	if err != nil {
		t.Fatalf("newForwarder() error: %v", err)
	}
	defer f.Close()

	if gotNetwork != "udp" {
		t.Fatalf("network=%q want %q", gotNetwork, "udp")
	}
	if gotRaddr == nil || gotRaddr.Port != 10110 || !gotRaddr.IP.Equal(net.IPv4(127, 0, 0, 1)) {
		t.Fatalf("raddr=%v want 127.0.0.1:10110", gotRaddr)
	}
	if f.Dest() != "127.0.0.1:10110" {
		t.Fatalf("dest=%q", f.Dest())
	}
}

func TestNewForwarder_ResolveFailure(t *testing.T) {
	resolveErr := errors.New("nope")
	resolve := func(network, address string) (*net.UDPAddr, error) {
		return nil, resolveErr
	}
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return &fakeConn{}, nil
	}

	_, err := newForwarder("bad:addr", resolve, dial)
	if !errors.Is(err, resolveErr) {
		t.Fatalf("err=%v want %v", err, resolveErr)
	}
}

func TestNewForwarder_DialFailure(t *testing.T) {
	dialErr := errors.New("unreachable")
	dial := func(network string, laddr, raddr *net.UDPAddr) (udpConn, error) {
		return nil, dialErr
	}
	_, err := newForwarder("127.0.0.1:10110", net.ResolveUDPAddr, dial)
	if !errors.Is(err, dialErr) {
		t.Fatalf("err=%v want %v", err, dialErr)
	}
}

func TestForwarder_Forward(t *testing.T) {
	fc := &fakeConn{}
	f := &Forwarder{dest: "x", conn: fc}

	if err := f.Forward(""); err != nil {
		t.Fatalf("Forward(empty) error: %v", err)
	}
	if err := f.Forward("\r\n"); err != nil {
		t.Fatalf("Forward(crlf) error: %v", err)
	}
	if fc.writeHits != 0 {
		t.Fatalf("expected no writes, got %d", fc.writeHits)
	}

	line := "$GPGSA,A,3,04,05,,09,12,,,24,,,,,2.5,1.3,2.1*39"
	if err := f.Forward(line + "\n"); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	if len(fc.writes) != 1 || string(fc.writes[0]) != line+"\r\n" {
		t.Fatalf("writes=%q", fc.writes)
	}
	if f.Sent() != 1 {
		t.Fatalf("sent=%d want 1", f.Sent())
	}
}

func TestForwarder_ForwardPropagatesWriteError(t *testing.T) {
	writeErr := errors.New("boom")
	fc := &fakeConn{writeErr: writeErr}
	f := &Forwarder{dest: "x", conn: fc}

	if err := f.Forward("$GPRMC"); !errors.Is(err, writeErr) {
		t.Fatalf("err=%v want %v", err, writeErr)
	}
	if f.Sent() != 0 {
		t.Fatalf("sent=%d want 0", f.Sent())
	}
}

func TestForwarder_Close(t *testing.T) {
	closeErr := errors.New("close")
	fc := &fakeConn{closeErr: closeErr}
	f := &Forwarder{dest: "x", conn: fc}
	if err := f.Close(); !errors.Is(err, closeErr) {
		t.Fatalf("err=%v want %v", err, closeErr)
	}
	if !fc.closed {
		t.Fatalf("expected conn closed")
	}

	var nilConn Forwarder
	if err := nilConn.Close(); err != nil {
		t.Fatalf("Close() on zero forwarder error: %v", err)
	}
}

func TestForwarder_RealSocket(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("ListenPacket: %v", err)
	}
	defer pc.Close()

	f, err := NewForwarder(pc.LocalAddr().String())
	if err != nil {
		t.Fatalf("NewForwarder() error: %v", err)
	}
	defer f.Close()

	if err := f.Forward("$GPRMC,1"); err != nil {
		t.Fatalf("Forward() error: %v", err)
	}
	_ = pc.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 128)
	n, _, err := pc.ReadFrom(buf)
	if err != nil {
		t.Fatalf("ReadFrom: %v", err)
	}
	if string(buf[:n]) != "$GPRMC,1\r\n" {
		t.Fatalf("got %q", buf[:n])
	}
}
