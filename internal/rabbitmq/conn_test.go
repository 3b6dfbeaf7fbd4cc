package rabbitmq

import (
	"context"
	"errors"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestParams_Validate(t *testing.T) {
	tests := []struct {
		name    string
		params  Params
		wantErr bool
	}{
		{name: "tcp", params: Params{Protocol: "tcp", Host: "localhost", Port: 5672}},
		{name: "empty protocol", params: Params{Host: "localhost", Port: 5672}},
		{name: "ssl upper case", params: Params{Protocol: "SSL", Host: "localhost", Port: 5671}},
		{name: "unknown protocol", params: Params{Protocol: "stomp", Host: "localhost", Port: 61613}, wantErr: true},
		{name: "missing host", params: Params{Protocol: "tcp", Port: 5672}, wantErr: true},
		{name: "bad port", params: Params{Protocol: "auto", Host: "localhost", Port: 70000}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.params.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParams_URL(t *testing.T) {
	p := Params{Protocol: "ssl", Host: "rabbit.example.com", Port: 5671, Username: "admin", Password: "s3cret"}

	u := p.URL()
	if !strings.HasPrefix(u, "amqps://") {
		t.Errorf("URL() = %q, want amqps scheme", u)
	}
	if !strings.Contains(u, "s3cret") {
		t.Errorf("URL() = %q, want credentials included", u)
	}

	red := p.Redacted()
	if strings.Contains(red, "s3cret") {
		t.Errorf("Redacted() = %q leaks the password", red)
	}
	if red != "amqps://admin@rabbit.example.com:5671/" {
		t.Errorf("Redacted() = %q", red)
	}
}

func TestParams_NonSSLProtocolsUseAMQP(t *testing.T) {
	for _, proto := range []string{"tcp", "nio", "auto", ""} {
		p := Params{Protocol: proto, Host: "h", Port: 5672, VHost: "dev"}
		if got := p.Redacted(); got != "amqp://guest@h:5672/dev" {
			t.Errorf("protocol %q: Redacted() = %q", proto, got)
		}
	}
}

func listen(t *testing.T, accept func(net.Conn)) (host string, port int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			accept(conn)
		}
	}()

	h, p, _ := net.SplitHostPort(ln.Addr().String())
	port, _ = strconv.Atoi(p)
	return h, port
}

// closedPort returns a port that had a listener a moment ago.
func closedPort(t *testing.T) int {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	_ = ln.Close()
	return port
}

func TestProbe(t *testing.T) {
	host, port := listen(t, func(c net.Conn) { _ = c.Close() })

	if err := Probe(context.Background(), net.JoinHostPort(host, strconv.Itoa(port)), time.Second); err != nil {
		t.Errorf("Probe() on listening port: %v", err)
	}

	err := Probe(context.Background(), net.JoinHostPort("127.0.0.1", strconv.Itoa(closedPort(t))), time.Second)
	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("Probe() on closed port = %v, want *ConnectivityError", err)
	}
}

func TestManager_ConnectUnreachable(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.ProbeTimeout = 500 * time.Millisecond

	err := m.Connect(context.Background(), Params{Protocol: "tcp", Host: "127.0.0.1", Port: closedPort(t)})

	var connErr *ConnectivityError
	if !errors.As(err, &connErr) {
		t.Fatalf("Connect() = %v, want *ConnectivityError", err)
	}
	if m.Connected() {
		t.Error("manager reports connected after failed connect")
	}
}

func TestManager_ConnectHandshakeFailure(t *testing.T) {
	// Accepts TCP but never speaks AMQP.
	host, port := listen(t, func(c net.Conn) { _ = c.Close() })

	m := NewManager(zerolog.Nop())
	err := m.Connect(context.Background(), Params{Protocol: "tcp", Host: host, Port: port, Username: "u", Password: "p"})

	var protoErr *ProtocolError
	if !errors.As(err, &protoErr) {
		t.Fatalf("Connect() = %v, want *ProtocolError", err)
	}
	if strings.Contains(protoErr.Error(), ":p@") {
		t.Errorf("ProtocolError leaks password: %v", protoErr)
	}
	if m.Connected() {
		t.Error("manager reports connected after handshake failure")
	}
}

func TestManager_DisconnectIdempotent(t *testing.T) {
	m := NewManager(zerolog.Nop())
	m.Disconnect()
	m.Disconnect()

	if _, err := m.Session(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Session() = %v, want ErrNotConnected", err)
	}
	if _, err := m.NewSession(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("NewSession() = %v, want ErrNotConnected", err)
	}
	if _, err := m.ListQueues(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("ListQueues() = %v, want ErrNotConnected", err)
	}
}

func TestIsAdvisory(t *testing.T) {
	tests := map[string]bool{
		"":                   true,
		"amq.topic":          true,
		"amq.rabbitmq.event": true,
		"alerts":             false,
		"amqp-bridge":        false,
	}
	for name, want := range tests {
		if got := IsAdvisory(name); got != want {
			t.Errorf("IsAdvisory(%q) = %v, want %v", name, got, want)
		}
	}
}
