package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/rs/zerolog"
)

const (
	// DefaultProbeTimeout bounds the TCP reachability check done before the
	// AMQP handshake.
	DefaultProbeTimeout = 2 * time.Second
	dialTimeout         = 10 * time.Second
	connectionName      = "rabbitwatch"
)

// Probe opens and immediately closes a TCP connection to addr.
func Probe(ctx context.Context, addr string, timeout time.Duration) error {
	if timeout <= 0 {
		timeout = DefaultProbeTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return &ConnectivityError{Addr: addr, Err: err}
	}
	return conn.Close()
}

// Manager owns the broker connection and the shared session.
type Manager struct {
	log          zerolog.Logger
	ProbeTimeout time.Duration

	mu     sync.RWMutex
	conn   *amqp.Connection
	shared *channelSession
	mgmt   *ManagementClient
	params Params
}

func NewManager(log zerolog.Logger) *Manager {
	return &Manager{
		log:          log.With().Str("component", "connection").Logger(),
		ProbeTimeout: DefaultProbeTimeout,
	}
}

// Connect probes the broker address, then performs the AMQP handshake and
// opens the shared channel. Any previous connection is torn down first.
func (m *Manager) Connect(ctx context.Context, p Params) error {
	if err := p.Validate(); err != nil {
		return err
	}
	m.Disconnect()

	m.log.Info().Str("url", p.Redacted()).Msg("connecting to broker")

	if err := Probe(ctx, p.Addr(), m.ProbeTimeout); err != nil {
		return err
	}

	conn, err := amqp.DialConfig(p.URL(), amqp.Config{
		Vhost:      p.VirtualHost(),
		Heartbeat:  10 * time.Second,
		Locale:     "en_US",
		Dial:       amqp.DefaultDial(dialTimeout),
		Properties: amqp.Table{"connection_name": connectionName},
	})
	if err != nil {
		return &ProtocolError{URL: p.Redacted(), Err: err}
	}

	ch, err := conn.Channel()
	if err != nil {
		return &ProtocolError{
			URL: p.Redacted(),
			Err: errors.Join(fmt.Errorf("failed to open channel: %w", err), conn.Close()),
		}
	}

	mgmt, err := NewManagementClient(p.URL(), p.ManagementURL)
	if err != nil {
		return &ProtocolError{URL: p.Redacted(), Err: errors.Join(err, ch.Close(), conn.Close())}
	}
	mgmt.vhost = p.VirtualHost()

	m.mu.Lock()
	m.conn = conn
	m.shared = newChannelSession(ch, conn.Channel)
	m.mgmt = mgmt
	m.params = p
	m.mu.Unlock()

	m.log.Info().Str("url", p.Redacted()).Msg("connected to broker")
	return nil
}

// Disconnect closes the shared session and the connection. It is safe to
// call when not connected and never fails; close errors are only logged.
func (m *Manager) Disconnect() {
	m.mu.Lock()
	shared, conn := m.shared, m.conn
	m.shared, m.conn, m.mgmt = nil, nil, nil
	m.mu.Unlock()

	if conn == nil {
		return
	}
	if shared != nil {
		if err := shared.Close(); err != nil {
			m.log.Debug().Err(err).Msg("closing shared session")
		}
	}
	if err := conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		m.log.Debug().Err(err).Msg("closing connection")
	}
	m.log.Info().Msg("disconnected from broker")
}

func (m *Manager) Connected() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.conn != nil && !m.conn.IsClosed()
}

// Params returns the parameters of the current connection.
func (m *Manager) Params() Params {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.params
}

func (m *Manager) Session() (Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.conn == nil || m.conn.IsClosed() || m.shared == nil {
		return nil, ErrNotConnected
	}
	return m.shared, nil
}

func (m *Manager) NewSession() (Session, error) {
	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()
	if conn == nil || conn.IsClosed() {
		return nil, ErrNotConnected
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open channel: %w", err)
	}
	return newChannelSession(ch, nil), nil
}

// ListQueues lists queue names through the management API.
func (m *Manager) ListQueues(ctx context.Context) ([]string, error) {
	mgmt, err := m.Management()
	if err != nil {
		return nil, err
	}
	return mgmt.ListQueues(ctx)
}

// ListTopics lists user exchange names through the management API.
func (m *Manager) ListTopics(ctx context.Context) ([]string, error) {
	mgmt, err := m.Management()
	if err != nil {
		return nil, err
	}
	return mgmt.ListTopics(ctx)
}

func (m *Manager) Management() (*ManagementClient, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.mgmt == nil {
		return nil, ErrNotConnected
	}
	return m.mgmt, nil
}
