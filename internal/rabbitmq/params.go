package rabbitmq

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Supported connection protocols. Only ssl changes the wire scheme; the
// others are accepted for compatibility with broker URLs copied from
// other clients.
const (
	ProtocolTCP  = "tcp"
	ProtocolSSL  = "ssl"
	ProtocolNIO  = "nio"
	ProtocolAuto = "auto"
)

const defaultVHost = "/"

// Params are the connection settings collected from the user.
type Params struct {
	Protocol      string
	Host          string
	Port          int
	Username      string
	Password      string
	VHost         string
	ManagementURL string
}

// Validate checks that the params can be turned into a broker URL.
func (p Params) Validate() error {
	switch strings.ToLower(p.Protocol) {
	case ProtocolTCP, ProtocolSSL, ProtocolNIO, ProtocolAuto, "":
	default:
		return fmt.Errorf("unsupported protocol %q (want tcp, ssl, nio or auto)", p.Protocol)
	}
	if p.Host == "" {
		return fmt.Errorf("host is required")
	}
	if p.Port <= 0 || p.Port > 65535 {
		return fmt.Errorf("invalid port %d", p.Port)
	}
	return nil
}

// Addr is the host:port used for the reachability probe.
func (p Params) Addr() string {
	return net.JoinHostPort(p.Host, strconv.Itoa(p.Port))
}

func (p Params) uri() amqp.URI {
	scheme := "amqp"
	if strings.EqualFold(p.Protocol, ProtocolSSL) {
		scheme = "amqps"
	}
	vhost := p.VHost
	if vhost == "" {
		vhost = defaultVHost
	}
	username, password := p.Username, p.Password
	if username == "" {
		username, password = "guest", "guest"
	}
	return amqp.URI{
		Scheme:   scheme,
		Host:     p.Host,
		Port:     p.Port,
		Username: username,
		Password: password,
		Vhost:    vhost,
	}
}

// URL renders the AMQP URL including credentials.
func (p Params) URL() string {
	return p.uri().String()
}

// Redacted renders the AMQP URL without the password, for logs and errors.
func (p Params) Redacted() string {
	u := p.uri()
	return (&url.URL{
		Scheme: u.Scheme,
		User:   url.User(u.Username),
		Host:   p.Addr(),
		Path:   "/" + strings.TrimPrefix(u.Vhost, "/"),
	}).String()
}

// VirtualHost returns the vhost, defaulting to "/".
func (p Params) VirtualHost() string {
	if p.VHost == "" {
		return defaultVHost
	}
	return p.VHost
}
