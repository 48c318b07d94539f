// Package endpoint describes how to reach the primary and replica instances
// and dials go-redis clients for them.
package endpoint

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/unkn0wn-root/cascheck"
)

const (
	DefaultPort         = 6379
	DefaultDialTimeout  = 5 * time.Second
	DefaultReadTimeout  = 3 * time.Second
	DefaultWriteTimeout = 3 * time.Second
)

// TLS holds transport-security settings. Managed deployments terminate TLS
// on both endpoints, so Enabled is the usual setting.
type TLS struct {
	Enabled            bool   `yaml:"enabled"`
	ServerName         string `yaml:"server_name"` // "" => Host
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify"`
	CAFile             string `yaml:"ca_file"` // "" => system roots
}

// Endpoint is a (host, port, transport security, credential) tuple for one
// instance. It is a value type; copies are independent.
type Endpoint struct {
	Role     cascheck.Role `yaml:"-"`
	Host     string        `yaml:"host"`
	Port     int           `yaml:"port"`
	TLS      TLS           `yaml:"tls"`
	Username string        `yaml:"username"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	Protocol int           `yaml:"protocol"` // RESP version; 0 => client default

	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

var (
	ErrNoHost  = errors.New("endpoint: host is required")
	ErrBadPort = errors.New("endpoint: port out of range")
)

// Addr returns host:port, with the default port when unset.
func (e Endpoint) Addr() string {
	port := e.Port
	if port == 0 {
		port = DefaultPort
	}
	return net.JoinHostPort(e.Host, strconv.Itoa(port))
}

func (e Endpoint) Validate() error {
	if e.Host == "" {
		return fmt.Errorf("%s: %w", e.Role, ErrNoHost)
	}
	if e.Port < 0 || e.Port > 65535 {
		return fmt.Errorf("%s: %w: %d", e.Role, ErrBadPort, e.Port)
	}
	if e.Protocol != 0 && e.Protocol != 2 && e.Protocol != 3 {
		return fmt.Errorf("%s: unsupported protocol %d", e.Role, e.Protocol)
	}
	if e.DB < 0 {
		return fmt.Errorf("%s: negative db %d", e.Role, e.DB)
	}
	return nil
}

// TLSConfig returns nil when TLS is disabled.
func (e Endpoint) TLSConfig() (*tls.Config, error) {
	if !e.TLS.Enabled {
		return nil, nil
	}
	cfg := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		ServerName:         e.TLS.ServerName,
		InsecureSkipVerify: e.TLS.InsecureSkipVerify, //nolint:gosec // opt-in for self-signed test deployments
	}
	if cfg.ServerName == "" {
		cfg.ServerName = e.Host
	}
	if e.TLS.CAFile != "" {
		pem, err := os.ReadFile(e.TLS.CAFile)
		if err != nil {
			return nil, fmt.Errorf("%s: read ca file: %w", e.Role, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("%s: no certificates in %s", e.Role, e.TLS.CAFile)
		}
		cfg.RootCAs = pool
	}
	return cfg, nil
}

// Options maps the endpoint onto go-redis client options.
func (e Endpoint) Options() (*redis.Options, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	tc, err := e.TLSConfig()
	if err != nil {
		return nil, err
	}
	return &redis.Options{
		Addr:         e.Addr(),
		Username:     e.Username,
		Password:     e.Password,
		DB:           e.DB,
		Protocol:     e.Protocol,
		TLSConfig:    tc,
		DialTimeout:  coalesce(e.DialTimeout, DefaultDialTimeout),
		ReadTimeout:  coalesce(e.ReadTimeout, DefaultReadTimeout),
		WriteTimeout: coalesce(e.WriteTimeout, DefaultWriteTimeout),
		// one shared connection per endpoint; pool only grows for pub/sub and fan-out
		PoolSize: 8,
	}, nil
}

// String never includes the password.
func (e Endpoint) String() string {
	scheme := "redis"
	if e.TLS.Enabled {
		scheme = "rediss"
	}
	user := ""
	switch {
	case e.Username != "" && e.Password != "":
		user = e.Username + ":***@"
	case e.Username != "":
		user = e.Username + "@"
	case e.Password != "":
		user = ":***@"
	}
	return fmt.Sprintf("%s %s://%s%s/%d", e.Role, scheme, user, e.Addr(), e.DB)
}

// Dial opens a client and pings it. A failed ping is a *cascheck.ConnectivityError.
func Dial(ctx context.Context, e Endpoint) (*redis.Client, error) {
	opts, err := e.Options()
	if err != nil {
		return nil, err
	}
	c := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, opts.DialTimeout)
	defer cancel()
	if err := c.Ping(pctx).Err(); err != nil {
		_ = c.Close()
		return nil, &cascheck.ConnectivityError{Role: e.Role, Op: "ping", Err: err}
	}
	return c, nil
}

func coalesce[T comparable](v, def T) T {
	var zero T
	if v == zero {
		return def
	}
	return v
}
