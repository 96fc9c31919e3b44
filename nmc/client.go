// Package nmc is a client for the NMC antenna control script. It keeps
// one connection to a workstation and falls back to a FakeAntenna when the
// workstation cannot be reached.
package nmc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/w1xm/nmc_interface/antenna"
)

const (
	DefaultConnectTimeout = 10 * time.Second
	DefaultSettleDelay    = 2 * time.Second
	DefaultRecvSize       = 128
)

type Config struct {
	Site string
	DSS  int
	WSN  int

	// Port overrides Port(DSS).
	Port int
	// Dial overrides the TCP dialer.
	Dial func(ctx context.Context, network, addr string) (net.Conn, error)

	ConnectTimeout time.Duration
	// CommandTimeout bounds each command exchange. Zero means no bound.
	CommandTimeout time.Duration
	// SettleDelay separates the two onsource samples.
	SettleDelay time.Duration

	Now    func() time.Time
	Logger logrus.FieldLogger
}

// ConnectResult reports the outcome of Connect. A failed connect leaves the
// client simulated; Errno names the socket error when there was one.
type ConnectResult struct {
	Success bool   `json:"success"`
	WSN     int    `json:"wsn"`
	Errno   string `json:"errno,omitempty"`
}

type peer interface {
	Exchange(ctx context.Context, cmd string, recvSize int) (string, error)
	Close() error
}

type Client struct {
	cfg    Config
	logger logrus.FieldLogger

	// connMu serializes connect, reconnect and simulate.
	connMu sync.Mutex
	// xmu serializes exchanges so replies cannot interleave.
	xmu sync.Mutex
	// mu guards the fields below and is never held during I/O, so Close
	// can always reach a stalled peer.
	mu        sync.Mutex
	peer      peer
	simulated bool
	site      string
	wsn       int
	dss       int
	primed    bool

	statusMu sync.Mutex
	status   antenna.Status
}

func New(cfg Config) *Client {
	if cfg.Site == "" {
		cfg.Site = "CDSCC"
	}
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = DefaultConnectTimeout
	}
	if cfg.SettleDelay <= 0 {
		cfg.SettleDelay = DefaultSettleDelay
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.StandardLogger()
	}
	if cfg.Dial == nil {
		cfg.Dial = (&net.Dialer{}).DialContext
	}
	return &Client{
		cfg:    cfg,
		logger: cfg.Logger,
		site:   cfg.Site,
		wsn:    cfg.WSN,
		dss:    cfg.DSS,
		status: antenna.NewStatus(),
	}
}

func (c *Client) port() int {
	if c.cfg.Port != 0 {
		return c.cfg.Port
	}
	return Port(c.dss)
}

// Connect dials the control script on a workstation. Failure is not an
// error: the client switches to simulated mode and reports it in the
// result.
func (c *Client) Connect(ctx context.Context, wsn int, site string) ConnectResult {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	return c.connect(ctx, wsn, site)
}

// connect must be called with connMu held.
func (c *Client) connect(ctx context.Context, wsn int, site string) ConnectResult {
	host, resolved, ok := Workstation(site, wsn)
	if !ok {
		c.logger.Errorf("couldn't identify workstation %d at %s", wsn, site)
	}
	c.mu.Lock()
	c.closeLocked()
	c.site = site
	c.wsn = resolved
	addr := net.JoinHostPort(host, strconv.Itoa(c.port()))
	c.mu.Unlock()
	c.logger.Debugf("connecting to workstation %d at %s", resolved, addr)

	dctx, cancel := context.WithTimeout(ctx, c.cfg.ConnectTimeout)
	defer cancel()
	conn, err := c.cfg.Dial(dctx, "tcp", addr)
	if err != nil {
		res := ConnectResult{Success: false, WSN: 0}
		var errno syscall.Errno
		var ne net.Error
		switch {
		case errors.As(err, &ne) && ne.Timeout():
			c.logger.Errorf("couldn't connect to workstation %d: connection timed out", wsn)
		case errors.As(err, &errno):
			res.Errno = errno.Error()
			c.logger.Errorf("couldn't connect to workstation %d: %v", wsn, errno)
		default:
			c.logger.Errorf("couldn't connect to workstation %d: %v", wsn, err)
		}
		c.simulate()
		return res
	}
	c.logger.Infof("connected to %s", addr)
	c.mu.Lock()
	defer c.mu.Unlock()
	c.peer = &connPeer{conn: conn, timeout: c.cfg.CommandTimeout}
	c.simulated = false
	c.primed = false
	return ConnectResult{Success: true, WSN: resolved}
}

// Reconnect closes the current connection and connects again to the same
// workstation.
func (c *Client) Reconnect(ctx context.Context) ConnectResult {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.mu.Lock()
	wsn, site := c.wsn, c.site
	c.mu.Unlock()
	return c.connect(ctx, wsn, site)
}

// Simulate drops any connection and answers from a FakeAntenna.
func (c *Client) Simulate() ConnectResult {
	c.connMu.Lock()
	defer c.connMu.Unlock()
	c.simulate()
	return ConnectResult{Success: true, WSN: 0}
}

func (c *Client) simulate() {
	fake := NewFakeAntenna()
	c.logger.Debug("switching to simulator")
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
	c.peer = fake
	c.simulated = true
	c.wsn = fake.WSN
	c.site = fake.Site
	c.dss = fake.DSS
	c.primed = false
}

func (c *Client) Simulated() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.simulated
}

func (c *Client) WSN() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.wsn
}

func (c *Client) Site() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.site
}

func (c *Client) DSS() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dss
}

// Close closes the connection, failing any exchange in progress. The client
// can be connected again.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closeLocked()
}

func (c *Client) closeLocked() error {
	if c.peer == nil {
		return nil
	}
	err := c.peer.Close()
	c.peer = nil
	return err
}

// Command sends cmd verbatim and returns whatever a single read of at most
// recvSize bytes yields. Long replies may be truncated.
func (c *Client) Command(ctx context.Context, cmd string, recvSize int) (string, error) {
	if recvSize <= 0 {
		recvSize = DefaultRecvSize
	}
	c.xmu.Lock()
	defer c.xmu.Unlock()
	c.mu.Lock()
	p := c.peer
	c.mu.Unlock()
	if p == nil {
		return "", ErrNotConnected
	}
	c.logger.Debugf("apc->nmc: %q", cmd)
	resp, err := p.Exchange(ctx, cmd, recvSize)
	if err != nil {
		return "", fmt.Errorf("command %q: %w", cmd, err)
	}
	c.logger.Debugf("nmc->apc: %q", resp)
	return resp, nil
}

// GetStatus returns a copy of the antenna status.
func (c *Client) GetStatus() antenna.Status {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.status
}

// UpdateStatus applies fn to the antenna status under its lock.
func (c *Client) UpdateStatus(fn func(*antenna.Status)) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	fn(&c.status)
}

type connPeer struct {
	conn    net.Conn
	timeout time.Duration
}

func (p *connPeer) Exchange(ctx context.Context, cmd string, recvSize int) (string, error) {
	var deadline time.Time
	if p.timeout > 0 {
		deadline = time.Now().Add(p.timeout)
	}
	if d, ok := ctx.Deadline(); ok && (deadline.IsZero() || d.Before(deadline)) {
		deadline = d
	}
	if err := p.conn.SetDeadline(deadline); err != nil {
		return "", err
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			// unblock the pending read or write
			p.conn.SetDeadline(time.Now())
		case <-stop:
		}
	}()

	if _, err := p.conn.Write([]byte(cmd)); err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	buf := make([]byte, recvSize)
	n, err := p.conn.Read(buf)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return string(buf[:n]), nil
}

func (p *connPeer) Close() error {
	return p.conn.Close()
}
