// Package tello speaks the DJI Tello plaintext UDP protocol: commands and
// their one-line responses on the command port, and unsolicited telemetry
// datagrams on the state port. All socket operations carry bounded deadlines
// so a dead link can never stall a control cycle; a missed response surfaces
// as an error the caller treats as staleness.
package tello

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/neuroflight/neuroflight/internal/telemetry"
)

// Default connection parameters for a factory Tello on its own access
// point.
const (
	DefaultHost      = "192.168.10.1"
	DefaultPort      = 8889
	DefaultStatePort = 8890
)

// ErrNotConnected is returned by commands issued before Connect succeeds.
var ErrNotConnected = errors.New("tello: not connected")

// Options configures a Client. Zero values take the factory defaults.
type Options struct {
	Host            string
	Port            int
	StatePort       int // 0 binds an ephemeral port (useful in tests)
	CommandTimeout  time.Duration
	ConnectAttempts int
}

func (o Options) withDefaults() Options {
	if o.Host == "" {
		o.Host = DefaultHost
	}
	if o.Port == 0 {
		o.Port = DefaultPort
	}
	if o.CommandTimeout <= 0 {
		o.CommandTimeout = 5 * time.Second
	}
	if o.ConnectAttempts <= 0 {
		o.ConnectAttempts = 3
	}
	return o
}

// Client is a single-vehicle command client. Command/response exchanges are
// serialised; velocity updates are fire-and-forget because the vehicle does
// not acknowledge them.
type Client struct {
	opts   Options
	remote *net.UDPAddr

	cmdMu sync.Mutex // one in-flight command exchange at a time
	conn  *net.UDPConn

	stateConn *net.UDPConn
	stateMu   sync.Mutex
	state     State

	wg        sync.WaitGroup
	closeOnce sync.Once
	done      chan struct{}
}

// NewClient returns an unconnected client.
func NewClient(opts Options) *Client {
	return &Client{opts: opts.withDefaults(), done: make(chan struct{})}
}

// Connect binds the local sockets, switches the vehicle into command mode
// (retrying a few times, the first datagram after power-on is often lost),
// reads the battery level, and starts the state receiver. It returns the
// battery percentage.
func (c *Client) Connect(ctx context.Context) (int, error) {
	remote, err := net.ResolveUDPAddr("udp", net.JoinHostPort(c.opts.Host, strconv.Itoa(c.opts.Port)))
	if err != nil {
		return 0, fmt.Errorf("tello: resolve %s: %w", c.opts.Host, err)
	}
	c.remote = remote

	conn, err := net.ListenUDP("udp", nil)
	if err != nil {
		return 0, fmt.Errorf("tello: bind command socket: %w", err)
	}
	c.conn = conn

	var lastErr error
	for attempt := 1; attempt <= c.opts.ConnectAttempts; attempt++ {
		resp, err := c.command(ctx, "command")
		if err == nil && strings.EqualFold(resp, "ok") {
			lastErr = nil
			break
		}
		if err == nil {
			err = fmt.Errorf("unexpected response %q", resp)
		}
		lastErr = err
		telemetry.Logf("tello: command mode attempt %d/%d failed: %v", attempt, c.opts.ConnectAttempts, err)
	}
	if lastErr != nil {
		conn.Close()
		return 0, fmt.Errorf("tello: enter command mode: %w", lastErr)
	}

	battery, err := c.Battery(ctx)
	if err != nil {
		conn.Close()
		return 0, err
	}

	if err := c.startStateReceiver(); err != nil {
		// Telemetry degrades to command-level data only; the safety gate
		// will treat a silent state link as staleness.
		telemetry.Logf("tello: state receiver unavailable: %v", err)
	}

	c.stateMu.Lock()
	c.state.Battery = battery
	c.state.LastSeen = time.Now()
	c.stateMu.Unlock()

	return battery, nil
}

// Battery queries the battery percentage.
func (c *Client) Battery(ctx context.Context) (int, error) {
	resp, err := c.command(ctx, "battery?")
	if err != nil {
		return 0, fmt.Errorf("tello: query battery: %w", err)
	}
	battery, err := strconv.Atoi(strings.TrimSpace(resp))
	if err != nil {
		return 0, fmt.Errorf("tello: battery response %q: %w", resp, err)
	}
	return battery, nil
}

// SendVelocity sends one velocity update: radial maps to forward/backward,
// angular to yaw, vertical to up/down. The lateral slot is always zero. Each
// component is clamped to the protocol's [-100, 100] range. No response is
// expected.
func (c *Client) SendVelocity(radial, angular, vertical int) error {
	if c.conn == nil {
		return ErrNotConnected
	}
	msg := fmt.Sprintf("rc 0 %d %d %d", clampRC(radial), clampRC(vertical), clampRC(angular))
	_, err := c.conn.WriteToUDP([]byte(msg), c.remote)
	if err != nil {
		return fmt.Errorf("tello: send velocity: %w", err)
	}
	return nil
}

// Takeoff commands takeoff and waits for acknowledgement. Spin-up takes
// several seconds, so the exchange uses a generous deadline.
func (c *Client) Takeoff(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	resp, err := c.command(ctx, "takeoff")
	if err != nil {
		return fmt.Errorf("tello: takeoff: %w", err)
	}
	if !strings.EqualFold(resp, "ok") {
		return fmt.Errorf("tello: takeoff refused: %q", resp)
	}
	return nil
}

// Land commands landing and waits for acknowledgement.
func (c *Client) Land(ctx context.Context) error {
	resp, err := c.command(ctx, "land")
	if err != nil {
		return fmt.Errorf("tello: land: %w", err)
	}
	if !strings.EqualFold(resp, "ok") {
		return fmt.Errorf("tello: land refused: %q", resp)
	}
	return nil
}

// Emergency cuts the motors immediately. Best-effort and fire-and-forget:
// it is the last resort on the shutdown path.
func (c *Client) Emergency() error {
	if c.conn == nil {
		return ErrNotConnected
	}
	_, err := c.conn.WriteToUDP([]byte("emergency"), c.remote)
	return err
}

// Status returns the latest telemetry snapshot.
func (c *Client) Status() (battery, height int, lastSeen time.Time) {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state.Battery, c.state.Height, c.state.LastSeen
}

// State returns the full latest telemetry.
func (c *Client) State() State {
	c.stateMu.Lock()
	defer c.stateMu.Unlock()
	return c.state
}

// StateAddr returns the local address of the state socket, or nil if the
// receiver is not running.
func (c *Client) StateAddr() *net.UDPAddr {
	if c.stateConn == nil {
		return nil
	}
	return c.stateConn.LocalAddr().(*net.UDPAddr)
}

// Close stops the receiver and releases the sockets. It fires a best-effort
// emergency stop first: by the time Close runs the vehicle should already be
// landed, and if it is not, motors-off beats a flyaway.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		if c.conn != nil {
			c.Emergency()
		}
		close(c.done)
		if c.stateConn != nil {
			c.stateConn.Close()
		}
		if c.conn != nil {
			c.conn.Close()
		}
	})
	c.wg.Wait()
	return nil
}

// command performs one serialised command/response exchange with bounded
// deadlines.
func (c *Client) command(ctx context.Context, cmd string) (string, error) {
	if c.conn == nil {
		return "", ErrNotConnected
	}
	c.cmdMu.Lock()
	defer c.cmdMu.Unlock()

	deadline := time.Now().Add(c.opts.CommandTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}

	if _, err := c.conn.WriteToUDP([]byte(cmd), c.remote); err != nil {
		return "", err
	}
	if err := c.conn.SetReadDeadline(deadline); err != nil {
		return "", err
	}

	buf := make([]byte, 1024)
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		n, from, err := c.conn.ReadFromUDP(buf)
		if err != nil {
			return "", err
		}
		// Ignore strays from other senders.
		if !from.IP.Equal(c.remote.IP) {
			continue
		}
		return strings.TrimSpace(string(buf[:n])), nil
	}
}

func (c *Client) startStateReceiver() error {
	stateConn, err := net.ListenUDP("udp", &net.UDPAddr{Port: c.opts.StatePort})
	if err != nil {
		return err
	}
	c.stateConn = stateConn

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		buf := make([]byte, 1024)
		for {
			select {
			case <-c.done:
				return
			default:
			}
			stateConn.SetReadDeadline(time.Now().Add(time.Second))
			n, _, err := stateConn.ReadFromUDP(buf)
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue // deadline expiry keeps the done check responsive
			}
			c.ingestState(string(buf[:n]))
		}
	}()
	return nil
}

// ingestState parses and stores one state datagram.
func (c *Client) ingestState(payload string) {
	st, err := ParseState(payload)
	if err != nil {
		return
	}
	st.LastSeen = time.Now()
	c.stateMu.Lock()
	c.state = st
	c.stateMu.Unlock()
}

func clampRC(v int) int {
	if v > 100 {
		return 100
	}
	if v < -100 {
		return -100
	}
	return v
}
