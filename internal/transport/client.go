package transport

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/roach88/shmem/internal/reconcile"
)

// DefaultURL is the default Modbus TCP endpoint. Port 502 needs privileges on
// most systems, so the unprivileged 5502 is used instead.
const DefaultURL = "tcp://localhost:5502"

// DefaultUnitID is the default Modbus unit (slave) identifier.
const DefaultUnitID = 1

// maxAddress is one past the highest Modbus register address.
const maxAddress = 1 << 16

// ClientConfig configures a Modbus TCP master.
type ClientConfig struct {
	URL     string
	UnitID  uint8
	Timeout time.Duration
	Logger  *slog.Logger
}

// Client is a Modbus TCP master implementing reconcile.Peer over holding
// registers (function 3 for reads, 16 for writes, 6 for single writes).
type Client struct {
	mu     sync.Mutex
	mb     *modbus.ModbusClient
	url    string
	limits reconcile.Limits
	logger *slog.Logger
}

// Dial connects to a Modbus TCP server. Connection failures are returned as
// *reconcile.TransportError.
func Dial(cfg ClientConfig) (*Client, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UnitID == 0 {
		cfg.UnitID = DefaultUnitID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	mb, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:     cfg.URL,
		Timeout: cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("configure modbus client: %w", err)
	}
	if err := mb.Open(); err != nil {
		return nil, &reconcile.TransportError{Op: reconcile.OpConnect, Err: fmt.Errorf("open %s: %w", cfg.URL, err)}
	}
	if err := mb.SetUnitId(cfg.UnitID); err != nil {
		mb.Close()
		return nil, fmt.Errorf("set unit id: %w", err)
	}

	return &Client{
		mb:     mb,
		url:    cfg.URL,
		limits: reconcile.DefaultLimits(),
		logger: cfg.Logger.With("component", "modbus-client", "url", cfg.URL),
	}, nil
}

// Limits implements reconcile.Peer.
func (c *Client) Limits() reconcile.Limits {
	return c.limits
}

// ReadRange implements reconcile.Peer. count must not exceed Limits().MaxRead.
func (c *Client) ReadRange(ctx context.Context, base, count int) ([]uint16, error) {
	if err := checkRange(base, count, c.limits.MaxRead); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	regs, err := c.mb.ReadRegisters(uint16(base), uint16(count), modbus.HOLDING_REGISTER)
	if err != nil {
		return nil, &reconcile.TransportError{Op: reconcile.OpRead, Base: base, Count: count, Err: err}
	}
	return regs, nil
}

// WriteRange implements reconcile.Peer. len(values) must not exceed
// Limits().MaxWrite.
func (c *Client) WriteRange(ctx context.Context, base int, values []uint16) error {
	if err := checkRange(base, len(values), c.limits.MaxWrite); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mb.WriteRegisters(uint16(base), values); err != nil {
		return &reconcile.TransportError{Op: reconcile.OpWrite, Base: base, Count: len(values), Err: err}
	}
	return nil
}

// ReadRegister reads one holding register.
func (c *Client) ReadRegister(ctx context.Context, addr int) (uint16, error) {
	vals, err := c.ReadRange(ctx, addr, 1)
	if err != nil {
		return 0, err
	}
	return vals[0], nil
}

// WriteRegister writes one holding register with function 6.
func (c *Client) WriteRegister(ctx context.Context, addr int, value uint16) error {
	if err := checkRange(addr, 1, 1); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.mb.WriteRegister(uint16(addr), value); err != nil {
		return &reconcile.TransportError{Op: reconcile.OpWrite, Base: addr, Count: 1, Err: err}
	}
	return nil
}

// Close releases the connection.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger.Debug("closing connection")
	return c.mb.Close()
}

func checkRange(base, count, limit int) error {
	if count <= 0 || count > limit {
		return fmt.Errorf("register count %d outside 1..%d", count, limit)
	}
	if base < 0 || base+count > maxAddress {
		return fmt.Errorf("register range %d+%d outside the modbus address space", base, count)
	}
	return nil
}
