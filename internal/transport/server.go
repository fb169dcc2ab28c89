package transport

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/simonvetter/modbus"

	"github.com/roach88/shmem/internal/memory"
)

// ServerConfig configures a Modbus TCP slave.
type ServerConfig struct {
	// URL is the listen address, e.g. "tcp://0.0.0.0:5502".
	URL string
	// UnitID is the only unit identifier the server answers for.
	UnitID uint8
	// Timeout closes idle client connections.
	Timeout time.Duration
	// MaxClients bounds concurrent connections.
	MaxClients uint
	Logger     *slog.Logger
}

// Server exposes a memory.Store as holding registers [0, size) of one unit.
type Server struct {
	mb      *modbus.ModbusServer
	handler *registerHandler
	url     string
	logger  *slog.Logger
}

// NewServer configures a server for store. Call Start to begin listening.
func NewServer(store *memory.Store, cfg ServerConfig) (*Server, error) {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if cfg.UnitID == 0 {
		cfg.UnitID = DefaultUnitID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxClients == 0 {
		cfg.MaxClients = 4
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if store.Size() > maxAddress {
		return nil, fmt.Errorf("store of %d cells exceeds the modbus address space", store.Size())
	}

	logger := cfg.Logger.With("component", "modbus-server", "url", cfg.URL, "unit_id", cfg.UnitID)
	h := &registerHandler{store: store, unitID: cfg.UnitID, logger: logger}
	mb, err := modbus.NewServer(&modbus.ServerConfiguration{
		URL:        cfg.URL,
		Timeout:    cfg.Timeout,
		MaxClients: cfg.MaxClients,
	}, h)
	if err != nil {
		return nil, fmt.Errorf("configure modbus server: %w", err)
	}
	return &Server{mb: mb, handler: h, url: cfg.URL, logger: logger}, nil
}

// Start begins accepting connections in the background.
func (s *Server) Start() error {
	if err := s.mb.Start(); err != nil {
		return fmt.Errorf("start modbus server on %s: %w", s.url, err)
	}
	s.logger.Info("serving holding registers", "size", s.handler.store.Size())
	return nil
}

// Stop closes the listener and all client connections.
func (s *Server) Stop() error {
	s.logger.Info("stopping")
	return s.mb.Stop()
}

// Close is Stop, so a Server can be released as an io.Closer.
func (s *Server) Close() error {
	return s.Stop()
}

// registerHandler routes holding-register requests to a store.
type registerHandler struct {
	store  *memory.Store
	unitID uint8
	logger *slog.Logger
}

// HandleHoldingRegisters serves function codes 3, 6 and 16.
func (h *registerHandler) HandleHoldingRegisters(req *modbus.HoldingRegistersRequest) ([]uint16, error) {
	if req.UnitId != h.unitID {
		h.logger.Debug("rejecting request for another unit", "unit", req.UnitId, "client", req.ClientAddr)
		return nil, modbus.ErrIllegalDataAddress
	}
	base, count := int(req.Addr), int(req.Quantity)
	if base+count > h.store.Size() {
		h.logger.Debug("rejecting out-of-range request", "addr", base, "quantity", count, "client", req.ClientAddr)
		return nil, modbus.ErrIllegalDataAddress
	}

	if req.IsWrite {
		for i, v := range req.Args {
			if err := h.store.Set(base+i, v); err != nil {
				return nil, modbus.ErrServerDeviceFailure
			}
		}
		return nil, nil
	}

	out := make([]uint16, count)
	for i := range out {
		v, err := h.store.Get(base + i)
		if err != nil {
			return nil, modbus.ErrServerDeviceFailure
		}
		out[i] = v
	}
	return out, nil
}

// HandleCoils rejects coil access; only holding registers are mapped.
func (h *registerHandler) HandleCoils(req *modbus.CoilsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleDiscreteInputs rejects discrete input access.
func (h *registerHandler) HandleDiscreteInputs(req *modbus.DiscreteInputsRequest) ([]bool, error) {
	return nil, modbus.ErrIllegalFunction
}

// HandleInputRegisters rejects input register access.
func (h *registerHandler) HandleInputRegisters(req *modbus.InputRegistersRequest) ([]uint16, error) {
	return nil, modbus.ErrIllegalFunction
}
