package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrChuw/scrcpy-manager/models"
)

var (
	// ErrNoDevice means no USB device appeared before the bootstrap timeout.
	ErrNoDevice = errors.New("no device found")
	// ErrConnectRefused means the debugging tool refused the network connection.
	ErrConnectRefused = errors.New("network connection refused")
)

// State is a step of the connection attempt.
type State int

const (
	StateIdle State = iota
	StateTryCached
	StateDiscover
	StateBootstrapUSB
	StatePromote
	StateVerifyNetwork
	StateConnected
	StateAborted
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateTryCached:
		return "try_cached"
	case StateDiscover:
		return "discover"
	case StateBootstrapUSB:
		return "bootstrap_usb"
	case StatePromote:
		return "promote"
	case StateVerifyNetwork:
		return "verify_network"
	case StateConnected:
		return "connected"
	case StateAborted:
		return "aborted"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ConnectionError reports the state in which a connection attempt was aborted.
type ConnectionError struct {
	State State
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection aborted in %s: %v", e.State, e.Err)
}

func (e *ConnectionError) Unwrap() error {
	return e.Err
}

// Transport is the subset of the debugging tool the connection flow drives.
type Transport interface {
	ListDevices(ctx context.Context) ([]models.Device, error)
	Connect(ctx context.Context, addr string) (bool, string, error)
	Disconnect(ctx context.Context) error
	KillServer(ctx context.Context) error
	USB(ctx context.Context) error
	TCPIP(ctx context.Context, serial string) error
	Shell(ctx context.Context, serial, command string) (string, error)
}

// RecordLoader returns the cached device record.
type RecordLoader interface {
	Load() (models.DeviceRecord, error)
}

// Connection is the outcome of a successful attempt.
type Connection struct {
	// Serial is the transport identifier used for shell commands during the attempt.
	Serial string
	// Address is the verified network endpoint windows are opened against.
	Address models.Address
	// Trace lists the states visited, in order.
	Trace []State
}

const (
	wifiEnableCommand = "svc wifi enable"
	ipQueryFormat     = "ip -f inet addr show %s"
)

var inetPattern = regexp.MustCompile(`inet (\d+\.\d+\.\d+\.\d+)`)

// ConnectionManager obtains a network transport session, preferring the cached
// device, then a device already listed, then a USB bootstrap.
type ConnectionManager struct {
	Port            int
	USBTimeout      time.Duration
	USBPollInterval time.Duration
	PromoteSettle   time.Duration
	IPPollInterval  time.Duration
	WifiInterface   string

	transport Transport
	records   RecordLoader
	logger    zerolog.Logger
}

func NewConnectionManager(transport Transport, records RecordLoader, port int, logger zerolog.Logger) *ConnectionManager {
	return &ConnectionManager{
		Port:            port,
		USBTimeout:      60 * time.Second,
		USBPollInterval: 2 * time.Second,
		PromoteSettle:   5 * time.Second,
		IPPollInterval:  500 * time.Millisecond,
		WifiInterface:   "wlan0",
		transport:       transport,
		records:         records,
		logger:          logger.With().Str("component", "connection").Logger(),
	}
}

type attempt struct {
	serial  string
	address models.Address
	err     error
}

// Connect runs the state machine to completion.
func (m *ConnectionManager) Connect(ctx context.Context) (Connection, error) {
	var a attempt
	trace := []State{StateIdle}
	state := StateTryCached

	for {
		trace = append(trace, state)
		m.logger.Debug().Stringer("state", state).Msg("Connection state")

		switch state {
		case StateTryCached:
			state = m.tryCached(ctx, &a)
		case StateDiscover:
			state = m.discover(ctx, &a)
		case StateBootstrapUSB:
			state = m.bootstrapUSB(ctx, &a)
		case StatePromote:
			state = m.promote(ctx, &a)
		case StateVerifyNetwork:
			state = m.verifyNetwork(ctx, &a)
		case StateConnected:
			m.logger.Info().Str("address", a.address.String()).Msg("Connected over network")
			return Connection{Serial: a.serial, Address: a.address, Trace: trace}, nil
		case StateAborted:
			return Connection{Trace: trace}, a.err
		default:
			a.err = &ConnectionError{State: state, Err: errors.New("unknown state")}
			state = StateAborted
		}
	}
}

func (m *ConnectionManager) abort(a *attempt, state State, err error) State {
	a.err = &ConnectionError{State: state, Err: err}
	return StateAborted
}

func (m *ConnectionManager) tryCached(ctx context.Context, a *attempt) State {
	rec, err := m.records.Load()
	if err != nil {
		m.logger.Warn().Err(err).Msg("Ignoring unreadable device record")
	}
	if rec.Address.IsZero() {
		return StateDiscover
	}

	addr := rec.Address.String()
	m.logger.Info().Str("address", addr).Msg("Trying cached device")
	ok, out, err := m.transport.Connect(ctx, addr)
	if err != nil {
		return m.abort(a, StateTryCached, err)
	}
	if !ok {
		m.logger.Info().Str("address", addr).Str("output", out).Msg("Cached device unreachable")
		return StateDiscover
	}
	a.serial = addr
	return StateVerifyNetwork
}

func (m *ConnectionManager) discover(ctx context.Context, a *attempt) State {
	if err := m.transport.KillServer(ctx); err != nil {
		return m.abort(a, StateDiscover, err)
	}
	if err := m.transport.Disconnect(ctx); err != nil {
		return m.abort(a, StateDiscover, err)
	}
	serial, err := m.usbSerial(ctx)
	if err != nil {
		return m.abort(a, StateDiscover, err)
	}
	if serial == "" {
		return StateBootstrapUSB
	}
	a.serial = serial
	return StateVerifyNetwork
}

// usbSerial returns the first online non-network device, or "" when there is none.
func (m *ConnectionManager) usbSerial(ctx context.Context) (string, error) {
	devices, err := m.transport.ListDevices(ctx)
	if err != nil {
		return "", err
	}
	var usb []models.Device
	for _, d := range devices {
		if d.Online() && !d.IsNetwork() {
			usb = append(usb, d)
		}
	}
	if len(usb) == 0 {
		return "", nil
	}
	if len(usb) > 1 {
		serials := make([]string, len(usb))
		for i, d := range usb {
			serials[i] = d.Serial
		}
		m.logger.Warn().Strs("serials", serials).Msg("Multiple USB devices attached, using the first")
	}
	m.logger.Info().Str("serial", usb[0].Serial).Str("model", usb[0].Model).Msg("Found USB device")
	return usb[0].Serial, nil
}

func (m *ConnectionManager) bootstrapUSB(ctx context.Context, a *attempt) State {
	m.logger.Info().Dur("timeout", m.USBTimeout).Msg("Waiting for a USB device")
	if err := m.transport.KillServer(ctx); err != nil {
		return m.abort(a, StateBootstrapUSB, err)
	}

	deadline := time.Now().Add(m.USBTimeout)
	for time.Now().Before(deadline) {
		if err := m.transport.USB(ctx); err != nil {
			return m.abort(a, StateBootstrapUSB, err)
		}
		if !sleepCtx(ctx, m.USBPollInterval) {
			return m.abort(a, StateBootstrapUSB, ctx.Err())
		}
		serial, err := m.usbSerial(ctx)
		if err != nil {
			return m.abort(a, StateBootstrapUSB, err)
		}
		if serial != "" {
			a.serial = serial
			return StatePromote
		}
	}
	return m.abort(a, StateBootstrapUSB, ErrNoDevice)
}

func (m *ConnectionManager) promote(ctx context.Context, a *attempt) State {
	m.logger.Info().Str("serial", a.serial).Int("port", m.Port).Msg("Switching device to network mode")
	if err := m.transport.TCPIP(ctx, a.serial); err != nil {
		return m.abort(a, StatePromote, err)
	}
	if !sleepCtx(ctx, m.PromoteSettle) {
		return m.abort(a, StatePromote, ctx.Err())
	}
	return StateVerifyNetwork
}

// verifyNetwork enables wireless, waits for an IPv4 address on the wireless
// interface and connects to it.
func (m *ConnectionManager) verifyNetwork(ctx context.Context, a *attempt) State {
	if _, err := m.transport.Shell(ctx, a.serial, wifiEnableCommand); err != nil {
		return m.abort(a, StateVerifyNetwork, err)
	}

	query := fmt.Sprintf(ipQueryFormat, m.WifiInterface)
	var ip string
	for {
		out, err := m.transport.Shell(ctx, a.serial, query)
		if err != nil {
			return m.abort(a, StateVerifyNetwork, err)
		}
		if match := inetPattern.FindStringSubmatch(out); match != nil {
			ip = match[1]
			break
		}
		m.logger.Debug().Str("interface", m.WifiInterface).Msg("No address yet")
		if !sleepCtx(ctx, m.IPPollInterval) {
			return m.abort(a, StateVerifyNetwork, ctx.Err())
		}
	}

	addr := models.Address{Host: ip, Port: m.Port}
	ok, out, err := m.transport.Connect(ctx, addr.String())
	if err != nil {
		return m.abort(a, StateVerifyNetwork, err)
	}
	if !ok {
		return m.abort(a, StateVerifyNetwork, fmt.Errorf("%w: %s", ErrConnectRefused, out))
	}
	a.address = addr
	return StateConnected
}
