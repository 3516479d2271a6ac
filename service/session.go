package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrChuw/scrcpy-manager/config"
	"github.com/MrChuw/scrcpy-manager/models"
	"github.com/MrChuw/scrcpy-manager/scrcpy"
)

var (
	// ErrSessionClosed is returned to callers submitting work after shutdown began.
	ErrSessionClosed = errors.New("session closed")
	// ErrUnknownCommand is returned for a line that matches no command or alias.
	ErrUnknownCommand = errors.New("unknown command or alias")
	// ErrUnknownWindow is returned when restarting an alias that is not registered.
	ErrUnknownWindow = errors.New("unknown window")
)

// Connector establishes the network transport session.
type Connector interface {
	Connect(ctx context.Context) (Connection, error)
}

// DeviceTransport is what the session needs from the debugging tool directly.
type DeviceTransport interface {
	Disconnect(ctx context.Context) error
	Properties(ctx context.Context, serial string) []models.Property
}

// RecordSaver persists the device record after a successful connection.
type RecordSaver interface {
	Save(rec models.DeviceRecord) error
}

// LineReader blocks until the operator enters a line.
type LineReader interface {
	ReadLine() (string, error)
}

// ConfigLoader reads the mirroring configuration.
type ConfigLoader func(path string) (*config.Config, error)

// SessionOptions wires a Session. Console may be nil to run without interactive input.
type SessionOptions struct {
	Connector  Connector
	Transport  DeviceTransport
	Records    RecordSaver
	Supervisor *Supervisor
	Console    LineReader
	LoadConfig ConfigLoader
	ConfigPath string
	Events     EventSink
	Logger     zerolog.Logger

	DisconnectTimeout time.Duration
}

// sessionState is owned by the session loop. Readers outside the loop take mu.
type sessionState struct {
	running   bool
	connected bool
	serial    string
	address   models.Address
	cfg       *config.Config
	flags     []string
}

type reply struct {
	result models.CommandResult
	err    error
}

type request struct {
	line    string
	restart string
	reply   chan reply
}

// Session runs the startup sequence and the interactive command loop. Commands
// from the console and from API callers are executed on the loop goroutine only.
type Session struct {
	connector  Connector
	transport  DeviceTransport
	records    RecordSaver
	supervisor *Supervisor
	console    LineReader
	loadConfig ConfigLoader
	configPath string
	events     EventSink
	logger     zerolog.Logger

	disconnectTimeout time.Duration

	requests chan request
	done     chan struct{}
	once     sync.Once

	mu    sync.RWMutex
	state sessionState
}

func NewSession(opts SessionOptions) *Session {
	if opts.Events == nil {
		opts.Events = nopSink{}
	}
	if opts.LoadConfig == nil {
		opts.LoadConfig = config.Load
	}
	if opts.DisconnectTimeout <= 0 {
		opts.DisconnectTimeout = 10 * time.Second
	}
	return &Session{
		connector:         opts.Connector,
		transport:         opts.Transport,
		records:           opts.Records,
		supervisor:        opts.Supervisor,
		console:           opts.Console,
		loadConfig:        opts.LoadConfig,
		configPath:        opts.ConfigPath,
		events:            opts.Events,
		logger:            opts.Logger.With().Str("component", "session").Logger(),
		disconnectTimeout: opts.DisconnectTimeout,
		requests:          make(chan request),
		done:              make(chan struct{}),
		state:             sessionState{running: true},
	}
}

// Run starts the session and serves commands until ctx is cancelled, the console
// closes, or a reconnect fails. Shutdown always runs before Run returns.
func (s *Session) Run(ctx context.Context) error {
	defer s.Shutdown()
	if err := s.Start(ctx); err != nil {
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
	return s.loop(ctx)
}

// Start loads the configuration, connects, persists the device record and
// launches the default window set.
func (s *Session) Start(ctx context.Context) error {
	cfg, err := s.loadConfig(s.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := s.connect(ctx); err != nil {
		return err
	}
	flags := s.applyConfig(cfg)
	s.logger.Info().Strs("options", flags).Msg("Launch options")

	s.supervisor.LaunchAll(ctx, s.address(), cfg.App.Apps, flags)
	return nil
}

func (s *Session) applyConfig(cfg *config.Config) []string {
	for _, w := range cfg.Warnings {
		s.logger.Warn().Msg(w)
	}
	flags := scrcpy.Args(cfg)
	s.mu.Lock()
	s.state.cfg = cfg
	s.state.flags = flags
	s.mu.Unlock()
	return flags
}

// connect runs the connection manager and records the device on success.
func (s *Session) connect(ctx context.Context) error {
	conn, err := s.connector.Connect(ctx)
	if err != nil {
		var connErr *ConnectionError
		if !errors.As(err, &connErr) {
			err = &ConnectionError{State: StateAborted, Err: err}
		}
		return err
	}

	addr := conn.Address.String()
	rec := models.DeviceRecord{Address: conn.Address, Properties: s.transport.Properties(ctx, addr)}
	if err := s.records.Save(rec); err != nil {
		s.logger.Warn().Err(err).Msg("Could not persist device record")
	}

	s.mu.Lock()
	s.state.connected = true
	s.state.serial = conn.Serial
	s.state.address = conn.Address
	s.mu.Unlock()

	s.events.Publish(newEvent(models.EventConnected, "", addr, conn.Serial))
	return nil
}

type lineResult struct {
	line string
	err  error
}

func (s *Session) loop(ctx context.Context) error {
	var lines chan lineResult
	next := make(chan struct{}, 1)
	if s.console != nil {
		lines = make(chan lineResult)
		go s.readLines(lines, next)
	}
	s.logger.Info().Strs("windows", s.supervisor.Aliases()).
		Msg("Commands: all, reload, dc, conn, or a window name")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Interrupted, shutting down")
			return nil
		case <-s.done:
			return nil
		case r := <-lines:
			if r.err != nil {
				s.logger.Info().Err(r.err).Msg("Console closed, shutting down")
				return nil
			}
			if _, err := s.Execute(ctx, r.line); isFatal(err) {
				return s.fatal(ctx, err)
			}
			next <- struct{}{}
		case req := <-s.requests:
			var res reply
			if req.restart != "" {
				res.result, res.err = s.restartWindow(ctx, req.restart)
			} else {
				msg, err := s.Execute(ctx, req.line)
				res.result, res.err = models.CommandResult{Command: strings.TrimSpace(req.line), Message: msg}, err
			}
			req.reply <- res
			if isFatal(res.err) {
				return s.fatal(ctx, res.err)
			}
		}
	}
}

func (s *Session) fatal(ctx context.Context, err error) error {
	if ctx.Err() != nil {
		return nil
	}
	return err
}

func isFatal(err error) bool {
	var connErr *ConnectionError
	return errors.As(err, &connErr)
}

// readLines feeds console lines to the loop one at a time, waiting for each to
// be handled before reading the next.
func (s *Session) readLines(out chan<- lineResult, next <-chan struct{}) {
	for {
		line, err := s.console.ReadLine()
		select {
		case out <- lineResult{line: line, err: err}:
		case <-s.done:
			return
		}
		if err != nil {
			return
		}
		select {
		case <-next:
		case <-s.done:
			return
		}
	}
}

// Execute runs one command line. It must be called from the loop goroutine, or
// before Run; other goroutines use Submit.
func (s *Session) Execute(ctx context.Context, line string) (string, error) {
	choice := strings.TrimSpace(line)
	if choice == "" {
		return "", nil
	}
	s.events.Publish(newEvent(models.EventCommand, "", s.address(), choice))

	msg, err := s.dispatch(ctx, choice)
	log := s.logger.With().Str("command", choice).Logger()
	switch {
	case err == nil:
		log.Info().Msg(msg)
	case isFatal(err):
		log.Error().Err(err).Msg(msg)
	default:
		log.Warn().Err(err).Msg(msg)
	}
	return msg, err
}

func (s *Session) dispatch(ctx context.Context, choice string) (string, error) {
	switch strings.ToLower(choice) {
	case "all":
		return s.relaunchAll(ctx), nil
	case "reload":
		return s.reload(ctx)
	case "dc":
		return s.disconnect(ctx), nil
	case "conn":
		return s.reconnect(ctx)
	}
	alias, target, ok := s.supervisor.Lookup(choice)
	if !ok {
		return "Unknown command or alias: " + choice, fmt.Errorf("%w: %s", ErrUnknownCommand, choice)
	}
	return s.restart(ctx, alias, target), nil
}

func (s *Session) relaunchAll(ctx context.Context) string {
	s.supervisor.TerminateAll()
	cfg, flags := s.current()
	s.supervisor.LaunchAll(ctx, s.address(), cfg.App.Apps, flags)
	return "Relaunched all windows"
}

func (s *Session) restart(ctx context.Context, alias, target string) string {
	_, flags := s.current()
	readiness := s.supervisor.Restart(ctx, alias, target, s.address(), flags)
	return fmt.Sprintf("Restarted %s (%s)", alias, readiness)
}

func (s *Session) restartWindow(ctx context.Context, name string) (models.CommandResult, error) {
	s.events.Publish(newEvent(models.EventCommand, name, s.address(), "restart"))
	alias, target, ok := s.supervisor.Lookup(name)
	if !ok {
		return models.CommandResult{Command: name}, fmt.Errorf("%w: %s", ErrUnknownWindow, name)
	}
	msg := s.restart(ctx, alias, target)
	s.logger.Info().Str("alias", alias).Msg(msg)
	return models.CommandResult{Command: alias, Message: msg}, nil
}

// reload re-reads the configuration and launches only aliases that are new,
// ignoring case as alias commands do.
// A configuration that fails to load leaves the previous one in place.
func (s *Session) reload(ctx context.Context) (string, error) {
	cfg, err := s.loadConfig(s.configPath)
	if err != nil {
		return "Reload failed, keeping previous configuration", err
	}
	flags := s.applyConfig(cfg)

	var added []string
	for _, app := range cfg.App.Apps {
		if _, _, ok := s.supervisor.Lookup(app.Alias); ok {
			continue
		}
		s.supervisor.LaunchOne(ctx, app.Alias, app.Package, s.address(), flags)
		added = append(added, app.Alias)
	}
	if len(added) == 0 {
		return "No new apps to add.", nil
	}
	return "Spawned new windows: " + strings.Join(added, ", "), nil
}

func (s *Session) disconnect(ctx context.Context) string {
	s.mu.Lock()
	s.state.connected = false
	s.mu.Unlock()

	s.supervisor.TerminateAll()
	if err := s.transport.Disconnect(ctx); err != nil {
		s.logger.Warn().Err(err).Msg("Disconnect failed")
	}
	s.events.Publish(newEvent(models.EventDisconnected, "", s.address(), ""))
	return "Disconnected"
}

func (s *Session) reconnect(ctx context.Context) (string, error) {
	if s.Connected() {
		return "Already connected", nil
	}
	if err := s.connect(ctx); err != nil {
		return "Reconnect failed", err
	}
	cfg, flags := s.current()
	s.supervisor.LaunchAll(ctx, s.address(), cfg.App.Apps, flags)
	return "Reconnected to " + s.address(), nil
}

// Submit queues a command line for the loop and waits for its result.
func (s *Session) Submit(ctx context.Context, line string) (models.CommandResult, error) {
	return s.submit(ctx, request{line: line})
}

// RestartWindow queues a restart of one alias, bypassing command matching.
func (s *Session) RestartWindow(ctx context.Context, alias string) (models.CommandResult, error) {
	return s.submit(ctx, request{restart: alias})
}

func (s *Session) submit(ctx context.Context, req request) (models.CommandResult, error) {
	req.reply = make(chan reply, 1)
	select {
	case s.requests <- req:
	case <-s.done:
		return models.CommandResult{}, ErrSessionClosed
	case <-ctx.Done():
		return models.CommandResult{}, ctx.Err()
	}

	select {
	case r := <-req.reply:
		return r.result, r.err
	case <-s.done:
		select {
		case r := <-req.reply:
			return r.result, r.err
		default:
			return models.CommandResult{}, ErrSessionClosed
		}
	case <-ctx.Done():
		return models.CommandResult{}, ctx.Err()
	}
}

// Shutdown stops every window and drops the network transport. Only the first
// call has any effect.
func (s *Session) Shutdown() {
	s.once.Do(func() {
		s.mu.Lock()
		s.state.running = false
		s.state.connected = false
		s.mu.Unlock()
		close(s.done)

		s.supervisor.TerminateAll()
		ctx, cancel := context.WithTimeout(context.Background(), s.disconnectTimeout)
		defer cancel()
		if err := s.transport.Disconnect(ctx); err != nil {
			s.logger.Warn().Err(err).Msg("Disconnect during shutdown failed")
		}
		s.events.Publish(newEvent(models.EventShutdown, "", s.address(), ""))
		s.logger.Info().Msg("Session closed")
	})
}

// Done is closed when shutdown begins.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

func (s *Session) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.connected
}

func (s *Session) address() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.address.String()
}

func (s *Session) current() (*config.Config, []string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	cfg := s.state.cfg
	if cfg == nil {
		cfg = config.Default()
	}
	return cfg, s.state.flags
}

// Snapshot returns a copy of the session state for readers outside the loop.
func (s *Session) Snapshot() models.SessionStatus {
	s.mu.RLock()
	st := models.SessionStatus{
		Running:   s.state.running,
		Connected: s.state.connected,
		Serial:    s.state.serial,
		Address:   s.state.address.String(),
		Options:   append([]string{}, s.state.flags...),
	}
	s.mu.RUnlock()
	st.Windows = s.supervisor.Status()
	return st
}
