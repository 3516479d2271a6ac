package service

import (
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/MrChuw/scrcpy-manager/config"
	"github.com/MrChuw/scrcpy-manager/models"
)

type fakeProcess struct {
	pid        int
	done       chan struct{}
	once       sync.Once
	ignoreTerm bool

	mu         sync.Mutex
	code       int
	terminated int
	killed     int
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{}), code: -1}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.mu.Lock()
		p.code = code
		p.mu.Unlock()
		close(p.done)
	})
}

func (p *fakeProcess) Pid() int              { return p.pid }
func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) Exited() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

func (p *fakeProcess) ExitCode() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.code
}

func (p *fakeProcess) Terminate() error {
	p.mu.Lock()
	p.terminated++
	p.mu.Unlock()
	if !p.ignoreTerm {
		p.exit(0)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.mu.Lock()
	p.killed++
	p.mu.Unlock()
	p.exit(-9)
	return nil
}

func (p *fakeProcess) counts() (terminated, killed int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.terminated, p.killed
}

// fakeStarter records launches. Aliases in fail never start; aliases in crash
// exit right away; aliases in stubborn ignore SIGTERM.
type fakeStarter struct {
	mu       sync.Mutex
	fail     map[string]error
	crash    map[string]bool
	stubborn map[string]bool
	specs    []LaunchSpec
	procs    map[string][]*fakeProcess
	nextPID  int
}

func newFakeStarter() *fakeStarter {
	return &fakeStarter{
		fail:     map[string]error{},
		crash:    map[string]bool{},
		stubborn: map[string]bool{},
		procs:    map[string][]*fakeProcess{},
		nextPID:  100,
	}
}

func (f *fakeStarter) Start(spec LaunchSpec) (Process, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.specs = append(f.specs, spec)
	if err := f.fail[spec.Alias]; err != nil {
		return nil, err
	}
	f.nextPID++
	p := newFakeProcess(f.nextPID)
	p.ignoreTerm = f.stubborn[spec.Alias]
	if f.crash[spec.Alias] {
		p.exit(1)
	}
	f.procs[spec.Alias] = append(f.procs[spec.Alias], p)
	return p, nil
}

func (f *fakeStarter) starts(alias string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, s := range f.specs {
		if s.Alias == alias {
			n++
		}
	}
	return n
}

func (f *fakeStarter) spec(alias string) (LaunchSpec, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.specs) - 1; i >= 0; i-- {
		if f.specs[i].Alias == alias {
			return f.specs[i], true
		}
	}
	return LaunchSpec{}, false
}

func (f *fakeStarter) processes(alias string) []*fakeProcess {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeProcess(nil), f.procs[alias]...)
}

func fastTiming() Timing {
	return Timing{
		ReadinessTimeout: 40 * time.Millisecond,
		PollInterval:     5 * time.Millisecond,
		StopTimeout:      20 * time.Millisecond,
	}
}

// fakeTransport scripts the debugging tool for the connection flow.
type fakeTransport struct {
	mu       sync.Mutex
	calls    []string
	listings [][]models.Device
	connect  func(addr string) (bool, string, error)
	shell    func(serial, command string) (string, error)
	killErr  error
	tcpipErr error
}

func (f *fakeTransport) record(call string) {
	f.mu.Lock()
	f.calls = append(f.calls, call)
	f.mu.Unlock()
}

func (f *fakeTransport) called(prefix string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (f *fakeTransport) ListDevices(context.Context) ([]models.Device, error) {
	f.record("devices")
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.listings) == 0 {
		return nil, nil
	}
	l := f.listings[0]
	if len(f.listings) > 1 {
		f.listings = f.listings[1:]
	}
	return l, nil
}

func (f *fakeTransport) Connect(_ context.Context, addr string) (bool, string, error) {
	f.record("connect " + addr)
	if f.connect == nil {
		return true, "connected to " + addr, nil
	}
	return f.connect(addr)
}

func (f *fakeTransport) Disconnect(context.Context) error {
	f.record("disconnect")
	return nil
}

func (f *fakeTransport) KillServer(context.Context) error {
	f.record("kill-server")
	return f.killErr
}

func (f *fakeTransport) USB(context.Context) error {
	f.record("usb")
	return nil
}

func (f *fakeTransport) TCPIP(_ context.Context, serial string) error {
	f.record("tcpip " + serial)
	return f.tcpipErr
}

func (f *fakeTransport) Shell(_ context.Context, serial, command string) (string, error) {
	f.record("shell " + serial + " " + command)
	if f.shell == nil {
		if strings.HasPrefix(command, "ip ") {
			return "3: wlan0: <BROADCAST>\n    inet 192.168.1.5/24 brd 192.168.1.255 scope global wlan0", nil
		}
		return "", nil
	}
	return f.shell(serial, command)
}

func (f *fakeTransport) Properties(context.Context, string) []models.Property {
	f.record("properties")
	return []models.Property{{Label: "Model", Value: "Pixel 7"}}
}

type staticRecords struct {
	rec models.DeviceRecord
	err error
}

func (s staticRecords) Load() (models.DeviceRecord, error) { return s.rec, s.err }

type memRecords struct {
	mu    sync.Mutex
	saved []models.DeviceRecord
}

func (m *memRecords) Save(rec models.DeviceRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.saved = append(m.saved, rec)
	return nil
}

// fakeConnector replays results in order; the last one repeats.
type fakeConnector struct {
	mu      sync.Mutex
	results []error
	calls   int
}

func (c *fakeConnector) Connect(context.Context) (Connection, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	i := c.calls
	c.calls++
	if i >= len(c.results) {
		i = len(c.results) - 1
	}
	if i >= 0 && c.results[i] != nil {
		return Connection{}, c.results[i]
	}
	return Connection{
		Serial:  "R58M123ABC",
		Address: models.Address{Host: "192.168.1.5", Port: 5555},
	}, nil
}

func (c *fakeConnector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// blockingConnector waits for cancellation, like an IP poll that never sees an address.
type blockingConnector struct {
	entered chan struct{}
}

func (c *blockingConnector) Connect(ctx context.Context) (Connection, error) {
	close(c.entered)
	<-ctx.Done()
	return Connection{}, &ConnectionError{State: StateVerifyNetwork, Err: ctx.Err()}
}

// scriptedConsole returns lines in order, then io.EOF.
type scriptedConsole struct {
	mu    sync.Mutex
	lines []string
}

func (c *scriptedConsole) ReadLine() (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.lines) == 0 {
		return "", io.EOF
	}
	line := c.lines[0]
	c.lines = c.lines[1:]
	return line, nil
}

// blockingConsole never returns a line.
type blockingConsole struct{}

func (blockingConsole) ReadLine() (string, error) {
	select {}
}

type configSource struct {
	mu  sync.Mutex
	cfg *config.Config
	err error
}

func (c *configSource) set(cfg *config.Config, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg, c.err = cfg, err
}

func (c *configSource) load(string) (*config.Config, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.cfg, nil
}

func appsConfig(entries ...string) *config.Config {
	cfg := config.Default()
	for _, e := range entries {
		pkg, alias, _ := strings.Cut(e, ":")
		cfg.App.AppsToOpen = append(cfg.App.AppsToOpen, e)
		cfg.App.Apps = append(cfg.App.Apps, config.App{Alias: alias, Package: pkg})
	}
	return cfg
}

type recordingSink struct {
	mu     sync.Mutex
	events []models.Event
}

func (r *recordingSink) Publish(e models.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingSink) kinds() []models.EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]models.EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

var errBoom = errors.New("boom")
