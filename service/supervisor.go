package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/MrChuw/scrcpy-manager/config"
	"github.com/MrChuw/scrcpy-manager/models"
	"github.com/MrChuw/scrcpy-manager/scrcpy"
)

// Timing holds the supervisor's delays.
type Timing struct {
	ReadinessTimeout time.Duration
	PollInterval     time.Duration
	StopTimeout      time.Duration
	SettleDelay      time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		ReadinessTimeout: 5 * time.Second,
		PollInterval:     500 * time.Millisecond,
		StopTimeout:      5 * time.Second,
		SettleDelay:      time.Second,
	}
}

type window struct {
	alias  string
	target string
	proc   Process
}

// Supervisor owns the alias to window mapping. Launch workers write their own
// entry under the lock; everything else goes through the session loop.
type Supervisor struct {
	Timing Timing

	starter Starter
	events  EventSink
	logger  zerolog.Logger

	mu      sync.Mutex
	windows map[string]*window
	order   []string
}

func NewSupervisor(starter Starter, logger zerolog.Logger, events EventSink) *Supervisor {
	if events == nil {
		events = nopSink{}
	}
	return &Supervisor{
		Timing:  DefaultTiming(),
		starter: starter,
		events:  events,
		logger:  logger.With().Str("component", "supervisor").Logger(),
		windows: make(map[string]*window),
	}
}

// register adds alias if it is new and returns its entry.
func (s *Supervisor) register(alias, target string) *window {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[alias]
	if !ok {
		w = &window{alias: alias, target: target}
		s.windows[alias] = w
		s.order = append(s.order, alias)
	}
	return w
}

func (s *Supervisor) setProcess(alias string, proc Process) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, ok := s.windows[alias]; ok {
		w.proc = proc
	}
}

// LaunchAll starts the primary window and every app window concurrently, waits
// for all launch attempts, then pauses for the settle delay.
func (s *Supervisor) LaunchAll(ctx context.Context, address string, apps []config.App, flags []string) {
	targets := make([]config.App, 0, len(apps)+1)
	targets = append(targets, config.App{Alias: models.MainAlias})
	targets = append(targets, apps...)
	for _, app := range targets {
		s.register(app.Alias, app.Package)
	}

	var wg sync.WaitGroup
	for _, app := range targets {
		wg.Add(1)
		go func(app config.App) {
			defer wg.Done()
			s.LaunchOne(ctx, app.Alias, app.Package, address, flags)
		}(app)
	}
	wg.Wait()

	sleepCtx(ctx, s.Timing.SettleDelay)
}

// LaunchOne starts a single window and waits on its readiness. A failed start leaves a
// cleared handle so later commands still find the alias.
func (s *Supervisor) LaunchOne(ctx context.Context, alias, target, address string, flags []string) models.Readiness {
	s.register(alias, target)
	spec := LaunchSpec{
		Alias:  alias,
		Target: target,
		Serial: address,
		Args:   scrcpy.WindowArgs(alias, target, address, flags),
	}
	log := s.logger.With().Str("alias", alias).Logger()

	proc, err := s.starter.Start(spec)
	if err != nil {
		s.setProcess(alias, nil)
		log.Error().Err(err).Msg("Window failed to start")
		s.events.Publish(newEvent(models.EventWindowFailed, alias, address, err.Error()))
		return models.ReadinessNotStarted
	}
	s.setProcess(alias, proc)
	log.Info().Int("pid", proc.Pid()).Str("target", target).Msg("Window started")
	s.events.Publish(newEvent(models.EventWindowStarted, alias, address, target))

	readiness := s.awaitReadiness(ctx, proc)
	switch readiness {
	case models.ReadinessVisible:
		log.Info().Msg("Window likely visible")
		s.events.Publish(newEvent(models.EventWindowReady, alias, address, ""))
	default:
		log.Warn().Int("exit", proc.ExitCode()).Msg("Window not started")
		s.events.Publish(newEvent(models.EventWindowNotStarted, alias, address, ""))
	}
	return readiness
}

// awaitReadiness polls proc at a fixed interval. A process still running past half of the
// readiness timeout is considered visible.
func (s *Supervisor) awaitReadiness(ctx context.Context, proc Process) models.Readiness {
	if proc == nil {
		return models.ReadinessNotStarted
	}
	start := time.Now()
	ticker := time.NewTicker(s.Timing.PollInterval)
	defer ticker.Stop()

	for time.Since(start) < s.Timing.ReadinessTimeout {
		if proc.Exited() {
			return models.ReadinessNotStarted
		}
		if time.Since(start) > s.Timing.ReadinessTimeout/2 {
			return models.ReadinessVisible
		}
		select {
		case <-ctx.Done():
			return s.readinessOf(proc)
		case <-ticker.C:
		}
	}
	return s.readinessOf(proc)
}

func (s *Supervisor) readinessOf(proc Process) models.Readiness {
	if proc == nil || proc.Exited() {
		return models.ReadinessNotStarted
	}
	return models.ReadinessVisible
}

// Restart stops the window registered under alias, if any, and launches it again.
func (s *Supervisor) Restart(ctx context.Context, alias, target, address string, flags []string) models.Readiness {
	if proc, ok := s.Handle(alias); ok {
		s.stop(alias, proc)
	}
	return s.LaunchOne(ctx, alias, target, address, flags)
}

// TerminateAll stops every window and clears the handles. Entries stay registered.
func (s *Supervisor) TerminateAll() {
	s.mu.Lock()
	pending := make([]*window, 0, len(s.order))
	for _, alias := range s.order {
		w := s.windows[alias]
		if w.proc != nil {
			pending = append(pending, &window{alias: w.alias, proc: w.proc})
			w.proc = nil
		}
	}
	s.mu.Unlock()

	for _, w := range pending {
		s.stop(w.alias, w.proc)
	}
}

func (s *Supervisor) stop(alias string, proc Process) {
	if proc == nil || proc.Exited() {
		return
	}
	log := s.logger.With().Str("alias", alias).Int("pid", proc.Pid()).Logger()
	if err := proc.Terminate(); err != nil {
		log.Warn().Err(err).Msg("Terminate failed")
	}

	timer := time.NewTimer(s.Timing.StopTimeout)
	defer timer.Stop()
	select {
	case <-proc.Done():
		log.Info().Msg("Window stopped")
		s.events.Publish(newEvent(models.EventWindowStopped, alias, "", ""))
		return
	case <-timer.C:
	}

	log.Warn().Dur("timeout", s.Timing.StopTimeout).Msg("Window did not exit, killing")
	if err := proc.Kill(); err != nil {
		log.Error().Err(err).Msg("Kill failed")
		return
	}
	timer.Reset(s.Timing.StopTimeout)
	select {
	case <-proc.Done():
	case <-timer.C:
		log.Error().Msg("Window still running after kill")
	}
	s.events.Publish(newEvent(models.EventWindowStopped, alias, "", "killed"))
}

// Lookup resolves name to a registered alias, ignoring case.
func (s *Supervisor) Lookup(name string) (alias, target string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if w, found := s.windows[name]; found {
		return w.alias, w.target, true
	}
	for _, a := range s.order {
		if strings.EqualFold(a, name) {
			w := s.windows[a]
			return w.alias, w.target, true
		}
	}
	return "", "", false
}

// Has reports whether alias is registered, matching case exactly.
func (s *Supervisor) Has(alias string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.windows[alias]
	return ok
}

func (s *Supervisor) Handle(alias string) (Process, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	w, ok := s.windows[alias]
	if !ok || w.proc == nil {
		return nil, false
	}
	return w.proc, true
}

// Aliases lists registered aliases in registration order.
func (s *Supervisor) Aliases() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.order...)
}

func (s *Supervisor) Status() []models.WindowStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.WindowStatus, 0, len(s.order))
	for _, alias := range s.order {
		w := s.windows[alias]
		st := models.WindowStatus{Alias: w.alias, Target: w.target}
		if w.proc != nil {
			st.PID = w.proc.Pid()
			st.Exited = w.proc.Exited()
			st.Running = !st.Exited
			if st.Exited {
				st.ExitCode = w.proc.ExitCode()
			}
		}
		out = append(out, st)
	}
	return out
}

// sleepCtx sleeps for d or until ctx is done, reporting whether the full delay elapsed.
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
