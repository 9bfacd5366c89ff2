package panel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/looplab/fsm"

	"paradox-go-home/internal/metrics"
	"paradox-go-home/internal/protocol"
	"paradox-go-home/internal/state"
)

// Session states.
const (
	StateDisconnected = "disconnected"
	StateLoggingIn    = "logging_in"
	StateConnected    = "connected"
)

const (
	evLogin       = "login"
	evLoginOK     = "login_ok"
	evLoginFailed = "login_failed"
	evLost        = "lost"
)

// opportunisticWait bounds the read done before each burst command.
const opportunisticWait = 100 * time.Millisecond

// LabelStore persists harvested labels.
type LabelStore interface {
	SaveLabel(kind protocol.LabelType, n int, label string) error
}

// Config holds the session schedule and model.
type Config struct {
	Model        protocol.Model
	Tick         time.Duration
	KeepAlive    time.Duration
	ReadLabels   time.Duration
	PublishAll   time.Duration
	InitInterval time.Duration
	OutputPulse  time.Duration
	ReplyTimeout time.Duration
	MaxTries     int
	TimeDiff     time.Duration
	QueueSize    int
}

func (c *Config) applyDefaults() {
	if c.Tick <= 0 {
		c.Tick = 100 * time.Millisecond
	}
	if c.KeepAlive <= 0 {
		c.KeepAlive = 9 * time.Second
	}
	if c.ReadLabels <= 0 {
		c.ReadLabels = 15 * time.Minute
	}
	if c.PublishAll <= 0 {
		c.PublishAll = time.Minute
	}
	if c.InitInterval <= 0 {
		c.InitInterval = 24 * time.Hour
	}
	if c.OutputPulse <= 0 {
		c.OutputPulse = time.Second
	}
	if c.ReplyTimeout <= 0 {
		c.ReplyTimeout = time.Second
	}
	if c.MaxTries <= 0 {
		c.MaxTries = 3
	}
	if c.QueueSize <= 0 {
		c.QueueSize = 32
	}
}

// Session is the single owner of the link. Run drives everything from one
// goroutine; Submit and RequestInit may be called from any goroutine.
type Session struct {
	cfg    Config
	link   Link
	store  *state.Store
	events state.Emitter
	corr   *Correlator
	disp   *Dispatcher
	regs   protocol.RegisterMap
	fsm    *fsm.FSM
	now    func() time.Time
	logger *slog.Logger

	commands chan Action
	initReq  chan struct{}

	nextKeepAlive time.Time
	nextLabels    time.Time
	nextPublish   time.Time
	nextInit      time.Time
	nextPulse     time.Time
}

// NewSession wires the correlator and dispatcher around link.
// labels may be nil.
func NewSession(cfg Config, link Link, store *state.Store, events state.Emitter, labels LabelStore, logger *slog.Logger) *Session {
	cfg.applyDefaults()
	s := &Session{
		cfg:      cfg,
		link:     link,
		store:    store,
		events:   events,
		regs:     cfg.Model.Info().Registers,
		now:      time.Now,
		logger:   logger.With("component", "session"),
		commands: make(chan Action, cfg.QueueSize),
		initReq:  make(chan struct{}, 1),
	}
	s.corr = NewCorrelator(link, cfg.ReplyTimeout, cfg.MaxTries, logger)
	s.disp = NewDispatcher(DispatcherConfig{
		Store:    store,
		Link:     link,
		Sender:   s.corr,
		Model:    cfg.Model,
		Labels:   labels,
		TimeDiff: cfg.TimeDiff,
		Now:      func() time.Time { return s.now() },
		Logger:   logger,
	})
	s.fsm = fsm.NewFSM(
		StateDisconnected,
		fsm.Events{
			{Name: evLogin, Src: []string{StateDisconnected, StateConnected}, Dst: StateLoggingIn},
			{Name: evLoginOK, Src: []string{StateLoggingIn}, Dst: StateConnected},
			{Name: evLoginFailed, Src: []string{StateLoggingIn}, Dst: StateDisconnected},
			{Name: evLost, Src: []string{StateConnected}, Dst: StateDisconnected},
		},
		fsm.Callbacks{
			"enter_state": s.onEnterState,
		},
	)
	return s
}

func (s *Session) onEnterState(_ context.Context, e *fsm.Event) {
	s.logger.Info("session state", "from", e.Src, "to", e.Dst)
	metrics.Connected.Set(0)
	if e.Dst == StateConnected {
		metrics.Connected.Set(1)
	}
	if s.events != nil {
		s.events.Emit(state.Event{Type: state.EventConnection, Data: state.ConnectionState{State: e.Dst, Time: s.now()}})
	}
}

// State returns the current session state.
func (s *Session) State() string {
	return s.fsm.Current()
}

func (s *Session) transition(ctx context.Context, event string) {
	if err := s.fsm.Event(ctx, event); err != nil {
		var noTransition fsm.NoTransitionError
		if !errors.As(err, &noTransition) {
			s.logger.Debug("state transition rejected", "event", event, "err", err)
		}
	}
}

// Submit validates c and queues it for the session goroutine.
func (s *Session) Submit(c Command) error {
	a, err := ParseCommand(c, s.store.Config())
	if err != nil {
		metrics.Commands.WithLabelValues(string(c.Kind), "invalid").Inc()
		s.logger.Error("rejected command", "err", err)
		return err
	}
	select {
	case s.commands <- a:
		metrics.Commands.WithLabelValues(a.Op.String(), "queued").Inc()
		s.logger.Info("command queued", "command", c.String())
		return nil
	default:
		metrics.Commands.WithLabelValues(a.Op.String(), "dropped").Inc()
		return fmt.Errorf("panel: command queue full, dropping %s", c)
	}
}

// RequestInit schedules a topology re-announcement on the next tick.
func (s *Session) RequestInit() {
	select {
	case s.initReq <- struct{}{}:
	default:
	}
}

// Run drives the session until ctx is done.
func (s *Session) Run(ctx context.Context) error {
	s.logger.Info("session started", "model", s.cfg.Model.String())
	ticker := time.NewTicker(s.cfg.Tick)
	defer ticker.Stop()
	for {
		s.step(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// step runs one tick of the schedule.
func (s *Session) step(ctx context.Context) {
	if s.link.Available() >= protocol.FrameSize {
		if frame, ok := s.link.ReadFrame(0); ok {
			s.disp.Process(frame)
		}
	}

	if !s.store.SoftwareConnected() {
		if s.State() == StateConnected {
			s.logger.Warn("panel dropped the software connection")
			s.transition(ctx, evLost)
		}
		s.login(ctx)
	}

	s.drainCommands()

	online := s.State() == StateConnected
	if online && s.due(s.nextLabels) {
		s.readLabels()
		s.nextLabels = s.now().Add(s.cfg.ReadLabels)
	}
	if online && s.due(s.nextKeepAlive) {
		s.keepAlive()
		s.nextKeepAlive = s.now().Add(s.cfg.KeepAlive)
	}

	forceInit := false
	select {
	case <-s.initReq:
		forceInit = true
	default:
	}
	if forceInit || s.due(s.nextInit) {
		s.emitSnapshot(state.EventInit)
		s.nextInit = s.now().Add(s.cfg.InitInterval)
	}
	if s.due(s.nextPublish) {
		s.emitSnapshot(state.EventSnapshot)
		s.nextPublish = s.now().Add(s.cfg.PublishAll)
	}
	if online && s.due(s.nextPulse) {
		s.pulseOutputs()
		s.nextPulse = s.now().Add(s.cfg.OutputPulse)
	}
}

func (s *Session) due(next time.Time) bool {
	return !s.now().Before(next)
}

func (s *Session) emitSnapshot(typ string) {
	if s.events == nil {
		return
	}
	s.events.Emit(state.Event{Type: typ, Data: s.store.Snapshot()})
}

// sendAndProcess sends payload and dispatches the reply, if any.
func (s *Session) sendAndProcess(payload []byte) ([]byte, error) {
	reply, err := s.corr.SendAndAwait(payload)
	if err != nil {
		return nil, err
	}
	s.disp.Process(reply)
	return reply, nil
}

// exchange runs one command of a burst. The correlator already reports
// timeouts, and a missing reply does not end the burst.
func (s *Session) exchange(name string, payload []byte) {
	if _, err := s.sendAndProcess(payload); err != nil {
		s.logger.Debug("burst command failed", "command", name, "err", err)
	}
}

// opportunisticRead dispatches a frame that is already on its way.
func (s *Session) opportunisticRead() {
	if frame, ok := s.link.ReadFrame(opportunisticWait); ok {
		s.disp.Process(frame)
	}
}

// login runs the software connection handshake.
func (s *Session) login(ctx context.Context) {
	s.transition(ctx, evLogin)
	s.logger.Info("software connecting to alarm")

	s.exchange("start communication", protocol.StartCommunication())
	s.exchange("status", protocol.StatusRequest(0))
	reply, err := s.sendAndProcess(protocol.InitRequest())
	if err != nil {
		metrics.Logins.WithLabelValues("failed").Inc()
		s.logger.Warn("login failed, will retry", "err", err)
		s.transition(ctx, evLoginFailed)
		return
	}
	init, err := protocol.InitCommunication(reply)
	if err != nil {
		s.logger.Error("initialize communication", "err", err)
	} else {
		s.exchange("initialize communication", init)
	}
	s.exchange("keep-alive final", protocol.KeepAliveFinal())
	s.exchange("zero read", protocol.ZeroRead())
	s.exchange("login tail", protocol.LoginTail())

	s.store.SetSoftwareConnected(true)
	if err := s.link.FlushInput(); err != nil {
		s.logger.Error("flush input failed", "err", err)
	}
	metrics.Logins.WithLabelValues("ok").Inc()
	s.transition(ctx, evLoginOK)
}

// keepAlive polls status sequences 0..6 and closes the burst.
func (s *Session) keepAlive() {
	s.logger.Debug("sending keep alive")
	for seq := byte(0); seq < 7; seq++ {
		s.opportunisticRead()
		s.exchange("status", protocol.StatusRequest(seq))
	}
	s.exchange("keep-alive final", protocol.KeepAliveFinal())
}

// readLabels harvests all label registers, two labels per read.
func (s *Session) readLabels() {
	s.logger.Info("reading labels")
	cfg := s.store.Config()
	s.harvest(protocol.LabelZone, cfg.Zones)
	s.harvest(protocol.LabelUser, cfg.Users)
	s.harvest(protocol.LabelPartition, protocol.Partitions)
	s.harvest(protocol.LabelOutput, cfg.Outputs)
	s.logger.Info("read labels")
}

func (s *Session) harvest(kind protocol.LabelType, count int) {
	for first := 1; first <= count; first += 2 {
		s.opportunisticRead()
		cmd, err := s.regs.LabelRead(kind, first)
		if err != nil {
			s.logger.Error("label read", "err", err)
			return
		}
		reply, err := s.corr.SendAndAwait(cmd)
		if err != nil {
			continue
		}
		a, aok, b, bok := protocol.LabelPair(reply)
		s.applyLabel(kind, first, a, aok)
		if first+1 <= count {
			s.applyLabel(kind, first+1, b, bok)
		}
	}
}

func (s *Session) applyLabel(kind protocol.LabelType, n int, label string, ok bool) {
	if ok {
		s.disp.saveLabel(kind, n, label)
	}
}

func (s *Session) drainCommands() {
	for {
		select {
		case a := <-s.commands:
			s.execute(a)
		default:
			return
		}
	}
}

func (s *Session) execute(a Action) {
	var err error
	switch a.Op {
	case OpArm:
		err = s.controlAlarm(a.Target, a.Mode)
	case OpOutput:
		err = s.setOutput(a.Target, a.On, true)
	case OpPulse:
		if a.On {
			s.logger.Info("activating pulse on output", "output", a.Target)
			err = s.store.SetOutput(a.Target, state.OutputPulse, true)
		} else {
			s.logger.Info("deactivating pulse on output", "output", a.Target)
			err = s.setOutput(a.Target, false, true)
		}
	case OpBypass:
		s.logger.Info("sending bypass command", "zone", a.Target)
		err = s.corr.SendMessage(protocol.Bypass(a.Target))
	}
	result := "sent"
	if err != nil {
		result = "failed"
		s.logger.Error("command failed", "op", a.Op.String(), "target", a.Target, "err", err)
	}
	metrics.Commands.WithLabelValues(a.Op.String(), result).Inc()
}

func (s *Session) controlAlarm(partition int, mode protocol.ArmMode) error {
	payload, err := s.regs.ControlAlarm(partition, mode)
	if err != nil {
		return err
	}
	s.logger.Info("setting partition", "partition", partition, "mode", mode.Text())
	return s.corr.SendMessage(payload)
}

// setOutput switches an output. stopPulse also clears its pulse flag.
func (s *Session) setOutput(n int, on, stopPulse bool) error {
	payload, err := s.regs.ControlOutput(n, on)
	if err != nil {
		return err
	}
	s.logger.Info("switching output", "output", n, "on", on)
	if err := s.corr.SendMessage(payload); err != nil {
		return err
	}
	if err := s.store.SetOutput(n, state.OutputOn, on); err != nil {
		return err
	}
	if stopPulse {
		return s.store.SetOutput(n, state.OutputPulse, false)
	}
	return nil
}

func (s *Session) pulseOutputs() {
	for _, n := range s.store.PulsingOutputs() {
		o, err := s.store.Output(n)
		if err != nil {
			continue
		}
		if err := s.setOutput(n, !o.On, false); err != nil {
			s.logger.Error("pulse output", "output", n, "err", err)
		}
	}
}
