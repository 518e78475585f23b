package engine

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"indexwatch/internal/domain"
	"indexwatch/internal/infra"
	"indexwatch/internal/infra/telegram"
	"indexwatch/internal/service"

	"github.com/shopspring/decimal"
)

// QuoteSource is the price-fetch capability the tick loop samples from.
type QuoteSource interface {
	Quote(ctx context.Context) (decimal.Decimal, error)
}

// Gate decides whether an instant falls inside the trading window.
type Gate interface {
	IsOpen(now time.Time) bool
}

// Notifier is the outbound message capability. Failures are advisory.
type Notifier interface {
	Send(ctx context.Context, text string) error
	SendTo(ctx context.Context, chatID int64, text string) error
}

// Phase is the orchestrator lifecycle state.
type Phase int32

const (
	PhaseInitializing Phase = iota
	PhaseRunning
	PhaseBackoff
	PhaseStopping
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseInitializing:
		return "initializing"
	case PhaseRunning:
		return "running"
	case PhaseBackoff:
		return "backoff"
	case PhaseStopping:
		return "stopping"
	case PhaseStopped:
		return "stopped"
	}
	return "unknown"
}

// Options are the scheduling knobs.
type Options struct {
	AppName           string
	Interval          time.Duration // nominal tick sleep
	Backoff           time.Duration // shortened sleep after a tick-level error
	NotifyEveryNTicks int           // summary cadence while sampling
	ContextWindow     int           // max recent observations fed to the assistant
}

// Orchestrator drives the scheduling loop: gate check, sample, record,
// conditional notify, sleep. It is the single writer of the history and
// the live state; the listener task only reads them through snapshots.
type Orchestrator struct {
	opts      Options
	quotes    QuoteSource
	notifier  Notifier
	assistant *service.Assistant
	hours     Gate
	history   *service.History
	states    *service.StateStore
	alerts    *service.AlertBook
	inbox     <-chan telegram.Message
	metrics   *infra.Metrics

	phase     atomic.Int32
	iteration int64
}

// New creates an orchestrator. inbox may be nil when no chat surface is
// configured; the listener task then idles until shutdown.
func New(
	opts Options,
	quotes QuoteSource,
	notifier Notifier,
	assistant *service.Assistant,
	hours Gate,
	history *service.History,
	states *service.StateStore,
	alerts *service.AlertBook,
	inbox <-chan telegram.Message,
) *Orchestrator {
	if opts.Interval <= 0 {
		opts.Interval = 300 * time.Second
	}
	if opts.Backoff <= 0 {
		opts.Backoff = 60 * time.Second
	}
	if opts.NotifyEveryNTicks <= 0 {
		opts.NotifyEveryNTicks = 12
	}
	if opts.ContextWindow <= 0 {
		opts.ContextWindow = 10
	}
	if opts.AppName == "" {
		opts.AppName = "indexwatch"
	}
	return &Orchestrator{
		opts:      opts,
		quotes:    quotes,
		notifier:  notifier,
		assistant: assistant,
		hours:     hours,
		history:   history,
		states:    states,
		alerts:    alerts,
		inbox:     inbox,
		metrics:   infra.GlobalMetrics,
	}
}

// Phase returns the current lifecycle phase.
func (o *Orchestrator) Phase() Phase {
	return Phase(o.phase.Load())
}

func (o *Orchestrator) setPhase(p Phase) {
	old := Phase(o.phase.Swap(int32(p)))
	if old != p {
		slog.Info("State transition",
			slog.String("from", old.String()),
			slog.String("to", p.String()),
		)
	}
}

// Run executes the tick loop until ctx is cancelled, hosting the inbound
// listener as an independent task. It only returns once the orchestrator
// has reached the stopped state.
func (o *Orchestrator) Run(ctx context.Context) {
	o.setPhase(PhaseRunning)
	o.states.Publish(domain.LiveState{Running: true})

	o.bestEffortNotify(ctx, fmt.Sprintf("%s started, watching the index", o.opts.AppName))

	listenerDone := make(chan struct{})
	go func() {
		defer close(listenerDone)
		o.listen(ctx)
	}()

	for {
		delay := o.opts.Interval
		if err := o.safeTick(ctx); err != nil {
			o.setPhase(PhaseBackoff)
			slog.Error("Tick failed, backing off",
				slog.Any("error", err),
				slog.Duration("backoff", o.opts.Backoff),
			)
			delay = o.opts.Backoff
		}

		select {
		case <-ctx.Done():
			o.shutdown(listenerDone)
			return
		case <-time.After(delay):
		}
		o.setPhase(PhaseRunning)
	}
}

// shutdown runs the stop path: best-effort stop notification within a
// bounded grace period, final state publish, terminal phase.
func (o *Orchestrator) shutdown(listenerDone <-chan struct{}) {
	o.setPhase(PhaseStopping)

	// The run context is already cancelled; give the farewell its own
	// bounded one.
	graceCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	o.bestEffortNotify(graceCtx, fmt.Sprintf("%s stopped", o.opts.AppName))

	st := o.states.Load()
	st.Running = false
	o.states.Publish(st)

	select {
	case <-listenerDone:
	case <-graceCtx.Done():
		slog.Warn("Listener did not stop within the grace period")
	}

	o.setPhase(PhaseStopped)
	slog.Info("Watcher stopped", slog.Any("metrics", o.metrics.Snapshot()))
}

// safeTick runs one tick, converting a panic into a tick-level error so
// the loop backs off instead of dying.
func (o *Orchestrator) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()
	return o.tick(ctx)
}

// tick is one scheduling iteration. A quote failure is a no-op tick, not
// an error: nothing is appended and the loop keeps its nominal cadence.
func (o *Orchestrator) tick(ctx context.Context) error {
	o.iteration++
	o.metrics.RecordTick()

	now := time.Now()
	open := o.hours.IsOpen(now)

	if !open {
		slog.Debug("Market closed, skipping sample", slog.Int64("iteration", o.iteration))
		o.publishState(false, nil)
		return nil
	}

	price, err := o.quotes.Quote(ctx)
	if err != nil {
		o.metrics.RecordQuoteError()
		slog.Warn("Quote fetch failed",
			slog.Int64("iteration", o.iteration),
			slog.Any("error", err),
		)
		o.publishState(true, nil)
		return nil
	}

	obs := domain.Observation{At: now, Price: price, MarketOpen: true}
	o.history.Append(obs)
	o.metrics.RecordObservation()
	o.publishState(true, &obs)

	slog.Info("Sampled index price",
		slog.Int64("iteration", o.iteration),
		slog.String("price", price.String()),
		slog.Int("history", o.history.Len()),
	)

	o.fireAlerts(ctx, price)

	if o.iteration%int64(o.opts.NotifyEveryNTicks) == 0 {
		o.bestEffortNotify(ctx, o.summary(price))
	}
	return nil
}

// publishState publishes a fresh immutable live state. A nil obs keeps
// the previous last observation.
func (o *Orchestrator) publishState(gateOpen bool, obs *domain.Observation) {
	st := o.states.Load()
	st.Running = true
	st.Iteration = o.iteration
	st.GateOpen = gateOpen
	if obs != nil {
		st.LastObservation = obs
	}
	o.states.Publish(st)
}

func (o *Orchestrator) summary(price decimal.Decimal) string {
	return fmt.Sprintf("%s: index at %s, %d samples held",
		o.opts.AppName, price.String(), o.history.Len())
}

func (o *Orchestrator) fireAlerts(ctx context.Context, price decimal.Decimal) {
	for _, a := range o.alerts.Fire(price) {
		o.metrics.RecordAlertFired()
		text := fmt.Sprintf("Price alert: index crossed %s (%s), now at %s",
			a.Target.String(), a.Direction, price.String())
		if err := o.notifier.SendTo(ctx, a.ChatID, text); err != nil {
			slog.Warn("Alert notification failed", slog.Any("error", err))
		}
	}
}

// bestEffortNotify logs and swallows notification failures; they never
// affect the loop.
func (o *Orchestrator) bestEffortNotify(ctx context.Context, text string) {
	err := o.notifier.Send(ctx, text)
	switch {
	case err == nil:
		o.metrics.RecordNotify(true)
	case domain.IsRetriable(err):
		o.metrics.RecordNotify(false)
		slog.Warn("Notification failed", slog.Any("error", err))
	default:
		o.metrics.RecordNotify(false)
		slog.Warn("Notification dropped", slog.Any("error", err))
	}
}

// listen is the inbound-message task. Per message it performs one
// assistant round-trip (or a local command) and replies to the
// originating chat.
func (o *Orchestrator) listen(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-o.inbox:
			if !ok {
				return
			}
			o.handleMessage(ctx, msg)
		}
	}
}

func (o *Orchestrator) handleMessage(ctx context.Context, msg telegram.Message) {
	var reply string
	if strings.HasPrefix(msg.Text, "/") {
		reply = o.handleCommand(msg)
	} else {
		snap := service.BuildContext(o.states.Load(), o.history, o.opts.ContextWindow)
		reply = o.assistant.Reply(ctx, msg.ChatID, msg.Text, snap)
		o.metrics.RecordAssistant(reply != service.Apology)
	}

	if err := o.notifier.SendTo(ctx, msg.ChatID, reply); err != nil {
		slog.Warn("Reply delivery failed",
			slog.Int64("chat_id", msg.ChatID),
			slog.Any("error", err),
		)
	}
}

// handleCommand dispatches the small local command set without touching
// the completion backend.
func (o *Orchestrator) handleCommand(msg telegram.Message) string {
	fields := strings.Fields(msg.Text)
	switch strings.ToLower(fields[0]) {
	case "/status":
		return service.BuildContext(o.states.Load(), o.history, o.opts.ContextWindow).Render()

	case "/alert":
		if len(fields) < 2 {
			return "Usage: /alert <price> [keep]"
		}
		target, err := decimal.NewFromString(fields[1])
		if err != nil || !target.IsPositive() {
			return fmt.Sprintf("%q is not a valid price", fields[1])
		}
		st := o.states.Load()
		if st.LastObservation == nil {
			return "No price sample yet; try again after the next tick"
		}
		persistent := len(fields) > 2 && strings.EqualFold(fields[2], "keep")
		a := domain.NewPriceAlert(msg.ChatID, target, st.LastObservation.Price, persistent)
		o.alerts.Arm(a)
		return fmt.Sprintf("Alert armed: notify when the index crosses %s (%s)",
			a.Target.String(), a.Direction)

	case "/alerts":
		active := o.alerts.Active(msg.ChatID)
		if len(active) == 0 {
			return "No active alerts"
		}
		var b strings.Builder
		fmt.Fprintf(&b, "%d active alert(s):\n", len(active))
		for _, a := range active {
			fmt.Fprintf(&b, "  %s %s", a.Direction, a.Target.String())
			if a.Persistent {
				b.WriteString(" (persistent)")
			}
			b.WriteByte('\n')
		}
		return b.String()

	case "/clear":
		n := o.alerts.Clear(msg.ChatID)
		return fmt.Sprintf("Disarmed %d alert(s)", n)
	}

	return "Commands: /status, /alert <price> [keep], /alerts, /clear - anything else goes to the assistant"
}
