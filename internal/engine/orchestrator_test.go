package engine

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"indexwatch/internal/domain"
	"indexwatch/internal/infra/telegram"
	"indexwatch/internal/service"

	"github.com/shopspring/decimal"
)

type stubGate bool

func (g stubGate) IsOpen(time.Time) bool { return bool(g) }

type fakeQuotes struct {
	mu     sync.Mutex
	prices []string
	errs   []error
	calls  int
}

func (f *fakeQuotes) Quote(context.Context) (decimal.Decimal, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return decimal.Zero, f.errs[i]
	}
	if i < len(f.prices) {
		v, _ := decimal.NewFromString(f.prices[i])
		return v, nil
	}
	return decimal.NewFromInt(24500), nil
}

func (f *fakeQuotes) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type sentMsg struct {
	chatID int64
	text   string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentMsg
	fail error
}

func (f *fakeNotifier) Send(ctx context.Context, text string) error {
	return f.SendTo(ctx, 0, text)
}

func (f *fakeNotifier) SendTo(_ context.Context, chatID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return f.fail
	}
	f.sent = append(f.sent, sentMsg{chatID: chatID, text: text})
	return nil
}

func (f *fakeNotifier) messages() []sentMsg {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentMsg, len(f.sent))
	copy(out, f.sent)
	return out
}

type fixedBackend struct {
	reply string
	err   error
}

func (b *fixedBackend) Complete(context.Context, []domain.ConversationTurn) (string, error) {
	return b.reply, b.err
}

func newTestOrchestrator(gate stubGate, quotes *fakeQuotes, notifier *fakeNotifier, backend service.CompletionBackend, notifyEvery int) *Orchestrator {
	if backend == nil {
		backend = &fixedBackend{reply: "ok"}
	}
	return New(
		Options{
			Interval:          time.Millisecond,
			Backoff:           time.Millisecond,
			NotifyEveryNTicks: notifyEvery,
			ContextWindow:     5,
		},
		quotes,
		notifier,
		service.NewAssistant(backend, 0, nil),
		gate,
		service.NewHistory(10),
		service.NewStateStore(),
		service.NewAlertBook(),
		nil,
	)
}

func TestTick_AppendsObservation(t *testing.T) {
	quotes := &fakeQuotes{prices: []string{"24510.5"}}
	o := newTestOrchestrator(stubGate(true), quotes, &fakeNotifier{}, nil, 100)

	if err := o.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if o.history.Len() != 1 {
		t.Fatalf("history len = %d, want 1", o.history.Len())
	}
	st := o.states.Load()
	if !st.GateOpen || st.Iteration != 1 {
		t.Errorf("state = %+v", st)
	}
	if st.LastObservation == nil || !st.LastObservation.Price.Equal(decimal.NewFromFloat(24510.5)) {
		t.Errorf("last observation = %+v", st.LastObservation)
	}
}

func TestTick_QuoteErrorIsNoOp(t *testing.T) {
	quotes := &fakeQuotes{
		prices: []string{"", "24500"},
		errs:   []error{domain.ErrQuoteUnavailable, nil},
	}
	o := newTestOrchestrator(stubGate(true), quotes, &fakeNotifier{}, nil, 100)

	if err := o.tick(context.Background()); err != nil {
		t.Fatalf("a quote failure must not be a tick-level error, got %v", err)
	}
	if o.history.Len() != 0 {
		t.Error("failed fetch must not append an observation")
	}

	// The next tick proceeds normally.
	if err := o.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if o.history.Len() != 1 {
		t.Errorf("history len = %d, want 1 after recovery", o.history.Len())
	}
	if o.states.Load().Iteration != 2 {
		t.Errorf("iteration = %d, want 2", o.states.Load().Iteration)
	}
}

func TestTick_GateClosedSkipsSampling(t *testing.T) {
	quotes := &fakeQuotes{}
	o := newTestOrchestrator(stubGate(false), quotes, &fakeNotifier{}, nil, 100)

	if err := o.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}

	if quotes.callCount() != 0 {
		t.Error("closed gate must not fetch a quote")
	}
	if o.history.Len() != 0 {
		t.Error("closed gate must not append observations")
	}
	if st := o.states.Load(); st.GateOpen {
		t.Error("published state should show the gate closed")
	}
}

func TestTick_SummaryEveryKth(t *testing.T) {
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(stubGate(true), &fakeQuotes{}, notifier, nil, 2)

	for i := 0; i < 5; i++ {
		if err := o.tick(context.Background()); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	summaries := 0
	for _, m := range notifier.messages() {
		if strings.Contains(m.text, "samples held") {
			summaries++
		}
	}
	if summaries != 2 {
		t.Errorf("sent %d summaries over 5 ticks with K=2, want 2", summaries)
	}
}

func TestTick_NotifierNotConfigured(t *testing.T) {
	notifier := &fakeNotifier{fail: domain.ErrNotifyNotConfigured}
	o := newTestOrchestrator(stubGate(true), &fakeQuotes{}, notifier, nil, 1)

	// Every tick would notify; the failure must stay invisible to the loop.
	if err := o.tick(context.Background()); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if o.history.Len() != 1 {
		t.Error("history must still be updated when notification fails")
	}
}

func TestTick_PanicBecomesBackoffError(t *testing.T) {
	o := newTestOrchestrator(stubGate(true), &fakeQuotes{}, &fakeNotifier{}, nil, 100)
	o.quotes = nil // force a nil-dereference panic inside the tick

	if err := o.safeTick(context.Background()); err == nil {
		t.Fatal("safeTick should convert a panic into an error")
	}
}

func TestTick_FiresAlerts(t *testing.T) {
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(stubGate(true), &fakeQuotes{prices: []string{"24400", "25100"}}, notifier, nil, 100)

	cur, _ := decimal.NewFromString("24400")
	target, _ := decimal.NewFromString("25000")
	o.alerts.Arm(domain.NewPriceAlert(77, target, cur, false))

	o.tick(context.Background()) // 24400, below target
	o.tick(context.Background()) // 25100, crosses

	var alertMsgs []sentMsg
	for _, m := range notifier.messages() {
		if strings.Contains(m.text, "Price alert") {
			alertMsgs = append(alertMsgs, m)
		}
	}
	if len(alertMsgs) != 1 {
		t.Fatalf("got %d alert messages, want 1", len(alertMsgs))
	}
	if alertMsgs[0].chatID != 77 {
		t.Errorf("alert went to chat %d, want 77", alertMsgs[0].chatID)
	}
}

func TestHandleMessage_StatusCommand(t *testing.T) {
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(stubGate(true), &fakeQuotes{prices: []string{"24500"}}, notifier, nil, 100)
	o.tick(context.Background())

	o.handleMessage(context.Background(), telegram.Message{ChatID: 9, Text: "/status"})

	msgs := notifier.messages()
	if len(msgs) != 1 || msgs[0].chatID != 9 {
		t.Fatalf("messages = %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "current_price: 24500") {
		t.Errorf("/status reply missing price:\n%s", msgs[0].text)
	}
}

func TestHandleMessage_AlertCommands(t *testing.T) {
	notifier := &fakeNotifier{}
	o := newTestOrchestrator(stubGate(true), &fakeQuotes{prices: []string{"24500"}}, notifier, nil, 100)

	t.Run("before first sample", func(t *testing.T) {
		o.handleMessage(context.Background(), telegram.Message{ChatID: 9, Text: "/alert 25000"})
		msgs := notifier.messages()
		if !strings.Contains(msgs[len(msgs)-1].text, "No price sample yet") {
			t.Errorf("reply = %q", msgs[len(msgs)-1].text)
		}
	})

	o.tick(context.Background())

	t.Run("arm and list", func(t *testing.T) {
		o.handleMessage(context.Background(), telegram.Message{ChatID: 9, Text: "/alert 25000 keep"})
		o.handleMessage(context.Background(), telegram.Message{ChatID: 9, Text: "/alerts"})

		msgs := notifier.messages()
		last := msgs[len(msgs)-1].text
		if !strings.Contains(last, "1 active alert") || !strings.Contains(last, "persistent") {
			t.Errorf("alerts listing = %q", last)
		}
	})

	t.Run("bad price", func(t *testing.T) {
		o.handleMessage(context.Background(), telegram.Message{ChatID: 9, Text: "/alert soon"})
		msgs := notifier.messages()
		if !strings.Contains(msgs[len(msgs)-1].text, "not a valid price") {
			t.Errorf("reply = %q", msgs[len(msgs)-1].text)
		}
	})

	t.Run("clear", func(t *testing.T) {
		o.handleMessage(context.Background(), telegram.Message{ChatID: 9, Text: "/clear"})
		msgs := notifier.messages()
		if !strings.Contains(msgs[len(msgs)-1].text, "Disarmed 1") {
			t.Errorf("reply = %q", msgs[len(msgs)-1].text)
		}
	})
}

func TestHandleMessage_AssistantPath(t *testing.T) {
	t.Run("backend reply is forwarded", func(t *testing.T) {
		notifier := &fakeNotifier{}
		o := newTestOrchestrator(stubGate(true), &fakeQuotes{}, notifier, &fixedBackend{reply: "all good"}, 100)

		o.handleMessage(context.Background(), telegram.Message{ChatID: 5, Text: "how are things?"})

		msgs := notifier.messages()
		if len(msgs) != 1 || msgs[0].text != "all good" || msgs[0].chatID != 5 {
			t.Errorf("messages = %+v", msgs)
		}
	})

	t.Run("backend failure yields apology", func(t *testing.T) {
		notifier := &fakeNotifier{}
		o := newTestOrchestrator(stubGate(true), &fakeQuotes{}, notifier, &fixedBackend{err: domain.ErrBackendFailure}, 100)

		o.handleMessage(context.Background(), telegram.Message{ChatID: 5, Text: "hello"})

		msgs := notifier.messages()
		if len(msgs) != 1 || msgs[0].text != service.Apology {
			t.Errorf("messages = %+v", msgs)
		}
	})
}

func TestRun_StartStopLifecycle(t *testing.T) {
	notifier := &fakeNotifier{}
	inbox := make(chan telegram.Message)
	o := New(
		Options{Interval: 5 * time.Millisecond, Backoff: 5 * time.Millisecond, NotifyEveryNTicks: 1000, ContextWindow: 5},
		&fakeQuotes{},
		notifier,
		service.NewAssistant(&fixedBackend{reply: "ok"}, 0, nil),
		stubGate(true),
		service.NewHistory(10),
		service.NewStateStore(),
		service.NewAlertBook(),
		inbox,
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		o.Run(ctx)
		close(done)
	}()

	time.Sleep(25 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	if o.Phase() != PhaseStopped {
		t.Errorf("phase = %s, want stopped", o.Phase())
	}
	if st := o.states.Load(); st.Running {
		t.Error("final state must not be running")
	}

	msgs := notifier.messages()
	if len(msgs) < 2 {
		t.Fatalf("expected start and stop notifications, got %+v", msgs)
	}
	if !strings.Contains(msgs[0].text, "started") {
		t.Errorf("first message = %q", msgs[0].text)
	}
	if !strings.Contains(msgs[len(msgs)-1].text, "stopped") {
		t.Errorf("last message = %q", msgs[len(msgs)-1].text)
	}
	if o.history.Len() == 0 {
		t.Error("loop should have sampled at least once before stopping")
	}
}
