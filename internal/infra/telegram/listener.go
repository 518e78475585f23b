package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"indexwatch/internal/infra"
)

// Message is one inbound user message from a chat.
type Message struct {
	ChatID int64
	Text   string
}

// Listener long-polls getUpdates and delivers inbound messages on a
// channel. It never touches watcher state itself; the orchestrator's
// listener task consumes the channel.
type Listener struct {
	apiURL      string
	token       string
	pollTimeout time.Duration
	httpClient  *http.Client
	out         chan Message
	offset      int64
}

// ListenerOptions configures a Listener.
type ListenerOptions struct {
	APIURL             string
	Token              string
	PollTimeoutSeconds int
}

type update struct {
	UpdateID int64 `json:"update_id"`
	Message  *struct {
		Text string `json:"text"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
	} `json:"message"`
}

type getUpdatesResponse struct {
	OK     bool     `json:"ok"`
	Result []update `json:"result"`
}

// NewListener creates a long-polling listener.
func NewListener(opts ListenerOptions) *Listener {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	timeout := opts.PollTimeoutSeconds
	if timeout <= 0 {
		timeout = 30
	}
	return &Listener{
		apiURL:      apiURL,
		token:       opts.Token,
		pollTimeout: time.Duration(timeout) * time.Second,
		httpClient: &http.Client{
			// Must outlive the server-side long-poll hold.
			Timeout: time.Duration(timeout+10) * time.Second,
		},
		out: make(chan Message, 16),
	}
}

// Messages returns the inbound message channel.
func (l *Listener) Messages() <-chan Message {
	return l.out
}

// Run polls until ctx is cancelled. Poll errors back off and retry; the
// listener only stops on cancellation.
func (l *Listener) Run(ctx context.Context) {
	if l.token == "" {
		slog.Info("Inbound listener disabled: no bot token configured")
		return
	}

	slog.Info("Inbound listener started")
	retryCount := 0
	for {
		select {
		case <-ctx.Done():
			slog.Info("Inbound listener stopped")
			return
		default:
		}

		if _, err := l.poll(ctx); err != nil {
			if ctx.Err() != nil {
				slog.Info("Inbound listener stopped")
				return
			}
			delay := infra.CalculateBackoff(retryCount)
			retryCount++
			slog.Warn("getUpdates poll failed", slog.Any("error", err), slog.Duration("retry_in", delay))
			select {
			case <-ctx.Done():
				return
			case <-time.After(delay):
			}
			continue
		}
		retryCount = 0
	}
}

func (l *Listener) poll(ctx context.Context) (int, error) {
	url := fmt.Sprintf("%s/bot%s/getUpdates?timeout=%d&offset=%d",
		l.apiURL, l.token, int(l.pollTimeout.Seconds()), l.offset)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	resp, err := l.httpClient.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}

	var parsed getUpdatesResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, err
	}
	if !parsed.OK {
		return 0, fmt.Errorf("getUpdates returned ok=false")
	}

	delivered := 0
	for _, u := range parsed.Result {
		if u.UpdateID >= l.offset {
			l.offset = u.UpdateID + 1
		}
		if u.Message == nil || u.Message.Text == "" {
			continue
		}
		msg := Message{ChatID: u.Message.Chat.ID, Text: u.Message.Text}
		select {
		case l.out <- msg:
			delivered++
		case <-ctx.Done():
			return delivered, ctx.Err()
		}
	}
	return delivered, nil
}
