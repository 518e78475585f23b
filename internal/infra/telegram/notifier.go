package telegram

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"indexwatch/internal/domain"

	"golang.org/x/time/rate"
)

// Notifier sends best-effort messages through the Telegram Bot API.
// Failures are advisory: callers log and continue, never retry here.
type Notifier struct {
	apiURL        string
	token         string
	defaultChatID int64
	httpClient    *http.Client
	limiter       *rate.Limiter
}

// NotifierOptions configures a Notifier. An empty token or chat id leaves
// the notifier unconfigured; sends then return ErrNotifyNotConfigured.
type NotifierOptions struct {
	APIURL          string
	Token           string
	DefaultChatID   int64
	RateLimitPerMin int
}

type sendMessageRequest struct {
	ChatID int64  `json:"chat_id"`
	Text   string `json:"text"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// NewNotifier creates a Telegram notifier.
func NewNotifier(opts NotifierOptions) *Notifier {
	apiURL := opts.APIURL
	if apiURL == "" {
		apiURL = "https://api.telegram.org"
	}
	perMin := opts.RateLimitPerMin
	if perMin <= 0 {
		perMin = 20
	}
	return &Notifier{
		apiURL:        apiURL,
		token:         opts.Token,
		defaultChatID: opts.DefaultChatID,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(perMin)), 3),
	}
}

// Send delivers text to the default chat.
func (n *Notifier) Send(ctx context.Context, text string) error {
	if n.defaultChatID == 0 {
		return domain.ErrNotifyNotConfigured
	}
	return n.SendTo(ctx, n.defaultChatID, text)
}

// SendTo delivers text to a specific chat.
func (n *Notifier) SendTo(ctx context.Context, chatID int64, text string) error {
	if n.token == "" {
		return domain.ErrNotifyNotConfigured
	}

	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotifyTransport, err)
	}

	body, err := json.Marshal(sendMessageRequest{ChatID: chatID, Text: text})
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotifyTransport, err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.apiURL, n.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotifyTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotifyTransport, domain.NewTransportError("send", err))
	}
	defer resp.Body.Close()

	var parsed apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrNotifyTransport, err)
	}
	if !parsed.OK {
		return fmt.Errorf("%w: %s", domain.ErrNotifyTransport, parsed.Description)
	}
	return nil
}
