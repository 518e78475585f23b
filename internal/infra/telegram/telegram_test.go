package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"indexwatch/internal/domain"
)

func TestNotifier_NotConfigured(t *testing.T) {
	t.Run("no token", func(t *testing.T) {
		n := NewNotifier(NotifierOptions{DefaultChatID: 1})
		if err := n.Send(context.Background(), "hi"); !errors.Is(err, domain.ErrNotifyNotConfigured) {
			t.Errorf("Send = %v, want ErrNotifyNotConfigured", err)
		}
	})

	t.Run("no default chat", func(t *testing.T) {
		n := NewNotifier(NotifierOptions{Token: "tok"})
		if err := n.Send(context.Background(), "hi"); !errors.Is(err, domain.ErrNotifyNotConfigured) {
			t.Errorf("Send = %v, want ErrNotifyNotConfigured", err)
		}
	})
}

func TestNotifier_Send(t *testing.T) {
	var got sendMessageRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasSuffix(r.URL.Path, "/bottok/sendMessage") {
			t.Errorf("path = %s", r.URL.Path)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	n := NewNotifier(NotifierOptions{APIURL: srv.URL, Token: "tok", DefaultChatID: 42, RateLimitPerMin: 600})
	if err := n.Send(context.Background(), "index at 24500"); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if got.ChatID != 42 || got.Text != "index at 24500" {
		t.Errorf("payload = %+v", got)
	}
}

func TestNotifier_TransportFailure(t *testing.T) {
	t.Run("api error", func(t *testing.T) {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte(`{"ok":false,"description":"chat not found"}`))
		}))
		defer srv.Close()

		n := NewNotifier(NotifierOptions{APIURL: srv.URL, Token: "tok", DefaultChatID: 1, RateLimitPerMin: 600})
		err := n.Send(context.Background(), "hi")
		if !errors.Is(err, domain.ErrNotifyTransport) {
			t.Errorf("Send = %v, want ErrNotifyTransport", err)
		}
	})

	t.Run("connection refused", func(t *testing.T) {
		n := NewNotifier(NotifierOptions{APIURL: "http://127.0.0.1:1", Token: "tok", DefaultChatID: 1, RateLimitPerMin: 600})
		err := n.Send(context.Background(), "hi")
		if !errors.Is(err, domain.ErrNotifyTransport) {
			t.Errorf("Send = %v, want ErrNotifyTransport", err)
		}
	})
}

func TestListener_DeliversMessages(t *testing.T) {
	polls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		polls++
		if polls == 1 {
			if !strings.Contains(r.URL.RawQuery, "offset=0") {
				t.Errorf("first poll query = %s", r.URL.RawQuery)
			}
			w.Write([]byte(`{"ok":true,"result":[
				{"update_id":7,"message":{"text":"what's the price?","chat":{"id":42}}},
				{"update_id":8,"message":{"text":"","chat":{"id":42}}},
				{"update_id":9,"message":{"text":"why?","chat":{"id":43}}}
			]}`))
			return
		}
		if !strings.Contains(r.URL.RawQuery, "offset=10") {
			t.Errorf("follow-up poll should acknowledge update 9, query = %s", r.URL.RawQuery)
		}
		w.Write([]byte(`{"ok":true,"result":[]}`))
	}))
	defer srv.Close()

	l := NewListener(ListenerOptions{APIURL: srv.URL, Token: "tok", PollTimeoutSeconds: 1})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go l.Run(ctx)

	want := []Message{
		{ChatID: 42, Text: "what's the price?"},
		{ChatID: 43, Text: "why?"},
	}
	for _, w := range want {
		select {
		case got := <-l.Messages():
			if got != w {
				t.Errorf("message = %+v, want %+v", got, w)
			}
		case <-time.After(2 * time.Second):
			t.Fatal("timed out waiting for message")
		}
	}
}

func TestListener_NoTokenReturnsImmediately(t *testing.T) {
	l := NewListener(ListenerOptions{})
	done := make(chan struct{})
	go func() {
		l.Run(context.Background())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("listener without a token should return immediately")
	}
}
