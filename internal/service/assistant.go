package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"indexwatch/internal/domain"

	"github.com/google/uuid"
)

// CompletionBackend is the single-shot completion capability the assistant
// talks to. Implementations map transport and empty-completion failures to
// domain.ErrBackendFailure / domain.ErrAssistantNotConfigured.
type CompletionBackend interface {
	Complete(ctx context.Context, turns []domain.ConversationTurn) (string, error)
}

// Apology is the fixed reply users see when the backend fails.
// Conversational failures must never surface raw errors or crash the
// listener.
const Apology = "Sorry, I could not process that right now. Please try again in a moment."

const systemPrompt = "You are the assistant of an index watcher that samples the index price " +
	"every few minutes during exchange hours, keeps a bounded in-memory history, and pushes " +
	"periodic summaries to a chat channel. Answer questions about the watcher using ONLY the " +
	"state snapshot below. If the snapshot does not contain the answer, say so instead of guessing."

const shortAnswerDirective = "Keep the answer short, 50 words or fewer."
const detailedAnswerDirective = "The user asked for detail; explain thoroughly."

// DefaultDetailKeywords trigger the detailed answer directive.
var DefaultDetailKeywords = []string{"explain", "detail", "elaborate", "why", "how"}

const defaultHistoryTurns = 10 // last 5 user/assistant pairs

// Assistant answers free-text questions grounded on a ContextSnapshot,
// keeping a rolling per-chat conversation memory.
type Assistant struct {
	backend        CompletionBackend
	maxTurns       int
	detailKeywords []string

	mu       sync.Mutex
	sessions map[int64]*session
}

type session struct {
	id    string
	turns []domain.ConversationTurn
}

// NewAssistant creates an assistant with a rolling memory of maxTurns
// turns per chat (0 means the default of 10).
func NewAssistant(backend CompletionBackend, maxTurns int, detailKeywords []string) *Assistant {
	if maxTurns <= 0 {
		maxTurns = defaultHistoryTurns
	}
	if len(detailKeywords) == 0 {
		detailKeywords = DefaultDetailKeywords
	}
	return &Assistant{
		backend:        backend,
		maxTurns:       maxTurns,
		detailKeywords: detailKeywords,
	}
}

// Detailed classifies whether userText asks for an elaborate answer.
// Pure local decision: case-insensitive substring match against the
// configured keyword set, never delegated to the backend.
func (a *Assistant) Detailed(userText string) bool {
	lower := strings.ToLower(userText)
	for _, kw := range a.detailKeywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// Reply answers userText for chatID grounded on snap. On backend failure
// it returns the fixed apology and leaves the session memory untouched, so
// failed exchanges are never replayed to the backend.
func (a *Assistant) Reply(ctx context.Context, chatID int64, userText string, snap ContextSnapshot) string {
	reply, err := a.reply(ctx, chatID, userText, snap)
	if err != nil {
		slog.Warn("Assistant reply failed",
			slog.Int64("chat_id", chatID),
			slog.Any("error", err),
		)
		return Apology
	}
	return reply
}

func (a *Assistant) reply(ctx context.Context, chatID int64, userText string, snap ContextSnapshot) (string, error) {
	detailed := a.Detailed(userText)

	directive := shortAnswerDirective
	if detailed {
		directive = detailedAnswerDirective
	}
	system := systemPrompt + "\n\n" + directive + "\n\nCurrent state:\n" + snap.Render()

	sess := a.session(chatID)

	a.mu.Lock()
	history := make([]domain.ConversationTurn, len(sess.turns))
	copy(history, sess.turns)
	a.mu.Unlock()

	turns := make([]domain.ConversationTurn, 0, len(history)+2)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleSystem, Text: system})
	turns = append(turns, history...)
	turns = append(turns, domain.ConversationTurn{Role: domain.RoleUser, Text: userText})

	text, err := a.backend.Complete(ctx, turns)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return "", domain.ErrBackendFailure
	}

	a.remember(sess, userText, text)
	return text, nil
}

func (a *Assistant) session(chatID int64) *session {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.sessions == nil {
		a.sessions = make(map[int64]*session)
	}
	sess, ok := a.sessions[chatID]
	if !ok {
		sess = &session{id: uuid.NewString()}
		a.sessions[chatID] = sess
	}
	return sess
}

// remember appends the successful pair and trims from the front to keep
// the rolling bound.
func (a *Assistant) remember(sess *session, userText, replyText string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess.turns = append(sess.turns,
		domain.ConversationTurn{Role: domain.RoleUser, Text: userText},
		domain.ConversationTurn{Role: domain.RoleAssistant, Text: replyText},
	)
	if over := len(sess.turns) - a.maxTurns; over > 0 {
		sess.turns = append(sess.turns[:0:0], sess.turns[over:]...)
	}
}

// History returns a copy of the retained turns for chatID.
func (a *Assistant) History(chatID int64) []domain.ConversationTurn {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, ok := a.sessions[chatID]
	if !ok {
		return nil
	}
	out := make([]domain.ConversationTurn, len(sess.turns))
	copy(out, sess.turns)
	return out
}
