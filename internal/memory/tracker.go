// Package memory keeps what the assistant knows about a user across
// turns: a per-user ring of recent conversation messages, and a
// durable file-backed store of saved memories with keyword and
// embedding recall.
package memory

import (
	"strings"
	"sync"
	"time"
)

// Message is one conversation turn. Intent and Quality are set on user
// messages only; CodeLang is set when the content carries a fenced
// code block.
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
	Intent    string    `json:"intent,omitempty"`
	Quality   float64   `json:"quality,omitempty"`
	CodeLang  string    `json:"codeLang,omitempty"`
}

type userLog struct {
	messages     []Message
	lastStamp    time.Time
	sinceSummary int
}

// stamp returns a timestamp strictly after every earlier one for this
// user, so the window stays ordered even under clock jitter.
func (u *userLog) stamp() time.Time {
	now := time.Now()
	if !now.After(u.lastStamp) {
		now = u.lastStamp.Add(time.Nanosecond)
	}
	u.lastStamp = now
	return now
}

// Tracker is the per-user conversation window. The window is bounded;
// the oldest turns fall off first. It also counts new messages per
// user so the pipeline knows when to distill a summary entry.
type Tracker struct {
	mu           sync.RWMutex
	window       int
	summaryEvery int
	users        map[string]*userLog
}

// NewTracker creates a tracker holding at most window messages per
// user, flagging a summary every summaryEvery new messages. Non
// positive arguments fall back to 15 and 8.
func NewTracker(window, summaryEvery int) *Tracker {
	if window <= 0 {
		window = 15
	}
	if summaryEvery <= 0 {
		summaryEvery = 8
	}
	return &Tracker{
		window:       window,
		summaryEvery: summaryEvery,
		users:        make(map[string]*userLog),
	}
}

// AddUser appends a user message. It is called on ingress, before any
// answer is generated.
func (t *Tracker) AddUser(userID, content, intentTag string, quality float64) {
	t.add(userID, Message{
		Role:     "user",
		Content:  content,
		Intent:   intentTag,
		Quality:  quality,
		CodeLang: fenceLang(content),
	})
}

// AddAssistant appends the assistant reply. It is called exactly once
// per request, after a successful done.
func (t *Tracker) AddAssistant(userID, content string) {
	t.add(userID, Message{
		Role:     "assistant",
		Content:  content,
		CodeLang: fenceLang(content),
	})
}

func (t *Tracker) add(userID string, m Message) {
	t.mu.Lock()
	defer t.mu.Unlock()

	u, ok := t.users[userID]
	if !ok {
		u = &userLog{}
		t.users[userID] = u
	}
	m.Timestamp = u.stamp()
	u.messages = append(u.messages, m)
	if len(u.messages) > t.window {
		u.messages = u.messages[len(u.messages)-t.window:]
	}
	u.sinceSummary++
}

// Recent returns a copy of the last n messages for a user, oldest
// first. n <= 0 returns the whole window.
func (t *Tracker) Recent(userID string, n int) []Message {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.users[userID]
	if !ok {
		return nil
	}
	msgs := u.messages
	if n > 0 && len(msgs) > n {
		msgs = msgs[len(msgs)-n:]
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out
}

// LastExchange returns the most recent user+assistant pair, for
// follow-up expansion. ok is false when no completed exchange exists.
func (t *Tracker) LastExchange(userID string) (user, assistant Message, ok bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, found := t.users[userID]
	if !found {
		return Message{}, Message{}, false
	}
	for i := len(u.messages) - 1; i >= 0; i-- {
		if u.messages[i].Role != "assistant" {
			continue
		}
		for j := i - 1; j >= 0; j-- {
			if u.messages[j].Role == "user" {
				return u.messages[j], u.messages[i], true
			}
		}
		return Message{}, Message{}, false
	}
	return Message{}, Message{}, false
}

// NeedsSummary reports whether enough new messages accumulated since
// the last summary. The caller produces the summary, stores it, and
// acknowledges with MarkSummarized.
func (t *Tracker) NeedsSummary(userID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()

	u, ok := t.users[userID]
	return ok && u.sinceSummary >= t.summaryEvery
}

// MarkSummarized resets the user's new-message counter.
func (t *Tracker) MarkSummarized(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if u, ok := t.users[userID]; ok {
		u.sinceSummary = 0
	}
}

// Clear drops a user's window.
func (t *Tracker) Clear(userID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.users, userID)
}

// Stats returns tracker counters for the stats endpoint.
func (t *Tracker) Stats() map[string]any {
	t.mu.RLock()
	defer t.mu.RUnlock()

	total := 0
	for _, u := range t.users {
		total += len(u.messages)
	}
	return map[string]any{
		"users":    len(t.users),
		"messages": total,
		"window":   t.window,
	}
}

// fenceLang returns the language tag of the first fenced code block,
// or "" when the content has no tagged fence.
func fenceLang(content string) string {
	i := strings.Index(content, "```")
	if i < 0 {
		return ""
	}
	rest := content[i+3:]
	nl := strings.IndexByte(rest, '\n')
	if nl <= 0 {
		return ""
	}
	lang := strings.TrimSpace(rest[:nl])
	if lang == "" || strings.ContainsAny(lang, " `") {
		return ""
	}
	return strings.ToLower(lang)
}
