package session

import (
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	openaisdk "github.com/openai/openai-go"
)

func testClock(start time.Time) (func() time.Time, func(time.Duration)) {
	var mu sync.Mutex
	now := start
	get := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}
	return get, advance
}

func userTurn(i int) Message {
	return openaisdk.UserMessage(fmt.Sprintf("user-%d", i))
}

func assistantTurn(i int) Message {
	return openaisdk.AssistantMessage(fmt.Sprintf("assistant-%d", i))
}

func encode(t *testing.T, msg Message) string {
	t.Helper()
	raw, err := json.Marshal(msg)
	if err != nil {
		t.Fatalf("marshal message: %v", err)
	}
	return string(raw)
}

func TestAcquireStartsEmpty(t *testing.T) {
	t.Parallel()

	st, err := NewStore(Config{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("+63917000001")
	defer release()
	if sess.Len() != 0 {
		t.Fatalf("new session must be empty, got %d messages", sess.Len())
	}
}

func TestCommitAppendsAndTouches(t *testing.T) {
	t.Parallel()

	now, advance := testClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	st, err := NewStore(Config{}, WithClock(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	advance(5 * time.Minute)
	st.Commit(sess, []Message{userTurn(1), assistantTurn(1)})
	release()

	if got := sess.LastActive(); !got.Equal(now()) {
		t.Fatalf("commit must touch last-active: got %v want %v", got, now())
	}
	if sess.Len() != 2 {
		t.Fatalf("expected 2 messages, got %d", sess.Len())
	}
}

func TestExpiredSessionIsReplaced(t *testing.T) {
	t.Parallel()

	now, advance := testClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	st, err := NewStore(Config{TTL: 30 * time.Minute}, WithClock(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	st.Commit(sess, []Message{userTurn(1), assistantTurn(1)})
	release()

	advance(31 * time.Minute)

	sess, release = st.Acquire("sender")
	defer release()
	if sess.Len() != 0 {
		t.Fatalf("idle session past TTL must start fresh, got %d messages", sess.Len())
	}
}

func TestFreshSessionSurvivesWithinTTL(t *testing.T) {
	t.Parallel()

	now, advance := testClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	st, err := NewStore(Config{TTL: 30 * time.Minute}, WithClock(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	st.Commit(sess, []Message{userTurn(1), assistantTurn(1)})
	release()

	advance(29 * time.Minute)

	sess, release = st.Acquire("sender")
	defer release()
	if sess.Len() != 2 {
		t.Fatalf("session within TTL must keep its transcript, got %d messages", sess.Len())
	}
}

func TestAcquireAloneDoesNotTouch(t *testing.T) {
	t.Parallel()

	now, advance := testClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	st, err := NewStore(Config{TTL: 30 * time.Minute}, WithClock(now))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	st.Commit(sess, []Message{userTurn(1), assistantTurn(1)})
	release()

	// Acquire without committing 20 minutes in; another 20 minutes later the
	// session must still expire because lookups do not refresh last-active.
	advance(20 * time.Minute)
	_, release = st.Acquire("sender")
	release()

	advance(20 * time.Minute)
	sess, release = st.Acquire("sender")
	defer release()
	if sess.Len() != 0 {
		t.Fatal("acquire must not refresh last-active")
	}
}

func TestTrimKeepsNewestSuffix(t *testing.T) {
	t.Parallel()

	st, err := NewStore(Config{MaxHistory: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	defer release()

	for i := 0; i < 4; i++ {
		st.Commit(sess, []Message{userTurn(i), assistantTurn(i)})
	}

	if sess.Len() != 4 {
		t.Fatalf("expected trimmed length 4, got %d", sess.Len())
	}

	want := []Message{userTurn(2), assistantTurn(2), userTurn(3), assistantTurn(3)}
	got := sess.Messages()
	for i := range want {
		if encode(t, got[i]) != encode(t, want[i]) {
			t.Fatalf("message %d: got %s want %s", i, encode(t, got[i]), encode(t, want[i]))
		}
	}
}

func TestTrimNeverSplitsExchangeGroup(t *testing.T) {
	t.Parallel()

	st, err := NewStore(Config{MaxHistory: 4})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	defer release()

	// A tool-heavy exchange: user, assistant tool request, tool result,
	// assistant reply. Committing two of them overflows the cap; the whole
	// older group must go, not its tail half.
	group := func(i int) []Message {
		return []Message{
			userTurn(i),
			assistantTurn(i),
			openaisdk.ToolMessage(`{"success":true}`, fmt.Sprintf("call-%d", i)),
			assistantTurn(i),
		}
	}
	st.Commit(sess, group(1))
	st.Commit(sess, group(2))

	if sess.Len() != 4 {
		t.Fatalf("expected only the newest group to remain, got %d messages", sess.Len())
	}
	first := encode(t, sess.Messages()[0])
	if first != encode(t, userTurn(2)) {
		t.Fatalf("oldest surviving message must start the newest group, got %s", first)
	}
}

func TestTrimKeepsOversizedNewestGroup(t *testing.T) {
	t.Parallel()

	st, err := NewStore(Config{MaxHistory: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sess, release := st.Acquire("sender")
	defer release()

	st.Commit(sess, []Message{userTurn(1), assistantTurn(1), assistantTurn(1), assistantTurn(1)})
	if sess.Len() != 4 {
		t.Fatalf("newest group must survive even over the cap, got %d", sess.Len())
	}
}

func TestStoreEvictsLeastRecentlyAcquired(t *testing.T) {
	t.Parallel()

	st, err := NewStore(Config{MaxSessions: 2})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, sender := range []string{"a", "b", "c"} {
		sess, release := st.Acquire(sender)
		st.Commit(sess, []Message{userTurn(1), assistantTurn(1)})
		release()
	}

	if st.Len() != 2 {
		t.Fatalf("store must stay within capacity, got %d senders", st.Len())
	}

	// "a" was evicted, so its next acquire starts a fresh transcript.
	sess, release := st.Acquire("a")
	defer release()
	if sess.Len() != 0 {
		t.Fatal("evicted sender must start over")
	}
}

func TestAcquireSerializesPerSender(t *testing.T) {
	t.Parallel()

	st, err := NewStore(Config{MaxHistory: 100})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			sess, release := st.Acquire("sender")
			defer release()
			st.Commit(sess, []Message{userTurn(i), assistantTurn(i)})
		}(i)
	}
	wg.Wait()

	sess, release := st.Acquire("sender")
	defer release()
	if sess.Len() != workers*2 {
		t.Fatalf("expected %d messages after %d serialized commits, got %d", workers*2, workers, sess.Len())
	}
}
