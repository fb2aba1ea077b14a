package session

import (
	"container/list"
	"errors"
	"sync"
	"time"
)

const (
	defaultTTL         = 30 * time.Minute
	defaultMaxHistory  = 20
	defaultMaxSessions = 1024
)

// Config bounds the in-process session store.
type Config struct {
	TTL         time.Duration `split_words:"true" default:"30m"`
	MaxHistory  int           `split_words:"true" default:"20"`
	MaxSessions int           `split_words:"true" default:"1024"`
}

// StoreOption customizes a Store.
type StoreOption func(*Store)

// WithClock overrides the time source.
func WithClock(now func() time.Time) StoreOption {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// Store maps sender identities to their sessions. Capacity is bounded: when
// the number of distinct senders exceeds MaxSessions, the least recently
// acquired sender is evicted. Each session is handed out exclusively, so two
// concurrent messages from the same sender are handled in sequence.
type Store struct {
	mu         sync.Mutex
	ttl        time.Duration
	maxHistory int
	capacity   int
	items      map[string]*list.Element
	lru        *list.List
	now        func() time.Time
}

type storeEntry struct {
	sender  string
	session *Session
	lock    *sync.Mutex
}

func NewStore(cfg Config, opts ...StoreOption) (*Store, error) {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = defaultTTL
	}
	maxHistory := cfg.MaxHistory
	if maxHistory <= 0 {
		maxHistory = defaultMaxHistory
	}
	capacity := cfg.MaxSessions
	if capacity <= 0 {
		capacity = defaultMaxSessions
	}
	if maxHistory < 2 {
		return nil, errors.New("max history must hold at least one user/assistant pair")
	}

	st := &Store{
		ttl:        ttl,
		maxHistory: maxHistory,
		capacity:   capacity,
		items:      make(map[string]*list.Element, capacity),
		lru:        list.New(),
		now:        time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(st)
		}
	}
	return st, nil
}

// Acquire returns the sender's session for exclusive use plus a release
// function. A session idle past the TTL is replaced with an empty transcript.
// Acquiring does not update last-active; only committing an exchange does.
func (st *Store) Acquire(sender string) (*Session, func()) {
	st.mu.Lock()
	elem, ok := st.items[sender]
	var ent *storeEntry
	if ok {
		ent = elem.Value.(*storeEntry)
		st.lru.MoveToFront(elem)
	} else {
		ent = &storeEntry{
			sender:  sender,
			session: &Session{lastActive: st.now()},
			lock:    &sync.Mutex{},
		}
		st.items[sender] = st.lru.PushFront(ent)
		st.evictOverflow()
	}
	st.mu.Unlock()

	// The per-sender lock is taken outside the store lock so one slow
	// conversation cannot stall every other sender.
	ent.lock.Lock()

	sess := ent.session
	now := st.now()
	if ok && now.Sub(sess.lastActive) > st.ttl {
		sess.reset(now)
	}
	return sess, ent.lock.Unlock
}

// Commit appends one completed exchange to a held session, trims the
// transcript to the configured cap, and touches last-active. The caller must
// still hold the session.
func (st *Store) Commit(sess *Session, exchange []Message) {
	sess.append(exchange)
	sess.trim(st.maxHistory)
	sess.lastActive = st.now()
}

// Len reports the number of tracked senders.
func (st *Store) Len() int {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.lru.Len()
}

// evictOverflow drops least recently acquired senders while over capacity.
// A holder of an evicted session simply finishes against an orphaned
// transcript; the next message from that sender starts fresh.
func (st *Store) evictOverflow() {
	for st.lru.Len() > st.capacity {
		oldest := st.lru.Back()
		if oldest == nil {
			return
		}
		st.lru.Remove(oldest)
		delete(st.items, oldest.Value.(*storeEntry).sender)
	}
}
