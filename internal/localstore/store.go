// Package localstore keeps application state in a local cache first and
// mirrors it to a per-user remote row in the background.
//
// Reads never wait for the network. Every update is written to the local
// cache before the call returns; the remote copy is pushed afterwards and a
// failed push is only recorded. Concurrent edits from two devices are not
// detected: the last snapshot to reach the remote wins.
package localstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
)

// State is the synchronisation state of a Store.
type State int

const (
	Uninitialized State = iota
	LocalLoaded
	RemoteSyncing
	RemoteReconciled
)

func (s State) String() string {
	switch s {
	case LocalLoaded:
		return "local_loaded"
	case RemoteSyncing:
		return "remote_syncing"
	case RemoteReconciled:
		return "remote_reconciled"
	default:
		return "uninitialized"
	}
}

var (
	ErrNoDefaults = errors.New("localstore: defaults function is required")
	ErrNoKey      = errors.New("localstore: key is required")
)

// Remote is the authoritative per-user copy of a store's value.
type Remote interface {
	// Fetch returns the stored payload of userID and whether a row exists.
	Fetch(ctx context.Context, userID string) ([]byte, bool, error)
	// Upsert stores payload as the row of userID.
	Upsert(ctx context.Context, userID string, payload []byte) error
}

// Event is published after the remote copy changed.
type Event struct {
	Key    string    `json:"key"`
	UserID string    `json:"userId"`
	Kind   string    `json:"kind"`
	At     time.Time `json:"at"`
}

const (
	EventPushed     = "pushed"
	EventReconciled = "reconciled"
)

// Notifier receives remote sync events.
type Notifier interface {
	Notify(ctx context.Context, event Event) error
}

// Options configure a Store.
type Options[T any] struct {
	// Key names the value in the local cache.
	Key string
	// Defaults returns a fresh default value. Stored values are decoded over it,
	// so fields missing from a payload keep their default.
	Defaults func() T
	// Normalize repairs a decoded or updated value, for example nil lists.
	Normalize func(T) T
	Cache     Cache
	Remote    Remote
	Notifier  Notifier
	Logger    *log.Entry
	// RemoteTimeout bounds each remote call. Zero means 15 seconds.
	RemoteTimeout time.Duration
}

// Status is a point-in-time view of a Store's synchronisation.
type Status struct {
	Key          string     `json:"key"`
	State        string     `json:"state"`
	Session      string     `json:"session,omitempty"`
	LastError    string     `json:"lastError,omitempty"`
	LastSyncedAt *time.Time `json:"lastSyncedAt,omitempty"`
	Pending      int        `json:"pendingPushes"`
}

// Store is a local-first container for one value of type T.
type Store[T any] struct {
	opts Options[T]
	log  *log.Entry

	// updateMu serialises writers so cache writes happen in update order.
	updateMu sync.Mutex

	mu         sync.Mutex
	value      T
	state      State
	session    string
	sessionGen uint64
	seq        uint64
	pushedSeq  uint64
	errSeq     uint64
	lastErr    error
	lastSynced *time.Time
	pending    int
	subs       map[int]chan T
	nextSub    int

	pushMu sync.Mutex
	wg     sync.WaitGroup
}

// New builds a store and loads its value from the cache. A missing or
// unparseable cache entry yields the defaults. New never touches the remote.
func New[T any](opts Options[T]) (*Store[T], error) {
	if opts.Key == "" {
		return nil, ErrNoKey
	}
	if opts.Defaults == nil {
		return nil, ErrNoDefaults
	}
	if opts.Cache == nil {
		opts.Cache = NewMemoryCache()
	}
	if opts.Normalize == nil {
		opts.Normalize = func(v T) T { return v }
	}
	if opts.RemoteTimeout <= 0 {
		opts.RemoteTimeout = 15 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.NewEntry(log.StandardLogger())
	}

	s := &Store[T]{
		opts: opts,
		log:  logger.WithField("store", opts.Key),
		subs: map[int]chan T{},
	}

	value := opts.Normalize(opts.Defaults())
	raw, ok, err := opts.Cache.Get(opts.Key)
	switch {
	case err != nil:
		s.log.WithError(err).Warn("Local cache unreadable, using defaults")
	case ok:
		decoded, err := s.decode(raw)
		if err != nil {
			s.log.WithError(err).Warn("Cached value unparseable, using defaults")
		} else {
			value = decoded
		}
	}
	s.value = value
	s.state = LocalLoaded
	return s, nil
}

// decode merges payload over fresh defaults. A field of the wrong JSON type
// keeps its default; malformed JSON is an error.
func (s *Store[T]) decode(payload []byte) (T, error) {
	v := s.opts.Defaults()
	if err := json.Unmarshal(payload, &v); err != nil {
		var typeErr *json.UnmarshalTypeError
		if !errors.As(err, &typeErr) {
			var zero T
			return zero, err
		}
		s.log.WithField("field", typeErr.Field).Warn("Ignoring stored field of unexpected type")
	}
	return s.opts.Normalize(v), nil
}

// Get returns the most recent locally applied value.
func (s *Store[T]) Get() T {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

func (s *Store[T]) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// LastError returns the most recent remote failure, cleared by a later
// successful push.
func (s *Store[T]) LastError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

func (s *Store[T]) Session() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.session
}

func (s *Store[T]) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		Key:     s.opts.Key,
		State:   s.state.String(),
		Session: s.session,
		Pending: s.pending,
	}
	if s.lastErr != nil {
		st.LastError = s.lastErr.Error()
	}
	if s.lastSynced != nil {
		t := *s.lastSynced
		st.LastSyncedAt = &t
	}
	return st
}

// SetSession attaches the store to userID and starts reconciling with the
// remote in the background. Without a remote the store stays local.
func (s *Store[T]) SetSession(ctx context.Context, userID string) {
	if userID == "" {
		s.ClearSession()
		return
	}
	s.mu.Lock()
	if s.session == userID && s.state != LocalLoaded {
		s.mu.Unlock()
		return
	}
	s.session = userID
	s.sessionGen++
	gen := s.sessionGen
	if s.opts.Remote == nil {
		s.mu.Unlock()
		return
	}
	s.state = RemoteSyncing
	s.pending++
	s.wg.Add(1)
	s.mu.Unlock()

	go s.reconcile(context.WithoutCancel(ctx), userID, gen)
}

// ClearSession detaches the store from its user. Later updates stay local.
func (s *Store[T]) ClearSession() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session = ""
	s.sessionGen++
	s.state = LocalLoaded
}

func (s *Store[T]) reconcile(ctx context.Context, userID string, gen uint64) {
	defer s.wg.Done()
	defer s.done()

	fetchCtx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	payload, found, err := s.opts.Remote.Fetch(fetchCtx, userID)
	cancel()

	if !s.current(gen) {
		return
	}
	if err != nil {
		s.fail(gen, fmt.Errorf("fetch remote: %w", err))
		return
	}

	if !found {
		// nothing remote yet: the local snapshot becomes the initial row
		s.pushMu.Lock()
		s.mu.Lock()
		snapshot, seq := s.value, s.seq
		s.mu.Unlock()
		data, err := json.Marshal(snapshot)
		if err == nil {
			pushCtx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
			err = s.opts.Remote.Upsert(pushCtx, userID, data)
			cancel()
		}
		if err == nil {
			s.mu.Lock()
			if seq > s.pushedSeq {
				s.pushedSeq = seq
			}
			s.mu.Unlock()
		}
		s.pushMu.Unlock()
		if err != nil {
			s.fail(gen, fmt.Errorf("seed remote: %w", err))
			return
		}
		s.reconciled(ctx, gen, userID, nil)
		return
	}

	s.updateMu.Lock()
	defer s.updateMu.Unlock()
	if !s.current(gen) {
		return
	}
	merged, err := s.decode(payload)
	if err != nil {
		s.fail(gen, fmt.Errorf("decode remote: %w", err))
		return
	}
	data, err := json.Marshal(merged)
	if err != nil {
		s.fail(gen, fmt.Errorf("encode merged value: %w", err))
		return
	}
	if err := s.opts.Cache.Set(s.opts.Key, data); err != nil {
		s.fail(gen, err)
		return
	}
	s.reconciled(ctx, gen, userID, &merged)
}

func (s *Store[T]) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sessionGen == gen
}

func (s *Store[T]) fail(gen uint64, err error) {
	s.mu.Lock()
	if s.sessionGen == gen {
		s.state = LocalLoaded
		s.lastErr = err
	}
	s.mu.Unlock()
	s.log.WithError(err).Warn("Remote sync failed, staying local")
}

func (s *Store[T]) reconciled(ctx context.Context, gen uint64, userID string, merged *T) {
	now := time.Now()
	s.mu.Lock()
	if s.sessionGen != gen {
		s.mu.Unlock()
		return
	}
	if merged != nil {
		s.value = *merged
	}
	s.state = RemoteReconciled
	s.lastErr = nil
	s.lastSynced = &now
	value := s.value
	s.mu.Unlock()

	if merged != nil {
		s.publish(value)
	}
	s.log.WithField("user_id", userID).Info("Remote sync complete")
	s.notify(ctx, userID, EventReconciled)
}

func (s *Store[T]) done() {
	s.mu.Lock()
	s.pending--
	s.mu.Unlock()
}

// Update applies fn to the current value. See Mutate.
func (s *Store[T]) Update(fn func(T) T) (T, error) {
	return s.Mutate(func(v T) (T, error) { return fn(v), nil })
}

// Mutate applies fn to the current value, writes the result to the local
// cache and returns it. A session triggers a background push of the same
// value. fn must not modify its argument in place. When fn or the cache
// write fails the current value is kept and the error returned.
func (s *Store[T]) Mutate(fn func(T) (T, error)) (T, error) {
	s.updateMu.Lock()
	defer s.updateMu.Unlock()

	cur := s.Get()
	next, err := fn(cur)
	if err != nil {
		return cur, err
	}
	next = s.opts.Normalize(next)
	data, err := json.Marshal(next)
	if err != nil {
		return cur, fmt.Errorf("encode %s: %w", s.opts.Key, err)
	}
	if err := s.opts.Cache.Set(s.opts.Key, data); err != nil {
		return cur, err
	}

	s.mu.Lock()
	s.value = next
	s.seq++
	seq := s.seq
	session := s.session
	push := session != "" && s.opts.Remote != nil
	if push {
		s.pending++
		s.wg.Add(1)
	}
	s.mu.Unlock()

	s.publish(next)
	if push {
		go s.push(session, seq, data)
	}
	return next, nil
}

// push upserts one snapshot. Pushes are serialised and a snapshot older than
// one already queued or sent is skipped. Pushes never write local state.
func (s *Store[T]) push(userID string, seq uint64, data []byte) {
	defer s.wg.Done()
	defer s.done()

	s.pushMu.Lock()
	defer s.pushMu.Unlock()

	s.mu.Lock()
	stale := seq < s.seq || seq <= s.pushedSeq || s.session != userID
	s.mu.Unlock()
	if stale {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RemoteTimeout)
	defer cancel()
	err := s.opts.Remote.Upsert(ctx, userID, data)

	now := time.Now()
	s.mu.Lock()
	if err != nil {
		s.errSeq = seq
		s.lastErr = fmt.Errorf("push remote: %w", err)
	} else {
		s.pushedSeq = seq
		s.lastSynced = &now
		if s.errSeq < seq {
			s.lastErr = nil
		}
	}
	s.mu.Unlock()

	if err != nil {
		s.log.WithError(err).WithField("seq", seq).Warn("Remote push failed, local copy kept")
		return
	}
	s.log.WithFields(log.Fields{"user_id": userID, "seq": seq}).Debug("Remote push complete")
	s.notify(ctx, userID, EventPushed)
}

func (s *Store[T]) notify(ctx context.Context, userID, kind string) {
	if s.opts.Notifier == nil {
		return
	}
	ev := Event{Key: s.opts.Key, UserID: userID, Kind: kind, At: time.Now().UTC()}
	if err := s.opts.Notifier.Notify(ctx, ev); err != nil {
		s.log.WithError(err).Warn("Sync notification failed")
	}
}

// Subscribe returns a channel receiving every new value. Slow readers only
// see the latest value. The returned func unsubscribes.
func (s *Store[T]) Subscribe() (<-chan T, func()) {
	ch := make(chan T, 1)
	s.mu.Lock()
	id := s.nextSub
	s.nextSub++
	s.subs[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *Store[T]) publish(v T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, ch := range s.subs {
		select {
		case ch <- v:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- v:
			default:
			}
		}
	}
}

// Wait blocks until background syncs and pushes have finished.
func (s *Store[T]) Wait() {
	s.wg.Wait()
}
