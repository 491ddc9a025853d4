package client

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
)

type SessionState int

const (
	StateUninitialized SessionState = iota
	StateRestoring
	StateAuthenticated
	StateAnonymous
)

func (s SessionState) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateRestoring:
		return "restoring"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	}
	return "unknown"
}

// Snapshot is a read-only view of the session.
type Snapshot struct {
	State    SessionState
	Identity *Identity
	Profile  *domain.Profile
	IsAdmin  bool
}

// IsLoading is true only while the persisted session is being restored.
func (s Snapshot) IsLoading() bool {
	return s.State == StateUninitialized || s.State == StateRestoring
}

func (s Snapshot) UserID() (uuid.UUID, bool) {
	if s.Identity == nil {
		return uuid.Nil, false
	}
	return s.Identity.UserID, true
}

const signOutTimeout = 10 * time.Second

// Store is the single writer of the current identity and profile. Other
// components read it through Snapshot, UserID and Watch.
type Store struct {
	auth     AuthGateway
	profiles ProfileGateway

	mu       sync.RWMutex
	state    SessionState
	identity *Identity
	profile  *domain.Profile

	watchMu  sync.Mutex
	watchers map[int]chan Snapshot
	nextID   int

	initOnce  sync.Once
	following bool
	stop      chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
}

func NewStore(auth AuthGateway, profiles ProfileGateway) *Store {
	return &Store{
		auth:     auth,
		profiles: profiles,
		state:    StateUninitialized,
		watchers: make(map[int]chan Snapshot),
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Init restores the persisted session and starts following session-change
// notifications. Calls after the first are no-ops.
func (s *Store) Init(ctx context.Context) {
	s.initOnce.Do(func() {
		s.mu.Lock()
		if s.state == StateUninitialized {
			s.state = StateRestoring
		}
		s.mu.Unlock()
		s.notify()

		identity, err := s.auth.Restore(ctx)
		if err != nil {
			log.Printf("WARN [client.Session] restore session: %v", err)
			identity = nil
		}

		var profile *domain.Profile
		if identity != nil {
			profile = s.fetchProfile(ctx)
		}

		s.mu.Lock()
		// A sign-in that completed while restoring wins.
		if s.state == StateRestoring {
			if identity != nil {
				s.state = StateAuthenticated
				s.identity = identity
				s.profile = profile
			} else {
				s.state = StateAnonymous
			}
		}
		s.following = true
		s.mu.Unlock()
		s.notify()

		go s.follow()
	})
}

// Close stops following session-change notifications.
func (s *Store) Close() {
	s.stopOnce.Do(func() { close(s.stop) })
	s.mu.RLock()
	following := s.following
	s.mu.RUnlock()
	if following {
		<-s.done
	}
}

func (s *Store) follow() {
	defer close(s.done)
	changes := s.auth.SessionChanges()
	for {
		select {
		case <-s.stop:
			return
		case ev, ok := <-changes:
			if !ok {
				return
			}
			s.handleSessionEvent(ev)
		}
	}
}

func (s *Store) handleSessionEvent(ev SessionEvent) {
	s.mu.Lock()
	switch ev.Kind {
	case SessionExpired:
		if s.state != StateAuthenticated {
			s.mu.Unlock()
			return
		}
		log.Printf("INFO [client.Session] session expired for user %s", s.identity.UserID)
		s.state = StateAnonymous
		s.identity = nil
		s.profile = nil
	case SessionRefreshed:
		if s.state != StateAuthenticated || ev.Identity == nil {
			s.mu.Unlock()
			return
		}
		s.identity = ev.Identity
	}
	s.mu.Unlock()
	s.notify()
}

// SignIn authenticates and loads the profile. Failures carry the
// authentication error kind and are not retried.
func (s *Store) SignIn(ctx context.Context, email, password string) error {
	identity, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return err
	}
	s.authenticate(ctx, identity)
	return nil
}

// SignUp creates the account and its profile. The store becomes
// authenticated only when the backend returns a session right away.
func (s *Store) SignUp(ctx context.Context, email, password string, fields domain.ProfileFields) (*SignUpOutcome, error) {
	outcome, err := s.auth.SignUp(ctx, email, password, fields)
	if err != nil {
		return nil, err
	}
	if outcome.Identity != nil {
		s.authenticate(ctx, outcome.Identity)
	}
	return outcome, nil
}

func (s *Store) authenticate(ctx context.Context, identity *Identity) {
	s.mu.Lock()
	s.state = StateAuthenticated
	s.identity = identity
	s.profile = nil
	s.mu.Unlock()

	profile := s.fetchProfile(ctx)

	s.mu.Lock()
	if s.identity == identity {
		s.profile = profile
	}
	s.mu.Unlock()
	s.notify()
}

// SignOut clears the local identity before returning and invalidates the
// remote session in the background. The returned channel yields the
// remote result once and is then closed.
func (s *Store) SignOut() <-chan error {
	s.mu.Lock()
	wasAuthenticated := s.identity != nil
	s.state = StateAnonymous
	s.identity = nil
	s.profile = nil
	s.mu.Unlock()
	s.notify()

	result := make(chan error, 1)
	if !wasAuthenticated {
		close(result)
		return result
	}
	go func() {
		defer close(result)
		ctx, cancel := context.WithTimeout(context.Background(), signOutTimeout)
		defer cancel()
		err := s.auth.SignOut(ctx)
		if err != nil && !domain.IsAuthError(err) {
			log.Printf("ERROR [client.Session] remote sign out: %v", err)
		}
		result <- err
	}()
	return result
}

// RefreshProfile re-reads the profile of the current identity.
func (s *Store) RefreshProfile(ctx context.Context) error {
	s.mu.RLock()
	identity := s.identity
	s.mu.RUnlock()
	if identity == nil {
		return domain.ErrUnauthenticated
	}

	profile, err := s.profiles.GetProfile(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if s.identity == identity {
		s.profile = profile
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

func (s *Store) fetchProfile(ctx context.Context) *domain.Profile {
	profile, err := s.profiles.GetProfile(ctx)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			log.Printf("ERROR [client.Session] fetch profile: %v", err)
		}
		return nil
	}
	return profile
}

func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := Snapshot{State: s.state}
	if s.identity != nil {
		id := *s.identity
		snap.Identity = &id
	}
	if s.profile != nil {
		p := *s.profile
		snap.Profile = &p
		snap.IsAdmin = p.IsAdmin
	}
	return snap
}

func (s *Store) State() SessionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

func (s *Store) UserID() (uuid.UUID, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.identity == nil {
		return uuid.Nil, false
	}
	return s.identity.UserID, true
}

func (s *Store) IsAdmin() bool {
	return s.Snapshot().IsAdmin
}

func (s *Store) IsLoading() bool {
	return s.Snapshot().IsLoading()
}

// Watch delivers the latest snapshot after every change. Slow readers
// only see the most recent one. Call the returned func to stop.
func (s *Store) Watch() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 1)
	s.watchMu.Lock()
	id := s.nextID
	s.nextID++
	s.watchers[id] = ch
	ch <- s.Snapshot()
	s.watchMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.watchMu.Lock()
			delete(s.watchers, id)
			s.watchMu.Unlock()
			close(ch)
		})
	}
}

// notify reads the snapshot under watchMu so watchers see snapshots in
// the order they were taken.
func (s *Store) notify() {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	snap := s.Snapshot()
	for _, ch := range s.watchers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- snap:
		default:
		}
	}
}
