package client

import (
	"context"
	"testing"
	"time"

	"github.com/dom/car-marketplace/internal/domain"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var _ Gateway = (*fakeGateway)(nil)

func newSignedOutFixture(t *testing.T) (*fakeGateway, *Store) {
	t.Helper()
	gw := newFakeGateway()
	gw.profile = &domain.Profile{ID: uuid.New(), UserID: uuid.New(), FullName: "Ada Obi", Email: "ada@example.com"}
	store := NewStore(gw, gw)
	t.Cleanup(store.Close)
	return gw, store
}

func newSignedInFixture(t *testing.T) (*fakeGateway, *Store) {
	t.Helper()
	gw, store := newSignedOutFixture(t)
	store.Init(context.Background())
	require.NoError(t, store.SignIn(context.Background(), "ada@example.com", "secret1"))
	return gw, store
}

func TestStore_StateMachine(t *testing.T) {
	t.Run("starts uninitialized and loading", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		assert.Equal(t, StateUninitialized, store.State())
		assert.True(t, store.IsLoading())
	})

	t.Run("no persisted session resolves to anonymous", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		store.Init(context.Background())
		assert.Equal(t, StateAnonymous, store.State())
		assert.False(t, store.IsLoading())
	})

	t.Run("persisted session resolves to authenticated with profile", func(t *testing.T) {
		gw, store := newSignedOutFixture(t)
		gw.profile.IsAdmin = true
		gw.restored = &Identity{UserID: gw.profile.UserID, AccessToken: "a"}

		store.Init(context.Background())

		snap := store.Snapshot()
		assert.Equal(t, StateAuthenticated, snap.State)
		require.NotNil(t, snap.Profile)
		assert.Equal(t, "Ada Obi", snap.Profile.FullName)
		assert.True(t, snap.IsAdmin)
	})

	t.Run("init runs once", func(t *testing.T) {
		gw, store := newSignedOutFixture(t)
		store.Init(context.Background())
		store.Init(context.Background())
		assert.Equal(t, 1, gw.count("Restore"))
	})
}

func TestStore_SignIn(t *testing.T) {
	t.Run("success loads profile", func(t *testing.T) {
		gw, store := newSignedInFixture(t)

		userID, ok := store.UserID()
		require.True(t, ok)
		assert.Equal(t, gw.profile.UserID, userID)
		assert.Equal(t, StateAuthenticated, store.State())
		require.NotNil(t, store.Snapshot().Profile)
		assert.False(t, store.IsAdmin())
	})

	t.Run("failure carries the error kind", func(t *testing.T) {
		tests := []error{domain.ErrInvalidCredentials, domain.ErrUnverifiedAccount, domain.ErrTransient}
		for _, want := range tests {
			gw, store := newSignedOutFixture(t)
			store.Init(context.Background())
			gw.signInErr = want

			err := store.SignIn(context.Background(), "ada@example.com", "wrong")

			assert.ErrorIs(t, err, want)
			assert.Equal(t, StateAnonymous, store.State())
			assert.Equal(t, 1, gw.count("SignIn"), "sign in is not retried")
		}
	})

	t.Run("sign up without session stays anonymous", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		store.Init(context.Background())

		outcome, err := store.SignUp(context.Background(), "new@example.com", "secret1", domain.ProfileFields{FullName: "New"})

		require.NoError(t, err)
		assert.True(t, outcome.VerificationRequired)
		assert.Equal(t, StateAnonymous, store.State())
	})
}

func TestStore_SignOutDoesNotBlock(t *testing.T) {
	gw, store := newSignedInFixture(t)
	gw.signOutGate = make(chan struct{})

	done := store.SignOut()

	// Local state is cleared before the remote call completes.
	assert.Equal(t, StateAnonymous, store.State())
	_, ok := store.UserID()
	assert.False(t, ok)
	assert.Nil(t, store.Snapshot().Profile)

	select {
	case <-done:
		t.Fatal("sign out result delivered before the remote call finished")
	case <-time.After(50 * time.Millisecond):
	}

	close(gw.signOutGate)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("remote sign out never finished")
	}
}

func TestStore_SessionExpiry(t *testing.T) {
	gw, store := newSignedInFixture(t)

	updates, stop := store.Watch()
	defer stop()
	<-updates

	gw.changes <- SessionEvent{Kind: SessionExpired}

	require.Eventually(t, func() bool {
		return store.State() == StateAnonymous
	}, 2*time.Second, 10*time.Millisecond)

	select {
	case snap := <-updates:
		assert.Equal(t, StateAnonymous, snap.State)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher was not notified")
	}

	store.Init(context.Background())
	assert.Equal(t, StateAnonymous, store.State(), "never returns to restoring")
}

func TestStore_WatchDuringNotify(t *testing.T) {
	_, store := newSignedInFixture(t)

	stopNotify := make(chan struct{})
	notifying := make(chan struct{})
	go func() {
		defer close(notifying)
		for {
			select {
			case <-stopNotify:
				return
			default:
				store.notify()
			}
		}
	}()

	for i := 0; i < 200; i++ {
		registered := make(chan (<-chan Snapshot), 1)
		var stop func()
		go func() {
			updates, cancel := store.Watch()
			stop = cancel
			registered <- updates
		}()

		select {
		case updates := <-registered:
			snap, ok := <-updates
			require.True(t, ok)
			assert.Equal(t, StateAuthenticated, snap.State)
			stop()
		case <-time.After(time.Second):
			t.Fatalf("Watch blocked on attempt %d", i)
		}
	}

	close(stopNotify)
	<-notifying
}

func TestStore_RefreshProfile(t *testing.T) {
	gw, store := newSignedInFixture(t)

	gw.profile.FullName = "Ada Obi-Eze"
	require.NoError(t, store.RefreshProfile(context.Background()))
	assert.Equal(t, "Ada Obi-Eze", store.Snapshot().Profile.FullName)

	<-store.SignOut()
	assert.ErrorIs(t, store.RefreshProfile(context.Background()), domain.ErrUnauthenticated)
}
