package client

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGuard_AccessFor(t *testing.T) {
	_, store := newSignedOutFixture(t)
	guard := NewGuard(store)

	tests := []struct {
		path string
		want Access
	}{
		{"/", AccessPublic},
		{"/cars/7f1c", AccessPublic},
		{"/cars/", AccessPublic},
		{"/dashboard", AccessAuthenticated},
		{"/dashboard/", AccessAuthenticated},
		{"/dashboard/messages?conversation=1", AccessAuthenticated},
		{"/admin/users", AccessAdmin},
		{"/no-such-page", AccessPublic},
		{"/dashboard/typo", AccessAuthenticated},
		{"/dashboard/messages/extra?x=1", AccessAuthenticated},
		{"/admin/nope", AccessAdmin},
		{"/admin/users/7f1c/", AccessAdmin},
		{"/administrator", AccessPublic},
		{"/cars/7f1c/photos", AccessPublic},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, guard.AccessFor(tt.path))
		})
	}
}

func TestGuard_Evaluate(t *testing.T) {
	t.Run("waits while the session restores", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		guard := NewGuard(store)

		assert.Equal(t, Decision{Verdict: Wait}, guard.Evaluate("/dashboard"))
		assert.Equal(t, Decision{Verdict: Render}, guard.Evaluate("/cars"), "public routes never wait")
	})

	t.Run("anonymous is sent to login and back", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		store.Init(context.Background())
		guard := NewGuard(store)

		decision := guard.Evaluate("/dashboard")
		require.Equal(t, Redirect, decision.Verdict)
		assert.Equal(t, "/login?from=%2Fdashboard", decision.Target)

		require.NoError(t, store.SignIn(context.Background(), "ada@example.com", "secret1"))
		assert.Equal(t, "/dashboard", PostLoginTarget(FromParam(decision.Target)))
		assert.Equal(t, Render, guard.Evaluate("/dashboard").Verdict)
	})

	t.Run("query is remembered", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		store.Init(context.Background())
		decision := NewGuard(store).Evaluate("/dashboard/messages?conversation=42")

		assert.Equal(t, "/dashboard/messages?conversation=42", PostLoginTarget(FromParam(decision.Target)))
	})

	t.Run("admin routes need the admin role", func(t *testing.T) {
		gw, store := newSignedInFixture(t)
		guard := NewGuard(store)

		assert.Equal(t, Decision{Verdict: Redirect, Target: DashboardPath}, guard.Evaluate("/admin"))

		gw.profile.IsAdmin = true
		require.NoError(t, store.RefreshProfile(context.Background()))
		assert.Equal(t, Decision{Verdict: Render}, guard.Evaluate("/admin/approvals"))
	})

	t.Run("unknown paths under a protected section stay protected", func(t *testing.T) {
		_, store := newSignedOutFixture(t)
		store.Init(context.Background())
		guard := NewGuard(store)

		decision := guard.Evaluate("/dashboard/typo")
		require.Equal(t, Redirect, decision.Verdict)
		assert.Equal(t, "/login?from=%2Fdashboard%2Ftypo", decision.Target)

		require.NoError(t, store.SignIn(context.Background(), "ada@example.com", "secret1"))
		assert.Equal(t, Render, guard.Evaluate("/dashboard/typo").Verdict)
		assert.Equal(t, Decision{Verdict: Redirect, Target: DashboardPath}, guard.Evaluate("/admin/nope"))
	})

	t.Run("sign out is seen on the next navigation", func(t *testing.T) {
		_, store := newSignedInFixture(t)
		guard := NewGuard(store)
		require.Equal(t, Render, guard.Evaluate("/dashboard/favorites").Verdict)

		<-store.SignOut()
		assert.Equal(t, Redirect, guard.Evaluate("/dashboard/favorites").Verdict)
	})
}

func TestPostLoginTarget(t *testing.T) {
	tests := []struct {
		from string
		want string
	}{
		{"", DashboardPath},
		{"/dashboard/my-cars", "/dashboard/my-cars"},
		{"/cars/abc?tab=photos", "/cars/abc?tab=photos"},
		{"//evil.example/path", DashboardPath},
		{"http://evil.example/", DashboardPath},
		{"relative/path", DashboardPath},
		{"/\\evil.example", DashboardPath},
		{"/login?from=%2Fdashboard", DashboardPath},
	}
	for _, tt := range tests {
		t.Run(tt.from, func(t *testing.T) {
			assert.Equal(t, tt.want, PostLoginTarget(tt.from))
		})
	}
}
