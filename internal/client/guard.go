package client

import (
	"net/url"
	"strings"
)

type Access int

const (
	AccessPublic Access = iota
	AccessAuthenticated
	AccessAdmin
)

func (a Access) String() string {
	switch a {
	case AccessPublic:
		return "public"
	case AccessAuthenticated:
		return "authenticated"
	case AccessAdmin:
		return "admin"
	}
	return "unknown"
}

// Route is one navigable path. Segments starting with ':' match any
// single segment.
type Route struct {
	Pattern string
	Access  Access
}

const (
	LoginPath     = "/login"
	DashboardPath = "/dashboard"
)

// Routes is the application's route table.
var Routes = []Route{
	{"/", AccessPublic},
	{"/cars", AccessPublic},
	{"/cars/:id", AccessPublic},
	{"/sell", AccessPublic},
	{"/login", AccessPublic},
	{"/signup", AccessPublic},
	{"/about", AccessPublic},
	{"/contact", AccessPublic},

	{"/dashboard", AccessAuthenticated},
	{"/dashboard/my-cars", AccessAuthenticated},
	{"/dashboard/add-car", AccessAuthenticated},
	{"/dashboard/messages", AccessAuthenticated},
	{"/dashboard/favorites", AccessAuthenticated},
	{"/dashboard/profile", AccessAuthenticated},

	{"/admin", AccessAdmin},
	{"/admin/listings", AccessAdmin},
	{"/admin/users", AccessAdmin},
	{"/admin/approvals", AccessAdmin},
}

type Verdict int

const (
	// Render shows the requested view.
	Render Verdict = iota
	// Wait shows a neutral loading state while the session is restored.
	Wait
	// Redirect navigates to Decision.Target instead.
	Redirect
)

func (v Verdict) String() string {
	switch v {
	case Render:
		return "render"
	case Wait:
		return "wait"
	case Redirect:
		return "redirect"
	}
	return "unknown"
}

type Decision struct {
	Verdict Verdict
	Target  string
}

// Guard decides on every navigation. Nothing is cached between calls.
type Guard struct {
	session *Store
	routes  []Route
}

func NewGuard(session *Store) *Guard {
	return &Guard{session: session, routes: Routes}
}

// AccessFor returns the access level of path. An unknown path takes the
// level of the longest route it sits under, so /admin/anything stays
// admin-only; paths under no route are public and reach the not-found view.
func (g *Guard) AccessFor(path string) Access {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	for _, r := range g.routes {
		if matchRoute(r.Pattern, path) {
			return r.Access
		}
	}

	access, depth := AccessPublic, 0
	for _, r := range g.routes {
		if n := matchPrefix(r.Pattern, path); n > depth {
			access, depth = r.Access, n
		}
	}
	return access
}

// Evaluate decides what navigating to path should do. path may carry a
// query string, which is kept in the remembered return path.
func (g *Guard) Evaluate(path string) Decision {
	access := g.AccessFor(path)
	if access == AccessPublic {
		return Decision{Verdict: Render}
	}

	snap := g.session.Snapshot()
	if snap.IsLoading() {
		return Decision{Verdict: Wait}
	}
	if snap.State != StateAuthenticated {
		return Decision{Verdict: Redirect, Target: LoginPath + "?from=" + url.QueryEscape(path)}
	}
	if access == AccessAdmin && !snap.IsAdmin {
		return Decision{Verdict: Redirect, Target: DashboardPath}
	}
	return Decision{Verdict: Render}
}

// PostLoginTarget returns where to go after signing in: the remembered
// path when it is a local absolute path, otherwise the dashboard.
func PostLoginTarget(from string) string {
	if from == "" || !strings.HasPrefix(from, "/") || strings.HasPrefix(from, "//") || strings.Contains(from, "\\") {
		return DashboardPath
	}
	u, err := url.Parse(from)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return DashboardPath
	}
	if strings.HasPrefix(u.Path, LoginPath) {
		return DashboardPath
	}
	return from
}

// FromParam extracts the remembered path from a login redirect target.
func FromParam(loginTarget string) string {
	u, err := url.Parse(loginTarget)
	if err != nil {
		return ""
	}
	return u.Query().Get("from")
}

func matchRoute(pattern, path string) bool {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if pattern == path {
		return true
	}
	ps := strings.Split(pattern, "/")
	xs := strings.Split(path, "/")
	if len(ps) != len(xs) {
		return false
	}
	for i := range ps {
		if strings.HasPrefix(ps[i], ":") {
			if xs[i] == "" {
				return false
			}
			continue
		}
		if ps[i] != xs[i] {
			return false
		}
	}
	return true
}

// matchPrefix reports how many segments of path pattern covers when path
// lies below it, or 0. The root route covers nothing.
func matchPrefix(pattern, path string) int {
	if pattern == "/" {
		return 0
	}
	ps := strings.Split(strings.TrimPrefix(pattern, "/"), "/")
	xs := strings.Split(strings.Trim(path, "/"), "/")
	if len(xs) <= len(ps) {
		return 0
	}
	for i := range ps {
		if strings.HasPrefix(ps[i], ":") {
			if xs[i] == "" {
				return 0
			}
			continue
		}
		if ps[i] != xs[i] {
			return 0
		}
	}
	return len(ps)
}
