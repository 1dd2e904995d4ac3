package core

// GuardDecision is the outcome of a route-access check: Allow when Redirect is empty.
type GuardDecision struct {
	Redirect string
}

// Allow lets navigation proceed.
func Allow() GuardDecision { return GuardDecision{} }

// RedirectTo denies navigation and sends the browser to path.
func RedirectTo(path string) GuardDecision { return GuardDecision{Redirect: path} }

func (d GuardDecision) Allowed() bool { return d.Redirect == "" }

// Authenticator answers whether the current browsing context holds a valid session.
type Authenticator interface {
	IsAuthenticated() bool
}

// Guard decides whether a route may be entered.
type Guard interface {
	Check(auth Authenticator) GuardDecision
}

// ProtectedGuard admits only authenticated contexts.
type ProtectedGuard struct {
	LoginPath string
}

func (g ProtectedGuard) Check(auth Authenticator) GuardDecision {
	if isAuthenticated(auth) {
		return Allow()
	}
	return RedirectTo(g.LoginPath)
}

// PublicOnlyGuard keeps authenticated contexts away from landing/login pages.
type PublicOnlyGuard struct {
	LandingPath string
}

func (g PublicOnlyGuard) Check(auth Authenticator) GuardDecision {
	if isAuthenticated(auth) {
		return RedirectTo(g.LandingPath)
	}
	return Allow()
}

// isAuthenticated fails closed: a nil authenticator or a panic inside the check counts as
// unauthenticated.
func isAuthenticated(auth Authenticator) (ok bool) {
	if auth == nil {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	return auth.IsAuthenticated()
}
