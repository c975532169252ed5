// Package access decides whether a console view may be entered given the
// current session.
//
// A view that requires authentication redirects to the login view when no
// token is held. A guest-only view (login) redirects signed-in users to
// the device list. Everything else is allowed.
package access

// Console paths with fixed meaning.
const (
	LoginPath          = "/login"
	DefaultLandingPath = "/devices"
)

// TokenSource supplies the current session token; "" means signed out.
type TokenSource interface {
	Token() string
}

// Meta is the access metadata attached to a view.
type Meta struct {
	RequiresAuth  bool
	RequiresGuest bool
}

// Decision is the outcome of Check. When Allow is false, Redirect names
// the path to send the user to instead.
type Decision struct {
	Allow    bool
	Redirect string
}

// Check evaluates meta against the session. A nil session counts as
// signed out.
func Check(meta Meta, session TokenSource) Decision {
	authenticated := session != nil && session.Token() != ""

	switch {
	case meta.RequiresAuth && !authenticated:
		return Decision{Redirect: LoginPath}
	case meta.RequiresGuest && authenticated:
		return Decision{Redirect: DefaultLandingPath}
	default:
		return Decision{Allow: true}
	}
}

// Route is one entry of the console route table.
type Route struct {
	// Path uses chi pattern syntax, e.g. "/devices/{deviceId}".
	Path string
	// Name identifies the view.
	Name string
	// RedirectTo, when set, makes the route a plain redirect.
	RedirectTo string
	Meta       Meta
}

// View names.
const (
	ViewLogin        = "login"
	ViewDashboard    = "dashboard"
	ViewDevices      = "devices"
	ViewDeviceDetail = "device-detail"
	ViewTerminal     = "terminal"
	ViewProfile      = "profile"
)

// DefaultRoutes returns the console's route table.
func DefaultRoutes() []Route {
	auth := Meta{RequiresAuth: true}

	return []Route{
		{Path: LoginPath, Name: ViewLogin, Meta: Meta{RequiresGuest: true}},
		{Path: "/", RedirectTo: DefaultLandingPath},
		{Path: "/dashboard", Name: ViewDashboard, Meta: auth},
		{Path: "/devices", Name: ViewDevices, Meta: auth},
		{Path: "/devices/{deviceId}", Name: ViewDeviceDetail, Meta: auth},
		{Path: "/devices/{deviceId}/terminal", Name: ViewTerminal, Meta: auth},
		{Path: "/profile", Name: ViewProfile, Meta: auth},
	}
}

// Lookup returns the route named name.
func Lookup(routes []Route, name string) (Route, bool) {
	for _, r := range routes {
		if r.Name == name {
			return r, true
		}
	}
	return Route{}, false
}
