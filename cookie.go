package luxsession

import "net/http"

// DefaultCookieName is the session cookie name used unless overridden.
const DefaultCookieName = "LUXSID"

// SecurePolicy decides the Secure attribute of the session cookie.
type SecurePolicy int

const (
	// SecureSameAsRequest marks the cookie Secure only for TLS requests.
	SecureSameAsRequest SecurePolicy = iota
	// SecureAlways always marks the cookie Secure.
	SecureAlways
	// SecureNever never marks the cookie Secure.
	SecureNever
)

// CookieOptions defines how session cookies are issued.
type CookieOptions struct {
	Name     string
	Path     string
	Domain   string
	HttpOnly bool
	SameSite http.SameSite
	Secure   SecurePolicy
	// Essential cookies are written even when Config.Consent declines.
	Essential bool
	// MaxAge in seconds; 0 issues a browser session cookie.
	MaxAge int
}

// DefaultCookieOptions returns the default cookie policy.
func DefaultCookieOptions() CookieOptions {
	return CookieOptions{
		Name:      DefaultCookieName,
		Path:      "/",
		HttpOnly:  true,
		SameSite:  http.SameSiteLaxMode,
		Secure:    SecureSameAsRequest,
		Essential: true,
	}
}

func (o CookieOptions) secure(r *http.Request) bool {
	// Browsers reject SameSite=None cookies without the Secure attribute.
	if o.SameSite == http.SameSiteNoneMode {
		return true
	}
	switch o.Secure {
	case SecureAlways:
		return true
	case SecureNever:
		return false
	default:
		return r.TLS != nil
	}
}

func (o CookieOptions) cookie(r *http.Request, value string) *http.Cookie {
	return &http.Cookie{
		Name:     o.Name,
		Value:    value,
		Path:     o.Path,
		Domain:   o.Domain,
		MaxAge:   o.MaxAge,
		HttpOnly: o.HttpOnly,
		Secure:   o.secure(r),
		SameSite: o.SameSite,
	}
}

func (o CookieOptions) expired(r *http.Request) *http.Cookie {
	c := o.cookie(r, "")
	c.MaxAge = -1
	return c
}
