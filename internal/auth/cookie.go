package auth

import "net/http"

// SessionCookieName is the cookie carrying the Planora session token.
const SessionCookieName = "pl_session"

// SetSessionCookie attaches the signed session token to the response. The
// cookie is HttpOnly and SameSite=Lax; Secure is set only in production so
// local development over plain HTTP keeps working.
func SetSessionCookie(w http.ResponseWriter, token string, sessionDays int, isProduction bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		MaxAge:   sessionDays * 24 * 60 * 60,
		HttpOnly: true,
		Secure:   isProduction,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie immediately. Used on logout
// and whenever a session resolves to a principal that no longer exists.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// GetSessionCookie returns the session token from the request, or the empty
// string when no session cookie is present.
func GetSessionCookie(r *http.Request) string {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil {
		return ""
	}
	return cookie.Value
}
