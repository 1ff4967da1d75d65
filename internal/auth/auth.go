package auth

import (
	"log"

	"github.com/gorilla/sessions"
	"github.com/markbates/goth"
	"github.com/markbates/goth/gothic"
	"github.com/markbates/goth/providers/google"
)

const (
	MaxAge = 86400 * 30
)

// Settings holds what goth needs to talk to the staff identity provider.
type Settings struct {
	SessionSecret      string
	Secure             bool
	GoogleClientID     string
	GoogleClientSecret string
	CallbackURL        string
}

// InitGothProviders registers the OAuth providers GLRS staff sign in with.
func InitGothProviders(s Settings) {
	store := sessions.NewCookieStore([]byte(s.SessionSecret))
	store.MaxAge(MaxAge)

	store.Options.Path = "/"
	store.Options.HttpOnly = true
	store.Options.Secure = s.Secure

	gothic.Store = store

	if s.GoogleClientID == "" || s.GoogleClientSecret == "" {
		log.Printf("GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET not set, staff login is disabled")
		return
	}
	goth.UseProviders(
		google.New(s.GoogleClientID, s.GoogleClientSecret, s.CallbackURL, "email", "profile"),
	)
}
