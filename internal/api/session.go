package api

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"

	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"golang.org/x/crypto/hkdf"
)

const (
	sessionName   = "callform"
	formIDKey     = "form_id"
	sessionMaxAge = 7 * 24 * 60 * 60
)

// NewSessionStore returns a cookie store whose signing and encryption keys are
// derived from secret. An empty secret gets a random one, so cookies do not
// survive a restart.
func NewSessionStore(secret string) (*sessions.CookieStore, error) {
	master := []byte(secret)
	if secret == "" {
		master = make([]byte, 32)
		if _, err := rand.Read(master); err != nil {
			return nil, fmt.Errorf("generate session secret: %w", err)
		}
	}
	hashKey, err := deriveKey(master, "session-hash", 64)
	if err != nil {
		return nil, err
	}
	blockKey, err := deriveKey(master, "session-block", 32)
	if err != nil {
		return nil, err
	}
	store := sessions.NewCookieStore(hashKey, blockKey)
	store.Options = &sessions.Options{
		Path:     "/",
		MaxAge:   sessionMaxAge,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
	return store, nil
}

func deriveKey(master []byte, info string, size int) ([]byte, error) {
	h := hkdf.New(sha256.New, master, nil, []byte(info))
	out := make([]byte, size)
	if _, err := io.ReadFull(h, out); err != nil {
		return nil, fmt.Errorf("derive %s key: %w", info, err)
	}
	return out, nil
}

// formID returns the form id bound to the browser, creating and saving one
// if the request carries none.
func (s *Server) formID(w http.ResponseWriter, r *http.Request) (string, error) {
	// a cookie signed with an old secret yields a fresh session and an error
	session, _ := s.sessions.Get(r, sessionName)
	if id, ok := session.Values[formIDKey].(string); ok && id != "" {
		return id, nil
	}
	id := uuid.New().String()
	session.Values[formIDKey] = id
	if err := s.sessions.Save(r, w, session); err != nil {
		return "", fmt.Errorf("save session: %w", err)
	}
	return id, nil
}

// existingFormID never creates a session; used where headers cannot be written.
func (s *Server) existingFormID(r *http.Request) (string, bool) {
	session, err := s.sessions.Get(r, sessionName)
	if err != nil {
		return "", false
	}
	id, ok := session.Values[formIDKey].(string)
	return id, ok && id != ""
}
