package middleware

import (
	"context"
	"encoding/hex"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/securecookie"
	"go.uber.org/zap"
)

const (
	sessionCookieName = "ROUTE_PLANNER_SESSION"
	sessionMaxAge     = 30 * 24 * time.Hour
)

// Flash is a one-shot message shown on the next rendered page.
type Flash struct {
	Kind string `json:"kind"` // "success" or "error"
	Key  string `json:"key"`  // i18n key
}

// SessionData is carried in the signed and encrypted session cookie.
type SessionData struct {
	ID        string    `json:"id"`
	UserID    int64     `json:"uid,omitempty"`
	Username  string    `json:"uname,omitempty"`
	Locale    string    `json:"locale,omitempty"`
	CSRFToken string    `json:"csrf,omitempty"`
	Flashes   []Flash   `json:"flash,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
	// internal dirty flag; not serialized
	dirty bool
}

// SessionStore encodes sessions into cookies.
type SessionStore struct {
	codec  *securecookie.SecureCookie
	secure bool
	logger *zap.Logger
}

// ErrEphemeralKey is returned by NewSessionStore alongside a usable store when
// no hash key was configured and a random one was generated.
var ErrEphemeralKey = errors.New("session: using ephemeral hash key")

// NewSessionStore builds a store from the configured keys. An empty hashKey
// yields a process-local random key, which logs everyone out on restart.
func NewSessionStore(hashKey, blockKey []byte, secure bool, logger *zap.Logger) (*SessionStore, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var warn error
	if len(hashKey) == 0 {
		hashKey = securecookie.GenerateRandomKey(32)
		warn = ErrEphemeralKey
	}
	if len(blockKey) == 0 {
		blockKey = nil
	}
	codec := securecookie.New(hashKey, blockKey)
	codec.MaxAge(int(sessionMaxAge / time.Second))
	codec.SetSerializer(securecookie.JSONEncoder{})
	return &SessionStore{codec: codec, secure: secure, logger: logger}, warn
}

// Session loads or initializes a session and stores it in request context.
func Session(store *SessionStore) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sd, fromCookie := store.read(r)
			if sd.ID == "" {
				sd = newSession()
			}
			ctx := contextWithSession(r.Context(), sd)

			rw := NewResponseRecorder(w)
			rw.SetBeforeWrite(func(w http.ResponseWriter) {
				if sd.dirty || !fromCookie {
					store.write(w, sd)
				}
			})
			next.ServeHTTP(rw, r.WithContext(ctx))
			if !rw.Wrote() && (sd.dirty || !fromCookie) {
				store.write(w, sd)
			}
		})
	}
}

func newSession() *SessionData {
	now := time.Now().UTC()
	return &SessionData{
		ID:        randomToken(16),
		CSRFToken: randomToken(32),
		CreatedAt: now,
		UpdatedAt: now,
		dirty:     true,
	}
}

func contextWithSession(ctx context.Context, s *SessionData) context.Context {
	ctx = context.WithValue(ctx, ctxKeySession, s)
	if s.UserID != 0 {
		ctx = WithUser(ctx, &User{ID: s.UserID, Username: s.Username})
	}
	return ctx
}

// GetSession returns session data from context
func GetSession(r *http.Request) *SessionData {
	if sd, ok := r.Context().Value(ctxKeySession).(*SessionData); ok {
		return sd
	}
	return &SessionData{}
}

// MarkDirty flags the session for writing at end of request
func (s *SessionData) MarkDirty() { s.dirty = true; s.UpdatedAt = time.Now().UTC() }

// RegenerateID assigns a new session ID and CSRF token to prevent fixation after auth.
func (s *SessionData) RegenerateID() {
	s.ID = randomToken(16)
	s.CSRFToken = randomToken(32)
	s.MarkDirty()
}

// SignIn records the user and rotates the session id.
func (s *SessionData) SignIn(id int64, username string) {
	s.UserID = id
	s.Username = username
	s.RegenerateID()
}

// SignOut forgets the user and rotates the session id.
func (s *SessionData) SignOut() {
	s.UserID = 0
	s.Username = ""
	s.RegenerateID()
}

// AddFlash queues a message for the next page.
func (s *SessionData) AddFlash(kind, key string) {
	s.Flashes = append(s.Flashes, Flash{Kind: kind, Key: key})
	s.MarkDirty()
}

// PopFlashes returns and clears queued messages.
func (s *SessionData) PopFlashes() []Flash {
	if len(s.Flashes) == 0 {
		return nil
	}
	out := s.Flashes
	s.Flashes = nil
	s.MarkDirty()
	return out
}

func (st *SessionStore) read(r *http.Request) (*SessionData, bool) {
	c, err := r.Cookie(sessionCookieName)
	if err != nil || c.Value == "" {
		return &SessionData{}, false
	}
	var sd SessionData
	if err := st.codec.Decode(sessionCookieName, c.Value, &sd); err != nil {
		st.logger.Debug("session cookie rejected", zap.Error(err))
		return &SessionData{}, false
	}
	return &sd, true
}

func (st *SessionStore) write(w http.ResponseWriter, sd *SessionData) {
	encoded, err := st.codec.Encode(sessionCookieName, sd)
	if err != nil {
		st.logger.Error("session encode failed", zap.Error(err))
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    encoded,
		Path:     "/",
		HttpOnly: true,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionMaxAge / time.Second),
	})
	// The CSRF cookie follows the session so rotated tokens reach the client.
	http.SetCookie(w, &http.Cookie{
		Name:     csrfCookieName,
		Value:    sd.CSRFToken,
		Path:     "/",
		HttpOnly: false,
		Secure:   st.secure,
		SameSite: http.SameSiteLaxMode,
		MaxAge:   int(sessionMaxAge / time.Second),
	})
}

// Secure reports whether cookies carry the Secure attribute.
func (st *SessionStore) Secure() bool { return st.secure }

func randomToken(n int) string {
	return hex.EncodeToString(securecookie.GenerateRandomKey(n))
}
