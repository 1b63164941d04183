package cookie

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"time"
)

var (
	// ErrNotFound reports an absent cookie.
	ErrNotFound = errors.New("cookie: not found")
	// ErrBadSignature reports a cookie whose MAC did not verify.
	ErrBadSignature = errors.New("cookie: bad signature")
)

// Codec writes and reads HMAC-authenticated cookies. Values are encoded as
// base64url(payload) + "." + base64url(HMAC-SHA256(payload)), so a client can
// read but not forge them.
type Codec struct {
	secret []byte
	secure bool
}

// New builds a codec. secure controls the Secure and HttpOnly attributes and
// should be true in production.
func New(secret string, secure bool) *Codec {
	return &Codec{secret: []byte(secret), secure: secure}
}

// Set writes an authenticated cookie scoped to the whole site.
func (c *Codec) Set(w http.ResponseWriter, name, value string, maxAge time.Duration) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    c.seal([]byte(value)),
		Path:     "/",
		MaxAge:   int(maxAge.Seconds()),
		Secure:   c.secure,
		HttpOnly: c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// Get reads and authenticates a cookie written by Set.
func (c *Codec) Get(r *http.Request, name string) (string, error) {
	raw, err := r.Cookie(name)
	if err != nil {
		return "", ErrNotFound
	}
	payload, err := c.open(raw.Value)
	if err != nil {
		return "", err
	}
	return string(payload), nil
}

// Delete expires the named cookie immediately.
func (c *Codec) Delete(w http.ResponseWriter, name string) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		Secure:   c.secure,
		HttpOnly: c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}

func (c *Codec) seal(payload []byte) string {
	return base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(c.mac(payload))
}

func (c *Codec) open(value string) ([]byte, error) {
	encoded, tag, ok := strings.Cut(value, ".")
	if !ok {
		return nil, ErrBadSignature
	}
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrBadSignature
	}
	got, err := base64.RawURLEncoding.DecodeString(tag)
	if err != nil {
		return nil, ErrBadSignature
	}
	if !hmac.Equal(got, c.mac(payload)) {
		return nil, ErrBadSignature
	}
	return payload, nil
}

func (c *Codec) mac(payload []byte) []byte {
	mac := hmac.New(sha256.New, c.secret)
	mac.Write(payload)
	return mac.Sum(nil)
}
