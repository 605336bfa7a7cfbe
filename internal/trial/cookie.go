package trial

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

const (
	CookieName   = "trial_scrapes"
	cookieMaxAge = 30 * 24 * time.Hour
)

var errBadSignature = errors.New("bad trial cookie signature")

// Codec reads and writes the trial counter cookie. With a secret the value
// carries a keyed blake2b MAC and unsigned or tampered values are rejected.
type Codec struct {
	key    []byte
	secure bool
}

func NewCodec(secret string, secure bool) *Codec {
	var key []byte
	if secret != "" {
		key = []byte(secret)
		if len(key) > blake2b.Size {
			sum := blake2b.Sum256(key)
			key = sum[:]
		}
	}
	return &Codec{key: key, secure: secure}
}

// FromRequest returns the counter stored on r, or nil when the cookie is
// missing or cannot be trusted.
func (c *Codec) FromRequest(r *http.Request) *Counter {
	ck, err := r.Cookie(CookieName)
	if err != nil {
		return nil
	}
	counter, err := c.decode(ck.Value)
	if err != nil {
		return nil
	}
	return counter
}

// Cookie builds the Set-Cookie value for counter.
func (c *Codec) Cookie(counter Counter) *http.Cookie {
	return &http.Cookie{
		Name:     CookieName,
		Value:    c.encode(counter),
		Path:     "/",
		MaxAge:   int(cookieMaxAge.Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	}
}

func (c *Codec) encode(counter Counter) string {
	counter.LastReset = counter.LastReset.UTC()
	payload, _ := json.Marshal(counter)
	value := base64.RawURLEncoding.EncodeToString(payload)
	if c.key == nil {
		return value
	}
	return value + "." + base64.RawURLEncoding.EncodeToString(c.mac(payload))
}

func (c *Codec) decode(value string) (*Counter, error) {
	encoded, sig, signed := strings.Cut(value, ".")
	payload, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("decode trial cookie: %w", err)
	}

	if c.key != nil {
		if !signed {
			return nil, errBadSignature
		}
		got, err := base64.RawURLEncoding.DecodeString(sig)
		if err != nil || subtle.ConstantTimeCompare(got, c.mac(payload)) != 1 {
			return nil, errBadSignature
		}
	}

	var counter Counter
	if err := json.Unmarshal(payload, &counter); err != nil {
		return nil, fmt.Errorf("unmarshal trial cookie: %w", err)
	}
	if counter.LastReset.IsZero() {
		return nil, errors.New("trial cookie missing lastReset")
	}
	return &counter, nil
}

func (c *Codec) mac(payload []byte) []byte {
	h, err := blake2b.New256(c.key)
	if err != nil {
		// Key length is bounded in NewCodec.
		panic(err)
	}
	h.Write(payload)
	return h.Sum(nil)
}
