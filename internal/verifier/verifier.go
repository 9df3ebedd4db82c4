// Package verifier authenticates webhook bodies with HMAC-SHA256. Every failure path
// returns false; nothing here can let an unsigned request through.
package verifier

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strconv"
	"strings"
	"time"

	"hookgate/internal/constants"
)

var ErrMissingSecret = errors.New("verifier: shared secret is empty")

// prefix some providers put in front of the digest, e.g. "sha256=ab12...".
const algorithmPrefix = "sha256="

// Verify reports whether signature is the HMAC-SHA256 of body under secret, hex encoded.
func Verify(body []byte, signature string, secret []byte) bool {
	return verify(body, signature, secret, constants.EncodingHex)
}

// Sign returns the lowercase hex HMAC-SHA256 of body, as providers send it.
func Sign(body []byte, secret []byte) string {
	return encode(mac(body, secret), constants.EncodingHex)
}

type Verifier struct {
	secret          []byte
	encoding        string
	tolerance       time.Duration
	signedTimestamp bool
	now             func() time.Time
}

type Option func(*Verifier)

// WithEncoding selects "hex" (default) or "base64" signatures.
func WithEncoding(encoding string) Option {
	return func(v *Verifier) { v.encoding = encoding }
}

// WithTimestampTolerance enables the freshness check on provider timestamps. Zero disables it.
func WithTimestampTolerance(d time.Duration) Option {
	return func(v *Verifier) { v.tolerance = d }
}

// WithSignedTimestamp makes the timestamp part of the MAC input as "<timestamp>.<body>".
// Requests without a timestamp then fail verification.
func WithSignedTimestamp(enabled bool) Option {
	return func(v *Verifier) { v.signedTimestamp = enabled }
}

func WithClock(now func() time.Time) Option {
	return func(v *Verifier) { v.now = now }
}

func New(secret string, opts ...Option) (*Verifier, error) {
	if secret == "" {
		return nil, ErrMissingSecret
	}

	v := &Verifier{
		secret:   []byte(secret),
		encoding: constants.EncodingHex,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Verify checks signature against the raw body bytes exactly as received. The timestamp
// is only covered when the verifier was built WithSignedTimestamp.
func (v *Verifier) Verify(body []byte, signature, timestamp string) bool {
	if !v.signedTimestamp {
		return verify(body, signature, v.secret, v.encoding)
	}
	if timestamp == "" {
		return false
	}
	return verify(signedContent(timestamp, body), signature, v.secret, v.encoding)
}

// Sign signs body alone, as a verifier without signed timestamps expects.
func (v *Verifier) Sign(body []byte) string {
	return encode(mac(body, v.secret), v.encoding)
}

// SignWithTimestamp signs "<timestamp>.<body>".
func (v *Verifier) SignWithTimestamp(body []byte, timestamp string) string {
	return encode(mac(signedContent(timestamp, body), v.secret), v.encoding)
}

// FreshTimestamp validates a unix-seconds timestamp header. An empty header passes, since
// not every provider sends one; an unparseable or out-of-window value fails.
func (v *Verifier) FreshTimestamp(header string) bool {
	if header == "" || v.tolerance <= 0 {
		return true
	}

	ts, err := strconv.ParseInt(strings.TrimSpace(header), 10, 64)
	if err != nil {
		return false
	}

	skew := v.now().Sub(time.Unix(ts, 0))
	if skew < 0 {
		skew = -skew
	}
	return skew <= v.tolerance
}

func verify(body []byte, signature string, secret []byte, encoding string) bool {
	if len(secret) == 0 || signature == "" {
		return false
	}

	if strings.HasPrefix(signature, algorithmPrefix) {
		signature = signature[len(algorithmPrefix):]
	}

	expected := encode(mac(body, secret), encoding)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(signature)) == 1
}

func signedContent(timestamp string, body []byte) []byte {
	content := make([]byte, 0, len(timestamp)+1+len(body))
	content = append(content, timestamp...)
	content = append(content, '.')
	return append(content, body...)
}

func mac(body, secret []byte) []byte {
	h := hmac.New(sha256.New, secret)
	h.Write(body)
	return h.Sum(nil)
}

func encode(sum []byte, encoding string) string {
	if encoding == constants.EncodingBase64 {
		return base64.StdEncoding.EncodeToString(sum)
	}
	return hex.EncodeToString(sum)
}
