package utils

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/binary"
	"errors"
	"time"
)

// ErrInvalidResetToken covers malformed, forged, stale and expired tokens alike.
var ErrInvalidResetToken = errors.New("invalid or expired reset token")

// resetPurpose domain-separates reset MACs from anything else keyed by the
// same secret.
const resetPurpose = "password-reset"

// ResetTokens derives password reset tokens from the user's id and current
// security stamp.  Nothing is stored: a token verifies only while the stamp
// it was derived from is still the user's stamp and its expiry has not
// passed.  Changing the password rotates the stamp and kills every
// outstanding token.
type ResetTokens struct {
	key []byte
	ttl time.Duration
	now func() time.Time
}

func NewResetTokens(secret string, ttl time.Duration) *ResetTokens {
	return &ResetTokens{key: []byte(secret), ttl: ttl, now: time.Now}
}

// WithClock replaces the time source, for tests.
func (r *ResetTokens) WithClock(now func() time.Time) *ResetTokens {
	r.now = now
	return r
}

// Generate returns base64url(expiry || mac).
func (r *ResetTokens) Generate(userID, stamp string) string {
	exp := r.now().Add(r.ttl).Unix()
	buf := make([]byte, 8, 8+sha256.Size)
	binary.BigEndian.PutUint64(buf, uint64(exp))
	buf = append(buf, r.mac(userID, stamp, exp)...)
	return base64.RawURLEncoding.EncodeToString(buf)
}

// Verify recomputes the MAC against the user's current stamp.
func (r *ResetTokens) Verify(userID, stamp, token string) error {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil || len(raw) != 8+sha256.Size {
		return ErrInvalidResetToken
	}
	exp := int64(binary.BigEndian.Uint64(raw[:8]))
	if subtle.ConstantTimeCompare(raw[8:], r.mac(userID, stamp, exp)) != 1 {
		return ErrInvalidResetToken
	}
	if r.now().Unix() >= exp {
		return ErrInvalidResetToken
	}
	return nil
}

func (r *ResetTokens) mac(userID, stamp string, exp int64) []byte {
	h := hmac.New(sha256.New, r.key)
	var ts [8]byte
	binary.BigEndian.PutUint64(ts[:], uint64(exp))
	for _, part := range [][]byte{[]byte(resetPurpose), []byte(userID), []byte(stamp)} {
		var n [4]byte
		binary.BigEndian.PutUint32(n[:], uint32(len(part)))
		h.Write(n[:])
		h.Write(part)
	}
	h.Write(ts[:])
	return h.Sum(nil)
}
