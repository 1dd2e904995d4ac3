package core

import (
	"encoding/json"
	"errors"
	"strings"
	"time"
)

// SessionSlotKey is the fixed key holding the serialized SessionRecord inside a browsing context.
const SessionSlotKey = "userSession"

var (
	// ErrCorruptSession is returned when stored session data cannot be decoded.
	ErrCorruptSession = errors.New("corrupt session data")
	// ErrNoSession is returned when an operation needs a session and none is present.
	ErrNoSession = errors.New("no session")
	// ErrSessionUnavailable is returned when the browsing context's slot could not be opened.
	ErrSessionUnavailable = errors.New("session storage unavailable")
)

// SessionRecord is one authenticated session as kept in the browsing context.
type SessionRecord struct {
	Token     string    `json:"token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Expired reports whether now is past the record's expiry.
func (r SessionRecord) Expired(now time.Time) bool {
	return now.After(r.ExpiresAt)
}

func (r SessionRecord) valid() bool {
	return strings.TrimSpace(r.Token) != "" && strings.TrimSpace(r.Username) != "" && !r.ExpiresAt.IsZero()
}

func encodeSessionRecord(r SessionRecord) ([]byte, error) {
	if !r.valid() {
		return nil, ErrCorruptSession
	}
	return json.Marshal(r)
}

// decodeSessionRecord parses stored data; anything unparsable or incomplete is ErrCorruptSession.
func decodeSessionRecord(data []byte) (SessionRecord, error) {
	var r SessionRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return SessionRecord{}, ErrCorruptSession
	}
	if !r.valid() {
		return SessionRecord{}, ErrCorruptSession
	}
	return r, nil
}
