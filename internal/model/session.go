package model

import "time"

// Session is an opaque bearer token bound to a user. It stays valid while the
// time since LastUsedAt is below the idle TTL.
type Session struct {
	Token      string    `json:"token"`
	UserID     int64     `json:"user_id"`
	LastUsedAt time.Time `json:"last_used_at"`
}
