package models

import "time"

// User is an account known to the keg server.
type User struct {
	CreatedAt time.Time `json:"created_at"` // время первого обращения
	Username  string    `json:"username"`   // subject из access token
	SelfDbID  string    `json:"self_db_id"` // внутренний id коллекции SELF
}
