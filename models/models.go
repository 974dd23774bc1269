// twok/models/models.go
package models

import (
	"time"
)

// --- Roles ---

const (
	RoleNone  = "none"
	RoleAdmin = "admin"
)

// --- Core Data Models ---

type User struct {
	ID           int64  `json:"user_id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         string `json:"user_role"`
}

type Board struct {
	ID   int64  `json:"board_id"`
	Name string `json:"name"`
}

// BoardRef is the board as embedded in a post.
type BoardRef struct {
	Name string `json:"name"`
}

// Post is a single message. Threads are two levels deep: a root post has a
// nil ParentID and replies point at their root by id. Children is filled in
// by the read layer and is never persisted.
type Post struct {
	ID              int64      `json:"post_id"`
	Title           string     `json:"title"`
	Message         string     `json:"message"`
	Date            time.Time  `json:"date"`
	BoardID         int64      `json:"-"`
	Board           BoardRef   `json:"board"`
	UserID          *int64     `json:"-"`
	RequesterID     *int64     `json:"-"`
	ParentID        *int64     `json:"parent_id,omitempty"`
	LatestReplyDate *time.Time `json:"latest_reply_date,omitempty"`
	File            *File      `json:"file,omitempty"`
	Children        []Post     `json:"children"`
}

// IsRoot reports whether the post anchors a thread.
func (p *Post) IsRoot() bool { return p.ParentID == nil }

type File struct {
	ID            int64   `json:"file_id"`
	Name          string  `json:"file_name"`
	Hash          string  `json:"file_hash"`
	ContentType   string  `json:"content_type"`
	PostID        *int64  `json:"post_id,omitempty"`
	StoragePath   string  `json:"path,omitempty"`
	ThumbnailPath *string `json:"thumbnail_path,omitempty"`
}

// --- Moderation & System Models ---

type Requester struct {
	ID           int64     `json:"-"`
	IPAddress    string    `json:"ip_address"`
	LastPostTime time.Time `json:"last_post_time"`
}

// Ban links a reason to a Requester. Expiration and Active are recorded for
// moderators but the posting gate only checks that a ban exists.
type Ban struct {
	ID          int64      `json:"ban_id"`
	Reason      string     `json:"reason"`
	Date        time.Time  `json:"date"`
	Expiration  time.Time  `json:"expiration"`
	Active      bool       `json:"active"`
	RequesterID int64      `json:"-"`
	Requester   *Requester `json:"requester,omitempty"`
}

type ModAction struct {
	ID        int64     `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Moderator string    `json:"moderator"`
	Action    string    `json:"action"`
	TargetID  *int64    `json:"target_id,omitempty"`
	Details   *string   `json:"details,omitempty"`
}

// --- Request Payloads ---

type BoardCreate struct {
	Name string `json:"name"`
}

type PostCreate struct {
	Title     string `json:"title"`
	Message   string `json:"message"`
	BoardName string `json:"board_name"`
	ParentID  *int64 `json:"parent_id,omitempty"`
	FileID    *int64 `json:"file_id,omitempty"`
}

type UserCreate struct {
	Username          string `json:"username"`
	PlaintextPassword string `json:"plaintext_password"`
}

type PasswordReset struct {
	PlaintextPassword string `json:"plaintext_password"`
}

type BanCreate struct {
	Reason string `json:"reason"`
	Post   struct {
		PostID int64 `json:"post_id"`
	} `json:"post"`
}

// --- Responses ---

type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

type UserAndToken struct {
	User *User `json:"user"`
	JWT  Token `json:"jwt"`
}

type HealthCheck struct {
	Status string    `json:"status"`
	Time   time.Time `json:"time"`
}
