package store

import "time"

type User struct {
	ID           string
	Name         string
	Email        string
	Avatar       string
	PasswordHash string
	Role         string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

type Post struct {
	ID          string
	Title       string
	Slug        string
	Content     string
	Excerpt     string
	Image       string
	Status      string
	AuthorID    string
	AuthorName  string
	AuthorEmail string
	Tags        []Tag
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Tag struct {
	ID   string
	Name string
	Slug string
}

type Comment struct {
	ID           string
	Content      string
	AuthorID     string
	PostID       string
	ParentID     *string
	AuthorName   string
	AuthorEmail  string
	AuthorAvatar string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

const (
	PostStatusDraft     = "DRAFT"
	PostStatusPublished = "PUBLISHED"
)

// PostFilter is the storage-level shape of a listing query. An empty
// Status means any status; an empty AuthorID means any author.
type PostFilter struct {
	Search   string
	Tags     []string
	Status   string
	AuthorID string
	Oldest   bool
	Limit    int
	Offset   int
}

// UserFilter drives the admin user listing.
type UserFilter struct {
	Search string
	Sort   string // name | email | createdAt
	Limit  int
	Offset int
}
