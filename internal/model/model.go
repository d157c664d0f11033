package model

import "time"

type User struct {
	ID               int64      `json:"id"`
	FirstName        string     `json:"firstname"`
	LastName         string     `json:"lastname"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	PasswordHash     string     `json:"-"`
	Bio              string     `json:"bio,omitempty"`
	Location         string     `json:"location,omitempty"`
	IsAdmin          bool       `json:"is_admin"`
	CreatedAt        time.Time  `json:"created_at"`
	RefreshToken     string     `json:"-"`
	RefreshExpiresAt *time.Time `json:"-"`
}

// Profile is the public-safe projection of a User. Built by value from
// selected fields so a secret can never ride along unnoticed.
type Profile struct {
	ID        int64     `json:"id"`
	FirstName string    `json:"firstname"`
	LastName  string    `json:"lastname"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Bio       string    `json:"bio,omitempty"`
	Location  string    `json:"location,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (u User) Profile() Profile {
	return Profile{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Username:  u.Username,
		Email:     u.Email,
		Bio:       u.Bio,
		Location:  u.Location,
		CreatedAt: u.CreatedAt,
	}
}

type Post struct {
	ID         int64     `json:"id"`
	Content    string    `json:"content"`
	AuthorID   *int64    `json:"author_id,omitempty"`
	AuthorName string    `json:"author_name,omitempty"`
	Category   string    `json:"category"`
	Score      int       `json:"score"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Vote is a user's single standing preference on a post. At most one
// vote exists per (post, user) pair.
type Vote struct {
	ID        int64     `json:"id"`
	PostID    int64     `json:"post_id"`
	UserID    int64     `json:"user_id"`
	Value     int       `json:"value"` // +1 or -1
	CreatedAt time.Time `json:"created_at"`
}

// TokenPair is what a successful register, login or refresh hands back.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}
