// Package models contains data structures for the application's domain models.
package models

import "time"

// Profile is the user-editable part of an account.
type Profile struct {
	DisplayName string `gorm:"size:50" json:"displayName"`
	Bio         string `gorm:"size:160" json:"bio"`
	Location    string `gorm:"size:50" json:"location"`
	Website     string `json:"website"`
	Avatar      string `json:"avatar"`
}

// UserStats holds denormalized counters. FollowersCount and FollowingCount
// always equal the number of follow edges pointing at or away from the user.
type UserStats struct {
	PostsCount     int64 `gorm:"not null;default:0" json:"postsCount"`
	FollowersCount int64 `gorm:"not null;default:0" json:"followersCount"`
	FollowingCount int64 `gorm:"not null;default:0" json:"followingCount"`
}

// User represents an account in the Chit Chat application.
type User struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"uniqueIndex;size:30;not null" json:"username"`
	Email      string    `gorm:"uniqueIndex;not null" json:"email,omitempty"`
	Password   string    `gorm:"not null" json:"-"`
	Profile    Profile   `gorm:"embedded;embeddedPrefix:profile_" json:"profile"`
	IsPrivate  bool      `gorm:"not null;default:false" json:"isPrivate"`
	IsVerified bool      `gorm:"not null;default:false" json:"isVerified"`
	Stats      UserStats `gorm:"embedded;embeddedPrefix:stats_" json:"stats"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`

	// IsFollowedByMe is computed per viewer and never persisted.
	IsFollowedByMe *bool `gorm:"-" json:"isFollowedByMe,omitempty"`
}

// Follow is one edge of the social graph: Follower follows Following.
// The same row makes Following appear in Follower's following list and
// Follower appear in Following's followers list.
type Follow struct {
	FollowerID  uint      `gorm:"primaryKey;autoIncrement:false" json:"followerId"`
	FollowingID uint      `gorm:"primaryKey;autoIncrement:false;index" json:"followingId"`
	CreatedAt   time.Time `json:"createdAt"`
}

// UserSummary is the compact user shape embedded in lists and posts.
type UserSummary struct {
	ID             uint    `json:"id"`
	Username       string  `json:"username"`
	Profile        Profile `json:"profile"`
	IsVerified     bool    `json:"isVerified"`
	IsFollowedByMe *bool   `json:"isFollowedByMe,omitempty"`
}

// PublicProfile returns a copy safe to show to other users.
func (u *User) PublicProfile() *User {
	out := *u
	out.Password = ""
	out.Email = ""
	return &out
}

// Sanitized returns a copy with the credential stripped, for the owner.
func (u *User) Sanitized() *User {
	out := *u
	out.Password = ""
	return &out
}

// Summary returns the compact representation of u.
func (u *User) Summary() UserSummary {
	return UserSummary{
		ID:             u.ID,
		Username:       u.Username,
		Profile:        u.Profile,
		IsVerified:     u.IsVerified,
		IsFollowedByMe: u.IsFollowedByMe,
	}
}

// PrivateView is what strangers see of a private account.
type PrivateView struct {
	Username   string         `json:"username"`
	Profile    PrivateProfile `json:"profile"`
	IsVerified bool           `json:"isVerified"`
	IsPrivate  bool           `json:"isPrivate"`
	Stats      UserStats      `json:"stats"`
	CreatedAt  time.Time      `json:"createdAt"`
}

// PrivateProfile is the reduced profile shown on private accounts.
type PrivateProfile struct {
	DisplayName string `json:"displayName"`
	Avatar      string `json:"avatar"`
}

// PrivateView reduces u for viewers who may not see its content. Post
// counts are hidden.
func (u *User) PrivateView() PrivateView {
	return PrivateView{
		Username:   u.Username,
		Profile:    PrivateProfile{DisplayName: u.Profile.DisplayName, Avatar: u.Profile.Avatar},
		IsVerified: u.IsVerified,
		IsPrivate:  true,
		Stats: UserStats{
			FollowersCount: u.Stats.FollowersCount,
			FollowingCount: u.Stats.FollowingCount,
		},
		CreatedAt: u.CreatedAt,
	}
}
