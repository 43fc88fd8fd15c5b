package models

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"
)

// Visibility controls who may read a post.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityFollowers Visibility = "followers"
	VisibilityPrivate   Visibility = "private"
)

// Valid reports whether v is one of the known visibilities.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityFollowers, VisibilityPrivate:
		return true
	}
	return false
}

// MaxPostLength is the content limit in characters.
const MaxPostLength = 280

// Post represents a post in the Chit Chat application.
type Post struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	Content      string     `gorm:"type:text;not null" json:"content"`
	AuthorID     uint       `gorm:"not null;index" json:"-"`
	Author       *User      `gorm:"foreignKey:AuthorID" json:"-"`
	ParentPostID *uint      `gorm:"index" json:"parentPost"`
	IsReply      bool       `gorm:"not null;default:false;index" json:"isReply"`
	Visibility   Visibility `gorm:"size:16;not null;default:public;index" json:"visibility"`
	IsEdited     bool       `gorm:"not null;default:false" json:"isEdited"`
	Stats        PostStats  `gorm:"embedded" json:"stats"`
	CreatedAt    time.Time  `gorm:"index" json:"createdAt"`
	UpdatedAt    time.Time  `json:"updatedAt"`

	Images      []PostImage   `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"images"`
	Likes       []PostLike    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"likes"`
	Reposts     []PostRepost  `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"reposts"`
	Hashtags    []PostHashtag `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	Mentions    []PostMention `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"-"`
	EditHistory []PostEdit    `gorm:"foreignKey:PostID;constraint:OnDelete:CASCADE" json:"editHistory"`

	// Replies is only populated on the single-post view.
	Replies []*Post `gorm:"-" json:"replies,omitempty"`
	// IsLiked and IsReposted are computed per viewer.
	IsLiked    *bool `gorm:"-" json:"isLiked,omitempty"`
	IsReposted *bool `gorm:"-" json:"isReposted,omitempty"`
}

// PostStats holds counters that always equal the size of the matching list.
type PostStats struct {
	LikesCount   int64 `gorm:"not null;default:0" json:"likesCount"`
	RepliesCount int64 `gorm:"not null;default:0" json:"repliesCount"`
	RepostsCount int64 `gorm:"not null;default:0" json:"repostsCount"`
}

// PostImage is an ordered attachment.
type PostImage struct {
	ID       uint   `gorm:"primaryKey" json:"-"`
	PostID   uint   `gorm:"not null;index" json:"-"`
	Position int    `gorm:"not null" json:"-"`
	URL      string `gorm:"not null" json:"url"`
	Alt      string `gorm:"size:200" json:"alt"`
}

// PostLike records that User liked Post.
type PostLike struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostRepost records that User reposted Post.
type PostRepost struct {
	PostID    uint      `gorm:"primaryKey;autoIncrement:false" json:"-"`
	UserID    uint      `gorm:"primaryKey;autoIncrement:false;index" json:"user"`
	CreatedAt time.Time `json:"createdAt"`
}

// PostHashtag is one lower-cased tag extracted from a post.
type PostHashtag struct {
	PostID uint   `gorm:"primaryKey;autoIncrement:false"`
	Tag    string `gorm:"primaryKey;size:280;index"`
}

// PostMention links a post to a user named in it.
type PostMention struct {
	PostID uint `gorm:"primaryKey;autoIncrement:false"`
	UserID uint `gorm:"primaryKey;autoIncrement:false;index"`
}

// PostEdit keeps a previous version of a post's content.
type PostEdit struct {
	ID       uint      `gorm:"primaryKey" json:"-"`
	PostID   uint      `gorm:"not null;index" json:"-"`
	Content  string    `gorm:"type:text;not null" json:"content"`
	EditedAt time.Time `gorm:"not null" json:"editedAt"`
}

// MarshalJSON flattens hashtags and mentions and renders the author as a
// summary so account fields never leak through posts.
func (p Post) MarshalJSON() ([]byte, error) {
	type alias Post
	var author *UserSummary
	if p.Author != nil {
		s := p.Author.Summary()
		author = &s
	}
	return json.Marshal(struct {
		alias
		Author   *UserSummary `json:"author,omitempty"`
		Hashtags []string     `json:"hashtags"`
		Mentions []uint       `json:"mentions"`
	}{
		alias:    alias(p),
		Author:   author,
		Hashtags: p.Tags(),
		Mentions: p.MentionIDs(),
	})
}

// Tags returns the stored hashtags as plain strings.
func (p *Post) Tags() []string {
	out := make([]string, 0, len(p.Hashtags))
	for _, h := range p.Hashtags {
		out = append(out, h.Tag)
	}
	return out
}

// MentionIDs returns the ids of mentioned users.
func (p *Post) MentionIDs() []uint {
	out := make([]uint, 0, len(p.Mentions))
	for _, m := range p.Mentions {
		out = append(out, m.UserID)
	}
	return out
}

var (
	hashtagPattern = regexp.MustCompile(`#(\w+)`)
	mentionPattern = regexp.MustCompile(`@(\w+)`)
)

// ExtractHashtags returns the lower-cased, de-duplicated tags in content in
// order of first appearance.
func ExtractHashtags(content string) []string {
	return uniqueLower(hashtagPattern.FindAllStringSubmatch(content, -1))
}

// ExtractMentions returns the de-duplicated usernames named with @ in content.
func ExtractMentions(content string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, m := range mentionPattern.FindAllStringSubmatch(content, -1) {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		out = append(out, m[1])
	}
	return out
}

func uniqueLower(matches [][]string) []string {
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		tag := strings.ToLower(m[1])
		if _, ok := seen[tag]; ok {
			continue
		}
		seen[tag] = struct{}{}
		out = append(out, tag)
	}
	return out
}
