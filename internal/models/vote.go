package models

// Kind selects one of the two reaction tables.
type Kind int

const (
	KindLike Kind = iota
	KindDislike
)

// String returns the table name for the kind, which doubles as the
// count field name in the cache record.
func (k Kind) String() string {
	if k == KindDislike {
		return "dislikes"
	}
	return "likes"
}

// Like represents a single user's like of a post. At most one row may
// exist per (post_id, user); the toggle protocol enforces this.
type Like struct {
	ID     int64 `gorm:"primaryKey;autoIncrement;column:id"`
	PostID int64 `gorm:"not null;index;column:post_id"`
	User   int64 `gorm:"not null;column:user"`
}

// TableName specifies the table name for Like
func (Like) TableName() string {
	return "likes"
}

// Dislike represents a single user's dislike of a post.
type Dislike struct {
	ID     int64 `gorm:"primaryKey;autoIncrement;column:id"`
	PostID int64 `gorm:"not null;index;column:post_id"`
	User   int64 `gorm:"not null;column:user"`
}

// TableName specifies the table name for Dislike
func (Dislike) TableName() string {
	return "dislikes"
}
