package models

// Post represents a post in the store of record. Like/dislike counts and
// voter sets are derived from the vote tables, not stored columns.
type Post struct {
	ID          int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Title       string `gorm:"type:varchar(150);not null;column:title" json:"title"`
	Description string `gorm:"type:text;not null;column:description" json:"description"`
	Author      int64  `gorm:"not null;column:author" json:"author"`

	// Relationships
	AuthorUser *User     `gorm:"foreignKey:Author;references:ID;constraint:OnDelete:CASCADE" json:"-"`
	Likes      []Like    `gorm:"foreignKey:PostID;references:ID" json:"-"`
	Dislikes   []Dislike `gorm:"foreignKey:PostID;references:ID" json:"-"`
}

// TableName specifies the table name for Post
func (Post) TableName() string {
	return "posts"
}
