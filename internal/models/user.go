package models

// User represents a registered account
type User struct {
	ID             int64  `gorm:"primaryKey;autoIncrement;column:id" json:"id"`
	Username       string `gorm:"type:varchar(64);uniqueIndex;not null;column:username" json:"username"`
	Email          string `gorm:"type:varchar(255);uniqueIndex;not null;column:email" json:"email"`
	HashedPassword string `gorm:"column:hashed_password" json:"-"`
}

// TableName specifies the table name for User
func (User) TableName() string {
	return "users"
}
