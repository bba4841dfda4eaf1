package models

import (
	"fmt"
	"time"

	"github.com/uptrace/bun"
)

// Comment is a row of the comments table.
type Comment struct {
	bun.BaseModel `bun:"table:comments,alias:c"`

	ID            string    `bun:"id,pk,type:varchar(8)"`
	PhotoID       string    `bun:"photo_id,notnull,type:varchar(8)"`
	Content       string    `bun:"content,notnull,type:text"`
	CommenterName *string   `bun:"commenter_name,type:varchar(255)"`
	CreatedAt     time.Time `bun:"created_at,notnull,default:current_timestamp"`
	UpdatedAt     time.Time `bun:"updated_at,notnull,default:current_timestamp"`
}

// ValidateForCreate checks the columns the database would reject.
func (c *Comment) ValidateForCreate() error {
	if c.ID == "" {
		return fmt.Errorf("comment id is required")
	}
	if c.PhotoID == "" {
		return fmt.Errorf("comment photo_id is required")
	}
	return nil
}
