package comment

import (
	"time"

	"github.com/photogrid/gallery/internal/db/models"
)

// Comment is the API representation of a photo comment.
type Comment struct {
	ID            string    `json:"id"`
	PhotoID       string    `json:"photoId"`
	Content       string    `json:"content"`
	CommenterName *string   `json:"commenterName,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// Draft is a comment as submitted by a client, before it is stored.
type Draft struct {
	ID            string  `json:"id"`
	PhotoID       string  `json:"photoId"`
	Content       string  `json:"content"`
	CommenterName *string `json:"commenterName,omitempty"`
}

// Draft returns the client-editable fields of c.
func (c Comment) Draft() Draft {
	return Draft{ID: c.ID, PhotoID: c.PhotoID, Content: c.Content, CommenterName: c.CommenterName}
}

// ParseCommentFromDB converts a stored row to its API shape.
func ParseCommentFromDB(row *models.Comment) Comment {
	return Comment{
		ID:            row.ID,
		PhotoID:       row.PhotoID,
		Content:       row.Content,
		CommenterName: row.CommenterName,
		CreatedAt:     row.CreatedAt,
		UpdatedAt:     row.UpdatedAt,
	}
}

// ConvertCommentToDB converts a draft to a row stamped with the current time.
func ConvertCommentToDB(d Draft) *models.Comment {
	now := time.Now().UTC()
	return &models.Comment{
		ID:            d.ID,
		PhotoID:       d.PhotoID,
		Content:       d.Content,
		CommenterName: d.CommenterName,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

func parseRows(rows []models.Comment) []Comment {
	out := make([]Comment, 0, len(rows))
	for i := range rows {
		out = append(out, ParseCommentFromDB(&rows[i]))
	}
	return out
}
