// Package model contains the records shared by the router, the seed loader
// and the storage gateway.
package model

// Post is a user's post as published by the seed source.
// UserID references User.id; it is not enforced by the store.
type Post struct {
	ID     int64  `json:"id"`
	UserID int64  `json:"userId"`
	Title  string `json:"title"`
	Body   string `json:"body"`
}

// Document converts the post into its stored form.
func (p Post) Document() Document {
	return Document{
		"id":     p.ID,
		"userId": p.UserID,
		"title":  p.Title,
		"body":   p.Body,
	}
}

// Comment is attached to a post through PostID.
type Comment struct {
	ID     int64  `json:"id"`
	PostID int64  `json:"postId"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Body   string `json:"body"`
}

// Document converts the comment into its stored form.
func (c Comment) Document() Document {
	return Document{
		"id":     c.ID,
		"postId": c.PostID,
		"name":   c.Name,
		"email":  c.Email,
		"body":   c.Body,
	}
}
