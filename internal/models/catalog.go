package models

import "time"

type Category struct {
	BaseModel
	Slug        string `gorm:"uniqueIndex" json:"slug"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Image       string `json:"image"`
}

// BlogPost backs the storefront's content pages.
type BlogPost struct {
	BaseModel
	Slug        string     `gorm:"uniqueIndex" json:"slug"`
	Title       string     `json:"title"`
	Excerpt     string     `json:"excerpt"`
	Body        string     `json:"body"`
	Author      string     `json:"author"`
	CoverImage  string     `json:"cover_image"`
	PublishedAt *time.Time `json:"published_at"`
}
