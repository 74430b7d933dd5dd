package models

import "time"

// Supported content languages.
const (
	LangRU = "ru"
	LangRO = "ro"
)

// MassageProtocol is a step-by-step massage technique written in Russian and Romanian.
type MassageProtocol struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	Slug            string    `gorm:"size:96;uniqueIndex;not null" json:"slug"`
	Category        string    `gorm:"size:64;index" json:"category"`
	TitleRU         string    `gorm:"column:title_ru;not null" json:"title_ru"`
	TitleRO         string    `gorm:"column:title_ro;not null" json:"title_ro"`
	ContentRU       string    `gorm:"column:content_ru;type:text" json:"content_ru"`
	ContentRO       string    `gorm:"column:content_ro;type:text" json:"content_ro"`
	DurationMinutes int       `json:"duration_minutes"`
	ImageURL        string    `json:"image_url,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// LocalizedBodies exposes the gated content fields keyed by language.
func (p *MassageProtocol) LocalizedBodies() map[string]*string {
	return map[string]*string{LangRU: &p.ContentRU, LangRO: &p.ContentRO}
}

// Quiz is a premium question bank; each attempt samples from Questions.
type Quiz struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	Slug      string         `gorm:"size:96;uniqueIndex;not null" json:"slug"`
	Category  string         `gorm:"size:64;index" json:"category"`
	TitleRU   string         `gorm:"column:title_ru;not null" json:"title_ru"`
	TitleRO   string         `gorm:"column:title_ro;not null" json:"title_ro"`
	Questions []QuizQuestion `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"-"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}

// QuizOption is one answer choice.
type QuizOption struct {
	TextRU string `json:"text_ru"`
	TextRO string `json:"text_ro"`
}

// QuizQuestion belongs to a quiz bank. CorrectIndex never leaves the server.
type QuizQuestion struct {
	ID           uint         `gorm:"primaryKey" json:"id"`
	QuizID       uint         `gorm:"not null;index" json:"quiz_id"`
	TextRU       string       `gorm:"column:text_ru;type:text;not null" json:"text_ru"`
	TextRO       string       `gorm:"column:text_ro;type:text;not null" json:"text_ro"`
	Options      []QuizOption `gorm:"serializer:json;type:text" json:"options"`
	CorrectIndex int          `gorm:"not null" json:"-"`
}

// Resource is downloadable study material for subscribers.
type Resource struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Slug      string    `gorm:"size:96;uniqueIndex;not null" json:"slug"`
	Category  string    `gorm:"size:64;index" json:"category"`
	TitleRU   string    `gorm:"column:title_ru;not null" json:"title_ru"`
	TitleRO   string    `gorm:"column:title_ro;not null" json:"title_ro"`
	ContentRU string    `gorm:"column:content_ru;type:text" json:"content_ru"`
	ContentRO string    `gorm:"column:content_ro;type:text" json:"content_ro"`
	FileURL   string    `json:"file_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LocalizedBodies exposes the gated content fields keyed by language.
func (r *Resource) LocalizedBodies() map[string]*string {
	return map[string]*string{LangRU: &r.ContentRU, LangRO: &r.ContentRO}
}
