package models

import (
	"time"
)

// BoardGameStatus is the moderation status of a board game in the primary store.
type BoardGameStatus string

// Board game statuses. Transitions are owned by the catalog service; the recommender only reads them.
const (
	BoardGameStatusPending  BoardGameStatus = "pending"
	BoardGameStatusApproved BoardGameStatus = "approved"
	BoardGameStatusRejected BoardGameStatus = "rejected"
)

// GameMetadata is the field set shared by the vector index and the relational store.
// The index sync job writes exactly these fields next to each embedding, and the context
// formatter renders exactly these fields, so both sides compile against one definition.
type GameMetadata struct {
	Name        string   `json:"name"`
	Description *string  `json:"description"`
	MinPlayers  *int     `json:"min_players"`
	MaxPlayers  *int     `json:"max_players"`
	PlayTimeMin *int     `json:"play_time_min"`
	PlayTimeMax *int     `json:"play_time_max"`
	Complexity  *float64 `json:"complexity"`
}

// CandidateRecord is one nearest-neighbour hit from the vector index.
// It is a snapshot, never a source of truth: it must be re-resolved against the primary store.
type CandidateRecord struct {
	GameMetadata

	// Score is the cosine similarity (0..1). Internal to retrieval.
	Score float64 `json:"-"`
}

// Category is a board game category.
type Category struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Tag is a free-form board game tag.
type Tag struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// BoardGame is the authoritative board game record from the primary store.
type BoardGame struct {
	ID int64 `json:"id"`
	GameMetadata

	ImageURL    *string         `json:"image_url"`
	Accessories *string         `json:"accessories"`
	Tutorials   *string         `json:"tutorials"`
	Status      BoardGameStatus `json:"status"`
	CreatedBy   *int64          `json:"created_by"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`

	Categories []Category `json:"categories"`
	Tags       []Tag      `json:"tags"`
}
