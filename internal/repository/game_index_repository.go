package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"

	"github.com/boardgamehub/hub/internal/models"
)

// GameIndexRepository reads the semantic index of board games (board_game_index table).
// Rows are written by the index sync job; this repository never mutates them.
type GameIndexRepository struct {
	db *pgxpool.Pool
}

// NewGameIndexRepository creates a new game index repository.
func NewGameIndexRepository(db *pgxpool.Pool) *GameIndexRepository {
	return &GameIndexRepository{db: db}
}

// NearestGames returns the metadata of the limit nearest games to queryEmbedding for the given
// embedding model, most similar first. Uses cosine distance (<=>); score = 1 - distance.
// Only rows with score >= minScore are returned. An empty index yields an empty, non-nil slice.
func (r *GameIndexRepository) NearestGames(
	ctx context.Context, model string, queryEmbedding []float32, limit int, minScore float64,
) ([]models.CandidateRecord, error) {
	queryVec := pgvector.NewHalfVector(queryEmbedding)

	rows, err := r.db.Query(ctx, `
		SELECT name, description, min_players, max_players, play_time_min, play_time_max, complexity,
		       (1 - (embedding <=> $1)) AS score
		FROM board_game_index
		WHERE model = $2 AND (1 - (embedding <=> $1)) >= $3
		ORDER BY embedding <=> $1
		LIMIT $4`, queryVec, model, minScore, limit)
	if err != nil {
		return nil, fmt.Errorf("nearest games: %w", err)
	}
	defer rows.Close()

	results := []models.CandidateRecord{}

	for rows.Next() {
		var c models.CandidateRecord
		if err := rows.Scan(
			&c.Name, &c.Description, &c.MinPlayers, &c.MaxPlayers,
			&c.PlayTimeMin, &c.PlayTimeMax, &c.Complexity, &c.Score,
		); err != nil {
			return nil, fmt.Errorf("scan game candidate: %w", err)
		}

		results = append(results, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating nearest games: %w", err)
	}

	return results, nil
}
