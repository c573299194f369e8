// Package repository provides data access for board games and their semantic index.
package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/boardgamehub/hub/internal/models"
)

// normalizedNameSQL mirrors service.NormalizeGameName: trim, collapse internal whitespace, lower-case.
const normalizedNameSQL = `lower(btrim(regexp_replace(name, '\s+', ' ', 'g')))`

// BoardGamesRepository handles read access to the primary board game store.
type BoardGamesRepository struct {
	db *pgxpool.Pool
}

// NewBoardGamesRepository creates a new board games repository.
func NewBoardGamesRepository(db *pgxpool.Pool) *BoardGamesRepository {
	return &BoardGamesRepository{db: db}
}

// FindByNormalizedNames returns every board game whose normalized name is in names, ordered by id.
// Several games may share a normalized name; callers pick among them.
func (r *BoardGamesRepository) FindByNormalizedNames(ctx context.Context, names []string) ([]models.BoardGame, error) {
	if len(names) == 0 {
		return []models.BoardGame{}, nil
	}

	query := `
		SELECT id, name, description, min_players, max_players, play_time_min, play_time_max, complexity,
			image_url, accessories, tutorials, status, created_by, created_at, updated_at
		FROM board_games
		WHERE ` + normalizedNameSQL + ` = ANY($1)
		ORDER BY id ASC
	`

	rows, err := r.db.Query(ctx, query, names)
	if err != nil {
		return nil, fmt.Errorf("failed to find board games by name: %w", err)
	}
	defer rows.Close()

	games := []models.BoardGame{}

	for rows.Next() {
		var game models.BoardGame

		err := rows.Scan(
			&game.ID, &game.Name, &game.Description,
			&game.MinPlayers, &game.MaxPlayers, &game.PlayTimeMin, &game.PlayTimeMax, &game.Complexity,
			&game.ImageURL, &game.Accessories, &game.Tutorials,
			&game.Status, &game.CreatedBy, &game.CreatedAt, &game.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan board game: %w", err)
		}

		games = append(games, game)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating board games: %w", err)
	}

	return games, nil
}

// ListCategoriesByGameIDs returns the categories of each given game, keyed by game id and sorted by name.
// Games without categories are absent from the map.
func (r *BoardGamesRepository) ListCategoriesByGameIDs(
	ctx context.Context, gameIDs []int64,
) (map[int64][]models.Category, error) {
	result := make(map[int64][]models.Category, len(gameIDs))
	if len(gameIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT bgc.board_game_id, c.id, c.name
		FROM board_game_categories bgc
		JOIN categories c ON c.id = bgc.category_id
		WHERE bgc.board_game_id = ANY($1)
		ORDER BY bgc.board_game_id, c.name
	`

	rows, err := r.db.Query(ctx, query, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list board game categories: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			gameID   int64
			category models.Category
		)

		if err := rows.Scan(&gameID, &category.ID, &category.Name); err != nil {
			return nil, fmt.Errorf("failed to scan board game category: %w", err)
		}

		result[gameID] = append(result[gameID], category)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating board game categories: %w", err)
	}

	return result, nil
}

// ListTagsByGameIDs returns the tags of each given game, keyed by game id and sorted by name.
func (r *BoardGamesRepository) ListTagsByGameIDs(ctx context.Context, gameIDs []int64) (map[int64][]models.Tag, error) {
	result := make(map[int64][]models.Tag, len(gameIDs))
	if len(gameIDs) == 0 {
		return result, nil
	}

	query := `
		SELECT bgt.board_game_id, t.id, t.name
		FROM board_game_tags bgt
		JOIN tags t ON t.id = bgt.tag_id
		WHERE bgt.board_game_id = ANY($1)
		ORDER BY bgt.board_game_id, t.name
	`

	rows, err := r.db.Query(ctx, query, gameIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to list board game tags: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			gameID int64
			tag    models.Tag
		)

		if err := rows.Scan(&gameID, &tag.ID, &tag.Name); err != nil {
			return nil, fmt.Errorf("failed to scan board game tag: %w", err)
		}

		result[gameID] = append(result[gameID], tag)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating board game tags: %w", err)
	}

	return result, nil
}
