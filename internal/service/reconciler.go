package service

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/boardgamehub/hub/internal/models"
)

const defaultStoreTimeout = 5 * time.Second

// BoardGamesRepository provides the primary store reads needed to reconcile generated names.
type BoardGamesRepository interface {
	FindByNormalizedNames(ctx context.Context, names []string) ([]models.BoardGame, error)
	ListCategoriesByGameIDs(ctx context.Context, gameIDs []int64) (map[int64][]models.Category, error)
	ListTagsByGameIDs(ctx context.Context, gameIDs []int64) (map[int64][]models.Tag, error)
}

// ResponseReconciler maps generated game names back to authoritative store records.
type ResponseReconciler struct {
	repo    BoardGamesRepository
	timeout time.Duration
	logger  *slog.Logger
}

// ResponseReconcilerParams configures ResponseReconciler.
type ResponseReconcilerParams struct {
	Repo    BoardGamesRepository
	Timeout time.Duration
	Logger  *slog.Logger
}

// NewResponseReconciler creates a ResponseReconciler.
func NewResponseReconciler(p ResponseReconcilerParams) *ResponseReconciler {
	logger := p.Logger
	if logger == nil {
		logger = slog.Default()
	}

	timeout := p.Timeout
	if timeout <= 0 {
		timeout = defaultStoreTimeout
	}

	return &ResponseReconciler{repo: p.Repo, timeout: timeout, logger: logger}
}

// NormalizeGameName trims, collapses internal whitespace and lower-cases name.
// The store query applies the same normalization to stored names.
func NormalizeGameName(name string) string {
	return strings.ToLower(strings.Join(strings.Fields(name), " "))
}

// Reconcile resolves names against the store with one batched lookup and returns the matched records in the
// order of names, deduplicated (first position wins) and truncated to limit. Names without a match are returned
// in Unresolved and never substituted. When several records share a normalized name the lowest id wins.
// Store failures wrap ErrStoreUnavailable.
func (r *ResponseReconciler) Reconcile(ctx context.Context, names []string, limit int) (models.ReconciliationResult, error) {
	result := models.ReconciliationResult{
		Games:      []models.BoardGame{},
		Unresolved: []string{},
	}

	keys := make([]string, 0, len(names))
	seenKeys := make(map[string]bool, len(names))

	for _, name := range names {
		key := NormalizeGameName(name)
		if key == "" || seenKeys[key] {
			continue
		}

		seenKeys[key] = true
		keys = append(keys, key)
	}

	if len(keys) == 0 || limit < 1 {
		return result, nil
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	rows, err := r.repo.FindByNormalizedNames(ctx, keys)
	if err != nil {
		return result, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	slices.SortStableFunc(rows, func(a, b models.BoardGame) int {
		return cmp.Compare(a.ID, b.ID)
	})

	byKey := make(map[string]models.BoardGame, len(rows))
	for _, row := range rows {
		key := NormalizeGameName(row.Name)
		if _, taken := byKey[key]; !taken {
			byKey[key] = row
		}
	}

	seenIDs := make(map[int64]bool, len(keys))
	unresolvedKeys := make(map[string]bool)

	for _, name := range names {
		key := NormalizeGameName(name)
		if key == "" {
			continue
		}

		game, ok := byKey[key]
		if !ok {
			if !unresolvedKeys[key] {
				unresolvedKeys[key] = true
				result.Unresolved = append(result.Unresolved, name)

				r.logger.WarnContext(ctx, "recommended game not found in store", "game_name", name)
			}

			continue
		}

		if seenIDs[game.ID] || len(result.Games) >= limit {
			continue
		}

		seenIDs[game.ID] = true
		result.Games = append(result.Games, game)
	}

	if err := r.loadRelations(ctx, result.Games); err != nil {
		return models.ReconciliationResult{Games: []models.BoardGame{}, Unresolved: result.Unresolved},
			fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	return result, nil
}

// loadRelations fills categories and tags of games in place with two concurrent batched queries.
func (r *ResponseReconciler) loadRelations(ctx context.Context, games []models.BoardGame) error {
	if len(games) == 0 {
		return nil
	}

	ids := make([]int64, len(games))
	for i := range games {
		ids[i] = games[i].ID
	}

	var (
		categories map[int64][]models.Category
		tags       map[int64][]models.Tag
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		var err error

		categories, err = r.repo.ListCategoriesByGameIDs(gctx, ids)
		if err != nil {
			return fmt.Errorf("list categories: %w", err)
		}

		return nil
	})

	g.Go(func() error {
		var err error

		tags, err = r.repo.ListTagsByGameIDs(gctx, ids)
		if err != nil {
			return fmt.Errorf("list tags: %w", err)
		}

		return nil
	})

	if err := g.Wait(); err != nil {
		return err //nolint:wrapcheck // already wrapped per query
	}

	for i := range games {
		games[i].Categories = nonNil(categories[games[i].ID])
		games[i].Tags = nonNil(tags[games[i].ID])
	}

	return nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}

	return s
}
