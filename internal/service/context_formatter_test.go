package service

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/boardgamehub/hub/internal/models"
)

func TestFormatContext(t *testing.T) {
	t.Run("empty input yields the no-candidates marker", func(t *testing.T) {
		assert.Equal(t, NoCandidatesContext, FormatContext(nil))
		assert.Equal(t, NoCandidatesContext, FormatContext([]models.CandidateRecord{}))
	})

	t.Run("renders numbered blocks in input order", func(t *testing.T) {
		complexity := 1.8
		desc := "Tile drafting\n  and pattern building"
		azul := candidate("Azul", 2, 4)
		azul.Description = &desc
		azul.Complexity = &complexity
		azul.Score = 0.4

		catan := candidate("Catan", 3, 4)
		catan.Score = 0.9

		out := FormatContext([]models.CandidateRecord{azul, catan})

		assert.Less(t, strings.Index(out, "1. Name: Azul"), strings.Index(out, "2. Name: Catan"))
		assert.Contains(t, out, "Description: Tile drafting and pattern building")
		assert.Contains(t, out, "Players: 2-4")
		assert.Contains(t, out, "Complexity: 1.8")
		assert.NotContains(t, out, "0.9", "similarity scores are internal")
	})

	t.Run("unknown fields render as question marks", func(t *testing.T) {
		out := FormatContext([]models.CandidateRecord{{GameMetadata: models.GameMetadata{Name: "Mystery"}}})

		assert.Contains(t, out, "Description: ?")
		assert.Contains(t, out, "Players: ?-?")
		assert.Contains(t, out, "Play time: ?-? minutes")
		assert.Contains(t, out, "Complexity: ?")
	})

	t.Run("is deterministic", func(t *testing.T) {
		in := []models.CandidateRecord{candidate("Azul", 2, 4), candidate("Catan", 3, 4)}

		assert.Equal(t, FormatContext(in), FormatContext(in))
	})
}
