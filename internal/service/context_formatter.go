package service

import (
	"strconv"
	"strings"

	"github.com/boardgamehub/hub/internal/models"
)

// NoCandidatesContext is the context text used when retrieval returned nothing or degraded.
// It tells the model to fall back to general knowledge.
const NoCandidatesContext = "No matching games were found in the catalog. " +
	"Recommend well-known board games from your general knowledge."

const unknownValue = "?"

// FormatContext renders candidates as numbered, human-readable blocks in input order.
// Missing optional fields render as "?". An empty list yields NoCandidatesContext.
// The output is deterministic for a given input.
func FormatContext(candidates []models.CandidateRecord) string {
	if len(candidates) == 0 {
		return NoCandidatesContext
	}

	var b strings.Builder

	for i, c := range candidates {
		if i > 0 {
			b.WriteString("\n")
		}

		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		writeGameMetadata(&b, c.GameMetadata)
	}

	return b.String()
}

func writeGameMetadata(b *strings.Builder, m models.GameMetadata) {
	b.WriteString("Name: ")
	b.WriteString(strings.TrimSpace(m.Name))
	b.WriteString("\n   Description: ")
	b.WriteString(formatText(m.Description))
	b.WriteString("\n   Players: ")
	b.WriteString(formatRange(m.MinPlayers, m.MaxPlayers))
	b.WriteString("\n   Play time: ")
	b.WriteString(formatRange(m.PlayTimeMin, m.PlayTimeMax))
	b.WriteString(" minutes\n   Complexity: ")
	b.WriteString(formatFloat(m.Complexity))
	b.WriteString("\n")
}

func formatText(s *string) string {
	if s == nil || strings.TrimSpace(*s) == "" {
		return unknownValue
	}

	// One line per field keeps blocks parseable for the model.
	return strings.Join(strings.Fields(*s), " ")
}

func formatRange(lo, hi *int) string {
	return formatInt(lo) + "-" + formatInt(hi)
}

func formatInt(v *int) string {
	if v == nil {
		return unknownValue
	}

	return strconv.Itoa(*v)
}

func formatFloat(v *float64) string {
	if v == nil {
		return unknownValue
	}

	return strconv.FormatFloat(*v, 'f', -1, 64)
}
