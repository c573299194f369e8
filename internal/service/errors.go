package service

import (
	"errors"

	"github.com/boardgamehub/hub/internal/huberrors"
)

// Sentinel errors for the recommendation pipeline (used by handlers for status mapping).
var (
	// ErrRetrievalFailed is returned when the vector index or query embedding fails. The orchestrator degrades on it.
	ErrRetrievalFailed = errors.New("vector retrieval failed")
	// ErrRetrievalTimeout is returned when retrieval exceeds its deadline. The orchestrator degrades on it.
	ErrRetrievalTimeout = errors.New("vector retrieval timed out")
	// ErrGenerationUnavailable is returned when the language model call fails or times out (503).
	ErrGenerationUnavailable = huberrors.NewUnavailableError("language model", "recommendation generation is unavailable")
	// ErrGenerationFormat is returned when the language model output is not the expected JSON shape (500).
	ErrGenerationFormat = errors.New("language model returned malformed recommendations")
	// ErrStoreUnavailable is returned when the primary board game store cannot be queried (500).
	ErrStoreUnavailable = errors.New("board game store unavailable")
)
