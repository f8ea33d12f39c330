package data

import apperrors "github.com/alungalsinan/groot-scribe-studio/internal/errors"

// Shared sentinel errors for data-layer repositories.
var (
	ErrIDRequired = apperrors.ValidationField("id", "id is required")
)
