// Package errors provides structured error handling for jprag.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration errors
//   - 2XX: IO and index errors
//   - 3XX: External model errors
//   - 4XX: Validation errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates file, artifact, and index I/O errors.
	CategoryIO Category = "IO"
	// CategoryModel indicates external model (embedder, cross-encoder) errors.
	CategoryModel Category = "MODEL"
	// CategoryValidation indicates input validation errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeModelMismatch  = "ERR_103_MODEL_MISMATCH"
	ErrCodeEmptyCorpus    = "ERR_104_EMPTY_CORPUS"

	// IO and index errors (200-299)
	ErrCodeFileNotFound  = "ERR_201_FILE_NOT_FOUND"
	ErrCodeCorruptIndex  = "ERR_205_CORRUPT_INDEX"
	ErrCodeArtifactWrite = "ERR_206_ARTIFACT_WRITE"

	// External model errors (300-399)
	ErrCodeRerankUnavailable = "ERR_301_RERANK_UNAVAILABLE"
	ErrCodeEmbedFailed       = "ERR_302_EMBED_FAILED"

	// Validation errors (400-499)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeMalformedGold     = "ERR_403_MALFORMED_GOLD"

	// Internal errors (500-599)
	ErrCodeInternal       = "ERR_501_INTERNAL"
	ErrCodeSearchFailed   = "ERR_502_SEARCH_FAILED"
	ErrCodeSweepRunFailed = "ERR_503_SWEEP_RUN_FAILED"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryModel
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeCorruptIndex, ErrCodeConfigInvalid, ErrCodeModelMismatch, ErrCodeEmptyCorpus:
		return SeverityFatal
	case ErrCodeRerankUnavailable:
		return SeverityWarning
	}
	return SeverityError
}

// isRecoverableCode checks if an error code represents a recoverable condition:
// the caller may degrade gracefully instead of aborting.
func isRecoverableCode(code string) bool {
	switch code {
	case ErrCodeRerankUnavailable, ErrCodeSweepRunFailed:
		return true
	default:
		return false
	}
}
