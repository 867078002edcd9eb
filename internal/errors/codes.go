// Package errors provides structured error handling for askfolder.
//
// Codes follow ERR_XXX_DESCRIPTION, grouped by the leading digit:
//   - 1XX configuration
//   - 2XX extraction and file I/O
//   - 3XX embedding/generation providers
//   - 4XX validation
//   - 5XX index and internal
package errors

// Category groups error codes for coarse handling decisions.
type Category string

const (
	CategoryConfig     Category = "CONFIG"
	CategoryIO         Category = "IO"
	CategoryProvider   Category = "PROVIDER"
	CategoryValidation Category = "VALIDATION"
	CategoryInternal   Category = "INTERNAL"
)

// Severity ranks how an error should be handled.
type Severity string

const (
	// SeverityFatal aborts the current operation.
	SeverityFatal Severity = "FATAL"
	// SeverityError failed the operation; the process continues.
	SeverityError Severity = "ERROR"
	// SeverityWarning is a degraded but recoverable condition.
	SeverityWarning Severity = "WARNING"
	SeverityInfo    Severity = "INFO"
)

const (
	// Config (1xx)
	ErrCodeConfigNotFound      = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid       = "ERR_102_CONFIG_INVALID"
	ErrCodeProviderUnknown     = "ERR_103_PROVIDER_UNKNOWN"
	ErrCodeProviderCredentials = "ERR_104_PROVIDER_CREDENTIALS"

	// Extraction / IO (2xx)
	ErrCodeFileNotFound     = "ERR_201_FILE_NOT_FOUND"
	ErrCodeFileUnreadable   = "ERR_202_FILE_UNREADABLE"
	ErrCodeExtractionFailed = "ERR_203_EXTRACTION_FAILED"
	ErrCodeUnsupportedType  = "ERR_204_UNSUPPORTED_TYPE"
	ErrCodeCorruptIndex     = "ERR_205_CORRUPT_INDEX"

	// Provider (3xx)
	ErrCodeProviderTimeout     = "ERR_301_PROVIDER_TIMEOUT"
	ErrCodeProviderUnavailable = "ERR_302_PROVIDER_UNAVAILABLE"
	ErrCodeRateLimited         = "ERR_303_RATE_LIMITED"

	// Validation (4xx)
	ErrCodeInvalidInput      = "ERR_401_INVALID_INPUT"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeNamespaceMismatch = "ERR_403_NAMESPACE_MISMATCH"
	ErrCodeQueryEmpty        = "ERR_404_QUERY_EMPTY"

	// Index / internal (5xx)
	ErrCodeInternal        = "ERR_501_INTERNAL"
	ErrCodeEmbeddingFailed = "ERR_502_EMBEDDING_FAILED"
	ErrCodeIndexWrite      = "ERR_503_INDEX_WRITE"
	ErrCodeGenerateFailed  = "ERR_504_GENERATE_FAILED"
)

// categoryFromCode maps the leading digit of the numeric block, e.g. the
// "3" of "ERR_303_RATE_LIMITED", to its category.
func categoryFromCode(code string) Category {
	if len(code) < 5 {
		return CategoryInternal
	}
	switch code[4] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryProvider
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

func severityFromCode(code string) Severity {
	if code == ErrCodeCorruptIndex {
		return SeverityFatal
	}
	// Retryable provider errors get warning severity: the indexing cycle
	// continues and the file is retried on a later pass.
	if isRetryableCode(code) {
		return SeverityWarning
	}
	return SeverityError
}

func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeProviderTimeout, ErrCodeProviderUnavailable, ErrCodeRateLimited:
		return true
	}
	return false
}
