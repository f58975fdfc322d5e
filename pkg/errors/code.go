package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 12000-12999: Test-data storage errors
// 13000-13999: Judge & Sandbox errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError  ErrorCode = 10100
	RecordNotFound ErrorCode = 10101

	// Cache errors (10200-10299)
	CacheError ErrorCode = 10200
	CacheMiss  ErrorCode = 10201

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300

	// ========== Test-data Storage Errors (12000-12999) ==========

	InvalidPath      ErrorCode = 12000
	ArchiveTooLarge  ErrorCode = 12001
	MalformedArchive ErrorCode = 12002
	StorageIoError   ErrorCode = 12003
	CaseNotFound     ErrorCode = 12004
	IntegrityError   ErrorCode = 12005

	// ========== Judge & Sandbox Errors (13000-13999) ==========

	ProblemNotFound      ErrorCode = 13000
	LanguageNotSupported ErrorCode = 13001
	JudgeSystemError     ErrorCode = 13002
	MissingTestData      ErrorCode = 13003
	CheckerError         ErrorCode = 13004
	SandboxUnsupported   ErrorCode = 13005
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	Timeout:             "Operation timed out",

	DatabaseError:  "Database error",
	RecordNotFound: "Record not found",

	CacheError: "Cache error",
	CacheMiss:  "Cache miss",

	ValidationFailed: "Validation failed",

	InvalidPath:      "Path escapes storage root",
	ArchiveTooLarge:  "Archive exceeds extraction limit",
	MalformedArchive: "Malformed archive",
	StorageIoError:   "Test-data I/O failed",
	CaseNotFound:     "Test case not found",
	IntegrityError:   "Test-data integrity check failed",

	ProblemNotFound:      "Problem not found",
	LanguageNotSupported: "Unsupported language",
	JudgeSystemError:     "Judge system error",
	MissingTestData:      "Missing testdata",
	CheckerError:         "Checker failed",
	SandboxUnsupported:   "Sandbox is not supported on this platform",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus maps the error code to an HTTP status code
func (c ErrorCode) HTTPStatus() int {
	switch c {
	case Success:
		return 200
	case InvalidParams, ValidationFailed, InvalidPath, ArchiveTooLarge,
		MalformedArchive, LanguageNotSupported:
		return 400
	case NotFound, RecordNotFound, CaseNotFound, ProblemNotFound:
		return 404
	case Timeout:
		return 408
	default:
		return 500
	}
}
