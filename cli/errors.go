package cli

// ErrorCode defines error types for CLI operations
type ErrorCode string

const (
	InvalidSource ErrorCode = "InvalidSource"
	NoArgumentMap ErrorCode = "NoArgumentMap"
)

func (c ErrorCode) ErrorCode() string {
	return string(c)
}
