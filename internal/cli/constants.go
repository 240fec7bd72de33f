package cli

// Default values for CLI flags and formatted output.
const (
	// TabWidth is the width of tabs in formatted output.
	TabWidth = 2
	// MaxCommentLength is the maximum length of a package comment in search results.
	MaxCommentLength = 60
)
