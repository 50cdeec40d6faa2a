// Package analysis annotates pattern matches for display: the address an
// instruction references and the string found there, if any.
package analysis

const (
	// MaxStringLength is the maximum length for string extraction
	MaxStringLength = 256

	// ListingWindow is how many bytes are decoded after a match by default
	ListingWindow = 64
)
