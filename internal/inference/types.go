package inference

import "time"

// StreamFunc receives each generated character as it is produced.
type StreamFunc func(token string)

type Request struct {
	// MaxLength caps the number of characters in one sample.
	MaxLength   int
	Temperature float64
	TopK        int
}

type Result struct {
	Text   string
	Tokens []int
	// Truncated is set when MaxLength was reached before the closing token.
	Truncated bool
	Stats     Stats
}

type Stats struct {
	Steps    int
	Duration time.Duration
}
