package vocab

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	ErrUnknownToken     = errors.New("vocab: unknown token")
	ErrIndexRange       = errors.New("vocab: index out of range")
	ErrEmptySentinel    = errors.New("vocab: empty sentinel token")
	ErrSentinelInCorpus = errors.New("vocab: sentinel token appears in corpus")
)

// Vocab is a closed character-level token alphabet with one or two sentinel
// tokens. It is immutable once built.
type Vocab struct {
	tokens  []string
	index   map[string]int
	opening int
	closing int
}

// New builds a vocabulary from the distinct characters of words, sorted
// lexicographically. When opening and closing are equal the shared sentinel
// takes index 0; otherwise opening is index 0 and closing is the last index.
func New(words []string, opening, closing string) (*Vocab, error) {
	if opening == "" || closing == "" {
		return nil, ErrEmptySentinel
	}
	seen := make(map[rune]struct{})
	for _, w := range words {
		for _, r := range w {
			seen[r] = struct{}{}
		}
	}
	chars := make([]string, 0, len(seen))
	for r := range seen {
		chars = append(chars, string(r))
	}
	slices.Sort(chars)

	for _, s := range []string{opening, closing} {
		if utf8.RuneCountInString(s) == 1 {
			if _, ok := seen[[]rune(s)[0]]; ok {
				return nil, fmt.Errorf("%w: %q", ErrSentinelInCorpus, s)
			}
		}
	}

	tokens := make([]string, 0, len(chars)+2)
	tokens = append(tokens, opening)
	tokens = append(tokens, chars...)
	if closing != opening {
		tokens = append(tokens, closing)
	}

	v := &Vocab{
		tokens:  tokens,
		index:   make(map[string]int, len(tokens)),
		opening: 0,
		closing: len(tokens) - 1,
	}
	if closing == opening {
		v.closing = 0
	}
	for i, t := range tokens {
		v.index[t] = i
	}
	return v, nil
}

// Size returns the number of tokens including sentinels.
func (v *Vocab) Size() int { return len(v.tokens) }

// Opening returns the index used for left padding and as the start context.
func (v *Vocab) Opening() int { return v.opening }

// Closing returns the index that terminates a sequence.
func (v *Vocab) Closing() int { return v.closing }

// Tokens returns a copy of the ordered token list.
func (v *Vocab) Tokens() []string { return slices.Clone(v.tokens) }

func (v *Vocab) Index(tok string) (int, error) {
	i, ok := v.index[tok]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownToken, tok)
	}
	return i, nil
}

func (v *Vocab) Token(i int) (string, error) {
	if i < 0 || i >= len(v.tokens) {
		return "", fmt.Errorf("%w: %d", ErrIndexRange, i)
	}
	return v.tokens[i], nil
}

// Encode maps each character of word to its index. Sentinels are not added.
func (v *Vocab) Encode(word string) ([]int, error) {
	out := make([]int, 0, len(word))
	for _, r := range word {
		i, err := v.Index(string(r))
		if err != nil {
			return nil, err
		}
		out = append(out, i)
	}
	return out, nil
}

// Decode joins the tokens for ids, skipping sentinels and unknown indices.
func (v *Vocab) Decode(ids []int) string {
	var b strings.Builder
	for _, id := range ids {
		if id == v.opening || id == v.closing || id < 0 || id >= len(v.tokens) {
			continue
		}
		b.WriteString(v.tokens[id])
	}
	return b.String()
}

// IsSentinel reports whether i is the opening or closing index.
func (v *Vocab) IsSentinel(i int) bool {
	return i == v.opening || i == v.closing
}
