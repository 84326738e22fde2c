package wakeword

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/antzucaro/matchr"
)

// Keyword is a wake phrase as configured by the user. Phrases are compiled to
// token sequences at detector initialization; phrases with no lexicon mapping
// are skipped with a warning rather than failing the whole set.
type Keyword struct {
	// Phrase is the spoken wake phrase (e.g., "hey quill").
	Phrase string

	// Enabled excludes the keyword from compilation when false.
	Enabled bool

	// BoostScore raises the decoder's preference for this keyword.
	// Zero selects the engine default.
	BoostScore float32

	// Threshold is the per-keyword trigger threshold. Zero selects the
	// engine default.
	Threshold float32
}

// compiledKeyword pairs a keyword with its token representation.
type compiledKeyword struct {
	Keyword
	tokens []string
}

// specLine renders the keyword in the compiled keywords-file format:
//
//	TOKEN1 TOKEN2 ... :boostScore #threshold
//
// Boost and threshold annotations are omitted when zero so the engine
// defaults apply.
func (c compiledKeyword) specLine() string {
	var b strings.Builder
	b.WriteString(strings.Join(c.tokens, " "))
	if c.BoostScore != 0 {
		b.WriteString(" :")
		b.WriteString(strconv.FormatFloat(float64(c.BoostScore), 'g', -1, 32))
	}
	if c.Threshold != 0 {
		b.WriteString(" #")
		b.WriteString(strconv.FormatFloat(float64(c.Threshold), 'g', -1, 32))
	}
	return b.String()
}

// Lexicon is the fixed phrase→token vocabulary keywords are compiled
// against. Keys are lowercase words; values are the model token strings the
// word decodes into.
type Lexicon map[string][]string

// LoadLexicon reads a lexicon file with one entry per line:
//
//	word TOKEN1 TOKEN2 ...
//
// Blank lines and lines starting with '#' are skipped.
func LoadLexicon(path string) (Lexicon, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("wakeword: open lexicon %q: %w", path, err)
	}
	defer f.Close()

	lex := make(Lexicon)
	scanner := bufio.NewScanner(f)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			return nil, fmt.Errorf("wakeword: lexicon %q line %d: want word followed by tokens", path, lineNo)
		}
		lex[strings.ToLower(fields[0])] = fields[1:]
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("wakeword: read lexicon %q: %w", path, err)
	}
	return lex, nil
}

// compile maps a phrase to its token sequence word by word. The second
// return value is the first word with no lexicon entry when compilation
// fails.
func (l Lexicon) compile(phrase string) (tokens []string, unknown string) {
	for _, word := range strings.Fields(strings.ToLower(phrase)) {
		wordTokens, ok := l[word]
		if !ok {
			return nil, word
		}
		tokens = append(tokens, wordTokens...)
	}
	return tokens, ""
}

// suggest returns the lexicon word most similar to unknown, preferring
// Double Metaphone matches ranked by Jaro-Winkler similarity. Empty when
// nothing scores above suggestionThreshold.
const suggestionThreshold = 0.70

func (l Lexicon) suggest(unknown string) string {
	up, us := matchr.DoubleMetaphone(unknown)

	best := ""
	bestScore := suggestionThreshold
	for word := range l {
		wp, ws := matchr.DoubleMetaphone(word)
		phonetic := up != "" && (up == wp || up == ws || (us != "" && (us == wp || us == ws)))

		score := matchr.JaroWinkler(unknown, word, false)
		if phonetic {
			// A phonetic hit outranks a same-score spelling hit.
			score += 0.1
		}
		if score > bestScore {
			bestScore = score
			best = word
		}
	}
	return best
}
