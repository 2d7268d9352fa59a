package wordlist

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/samber/lo"
)

// WordLength is fixed for the game: five ASCII letters.
const WordLength = 5

// Dictionary holds the two word pools: the broad guess dictionary (what the
// game accepts as a well-formed guess) and the curated answer dictionary
// (what secrets and hidden words are drawn from). Every answer word is also
// a valid guess word.
type Dictionary struct {
	guesses map[string]struct{}
	answers []string
}

// offensive words never allowed into the curated answer pool
var answerBlacklist = map[string]struct{}{
	"WHORE": {}, "BITCH": {}, "PRICK": {}, "PUSSY": {},
	"CUNTS": {}, "FUCKS": {}, "SHITS": {}, "COCKS": {},
}

func New(guessWords, answerWords []string) (*Dictionary, error) {
	d := &Dictionary{
		guesses: make(map[string]struct{}, len(guessWords)+len(answerWords)),
	}
	for _, w := range guessWords {
		n := Normalize(w)
		if !WellFormed(n) {
			return nil, fmt.Errorf("guess dictionary entry %q is not a %d-letter word", w, WordLength)
		}
		d.guesses[n] = struct{}{}
	}
	for _, w := range answerWords {
		n := Normalize(w)
		if !WellFormed(n) {
			return nil, fmt.Errorf("answer dictionary entry %q is not a %d-letter word", w, WordLength)
		}
		if _, banned := answerBlacklist[n]; banned {
			continue
		}
		if _, seen := d.guesses[n]; !seen {
			d.guesses[n] = struct{}{}
		}
		d.answers = append(d.answers, n)
	}
	d.answers = lo.Uniq(d.answers)
	if len(d.answers) == 0 {
		return nil, fmt.Errorf("answer dictionary is empty")
	}
	return d, nil
}

// Default returns a dictionary built from the embedded word lists.
func Default() *Dictionary {
	d, err := New(defaultGuessWords, defaultAnswerWords)
	if err != nil {
		// embedded lists are validated by tests; this is unreachable
		panic(err)
	}
	return d
}

// Normalize maps raw player input onto dictionary form: trimmed, uppercased.
func Normalize(word string) string {
	return strings.ToUpper(strings.TrimSpace(word))
}

// WellFormed reports whether a normalized word has the right shape,
// independent of dictionary membership.
func WellFormed(word string) bool {
	if len(word) != WordLength {
		return false
	}
	for i := 0; i < len(word); i++ {
		if word[i] < 'A' || word[i] > 'Z' {
			return false
		}
	}
	return true
}

// IsValidGuess reports whether a normalized word is accepted as a guess.
func (d *Dictionary) IsValidGuess(word string) bool {
	if !WellFormed(word) {
		return false
	}
	_, ok := d.guesses[word]
	return ok
}

// Answers returns the curated answer pool. Callers must not mutate it.
func (d *Dictionary) Answers() []string {
	return d.answers
}

func (d *Dictionary) GuessCount() int  { return len(d.guesses) }
func (d *Dictionary) AnswerCount() int { return len(d.answers) }

// LoadFile reads one word per line, skipping blanks and '#' comments.
func LoadFile(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var words []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		words = append(words, line)
	}
	return words, scanner.Err()
}

// FromFiles builds a dictionary from guess and answer list files. An empty
// answers path reuses the guess list as the answer pool.
func FromFiles(guessPath, answerPath string) (*Dictionary, error) {
	guesses, err := LoadFile(guessPath)
	if err != nil {
		return nil, fmt.Errorf("load guess words: %w", err)
	}
	answers := guesses
	if answerPath != "" {
		answers, err = LoadFile(answerPath)
		if err != nil {
			return nil, fmt.Errorf("load answer words: %w", err)
		}
	}
	return New(guesses, answers)
}
