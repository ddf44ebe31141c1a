package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// Special WordPiece tokens (BERT-style)
const (
	tokenPad = "[PAD]"
	tokenUnk = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"

	continuationPrefix = "##"
	maxWordRunes       = 100
)

// Piece is one WordPiece token with its character span in the source text
type Piece struct {
	ID           int32
	Token        string
	Start        int
	End          int
	Continuation bool // "##" piece continuing the previous word
}

// Tokenizer performs BERT basic tokenization followed by greedy
// longest-match WordPiece over a fixed vocabulary.
type Tokenizer struct {
	vocab     map[string]int32
	lowerCase bool
	unkID     int32
	clsID     int32
	sepID     int32
	padID     int32
}

// LoadVocab reads a vocab.txt file: one token per line, id = line number
func LoadVocab(path string) (map[string]int32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocabulary: %w", err)
	}
	defer f.Close()

	vocab := make(map[string]int32)
	scanner := bufio.NewScanner(f)
	var id int32
	for scanner.Scan() {
		token := strings.TrimRight(scanner.Text(), "\r")
		if token != "" {
			vocab[token] = id
		}
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocabulary: %w", err)
	}
	return vocab, nil
}

// NewTokenizer creates a tokenizer. The vocabulary must contain the BERT
// special tokens.
func NewTokenizer(vocab map[string]int32, lowerCase bool) (*Tokenizer, error) {
	t := &Tokenizer{vocab: vocab, lowerCase: lowerCase}
	for token, dst := range map[string]*int32{
		tokenUnk: &t.unkID,
		tokenCLS: &t.clsID,
		tokenSEP: &t.sepID,
		tokenPad: &t.padID,
	} {
		id, ok := vocab[token]
		if !ok {
			return nil, fmt.Errorf("vocabulary is missing special token %s", token)
		}
		*dst = id
	}
	return t, nil
}

// Tokenize splits text into word pieces carrying rune offsets
func (t *Tokenizer) Tokenize(text string) []Piece {
	var pieces []Piece
	for _, w := range splitWords([]rune(text)) {
		pieces = append(pieces, t.wordPieces(w)...)
	}
	return pieces
}

type word struct {
	runes []rune
	start int
}

// splitWords applies basic tokenization: whitespace separates words,
// punctuation becomes a word of its own, control characters are dropped.
func splitWords(runes []rune) []word {
	var words []word
	var current []rune
	start := 0

	flush := func() {
		if len(current) > 0 {
			words = append(words, word{runes: current, start: start})
			current = nil
		}
	}

	for i, r := range runes {
		switch {
		case unicode.IsSpace(r):
			flush()
		case r == 0 || r == unicode.ReplacementChar || unicode.IsControl(r):
			flush()
		case isPunctuation(r):
			flush()
			words = append(words, word{runes: []rune{r}, start: i})
		default:
			if len(current) == 0 {
				start = i
			}
			current = append(current, r)
		}
	}
	flush()
	return words
}

// isPunctuation treats every non-alphanumeric ASCII symbol as punctuation,
// matching BERT, plus the Unicode P* classes.
func isPunctuation(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

func (t *Tokenizer) wordPieces(w word) []Piece {
	text := string(w.runes)
	if t.lowerCase {
		text = strings.ToLower(text)
	}
	runes := []rune(text)
	unknown := []Piece{{ID: t.unkID, Token: tokenUnk, Start: w.start, End: w.start + len(w.runes)}}

	// lowercasing can change rune counts for a handful of scripts; offsets
	// are only trustworthy when it does not
	if len(runes) != len(w.runes) || len(runes) > maxWordRunes {
		return unknown
	}

	var pieces []Piece
	for begin := 0; begin < len(runes); {
		end := len(runes)
		found := false
		for end > begin {
			candidate := string(runes[begin:end])
			if begin > 0 {
				candidate = continuationPrefix + candidate
			}
			if id, ok := t.vocab[candidate]; ok {
				pieces = append(pieces, Piece{
					ID:           id,
					Token:        candidate,
					Start:        w.start + begin,
					End:          w.start + end,
					Continuation: begin > 0,
				})
				found = true
				break
			}
			end--
		}
		if !found {
			return unknown
		}
		begin = end
	}
	return pieces
}
