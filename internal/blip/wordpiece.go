package blip

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
)

// BLIP ships the uncased BERT vocabulary. The tokenizer here implements the
// matching WordPiece scheme: lowercase, split punctuation into standalone
// tokens, then greedy longest-match against the vocabulary with "##"
// continuation pieces.

const (
	padToken = "[PAD]"
	unkToken = "[UNK]"
	clsToken = "[CLS]"
	sepToken = "[SEP]"

	maxWordChars = 100 // words longer than this become [UNK]
)

type tokenizer struct {
	tokens []string
	ids    map[string]int64
}

// loadTokenizer reads a vocab.txt file, one token per line, line number is
// the token id.
func loadTokenizer(path string) (*tokenizer, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening vocab %s: %w", path, err)
	}
	defer f.Close()

	tk := &tokenizer{ids: make(map[string]int64)}
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		tok := strings.TrimRight(scanner.Text(), "\r\n")
		tk.ids[tok] = int64(len(tk.tokens))
		tk.tokens = append(tk.tokens, tok)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading vocab: %w", err)
	}

	for _, required := range []string{padToken, unkToken, clsToken, sepToken} {
		if _, ok := tk.ids[required]; !ok {
			return nil, fmt.Errorf("vocab is missing %s", required)
		}
	}

	return tk, nil
}

func (tk *tokenizer) id(token string) int64 { return tk.ids[token] }

// Encode tokenizes text into a [CLS] ... [SEP] id sequence.
func (tk *tokenizer) Encode(text string) []int64 {
	ids := []int64{tk.ids[clsToken]}
	for _, word := range basicTokenize(text) {
		ids = append(ids, tk.wordpiece(word)...)
	}
	return append(ids, tk.ids[sepToken])
}

// wordpiece splits a single word into the longest matching vocabulary
// pieces. Unmatchable words map to a single [UNK].
func (tk *tokenizer) wordpiece(word string) []int64 {
	if len(word) > maxWordChars {
		return []int64{tk.ids[unkToken]}
	}

	var pieces []int64
	runes := []rune(word)
	start := 0
	for start < len(runes) {
		end := len(runes)
		var cur int64 = -1
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := tk.ids[piece]; ok {
				cur = id
				break
			}
			end--
		}
		if cur == -1 {
			return []int64{tk.ids[unkToken]}
		}
		pieces = append(pieces, cur)
		start = end
	}
	return pieces
}

// Decode turns generated ids back into text, dropping special tokens and
// merging "##" continuation pieces.
func (tk *tokenizer) Decode(ids []int64) string {
	var sb strings.Builder
	for _, id := range ids {
		if id < 0 || int(id) >= len(tk.tokens) {
			continue
		}
		tok := tk.tokens[id]
		if strings.HasPrefix(tok, "[") && strings.HasSuffix(tok, "]") {
			// control/formatting token
			continue
		}
		if cont, ok := strings.CutPrefix(tok, "##"); ok {
			sb.WriteString(cont)
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(tok)
	}
	return sb.String()
}

// basicTokenize lowercases text and splits it on whitespace, with every
// punctuation rune becoming its own token.
func basicTokenize(text string) []string {
	var words []string
	var cur strings.Builder
	flush := func() {
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}

	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsSpace(r):
			flush()
		case unicode.IsPunct(r) || unicode.IsSymbol(r):
			flush()
			words = append(words, string(r))
		default:
			cur.WriteRune(r)
		}
	}
	flush()

	return words
}
