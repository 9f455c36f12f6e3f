// Package wallet implements the key side of the wallet core: BIP39
// mnemonic handling, hierarchical key derivation and the witness
// pay-to-key-hash address encoding shared by derivation and output
// script matching.
package wallet

import (
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/tyler-smith/go-bip39"

	satchelerr "github.com/mrz1836/satchel/pkg/errors"
)

var (
	// whitespaceRegex matches one or more whitespace characters.
	whitespaceRegex = regexp.MustCompile(`\s+`)

	// numberedListRegex matches numbered list prefixes like "1." "2)" "3:"
	numberedListRegex = regexp.MustCompile(`(?m)^\s*\d+[\.\)\:]\s*`)
)

// validWordCounts are the BIP39 sentence lengths accepted for import.
var validWordCounts = map[int]int{12: 128, 15: 160, 18: 192, 21: 224, 24: 256}

// GenerateMnemonic creates a new BIP39 mnemonic phrase of 12, 15, 18, 21 or 24 words.
func GenerateMnemonic(wordCount int) (string, error) {
	bitSize, ok := validWordCounts[wordCount]
	if !ok {
		return "", satchelerr.WithDetails(satchelerr.ErrInvalidInput, map[string]string{
			"word_count": strconv.Itoa(wordCount),
		})
	}

	entropy, err := bip39.NewEntropy(bitSize)
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(entropy)
}

// ValidateMnemonic checks word count, word validity and checksum.
func ValidateMnemonic(mnemonic string) error {
	normalized := NormalizeMnemonicInput(mnemonic)
	if _, ok := validWordCounts[len(strings.Fields(normalized))]; !ok {
		return satchelerr.ErrInvalidMnemonic
	}

	if _, err := bip39.MnemonicToByteArray(normalized); err != nil {
		if typos := DetectTypos(normalized); len(typos) > 0 {
			return satchelerr.WithSuggestion(satchelerr.ErrInvalidMnemonic, FormatTypoSuggestions(typos))
		}
		return satchelerr.WithCause(satchelerr.ErrInvalidMnemonic, err)
	}
	return nil
}

// NormalizeMnemonicInput lowercases the phrase, strips list numbering and
// commas, and collapses whitespace.
func NormalizeMnemonicInput(input string) string {
	input = strings.ToLower(input)
	input = numberedListRegex.ReplaceAllString(input, " ")
	input = strings.ReplaceAll(input, ",", " ")
	input = whitespaceRegex.ReplaceAllString(input, " ")
	return strings.TrimSpace(input)
}

// MnemonicToSeed validates the phrase and stretches it into the 64-byte
// BIP39 seed. The caller owns the returned slice and should zero it.
func MnemonicToSeed(mnemonic, passphrase string) ([]byte, error) {
	if err := ValidateMnemonic(mnemonic); err != nil {
		return nil, err
	}
	return bip39.NewSeed(NormalizeMnemonicInput(mnemonic), passphrase), nil
}

// IsValidWord checks if a word is in the BIP39 English word list.
func IsValidWord(word string) bool {
	_, ok := bip39.GetWordIndex(strings.ToLower(word))
	return ok
}

// MaxTypoDistance is the largest Levenshtein distance still offered as a suggestion.
const MaxTypoDistance = 2

// TypoInfo describes a word that is not in the BIP39 list.
type TypoInfo struct {
	Index      int // 0-based position in the phrase
	Word       string
	Suggestion string // closest valid word, or ""
	Distance   int
}

// SuggestWord returns the closest BIP39 word within MaxTypoDistance, or "".
func SuggestWord(input string) string {
	input = strings.ToLower(input)

	minDist := math.MaxInt
	var suggestion string
	for _, word := range bip39.GetWordList() {
		dist := levenshtein.ComputeDistance(input, word)
		if dist == 0 {
			return word
		}
		if dist < minDist {
			minDist = dist
			suggestion = word
		}
	}

	if minDist <= MaxTypoDistance {
		return suggestion
	}
	return ""
}

// DetectTypos returns every word of the phrase missing from the word list.
func DetectTypos(mnemonic string) []TypoInfo {
	var typos []TypoInfo
	for i, word := range strings.Fields(NormalizeMnemonicInput(mnemonic)) {
		if IsValidWord(word) {
			continue
		}
		info := TypoInfo{Index: i, Word: word, Suggestion: SuggestWord(word)}
		if info.Suggestion != "" {
			info.Distance = levenshtein.ComputeDistance(word, info.Suggestion)
		}
		typos = append(typos, info)
	}
	return typos
}

// FormatTypoSuggestions renders typos one per line, 1-indexed.
func FormatTypoSuggestions(typos []TypoInfo) string {
	lines := make([]string, 0, len(typos))
	for _, typo := range typos {
		line := "word " + strconv.Itoa(typo.Index+1) + ": '" + typo.Word + "'"
		if typo.Suggestion != "" {
			line += " - did you mean '" + typo.Suggestion + "'?"
		} else {
			line += " is not a valid BIP39 word"
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// ZeroBytes overwrites b with zeros.
func ZeroBytes(b []byte) {
	clear(b)
}
