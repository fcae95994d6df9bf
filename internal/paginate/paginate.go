// Package paginate slices ordered result-id lists into numbered pages
// and, independently, into alphabetic buckets keyed by the leading letter
// of each result's sort key.
package paginate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// Pages carries one pagination request and, after a Paginate call, the
// totals the request was sliced from.
type Pages struct {
	Number      int    // 1-based page
	NumPerPage  int    // page size, always >= 1
	Letter      string // uppercase leading letter filter, "" = none
	NeedLetters bool   // also compute UsedLetters over the whole set

	numTotal    int
	usedLetters []string
}

// New builds a page request. The page number is clamped to at least 1; a
// page size below 1 is a caller bug and errors.
func New(number, numPerPage int) (*Pages, error) {
	if numPerPage < 1 {
		return nil, fmt.Errorf("invalid page size %d", numPerPage)
	}
	if number < 1 {
		number = 1
	}
	return &Pages{Number: number, NumPerPage: numPerPage}, nil
}

// ParseNumber interprets user input as a page number. Anything that does
// not parse as a positive integer means page 1.
func ParseNumber(raw string) int {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n < 1 {
		return 1
	}
	return n
}

// NumTotal returns the size of the set the current page was sliced from:
// the whole result set, or the letter-filtered subset when a letter
// filter is active.
func (p *Pages) NumTotal() int { return p.numTotal }

// NumPages returns ceil(NumTotal / NumPerPage); an empty set has zero
// pages.
func (p *Pages) NumPages() int {
	if p.numTotal == 0 {
		return 0
	}
	return (p.numTotal + p.NumPerPage - 1) / p.NumPerPage
}

// From returns the zero-based inclusive start of the current page.
func (p *Pages) From() int {
	return (p.Number - 1) * p.NumPerPage
}

// To returns the zero-based inclusive end of the current page. For an
// empty or out-of-range page, To is less than From.
func (p *Pages) To() int {
	to := p.From() + p.NumPerPage - 1
	if to > p.numTotal-1 {
		to = p.numTotal - 1
	}
	return to
}

// IndexAt returns the 1-based page containing absolute position i.
func (p *Pages) IndexAt(i int) int {
	return i/p.NumPerPage + 1
}

// UsedLetters returns the sorted distinct leading letters across the
// entire set, populated when NeedLetters was requested.
func (p *Pages) UsedLetters() []string { return p.usedLetters }

// Entry pairs a result id with its sort key, the input to letter-aware
// pagination.
type Entry struct {
	ID      int64
	SortKey string
}

// LetterOf returns the bucket letter for a sort key: the first rune
// after NFC normalization, upper-cased via the Unicode default case
// mapping (no locale tailoring). Keys that are empty or lead with a
// non-letter (digit, whitespace, punctuation) have no bucket and never
// contribute to UsedLetters.
func LetterOf(sortKey string) string {
	s := norm.NFC.String(sortKey)
	r, size := utf8.DecodeRuneInString(s)
	if size == 0 || !unicode.IsLetter(r) {
		return ""
	}
	return string(unicode.ToUpper(r))
}

// IDs slices an id list numerically, recording the total. Used when no
// letter dimension is in play.
func IDs(ids []int64, p *Pages) []int64 {
	p.numTotal = len(ids)
	return slice(ids, p)
}

// Paginate applies the full request to (id, sort key) entries: computes
// UsedLetters over the whole set if asked, narrows to the letter bucket
// if one is set, then pages numerically within what remains.
func Paginate(entries []Entry, p *Pages) []int64 {
	if p.NeedLetters {
		p.usedLetters = collectLetters(entries)
	}

	ids := make([]int64, 0, len(entries))
	for _, e := range entries {
		if p.Letter != "" && LetterOf(e.SortKey) != strings.ToUpper(p.Letter) {
			continue
		}
		ids = append(ids, e.ID)
	}
	p.numTotal = len(ids)
	return slice(ids, p)
}

func slice(ids []int64, p *Pages) []int64 {
	from, to := p.From(), p.To()
	if from >= len(ids) || to < from {
		return nil
	}
	return ids[from : to+1]
}

func collectLetters(entries []Entry) []string {
	seen := make(map[string]bool)
	for _, e := range entries {
		if l := LetterOf(e.SortKey); l != "" {
			seen[l] = true
		}
	}
	letters := make([]string, 0, len(seen))
	for l := range seen {
		letters = append(letters, l)
	}
	sort.Strings(letters)
	return letters
}
