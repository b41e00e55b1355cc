package evaluator

import (
	"fmt"
	"strings"

	"github.com/lox/teenpatti/internal/deck"
)

// Category is the class of a three-card hand. Higher values beat lower ones.
type Category int

const (
	HighCard Category = iota
	Pair
	Color
	Sequence
	PureSequence
	Trail
)

// String returns the readable name of the category
func (c Category) String() string {
	switch c {
	case Trail:
		return "Trail"
	case PureSequence:
		return "Pure Sequence"
	case Sequence:
		return "Sequence"
	case Color:
		return "Color"
	case Pair:
		return "Pair"
	case HighCard:
		return "High Card"
	default:
		return "Unknown"
	}
}

// HandRank is the evaluated strength of a three-card hand.
type HandRank struct {
	Category Category
	// Tiebreak orders hands within the same category; larger is stronger.
	Tiebreak int
	// Cards holds the hand sorted by descending rank.
	Cards [3]deck.Card
}

// Compare returns 1 if h beats other, -1 if other beats h, and 0 on a tie.
func (h HandRank) Compare(other HandRank) int {
	return Compare(h, other)
}

// String renders the hand as "Pair (K♠ K♥ 4♦)".
func (h HandRank) String() string {
	parts := make([]string, len(h.Cards))
	for i, c := range h.Cards {
		parts[i] = c.String()
	}
	return fmt.Sprintf("%s (%s)", h.Category, strings.Join(parts, " "))
}
