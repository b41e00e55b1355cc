// Package evaluator ranks three-card Teen Patti hands.
//
// Categories from strongest to weakest are Trail, Pure Sequence, Sequence,
// Color, Pair and High Card. Aces are high, and A-2-3 also counts as a
// sequence. Within a category, hands compare by their descending card values,
// so A-2-3 (A,3,2) sits below A-K-Q and above K-Q-J.
package evaluator

import (
	"fmt"
	"sort"

	"github.com/lox/teenpatti/internal/deck"
)

// Evaluate ranks a three-card hand.
func Evaluate(cards [3]deck.Card) HandRank {
	sorted := cards
	sort.Slice(sorted[:], func(i, j int) bool {
		if sorted[i].Rank != sorted[j].Rank {
			return sorted[i].Rank > sorted[j].Rank
		}
		return sorted[i].Suit < sorted[j].Suit
	})

	hi, mid, lo := sorted[0].Value(), sorted[1].Value(), sorted[2].Value()
	flush := sorted[0].Suit == sorted[1].Suit && sorted[1].Suit == sorted[2].Suit
	straight := (hi == mid+1 && mid == lo+1) || isAceTwoThree(hi, mid, lo)

	rank := HandRank{Cards: sorted}
	switch {
	case hi == mid && mid == lo:
		rank.Category = Trail
		rank.Tiebreak = hi
	case straight && flush:
		rank.Category = PureSequence
		rank.Tiebreak = packValues(hi, mid, lo)
	case straight:
		rank.Category = Sequence
		rank.Tiebreak = packValues(hi, mid, lo)
	case flush:
		rank.Category = Color
		rank.Tiebreak = packValues(hi, mid, lo)
	case hi == mid || mid == lo:
		rank.Category = Pair
		pair, kicker := mid, hi
		if hi == mid {
			kicker = lo
		}
		rank.Tiebreak = pair<<4 | kicker
	default:
		rank.Category = HighCard
		rank.Tiebreak = packValues(hi, mid, lo)
	}
	return rank
}

// EvaluateSlice ranks a hand given as a slice, which must hold exactly three cards.
func EvaluateSlice(cards []deck.Card) (HandRank, error) {
	if len(cards) != 3 {
		return HandRank{}, fmt.Errorf("evaluator: need exactly 3 cards, got %d", len(cards))
	}
	return Evaluate([3]deck.Card{cards[0], cards[1], cards[2]}), nil
}

// Compare returns 1 if a beats b, -1 if b beats a, and 0 on a tie.
func Compare(a, b HandRank) int {
	switch {
	case a.Category > b.Category:
		return 1
	case a.Category < b.Category:
		return -1
	case a.Tiebreak > b.Tiebreak:
		return 1
	case a.Tiebreak < b.Tiebreak:
		return -1
	default:
		return 0
	}
}

// Best returns the indexes of the strongest hands; more than one index means a tie.
func Best(hands []HandRank) []int {
	var best []int
	for i, h := range hands {
		if len(best) == 0 {
			best = []int{i}
			continue
		}
		switch Compare(h, hands[best[0]]) {
		case 1:
			best = []int{i}
		case 0:
			best = append(best, i)
		}
	}
	return best
}

func isAceTwoThree(hi, mid, lo int) bool {
	return hi == int(deck.Ace) && mid == int(deck.Three) && lo == int(deck.Two)
}

// packValues encodes descending card values so integer comparison matches
// card-by-card comparison. Values are at most 14 so four bits suffice.
func packValues(hi, mid, lo int) int {
	return hi<<8 | mid<<4 | lo
}
