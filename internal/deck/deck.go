package deck

import (
	"fmt"
	rand "math/rand/v2"
)

// Size is the number of cards in a standard deck.
const Size = 52

// Deck represents a deck of playing cards
type Deck struct {
	cards []Card
	rng   *rand.Rand
}

// New creates a new ordered 52-card deck. The RNG drives Shuffle; a nil RNG
// falls back to the global math/rand/v2 source.
func New(rng *rand.Rand) *Deck {
	d := &Deck{
		cards: make([]Card, 0, Size),
		rng:   rng,
	}
	d.fill()
	return d
}

func (d *Deck) fill() {
	d.cards = d.cards[:0]
	for suit := Spades; suit <= Clubs; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards = append(d.cards, NewCard(suit, rank))
		}
	}
}

// Shuffle randomizes the order of the remaining cards with Fisher-Yates, so
// every permutation is equally likely.
func (d *Deck) Shuffle() {
	for i := len(d.cards) - 1; i > 0; i-- {
		var j int
		if d.rng != nil {
			j = d.rng.IntN(i + 1)
		} else {
			j = rand.IntN(i + 1)
		}
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
}

// Deal removes and returns the top card from the deck
func (d *Deck) Deal() (Card, bool) {
	if len(d.cards) == 0 {
		return Card{}, false
	}

	card := d.cards[0]
	d.cards = d.cards[1:]
	return card, true
}

// DealHands deals size cards to each of players hands, one card at a time
// round-robin, without replacement.
func (d *Deck) DealHands(players, size int) ([][]Card, error) {
	if players*size > len(d.cards) {
		return nil, fmt.Errorf("deck: cannot deal %d cards to %d players from %d remaining", size, players, len(d.cards))
	}

	hands := make([][]Card, players)
	for i := range hands {
		hands[i] = make([]Card, 0, size)
	}
	for round := 0; round < size; round++ {
		for p := 0; p < players; p++ {
			card, _ := d.Deal()
			hands[p] = append(hands[p], card)
		}
	}
	return hands, nil
}

// CardsRemaining returns the number of cards left in the deck
func (d *Deck) CardsRemaining() int {
	return len(d.cards)
}

// Reset restores the deck to a full 52-card deck and shuffles it
func (d *Deck) Reset() {
	d.fill()
	d.Shuffle()
}
