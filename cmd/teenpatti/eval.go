package main

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/lox/teenpatti/internal/deck"
	"github.com/lox/teenpatti/internal/evaluator"
)

// EvalCmd ranks hands so an operator can settle a show or side show.
type EvalCmd struct {
	Hands []string `arg:"" help:"Three-card hands such as 'AsKsQs' or '2h2d9c'" required:""`
}

type evaluatedHand struct {
	input string
	cards []deck.Card
	rank  evaluator.HandRank
}

func (c *EvalCmd) Run() error {
	hands, err := evaluateHands(c.Hands)
	if err != nil {
		return err
	}
	renderEval(os.Stdout, hands)
	return nil
}

func evaluateHands(inputs []string) ([]evaluatedHand, error) {
	seen := make(map[deck.Card]int)
	hands := make([]evaluatedHand, 0, len(inputs))
	for i, in := range inputs {
		cards, err := deck.ParseCards(in)
		if err != nil {
			return nil, fmt.Errorf("hand %d: %w", i+1, err)
		}
		rank, err := evaluator.EvaluateSlice(cards)
		if err != nil {
			return nil, fmt.Errorf("hand %d: %w", i+1, err)
		}
		for _, card := range cards {
			if prev, ok := seen[card]; ok {
				return nil, fmt.Errorf("hand %d: %s already used in hand %d", i+1, card, prev)
			}
			seen[card] = i + 1
		}
		hands = append(hands, evaluatedHand{input: in, cards: cards, rank: rank})
	}

	sort.SliceStable(hands, func(i, j int) bool {
		return evaluator.Compare(hands[i].rank, hands[j].rank) > 0
	})
	return hands, nil
}

func renderEval(w io.Writer, hands []evaluatedHand) {
	place := 1
	for i, h := range hands {
		if i > 0 && evaluator.Compare(h.rank, hands[i-1].rank) != 0 {
			place = i + 1
		}
		label := fmt.Sprintf("#%d", place)
		if place == 1 {
			label = winStyle.Render(label)
		}
		fmt.Fprintf(w, "%s  %s  %s\n", label, nameStyle.Render(fmt.Sprint(h.cards)), h.rank.Category)
	}

	ranks := make([]evaluator.HandRank, len(hands))
	for i, h := range hands {
		ranks[i] = h.rank
	}
	if best := evaluator.Best(ranks); len(best) > 1 {
		fmt.Fprintln(w, dimStyle.Render(fmt.Sprintf("%d hands tie for the pot", len(best))))
	}
}
