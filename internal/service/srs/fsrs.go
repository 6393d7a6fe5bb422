package srs

import (
	"fmt"
	"time"

	fsrs "github.com/open-spaced-repetition/go-fsrs/v3"
)

// FSRSEngine is the concrete primary-algorithm adapter over go-fsrs.
// A fresh FSRS instance is built per call so that the current desired
// retention always parameterizes the whole replay.
type FSRSEngine struct{}

func NewFSRSEngine() *FSRSEngine {
	return &FSRSEngine{}
}

var _ Engine = (*FSRSEngine)(nil)

func (e *FSRSEngine) Schedule(history []Review, rating Rating, now time.Time, desiredRetention float64) (Result, error) {
	card, f, err := e.replay(history, desiredRetention)
	if err != nil {
		return Result{}, err
	}
	card = f.Repeat(card, now)[toFSRSRating(rating)].Card
	return resultFromCard(card)
}

func (e *FSRSEngine) Replay(history []Review, desiredRetention float64) (Result, error) {
	card, _, err := e.replay(history, desiredRetention)
	if err != nil {
		return Result{}, err
	}
	return resultFromCard(card)
}

func (e *FSRSEngine) replay(history []Review, desiredRetention float64) (fsrs.Card, *fsrs.FSRS, error) {
	params := fsrs.DefaultParam()
	params.RequestRetention = desiredRetention
	f := fsrs.NewFSRS(params)

	card := fsrs.NewCard()
	for _, h := range history {
		card = f.Repeat(card, h.At)[toFSRSRating(h.Rating)].Card
	}
	return card, f, nil
}

func resultFromCard(card fsrs.Card) (Result, error) {
	if card.Due.IsZero() {
		return Result{}, fmt.Errorf("fsrs produced no due date")
	}
	stability := card.Stability
	difficulty := card.Difficulty
	return Result{
		Stability:  &stability,
		Difficulty: &difficulty,
		DueAt:      card.Due,
	}, nil
}

func toFSRSRating(r Rating) fsrs.Rating {
	switch r {
	case Again:
		return fsrs.Again
	case Hard:
		return fsrs.Hard
	case Easy:
		return fsrs.Easy
	default:
		return fsrs.Good
	}
}
