package mfa

import (
	"crypto/rand"
	"math/big"
)

const pushOptionCount = 4

// PushChallenge is a number-matching push verification. The browser shows
// DisplayNumber; the companion app shows Options and the user must pick the
// one that matches. Options always contains DisplayNumber exactly once.
type PushChallenge struct {
	DisplayNumber int
	Options       []int
}

// NewPushChallenge generates a number-matching challenge with a display
// number in 1..9 and three distinct distractors, shuffled.
func NewPushChallenge() (*PushChallenge, error) {
	display, err := randomInt(9)
	if err != nil {
		return nil, err
	}
	display++ // 1..9

	picked := map[int]bool{display: true}
	options := []int{display}
	for len(options) < pushOptionCount {
		n, err := randomInt(9)
		if err != nil {
			return nil, err
		}
		n++
		if picked[n] {
			continue
		}
		picked[n] = true
		options = append(options, n)
	}
	// Fisher-Yates so the correct answer's position carries no signal.
	for i := len(options) - 1; i > 0; i-- {
		j, err := randomInt(i + 1)
		if err != nil {
			return nil, err
		}
		options[i], options[j] = options[j], options[i]
	}
	return &PushChallenge{DisplayNumber: display, Options: options}, nil
}

// Matches reports whether the number selected on the companion app is the one
// shown in the browser.
func (c *PushChallenge) Matches(selected int) bool {
	return selected == c.DisplayNumber
}

func randomInt(n int) (int, error) {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0, err
	}
	return int(v.Int64()), nil
}
