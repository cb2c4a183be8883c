package repository

import "math/rand/v2"

// Option applies a configuration option to the Leaderboard.
type Option func(*Leaderboard)

// WithSeed makes treap priorities deterministic.
func WithSeed(seed uint64) Option {
	return func(l *Leaderboard) {
		l.rng = rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)) //nolint:gosec // priorities only
	}
}
