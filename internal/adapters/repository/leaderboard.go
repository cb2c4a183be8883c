package repository

import (
	"context"
	"math/rand/v2"
	"sync"

	"github.com/okian/rankready/internal/domain/types"
	"github.com/okian/rankready/pkg/metrics"
)

// maxScore bounds overall readiness scores.
const maxScore = 100

// Treap-based, in-memory leaderboard.
//
// Ordering: score DESC, then institution id ASC. "less" means ranks
// earlier, so in-order traversal yields the leaderboard best first.

type node struct {
	id    string
	score int
	prio  uint64
	left  *node
	right *node
	size  int
}

func nsize(n *node) int {
	if n == nil {
		return 0
	}
	return n.size
}

func fix(n *node) {
	if n != nil {
		n.size = 1 + nsize(n.left) + nsize(n.right)
	}
}

func less(aScore int, aID string, bScore int, bID string) bool {
	if aScore != bScore {
		return aScore > bScore
	}
	return aID < bID
}

func rotateRight(y *node) *node {
	x := y.left
	y.left = x.right
	x.right = y
	fix(y)
	fix(x)
	return x
}

func rotateLeft(x *node) *node {
	y := x.right
	x.right = y.left
	y.left = x
	fix(x)
	fix(y)
	return y
}

func insert(n *node, id string, score int, prio uint64) *node {
	if n == nil {
		return &node{id: id, score: score, prio: prio, size: 1}
	}
	if less(score, id, n.score, n.id) {
		n.left = insert(n.left, id, score, prio)
		if n.left.prio > n.prio {
			n = rotateRight(n)
		}
	} else {
		n.right = insert(n.right, id, score, prio)
		if n.right.prio > n.prio {
			n = rotateLeft(n)
		}
	}
	fix(n)
	return n
}

func deleteNode(n *node, id string, score int) *node {
	if n == nil {
		return nil
	}
	switch {
	case score == n.score && id == n.id:
		if n.left == nil {
			return n.right
		}
		if n.right == nil {
			return n.left
		}
		if n.left.prio > n.right.prio {
			n = rotateRight(n)
			n.right = deleteNode(n.right, id, score)
		} else {
			n = rotateLeft(n)
			n.left = deleteNode(n.left, id, score)
		}
	case less(score, id, n.score, n.id):
		n.left = deleteNode(n.left, id, score)
	default:
		n.right = deleteNode(n.right, id, score)
	}
	fix(n)
	return n
}

// position returns the zero-based index of (id, score) in leaderboard order.
func position(n *node, id string, score int) int {
	pos := 0
	for n != nil {
		switch {
		case score == n.score && id == n.id:
			return pos + nsize(n.left)
		case less(score, id, n.score, n.id):
			n = n.left
		default:
			pos += nsize(n.left) + 1
			n = n.right
		}
	}
	return pos
}

func collectTopN(n *node, limit int, out *[]types.Entry) {
	if n == nil || len(*out) >= limit {
		return
	}
	collectTopN(n.left, limit, out)
	if len(*out) < limit {
		*out = append(*out, types.Entry{InstitutionID: n.id, Score: n.score})
	}
	if len(*out) < limit {
		collectTopN(n.right, limit, out)
	}
}

// Leaderboard ranks institutions by overall readiness. Institutions with
// equal scores share a rank and the next distinct score takes the next
// consecutive rank.
type Leaderboard struct {
	mu      sync.RWMutex
	root    *node
	byID    map[string]int
	buckets [maxScore + 1]int
	rng     *rand.Rand
}

// NewLeaderboard creates an empty leaderboard.
func NewLeaderboard(opts ...Option) *Leaderboard {
	l := &Leaderboard{
		byID: make(map[string]int),
		rng:  rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64())), //nolint:gosec // priorities only
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func clampScore(score int) int {
	return max(0, min(maxScore, score))
}

// Upsert sets the institution's score, replacing any previous one.
// It reports whether the stored score changed.
func (l *Leaderboard) Upsert(_ context.Context, institutionID string, score int) (bool, error) {
	score = clampScore(score)

	l.mu.Lock()
	old, exists := l.byID[institutionID]
	if exists && old == score {
		l.mu.Unlock()
		return false, nil
	}
	if exists {
		l.root = deleteNode(l.root, institutionID, old)
		l.buckets[old]--
	}
	l.byID[institutionID] = score
	l.buckets[score]++
	l.root = insert(l.root, institutionID, score, l.rng.Uint64())
	count := len(l.byID)
	l.mu.Unlock()

	metrics.RecordLeaderboardUpdate()
	if !exists {
		metrics.UpdateInstitutions(count)
	}
	return true, nil
}

// Remove drops an institution. Unknown ids return ErrNotFound.
func (l *Leaderboard) Remove(_ context.Context, institutionID string) error {
	l.mu.Lock()
	old, ok := l.byID[institutionID]
	if !ok {
		l.mu.Unlock()
		return ErrNotFound
	}
	l.root = deleteNode(l.root, institutionID, old)
	l.buckets[old]--
	delete(l.byID, institutionID)
	count := len(l.byID)
	l.mu.Unlock()

	metrics.UpdateInstitutions(count)
	return nil
}

// Rank returns the institution's rank and score.
func (l *Leaderboard) Rank(_ context.Context, institutionID string) (types.Entry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	score, ok := l.byID[institutionID]
	if !ok {
		metrics.RecordErrorByComponent("leaderboard", "not_found")
		return types.Entry{}, ErrNotFound
	}
	return types.Entry{Rank: l.denseRank(score), InstitutionID: institutionID, Score: score}, nil
}

// Position returns the zero-based position of the institution in TopN order.
func (l *Leaderboard) Position(_ context.Context, institutionID string) (int, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	score, ok := l.byID[institutionID]
	if !ok {
		return 0, ErrNotFound
	}
	return position(l.root, institutionID, score), nil
}

// TopN returns the top n entries.
func (l *Leaderboard) TopN(_ context.Context, n int) ([]types.Entry, error) {
	if n < 1 {
		metrics.RecordErrorByComponent("leaderboard", "invalid_limit")
		return nil, ErrInvalidLimit
	}

	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]types.Entry, 0, min(n, len(l.byID)))
	collectTopN(l.root, n, &out)
	for i := range out {
		out[i].Rank = l.denseRank(out[i].Score)
	}
	return out, nil
}

// Count returns the number of ranked institutions.
func (l *Leaderboard) Count(_ context.Context) int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.byID)
}

// denseRank is 1 plus the number of distinct higher scores. Callers hold the lock.
func (l *Leaderboard) denseRank(score int) int {
	rank := 1
	for s := maxScore; s > score; s-- {
		if l.buckets[s] > 0 {
			rank++
		}
	}
	return rank
}
