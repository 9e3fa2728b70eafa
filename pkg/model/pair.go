package model

import (
	"fmt"
	"math/rand"
	"sort"
	"strconv"
	"strings"
)

// VersionID identifies a trained model version. Versions are positive and
// increase monotonically.
type VersionID int

// Pair is two versions to be matched against each other. The first element
// plays black in the "-bw" job and white in the "-wb" job; otherwise the order
// carries no meaning.
type Pair [2]VersionID

// Swapped returns the pair with its colour order reversed.
func (p Pair) Swapped() Pair {
	return Pair{p[1], p[0]}
}

// Key returns an order-independent key for the pair.
func (p Pair) Key() Pair {
	if p[0] > p[1] {
		return p.Swapped()
	}
	return p
}

// Name returns the job name stem for the pair, e.g. "41-38".
func (p Pair) Name() string {
	return fmt.Sprintf("%d-%d", p[0], p[1])
}

func (p Pair) String() string {
	return fmt.Sprintf("[%d, %d]", p[0], p[1])
}

// Queue is the pending set of pairs. Order is not meaningful; the scheduler
// shuffles before it pops.
type Queue []Pair

// Len returns the number of pairs in the queue.
func (q Queue) Len() int { return len(q) }

// Push appends pairs to the end of the queue.
func (q *Queue) Push(pairs ...Pair) {
	*q = append(*q, pairs...)
}

// Pop removes and returns the last pair. ok is false on an empty queue.
func (q *Queue) Pop() (p Pair, ok bool) {
	n := len(*q)
	if n == 0 {
		return Pair{}, false
	}
	p = (*q)[n-1]
	*q = (*q)[:n-1]
	return p, true
}

// Shuffle permutes the queue in place.
func (q Queue) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(q), func(i, j int) { q[i], q[j] = q[j], q[i] })
}

// Clone returns an independent copy. A nil queue clones to an empty one.
func (q Queue) Clone() Queue {
	out := make(Queue, len(q))
	copy(out, q)
	return out
}

// Sorted returns a sorted copy, ordered by first then second version.
func (q Queue) Sorted() Queue {
	out := q.Clone()
	sort.Slice(out, func(i, j int) bool {
		if out[i][0] != out[j][0] {
			return out[i][0] < out[j][0]
		}
		return out[i][1] < out[j][1]
	})
	return out
}

// ParsePair parses a pair name such as "41-38".
func ParsePair(s string) (Pair, error) {
	a, b, ok := strings.Cut(s, "-")
	if !ok {
		return Pair{}, fmt.Errorf("pair %q: want <version>-<version>", s)
	}
	x, err := strconv.Atoi(a)
	if err != nil {
		return Pair{}, fmt.Errorf("pair %q: %w", s, err)
	}
	y, err := strconv.Atoi(b)
	if err != nil {
		return Pair{}, fmt.Errorf("pair %q: %w", s, err)
	}
	return Pair{VersionID(x), VersionID(y)}, nil
}
