package abuse

import "context"

// Gate decides whether a comment has collected enough down votes to be
// reported
type Gate struct {
	counter VoteCounter
	cutoff  int
}

// NewGate creates a gate that opens at cutoff down votes
func NewGate(counter VoteCounter, cutoff int) *Gate {
	return &Gate{counter: counter, cutoff: cutoff}
}

// Reached returns the down vote count and whether it meets the cutoff
func (g *Gate) Reached(ctx context.Context, commentID int64) (downVotes int, reached bool, err error) {
	downVotes, err = g.counter.CountDownVotes(ctx, commentID)
	if err != nil {
		return 0, false, err
	}
	return downVotes, downVotes >= g.cutoff, nil
}

func (g *Gate) Cutoff() int {
	return g.cutoff
}
