package gossip

import "time"

// Ban-score policy, adapted from the teacher's node/p2p.BanScore: misbehavior
// increments a decaying per-peer counter; crossing threshold disconnects,
// crossing a lower threshold throttles.
const (
	BanThreshold           = 100
	ThrottleThreshold      = 50
	BanScoreDecayPerMinute = 1

	// DeltaDecodeFailure is charged when a peer sends a known command whose
	// payload fails to decode; it costs ten times DeltaUnknownCommand.
	DeltaDecodeFailure = 10
	// DeltaUnknownCommand is charged for a command code outside the gossip
	// protocol's vocabulary.
	DeltaUnknownCommand = 1
)

// BanScore is a decaying misbehavior counter for one gossip peer. It is a
// connection-management policy, not a consensus primitive — it never
// affects Block or Round validity.
type BanScore struct {
	score       int
	lastUpdated time.Time
}

func (b *BanScore) Score(now time.Time) int {
	b.decayTo(now)
	return b.score
}

func (b *BanScore) Add(now time.Time, delta int) int {
	b.decayTo(now)
	b.score += delta
	if b.score < 0 {
		b.score = 0
	}
	return b.score
}

// AddDecodeFailure charges a peer for sending a command whose payload failed
// to decode, returning the updated score.
func (b *BanScore) AddDecodeFailure(now time.Time) int {
	return b.Add(now, DeltaDecodeFailure)
}

// AddUnknownCommand charges a peer for sending an unrecognized command code,
// returning the updated score.
func (b *BanScore) AddUnknownCommand(now time.Time) int {
	return b.Add(now, DeltaUnknownCommand)
}

func (b *BanScore) ShouldBan(now time.Time) bool {
	return b.Score(now) >= BanThreshold
}

func (b *BanScore) ShouldThrottle(now time.Time) bool {
	return b.Score(now) >= ThrottleThreshold
}

func (b *BanScore) decayTo(now time.Time) {
	if b.lastUpdated.IsZero() {
		b.lastUpdated = now
		return
	}
	if now.Before(b.lastUpdated) {
		b.lastUpdated = now
		return
	}
	minutes := int(now.Sub(b.lastUpdated) / time.Minute)
	if minutes <= 0 {
		return
	}
	b.score -= minutes * BanScoreDecayPerMinute
	if b.score < 0 {
		b.score = 0
	}
	b.lastUpdated = now
}
