package vesting

import (
	"math/big"
	"strings"

	"escrow/apps/escrow/internal/constants"
	"escrow/apps/escrow/internal/model"
)

// Milestone identifies the next schedule boundary ahead of the current time.
type Milestone string

const (
	MilestoneCliff  Milestone = "cliff"
	MilestoneVested Milestone = "vested"
	MilestoneNone   Milestone = "none"
)

// Breakdown splits the escrow total into claimed, claimable and locked
// portions, all in base token units. claimed+claimable+locked does not have
// to equal total when the contract keeps independent accounting (donations),
// so callers must not assert equality.
type Breakdown struct {
	Claimed   *big.Int
	Claimable *big.Int
	Locked    *big.Int
	Total     *big.Int
}

// TimeToMilestone reports the next milestone and the seconds until it.
type MilestoneETA struct {
	Milestone Milestone
	Seconds   int64
}

// Merge combines an indexed record with optional live contract state into a
// single view and derives its status. The result is a fresh value; neither
// input is mutated.
func Merge(indexed model.IndexedEscrow, live *model.LiveEscrowData, now int64) *model.Escrow {
	merged := &model.Escrow{IndexedEscrow: indexed, Live: live}
	merged.Status = DeriveStatus(merged, now)
	return merged
}

// DeriveStatus computes the escrow status at the given time.
//
// With live data, revocation and completion are definitive facts reported by
// the contract and take priority over time-derived cliff/vesting inferences.
// Without live data the indexed schedule gives an approximation only.
func DeriveStatus(e *model.Escrow, now int64) model.EscrowStatus {
	live := e.Live
	if live == nil {
		cliffEnd := e.VestingStart + e.CliffLength
		vestingEnd := e.VestingStart + e.VestingDuration

		if now < cliffEnd {
			return model.StatusCliff
		}
		if now < vestingEnd {
			return model.StatusVesting
		}
		return model.StatusClaimable
	}

	// Revoked: the contract curtailed the schedule before natural completion.
	if live.DisabledAt < live.EndTime {
		return model.StatusRevoked
	}

	// Completed: nothing left to claim or unlock, regardless of cause.
	if isZero(live.Unclaimed) && isZero(live.Locked) {
		return model.StatusCompleted
	}

	if now < live.StartTime+live.CliffLength {
		return model.StatusCliff
	}

	// Fully unlocked, awaiting withdrawal.
	if isZero(live.Locked) && sign(live.Unclaimed) > 0 {
		return model.StatusClaimable
	}

	return model.StatusVesting
}

// Progress returns the elapsed fraction of the vesting span as a percentage
// in [0,100]. This is a display figure; no monetary math uses it.
func Progress(e *model.Escrow, now int64) float64 {
	start := e.VestingStart
	duration := e.VestingDuration

	// Degenerate schedule: everything unlocks at start.
	if duration <= 0 {
		if now >= start {
			return 100
		}
		return 0
	}

	if now <= start {
		return 0
	}
	if now >= start+duration {
		return 100
	}

	return float64(now-start) / float64(duration) * 100
}

// AmountsBreakdown computes the claimed/claimable/locked split. With live
// data the contract figures pass through untouched. Without it the split is
// estimated from the schedule with integer arithmetic on the big total, so
// no precision is lost to floating point.
func AmountsBreakdown(e *model.Escrow, now int64) Breakdown {
	total := e.AmountBig()

	if e.Live != nil {
		return Breakdown{
			Claimed:   nonNil(e.Live.TotalClaimed),
			Claimable: nonNil(e.Live.Unclaimed),
			Locked:    nonNil(e.Live.Locked),
			Total:     total,
		}
	}

	start := e.VestingStart
	duration := e.VestingDuration
	cliffEnd := start + e.CliffLength
	end := start + duration

	if now < cliffEnd {
		return Breakdown{Claimed: new(big.Int), Claimable: new(big.Int), Locked: total, Total: total}
	}

	if now >= end || duration <= 0 {
		return Breakdown{Claimed: new(big.Int), Claimable: total, Locked: new(big.Int), Total: total}
	}

	elapsed := big.NewInt(now - start)
	vested := new(big.Int).Mul(total, elapsed)
	vested.Div(vested, big.NewInt(duration))
	locked := new(big.Int).Sub(total, vested)

	return Breakdown{Claimed: new(big.Int), Claimable: vested, Locked: locked, Total: total}
}

// TimeToMilestone reports the seconds until the end of the cliff, or until
// full vesting, whichever comes next.
func TimeToMilestone(e *model.Escrow, now int64) MilestoneETA {
	start := e.VestingStart
	cliffEnd := start + e.CliffLength
	vestingEnd := start + e.VestingDuration

	if e.CliffLength > 0 && now < cliffEnd {
		return MilestoneETA{Milestone: MilestoneCliff, Seconds: cliffEnd - now}
	}

	if now < vestingEnd {
		return MilestoneETA{Milestone: MilestoneVested, Seconds: vestingEnd - now}
	}

	return MilestoneETA{Milestone: MilestoneNone, Seconds: 0}
}

// CanClaim reports whether the caller may trigger a claim: there must be
// live data with a non-zero unclaimed balance, and the caller must be the
// recipient or the escrow must allow open claims.
func CanClaim(e *model.Escrow, caller string) bool {
	if e.Live == nil || sign(e.Live.Unclaimed) == 0 {
		return false
	}
	if caller == "" {
		return false
	}
	return strings.EqualFold(e.Recipient, caller) || e.Live.OpenClaim
}

// IsOwner reports whether the caller is the escrow's current administrative
// address. Requires live data; the indexed funder may be stale after an
// ownership transfer.
func IsOwner(e *model.Escrow, caller string) bool {
	if caller == "" || e.Live == nil {
		return false
	}
	return strings.EqualFold(e.Live.Owner, caller)
}

// IsRecipient reports whether the caller is the escrow recipient.
func IsRecipient(e *model.Escrow, caller string) bool {
	if caller == "" {
		return false
	}
	return strings.EqualFold(e.Recipient, caller)
}

// CanRevoke reports whether the owner may still curtail vesting: only
// before the natural end and only while tokens remain locked.
func CanRevoke(e *model.Escrow, caller string, now int64) bool {
	if !IsOwner(e, caller) {
		return false
	}
	return now < e.Live.EndTime && sign(e.Live.Locked) > 0
}

// CanDisown reports whether the owner may renounce administration. Once the
// owner is the zero address the escrow is already disowned.
func CanDisown(e *model.Escrow, caller string) bool {
	if !IsOwner(e, caller) {
		return false
	}
	return !strings.EqualFold(e.Live.Owner, constants.ZeroAddress)
}

// Big integers are compared natively here. Converting to float64 for
// equality checks silently loses precision past 2^53.
func isZero(v *big.Int) bool {
	return v == nil || v.Sign() == 0
}

func sign(v *big.Int) int {
	if v == nil {
		return 0
	}
	return v.Sign()
}

func nonNil(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}
