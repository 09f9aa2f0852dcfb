package activity

import "time"

// MemberRecord is the persisted weekly activity state of one member.
//
// AccumulatedSeconds counts voice time accrued toward the current accounting
// week. LastEventAt is the unix timestamp of the last voice-state transition
// processed for the member; zero means the member is new.
type MemberRecord struct {
	MemberID           string `json:"-"`
	Level              int    `json:"level"`
	AccumulatedSeconds int64  `json:"time"`
	LastEventAt        int64  `json:"last"`
}

// Accumulated returns the accrued time as a duration.
func (r *MemberRecord) Accumulated() time.Duration {
	return time.Duration(r.AccumulatedSeconds) * time.Second
}

// LastEvent returns the last transition instant, or the zero time for a new
// member.
func (r *MemberRecord) LastEvent() time.Time {
	if r.LastEventAt == 0 {
		return time.Time{}
	}
	return time.Unix(r.LastEventAt, 0)
}
