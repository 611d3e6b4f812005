package entities

import "time"

// DisclosureMode controls who may read an election's tally and when.
type DisclosureMode string

const (
	ModeLive      DisclosureMode = "live"
	ModeDelayed   DisclosureMode = "delayed"
	ModeAdminOnly DisclosureMode = "admin_only"
	ModeDisabled  DisclosureMode = "disabled"
)

func (m DisclosureMode) Valid() bool {
	switch m {
	case ModeLive, ModeDelayed, ModeAdminOnly, ModeDisabled:
		return true
	default:
		return false
	}
}

// TallyConfiguration is the per-election disclosure policy. One active
// configuration exists per (tenant, election); writes upsert.
type TallyConfiguration struct {
	TenantID             string
	ElectionID           string
	Mode                 DisclosureMode
	DelayMinutes         int
	EnableDeltas         bool
	DeltaIntervalMinutes int
	UpdatedAt            time.Time
}

// Delay is the disclosure lag for delayed mode.
func (c TallyConfiguration) Delay() time.Duration {
	return time.Duration(c.DelayMinutes) * time.Minute
}

// DeltaInterval is the minimum spacing between cut deltas.
func (c TallyConfiguration) DeltaInterval() time.Duration {
	return time.Duration(c.DeltaIntervalMinutes) * time.Minute
}

// TallySnapshot is one point in an election's tally history. Sequence numbers
// are dense per election and counts never decrease from one snapshot to the
// next.
type TallySnapshot struct {
	ElectionID      string
	Seq             int64
	TotalVotes      int
	CandidateCounts map[string]int
	TakenAt         time.Time
}

// CloneCounts returns an independent copy of the candidate counts.
func (s TallySnapshot) CloneCounts() map[string]int {
	counts := make(map[string]int, len(s.CandidateCounts))
	for candidate, count := range s.CandidateCounts {
		counts[candidate] = count
	}
	return counts
}

// DeltaRecord carries the per-candidate increments sealed between FromTime
// and ToTime. Records for one election are gap-free and non-overlapping, so
// concatenating them from the beginning reconstructs the full counts.
type DeltaRecord struct {
	ElectionID      string
	Seq             int64
	CandidateDeltas map[string]int
	FromTime        time.Time
	ToTime          time.Time
}
