package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConfigureTallyRequest struct {
	TenantID             string `json:"tenant_id"`
	ElectionID           string `json:"election_id"`
	Mode                 string `json:"mode"`
	DelayMinutes         *int   `json:"delay_minutes,omitempty"`
	EnableDeltas         *bool  `json:"enable_deltas,omitempty"`
	DeltaIntervalMinutes *int   `json:"delta_interval_minutes,omitempty"`
}

type TallyConfigurationResponse struct {
	TenantID             string `json:"tenant_id"`
	ElectionID           string `json:"election_id"`
	Mode                 string `json:"mode"`
	DelayMinutes         int    `json:"delay_minutes"`
	EnableDeltas         bool   `json:"enable_deltas"`
	DeltaIntervalMinutes int    `json:"delta_interval_minutes"`
	UpdatedAt            string `json:"updated_at"`
}

type TallyResponse struct {
	ElectionID      string         `json:"election_id"`
	Seq             int64          `json:"seq"`
	TotalVotes      int            `json:"total_votes"`
	CandidateCounts map[string]int `json:"candidate_counts"`
	TakenAt         string         `json:"taken_at,omitempty"`
}

type DeltaItem struct {
	Seq             int64          `json:"seq"`
	CandidateDeltas map[string]int `json:"candidate_deltas"`
	FromTime        string         `json:"from_time"`
	ToTime          string         `json:"to_time"`
}

type DeltaListResponse struct {
	ElectionID string      `json:"election_id"`
	Items      []DeltaItem `json:"items"`
}
