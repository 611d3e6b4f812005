package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ConfirmVoteRequest struct {
	ElectionID         string `json:"election_id"`
	CandidateID        string `json:"candidate_id"`
	CandidateName      string `json:"candidate_name"`
	VoterID            string `json:"voter_id,omitempty"`
	GracePeriodSeconds int    `json:"grace_period_seconds,omitempty"`
}

type VoteStatusResponse struct {
	VoteID        string `json:"vote_id"`
	ElectionID    string `json:"election_id"`
	CandidateID   string `json:"candidate_id"`
	CandidateName string `json:"candidate_name"`
	State         string `json:"state"`
	CastAt        string `json:"cast_at"`
	GraceEndsAt   string `json:"grace_ends_at"`
	FinalizedAt   string `json:"finalized_at,omitempty"`
	UndoneAt      string `json:"undone_at,omitempty"`
}

type ElectionVotesResponse struct {
	ElectionID string               `json:"election_id"`
	Items      []VoteStatusResponse `json:"items"`
}
