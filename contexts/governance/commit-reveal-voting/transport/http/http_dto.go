package http

type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type StartVotingRequest struct {
	Question        string `json:"question"`
	Choice1Label    string `json:"choice_1_label"`
	Choice2Label    string `json:"choice_2_label"`
	DurationSeconds int64  `json:"duration_seconds"`
	Supersedes      string `json:"supersedes,omitempty"`
}

type TallyResponse struct {
	Choice1 int `json:"choice_1"`
	Choice2 int `json:"choice_2"`
}

type SessionResponse struct {
	SessionID      string        `json:"session_id"`
	Question       string        `json:"question"`
	Choice1Label   string        `json:"choice_1_label"`
	Choice2Label   string        `json:"choice_2_label"`
	CommitDeadline string        `json:"commit_deadline"`
	Supersedes     string        `json:"supersedes,omitempty"`
	Tally          TallyResponse `json:"tally"`
	VotesCast      int           `json:"votes_cast"`
	VotesRevealed  int           `json:"votes_revealed"`
	Replayed       bool          `json:"replayed,omitempty"`
}

type StatusResponse struct {
	SessionResponse
	Phase                string `json:"phase"`
	TimeRemainingSeconds int64  `json:"time_remaining_seconds"`
	Winner               string `json:"winner,omitempty"`
	Tied                 bool   `json:"tied,omitempty"`
}

type CommitRequest struct {
	CommitHash string `json:"commit_hash"`
}

type CommitResponse struct {
	SessionID  string `json:"session_id"`
	CommitHash string `json:"commit_hash"`
	Position   int    `json:"position"`
	Status     string `json:"status"`
	VotesCast  int    `json:"votes_cast"`
}

type RevealRequest struct {
	Choice int    `json:"choice"`
	Secret string `json:"secret"`
}

type RevealResponse struct {
	SessionID     string        `json:"session_id"`
	CommitHash    string        `json:"commit_hash"`
	Choice        int           `json:"choice"`
	ChoiceLabel   string        `json:"choice_label"`
	Tally         TallyResponse `json:"tally"`
	VotesRevealed int           `json:"votes_revealed"`
	VotesCast     int           `json:"votes_cast"`
	Completed     bool          `json:"completed"`
}

type CommitmentItem struct {
	CommitHash  string `json:"commit_hash"`
	Position    int    `json:"position"`
	Status      string `json:"status"`
	Choice      int    `json:"choice,omitempty"`
	CommittedAt string `json:"committed_at"`
	RevealedAt  string `json:"revealed_at,omitempty"`
}

type CommitmentsResponse struct {
	SessionID string           `json:"session_id"`
	Items     []CommitmentItem `json:"items"`
}

type WinnerResponse struct {
	SessionID string        `json:"session_id"`
	Choice    int           `json:"choice"`
	Label     string        `json:"label"`
	Tally     TallyResponse `json:"tally"`
}
