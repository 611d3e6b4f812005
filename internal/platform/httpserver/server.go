package httpserver

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	ballotengine "quorum/contexts/election-core/ballot-engine"
	ballotdomainerrors "quorum/contexts/election-core/ballot-engine/domain/errors"
	ballothttp "quorum/contexts/election-core/ballot-engine/transport/http"
	tallyengine "quorum/contexts/election-core/tally-engine"
	tallydomainerrors "quorum/contexts/election-core/tally-engine/domain/errors"
	tallyhttp "quorum/contexts/election-core/tally-engine/transport/http"
	"quorum/internal/platform/metrics"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger"
)

type Server struct {
	mux     *http.ServeMux
	logger  *slog.Logger
	addr    string
	ballots ballotengine.Module
	tallies tallyengine.Module
	metrics *metrics.Metrics
}

func New(
	ballots ballotengine.Module,
	tallies tallyengine.Module,
	appMetrics *metrics.Metrics,
	logger *slog.Logger,
	addr string,
) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	if addr == "" {
		addr = ":8080"
	}

	s := &Server{
		mux:     http.NewServeMux(),
		logger:  logger,
		addr:    addr,
		ballots: ballots,
		tallies: tallies,
		metrics: appMetrics,
	}
	s.registerRoutes()
	return s
}

func (s *Server) Start() error {
	s.logger.Info("http server starting",
		"event", "http_server_starting",
		"module", "internal/platform/httpserver",
		"layer", "platform",
		"addr", s.addr,
	)
	return http.ListenAndServe(s.addr, s.mux)
}

func (s *Server) registerRoutes() {
	s.mux.Handle("/swagger/", httpSwagger.Handler(
		httpSwagger.URL("/swagger/doc.json"),
	))
	s.mux.Handle("GET /metrics", promhttp.Handler())
	s.handle("GET /healthz", s.handleHealthz)

	s.handle("POST /votes/confirm", s.handleConfirmVote)
	s.handle("PUT /votes/{vote_id}/undo", s.handleUndoVote)
	s.handle("GET /votes/{vote_id}", s.handleVoteStatus)
	s.handle("GET /elections/{election_id}/votes", s.handleElectionVotes)

	s.handle("POST /tally/configure", s.handleConfigureTally)
	s.handle("GET /tally/{election_id}", s.handleGetTally)
	s.handle("GET /tally/{election_id}/deltas", s.handleGetDeltas)
}

// handle registers the route with the request counter attached, labeled by
// the registered pattern rather than the raw path so cardinality stays
// bounded.
func (s *Server) handle(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, func(w http.ResponseWriter, r *http.Request) {
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		handler(recorder, r)
		s.metrics.IncrementHTTPRequest(pattern, strconv.Itoa(recorder.status))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleConfirmVote(w http.ResponseWriter, r *http.Request) {
	var req ballothttp.ConfirmVoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBallotError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}
	if req.VoterID == "" {
		req.VoterID = strings.TrimSpace(r.Header.Get("X-User-Id"))
	}

	resp, err := s.ballots.Handler.ConfirmVoteHandler(r.Context(), req)
	if err != nil {
		s.metrics.IncrementVoteTransition("cast_rejected")
		writeBallotDomainError(w, err)
		return
	}
	s.metrics.IncrementVoteTransition("cast")
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleUndoVote(w http.ResponseWriter, r *http.Request) {
	voteID := r.PathValue("vote_id")
	voterID := strings.TrimSpace(r.Header.Get("X-User-Id"))

	resp, err := s.ballots.Handler.UndoVoteHandler(r.Context(), voteID, voterID)
	if err != nil {
		s.metrics.IncrementVoteTransition("undo_rejected")
		writeBallotDomainError(w, err)
		return
	}
	s.metrics.IncrementVoteTransition("undone")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleVoteStatus(w http.ResponseWriter, r *http.Request) {
	voteID := r.PathValue("vote_id")
	resp, err := s.ballots.Handler.VoteStatusHandler(r.Context(), voteID)
	if err != nil {
		writeBallotDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleElectionVotes(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("election_id")
	resp, err := s.ballots.Handler.ElectionVotesHandler(r.Context(), electionID)
	if err != nil {
		writeBallotDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleConfigureTally(w http.ResponseWriter, r *http.Request) {
	var req tallyhttp.ConfigureTallyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeTallyError(w, http.StatusBadRequest, "invalid_body", "request body must be valid JSON")
		return
	}

	resp, err := s.tallies.Handler.ConfigureTallyHandler(r.Context(), req)
	if err != nil {
		writeTallyDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetTally(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("election_id")
	role := resolveRole(r)

	resp, err := s.tallies.Handler.GetTallyHandler(r.Context(), electionID, role)
	if err != nil {
		s.metrics.IncrementTallyRead(tallyReadOutcome(err))
		writeTallyDomainError(w, err)
		return
	}
	s.metrics.IncrementTallyRead("served")
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetDeltas(w http.ResponseWriter, r *http.Request) {
	electionID := r.PathValue("election_id")
	role := resolveRole(r)

	sinceSeq := int64(0)
	if raw := r.URL.Query().Get("since_seq"); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeTallyError(w, http.StatusBadRequest, "invalid_since_seq", "since_seq must be an integer")
			return
		}
		sinceSeq = parsed
	}

	resp, err := s.tallies.Handler.GetDeltasHandler(r.Context(), electionID, role, sinceSeq)
	if err != nil {
		s.metrics.IncrementTallyRead(tallyReadOutcome(err))
		writeTallyDomainError(w, err)
		return
	}
	s.metrics.IncrementTallyRead("served")
	writeJSON(w, http.StatusOK, resp)
}

func resolveRole(r *http.Request) string {
	role := strings.TrimSpace(r.URL.Query().Get("role"))
	if role == "" {
		role = strings.TrimSpace(r.Header.Get("X-User-Role"))
	}
	if role == "" {
		role = "voter"
	}
	return role
}

func tallyReadOutcome(err error) string {
	switch {
	case errors.Is(err, tallydomainerrors.ErrTallyForbidden):
		return "forbidden"
	case errors.Is(err, tallydomainerrors.ErrTallyNotConfigured):
		return "not_configured"
	default:
		return "error"
	}
}

func writeBallotDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ballotdomainerrors.ErrInvalidVoteInput):
		writeBallotError(w, http.StatusBadRequest, "invalid_vote_input", err.Error())
	case errors.Is(err, ballotdomainerrors.ErrVoteNotFound):
		writeBallotError(w, http.StatusNotFound, "vote_not_found", err.Error())
	case errors.Is(err, ballotdomainerrors.ErrVoteNotOwned):
		writeBallotError(w, http.StatusForbidden, "vote_not_owned", err.Error())
	case errors.Is(err, ballotdomainerrors.ErrGraceWindowExpired):
		writeBallotError(w, http.StatusConflict, "grace_window_expired", err.Error())
	case errors.Is(err, ballotdomainerrors.ErrVoteAlreadyFinalized):
		writeBallotError(w, http.StatusConflict, "vote_already_finalized", err.Error())
	case errors.Is(err, ballotdomainerrors.ErrConflict):
		writeBallotError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeBallotError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeTallyDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tallydomainerrors.ErrInvalidTallyInput):
		writeTallyError(w, http.StatusBadRequest, "invalid_tally_input", err.Error())
	case errors.Is(err, tallydomainerrors.ErrTallyNotConfigured):
		writeTallyError(w, http.StatusNotFound, "tally_not_configured", err.Error())
	case errors.Is(err, tallydomainerrors.ErrTallyForbidden):
		writeTallyError(w, http.StatusForbidden, "tally_forbidden", err.Error())
	case errors.Is(err, tallydomainerrors.ErrConflict):
		writeTallyError(w, http.StatusConflict, "conflict", err.Error())
	default:
		writeTallyError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func writeBallotError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, ballothttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeTallyError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, tallyhttp.ErrorResponse{
		Code:    code,
		Message: message,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
