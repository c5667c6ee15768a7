package http

import (
	"errors"
	"net/http"
	"time"

	"github.com/hablemos/language-league/internal/application/command"
	"github.com/hablemos/language-league/internal/application/query"
	"github.com/hablemos/language-league/internal/domain/league"
	"github.com/hablemos/language-league/internal/domain/shared"
	"github.com/hablemos/language-league/internal/infrastructure/external/classifier"
	"github.com/hablemos/language-league/internal/infrastructure/scheduler"
	"github.com/hablemos/language-league/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// DTOs
// ══════════════════════════════════════════════════════════════════════════════

// ParticipantDTO is the wire form of a participant.
type ParticipantDTO struct {
	ID          string    `json:"id"`
	DisplayName string    `json:"display_name"`
	Track       string    `json:"track"`
	Status      string    `json:"status"`
	JoinedAt    time.Time `json:"joined_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RoundDTO is the wire form of a round.
type RoundDTO struct {
	ID     string    `json:"id"`
	Number int       `json:"number"`
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Status string    `json:"status"`
}

// ExclusionDTO is the wire form of an excluded channel.
type ExclusionDTO struct {
	ChannelID   string    `json:"channel_id"`
	ChannelName string    `json:"channel_name,omitempty"`
	AddedBy     string    `json:"added_by"`
	AddedAt     time.Time `json:"added_at"`
}

func toParticipantDTO(p *league.Participant) *ParticipantDTO {
	if p == nil {
		return nil
	}
	return &ParticipantDTO{
		ID:          p.ID.String(),
		DisplayName: p.DisplayName,
		Track:       p.Track.String(),
		Status:      string(p.Status),
		JoinedAt:    p.JoinedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func toRoundDTO(r *league.Round) *RoundDTO {
	if r == nil {
		return nil
	}
	return &RoundDTO{ID: r.ID, Number: r.Number, Start: r.Start, End: r.End, Status: string(r.Status)}
}

type activityRequest struct {
	ParticipantID string    `json:"participant_id"`
	ChannelID     string    `json:"channel_id"`
	DisplayName   string    `json:"display_name"`
	Text          string    `json:"text"`
	Timestamp     time.Time `json:"timestamp"`
	FromBot       bool      `json:"from_bot"`
	Direct        bool      `json:"direct"`
	// Language is an optional upstream detection result.
	Language string `json:"language,omitempty"`
}

type activityResponse struct {
	Counted    bool   `json:"counted"`
	Reason     string `json:"reason,omitempty"`
	RoundID    string `json:"round_id,omitempty"`
	Language   string `json:"language,omitempty"`
	DailyCount int    `json:"daily_count"`
	Score      int    `json:"score"`
}

type joinRequest struct {
	DisplayName string `json:"display_name"`
	Track       string `json:"track"`
}

type membershipResponse struct {
	Participant *ParticipantDTO `json:"participant"`
	Round       *RoundDTO       `json:"round,omitempty"`
}

type moderationResponse struct {
	Changed     bool            `json:"changed"`
	Participant *ParticipantDTO `json:"participant,omitempty"`
}

type excludeRequest struct {
	ChannelID   string `json:"channel_id"`
	ChannelName string `json:"channel_name"`
}

type validateRequest struct {
	ParticipantID string `json:"participant_id"`
	ChannelID     string `json:"channel_id"`
	Text          string `json:"text"`
}

// ══════════════════════════════════════════════════════════════════════════════
// HEALTH
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.deps.HealthChecker.Check(r.Context())
	code := http.StatusOK
	if !status.IsHealthy() {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, r, code, status)
}

func (s *Server) handleLive(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, r, http.StatusOK, map[string]string{"status": "alive"})
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVITY & PARTICIPANTS
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleRecordActivity(w http.ResponseWriter, r *http.Request) {
	var req activityRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	ctx := r.Context()
	if req.Language != "" {
		ctx = classifier.WithHint(ctx, league.Language(req.Language))
	}

	result, err := s.deps.RecordActivity.Handle(ctx, command.RecordActivityCommand{
		ParticipantID: req.ParticipantID,
		ChannelID:     req.ChannelID,
		DisplayName:   req.DisplayName,
		Text:          req.Text,
		Timestamp:     req.Timestamp,
		FromBot:       req.FromBot,
		Direct:        req.Direct,
		CorrelationID: getRequestID(ctx),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	if result.Counted {
		logger.FromContext(ctx).Debug("activity counted",
			logger.ParticipantID(req.ParticipantID),
			logger.ChannelID(req.ChannelID),
			logger.RoundID(result.RoundID),
		)
	}

	writeJSON(w, r, http.StatusOK, activityResponse{
		Counted:    result.Counted,
		Reason:     string(result.Reason),
		RoundID:    result.RoundID,
		Language:   string(result.Language),
		DailyCount: result.DailyCount,
		Score:      result.Score,
	})
}

func (s *Server) handleJoin(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.Membership.Join(r.Context(), command.JoinLeagueCommand{
		ParticipantID: r.PathValue("id"),
		DisplayName:   req.DisplayName,
		Track:         req.Track,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	logger.FromContext(r.Context()).Debug("join accepted",
		logger.ParticipantID(result.Participant.ID.String()),
		logger.Track(result.Participant.Track.String()),
	)
	writeJSON(w, r, http.StatusOK, membershipResponse{
		Participant: toParticipantDTO(result.Participant),
		Round:       toRoundDTO(result.Round),
	})
}

func (s *Server) handleLeave(w http.ResponseWriter, r *http.Request) {
	result, err := s.deps.Membership.Leave(r.Context(), command.LeaveLeagueCommand{
		ParticipantID: r.PathValue("id"),
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, membershipResponse{
		Participant: toParticipantDTO(result.Participant),
		Round:       toRoundDTO(result.Round),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	history, err := getQueryParamInt(r, "history", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.Stats.Handle(r.Context(), query.GetParticipantStatsQuery{
		ParticipantID: r.PathValue("id"),
		HistoryLimit:  history,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := getQueryParamInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.Leaderboard.Handle(r.Context(), query.GetLeaderboardQuery{
		Board: r.URL.Query().Get("board"),
		Limit: limit,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

// ══════════════════════════════════════════════════════════════════════════════
// ADMIN
// ══════════════════════════════════════════════════════════════════════════════

func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	result, err := s.deps.AdminTools.Stats(r.Context(), capability)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleListExclusions(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	list, err := s.deps.AdminTools.Exclusions(r.Context(), capability)
	if err != nil {
		writeError(w, r, err)
		return
	}
	out := make([]ExclusionDTO, 0, len(list))
	for _, e := range list {
		out = append(out, ExclusionDTO{
			ChannelID:   string(e.ChannelID),
			ChannelName: e.ChannelName,
			AddedBy:     e.AddedBy,
			AddedAt:     e.AddedAt,
		})
	}
	writeJSONList(w, r, out, &ResponseMeta{Total: len(out)})
}

func (s *Server) handleExclude(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	var req excludeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.ChannelID == "" {
		writeError(w, r, shared.NewDomainError("exclusion", "Validate", shared.ErrInvalidInput, "channel_id is required"))
		return
	}
	result, err := s.deps.Moderation.ExcludeChannel(r.Context(), capability, req.ChannelID, req.ChannelName)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, moderationResponse{Changed: result.Changed})
}

func (s *Server) handleInclude(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	result, err := s.deps.Moderation.IncludeChannel(r.Context(), capability, r.PathValue("channel"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, moderationResponse{Changed: result.Changed})
}

func (s *Server) handleBan(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	result, err := s.deps.Moderation.Ban(r.Context(), capability, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, moderationResponse{
		Changed:     result.Changed,
		Participant: toParticipantDTO(result.Participant),
	})
}

func (s *Server) handleUnban(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	result, err := s.deps.Moderation.Unban(r.Context(), capability, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, moderationResponse{
		Changed:     result.Changed,
		Participant: toParticipantDTO(result.Participant),
	})
}

func (s *Server) handleAudit(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	entries, err := s.deps.AdminTools.Audit(r.Context(), capability, r.PathValue("id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSONList(w, r, entries, &ResponseMeta{Total: len(entries), Limit: query.AuditDepth})
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	var req validateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	result, err := s.deps.AdminTools.ValidateMessage(r.Context(), capability, query.ValidateMessageQuery{
		ParticipantID: req.ParticipantID,
		ChannelID:     req.ChannelID,
		Text:          req.Text,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, result)
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	result, err := s.deps.Moderation.ResumeRollovers(r.Context(), capability)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, r, http.StatusOK, moderationResponse{Changed: result.Changed})
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Jobs == nil {
		writeJSONList(w, r, []struct{}{}, &ResponseMeta{})
		return
	}
	jobs := s.deps.Jobs.ListJobs()
	writeJSONList(w, r, jobs, &ResponseMeta{Total: len(jobs)})
}

func (s *Server) handleRunJob(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
	if err := capability.Require(shared.RoleAdmin); err != nil {
		writeError(w, r, err)
		return
	}
	if s.deps.Jobs == nil {
		writeError(w, r, shared.NewDomainError("scheduler", "RunNow", shared.ErrServiceUnavailable, "scheduler is disabled"))
		return
	}
	result, err := s.deps.Jobs.RunNow(r.Context(), r.PathValue("name"))
	if err != nil {
		writeError(w, r, mapJobError(err))
		return
	}
	out := jobRunResponse{
		JobName:    result.JobName,
		StartedAt:  result.StartedAt,
		DurationMs: result.Duration.Milliseconds(),
		Success:    result.Success,
	}
	if result.Error != nil {
		out.Error = result.Error.Error()
	}
	writeJSON(w, r, http.StatusOK, out)
}

// handleToggleJob pauses or resumes a job's schedule. RunNow still works on a paused job.
func (s *Server) handleToggleJob(enable bool) func(http.ResponseWriter, *http.Request, shared.Capability) {
	return func(w http.ResponseWriter, r *http.Request, capability shared.Capability) {
		if err := capability.Require(shared.RoleAdmin); err != nil {
			writeError(w, r, err)
			return
		}
		if s.deps.Jobs == nil {
			writeError(w, r, shared.NewDomainError("scheduler", "Toggle", shared.ErrServiceUnavailable, "scheduler is disabled"))
			return
		}
		name := r.PathValue("name")
		toggle := s.deps.Jobs.DisableJob
		if enable {
			toggle = s.deps.Jobs.EnableJob
		}
		if err := toggle(name); err != nil {
			writeError(w, r, mapJobError(err))
			return
		}
		logger.FromContext(r.Context()).Info("job toggled", "job", name, "enabled", enable, "actor", capability.Actor())
		writeJSON(w, r, http.StatusOK, map[string]any{"job": name, "enabled": enable})
	}
}

type jobRunResponse struct {
	JobName    string    `json:"job_name"`
	StartedAt  time.Time `json:"started_at"`
	DurationMs int64     `json:"duration_ms"`
	Success    bool      `json:"success"`
	Error      string    `json:"error,omitempty"`
}

func mapJobError(err error) error {
	switch {
	case errors.Is(err, scheduler.ErrJobNotFound):
		return shared.WrapError("scheduler", "RunNow", shared.ErrNotFound, "job not found", err)
	case errors.Is(err, scheduler.ErrJobBusy):
		return shared.WrapError("scheduler", "RunNow", shared.ErrInvalidState, "job is already running", err)
	default:
		return err
	}
}
