package web

import (
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/lightningnetwork/lnd/fn/v2"
	"github.com/roasbeef/draftsmith/internal/draft"
	"github.com/roasbeef/draftsmith/internal/intent"
	"github.com/roasbeef/draftsmith/internal/store"
	"github.com/roasbeef/draftsmith/internal/thread"
)

// handleHealth reports liveness.
func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// fetchThreadsRequest asks for the conversation threads of one or more
// addresses, optionally ranked against a goal.
type fetchThreadsRequest struct {
	EmailAddresses []string `json:"email_addresses" binding:"required,min=1"`
	EmailGoal      string   `json:"email_goal"`
}

// threadSummary is the wire form of one conversation thread.
type threadSummary struct {
	ThreadID     string   `json:"thread_id"`
	Subject      string   `json:"subject"`
	EmailCount   int      `json:"email_count"`
	Participants []string `json:"participants"`
	LastDate     string   `json:"last_date"`
	Snippet      string   `json:"snippet"`
}

func summarizeThread(t thread.Thread) threadSummary {
	snippet := t.Last().Body
	if len(snippet) > 200 {
		snippet = snippet[:200]
	}

	return threadSummary{
		ThreadID:     t.ThreadID,
		Subject:      t.Subject,
		EmailCount:   len(t.Messages),
		Participants: t.Participants(),
		LastDate:     t.Last().Timestamp.Format(time.RFC3339),
		Snippet:      snippet,
	}
}

// addressThreads is the per-address slice of the fetch response.
type addressThreads struct {
	EmailAddress string          `json:"email_address"`
	Threads      []threadSummary `json:"threads"`
	Error        string          `json:"error,omitempty"`
}

func (s *Server) handleFetchThreads(c *gin.Context) {
	var req fetchThreadsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	results := make([]addressThreads, 0, len(req.EmailAddresses))
	for _, address := range req.EmailAddresses {
		entry := addressThreads{
			EmailAddress: address,
			Threads:      []threadSummary{},
		}

		threads, err := s.service.FetchThreads(
			c.Request.Context(), address, req.EmailGoal,
		)
		if err != nil {
			entry.Error = err.Error()
		}
		for _, t := range threads {
			entry.Threads = append(
				entry.Threads, summarizeThread(t),
			)
		}

		results = append(results, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"addresses_data":  results,
		"email_goal":      req.EmailGoal,
		"total_addresses": len(results),
	})
}

// generateRequest asks for one draft. A missing thread_id picks the best
// matching thread; new_email skips threads entirely.
type generateRequest struct {
	EmailAddress       string `json:"email_address" binding:"required"`
	ThreadID           string `json:"thread_id"`
	SelectedEmailIndex *int   `json:"selected_email_index"`
	EmailGoal          string `json:"email_goal"`
	Tone               string `json:"tone"`
	NewEmail           bool   `json:"new_email"`
}

// draftResponse is the wire form of one generated draft.
type draftResponse struct {
	EmailAddress     string `json:"email_address"`
	Subject          string `json:"subject"`
	Email            string `json:"email"`
	Intent           string `json:"intent"`
	Tone             string `json:"tone"`
	ThreadEmailCount int    `json:"thread_email_count"`
	IsNewEmail       bool   `json:"is_new_email"`
	SessionID        string `json:"session_id"`
}

func draftToResponse(address string, result draft.Result,
	newEmail bool) draftResponse {

	return draftResponse{
		EmailAddress:     address,
		Subject:          result.Draft.Subject,
		Email:            result.Draft.Body,
		Intent:           result.Draft.Intent.String(),
		Tone:             result.Draft.Tone,
		ThreadEmailCount: result.ThreadEmailCount,
		IsNewEmail:       newEmail,
		SessionID:        result.SessionID,
	}
}

func (s *Server) handleGenerate(c *gin.Context) {
	var req generateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ctx := c.Request.Context()

	var (
		result draft.Result
		err    error
	)
	if req.NewEmail {
		result, err = s.service.GenerateNewEmail(
			ctx, req.EmailAddress, req.EmailGoal, req.Tone,
		)
	} else {
		var selected fn.Option[int]
		if req.SelectedEmailIndex != nil {
			selected = fn.Some(*req.SelectedEmailIndex)
		}

		result, err = s.service.GenerateForThread(
			ctx, draft.ThreadRequest{
				EmailAddress:  req.EmailAddress,
				ThreadID:      req.ThreadID,
				EmailGoal:     req.EmailGoal,
				Tone:          req.Tone,
				SelectedIndex: selected,
			},
		)
	}
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, draftToResponse(
		req.EmailAddress, result, req.NewEmail,
	))
}

// generateBatchRequest asks for one draft per address.
type generateBatchRequest struct {
	EmailAddresses []string `json:"email_addresses" binding:"required,min=1"`
	EmailGoal      string   `json:"email_goal"`
	Tone           string   `json:"tone"`
	NewEmail       bool     `json:"new_email"`
}

// batchOutcome is the per-address slice of the batch response.
type batchOutcome struct {
	EmailAddress string         `json:"email_address"`
	Success      bool           `json:"success"`
	Draft        *draftResponse `json:"draft,omitempty"`
	Error        string         `json:"error,omitempty"`
	TimedOut     bool           `json:"timed_out,omitempty"`
}

func (s *Server) handleGenerateBatch(c *gin.Context) {
	var req generateBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	outcomes := s.service.GenerateBatch(
		c.Request.Context(), draft.BatchRequest{
			Addresses: req.EmailAddresses,
			EmailGoal: req.EmailGoal,
			Tone:      req.Tone,
			NewEmail:  req.NewEmail,
		},
	)

	var generated int
	results := make([]batchOutcome, 0, len(outcomes))
	for _, outcome := range outcomes {
		entry := batchOutcome{
			EmailAddress: outcome.EmailAddress,
			TimedOut:     outcome.TimedOut,
		}

		switch {
		case outcome.TimedOut:
			entry.Error = "timed_out"

		case outcome.Err != nil:
			entry.Error = outcome.Err.Error()

		default:
			outcome.Result.WhenSome(func(r draft.Result) {
				resp := draftToResponse(
					outcome.EmailAddress, r,
					outcome.NewEmail,
				)
				entry.Draft = &resp
				entry.Success = true
				generated++
			})
		}

		results = append(results, entry)
	}

	c.JSON(http.StatusOK, gin.H{
		"emails":          results,
		"total_generated": generated,
	})
}

// sessionResponse is the wire form of a persisted session.
type sessionResponse struct {
	SessionID          string `json:"session_id"`
	Timestamp          string `json:"timestamp"`
	EmailAddress       string `json:"email_address"`
	ThreadSubject      string `json:"thread_subject"`
	Intent             string `json:"intent"`
	Subject            string `json:"subject"`
	EmailBody          string `json:"email_body"`
	Tone               string `json:"tone"`
	SelectedEmailIndex *int64 `json:"selected_email_index,omitempty"`
	EmailGoal          string `json:"email_goal,omitempty"`
	ThreadEmailCount   int64  `json:"thread_email_count"`
	LastModified       string `json:"last_modified"`
	IsNewEmail         bool   `json:"is_new_email"`
}

func sessionToResponse(sess store.Session) sessionResponse {
	resp := sessionResponse{
		SessionID:        sess.SessionID,
		Timestamp:        sess.CreatedAt.Format(time.RFC3339),
		EmailAddress:     sess.EmailAddress,
		ThreadSubject:    sess.ThreadSubject,
		Intent:           sess.Intent.String(),
		Subject:          sess.Subject,
		EmailBody:        sess.EmailBody,
		Tone:             sess.Tone,
		EmailGoal:        sess.EmailGoal.UnwrapOr(""),
		ThreadEmailCount: sess.ThreadEmailCount,
		LastModified:     sess.LastModified.Format(time.RFC3339),
		IsNewEmail:       sess.IsNewEmail,
	}
	sess.SelectedEmailIndex.WhenSome(func(idx int64) {
		resp.SelectedEmailIndex = &idx
	})

	return resp
}

func (s *Server) handleListSessions(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			badRequest(c, fmt.Errorf("bad limit %q", raw))
			return
		}
		limit = parsed
	}

	filter := store.ListFilter{Limit: limit}
	if address := c.Query("email_address"); address != "" {
		filter.EmailAddress = fn.Some(address)
	}

	sessions, err := s.sessions.ListSessions(c.Request.Context(), filter)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	results := make([]sessionResponse, 0, len(sessions))
	for _, sess := range sessions {
		results = append(results, sessionToResponse(sess))
	}

	c.JSON(http.StatusOK, gin.H{
		"sessions": results,
		"total":    len(results),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	sess, err := s.sessions.GetSession(
		c.Request.Context(), c.Param("id"),
	)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(sess))
}

// updateSessionRequest is a partial session update; absent fields are
// left untouched.
type updateSessionRequest struct {
	Subject   *string `json:"subject"`
	EmailBody *string `json:"email_body"`
	Tone      *string `json:"tone"`
	EmailGoal *string `json:"email_goal"`
	Intent    *string `json:"intent"`
}

func (s *Server) handleUpdateSession(c *gin.Context) {
	var req updateSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	var params store.UpdateParams
	if req.Subject != nil {
		params.Subject = fn.Some(*req.Subject)
	}
	if req.EmailBody != nil {
		params.EmailBody = fn.Some(*req.EmailBody)
	}
	if req.Tone != nil {
		params.Tone = fn.Some(*req.Tone)
	}
	if req.EmailGoal != nil {
		params.EmailGoal = fn.Some(*req.EmailGoal)
	}
	if req.Intent != nil {
		label, err := intent.Parse(*req.Intent)
		if err != nil {
			badRequest(c, err)
			return
		}
		params.Intent = fn.Some(label)
	}

	sess, err := s.sessions.UpdateSession(
		c.Request.Context(), c.Param("id"), params,
	)
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, sessionToResponse(sess))
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	err := s.sessions.DeleteSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": true})
}

func (s *Server) handleClearSessions(c *gin.Context) {
	deleted, err := s.sessions.ClearSessions(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"deleted": deleted})
}

func (s *Server) handleStats(c *gin.Context) {
	stats, err := s.sessions.Stats(c.Request.Context())
	if err != nil {
		s.abortWithError(c, err)
		return
	}

	resp := gin.H{
		"total_generations": stats.TotalGenerations,
		"current_sessions":  stats.CurrentSessions,
		"intent_breakdown":  stats.IntentBreakdown,
	}
	stats.LastGeneration.WhenSome(func(ts time.Time) {
		resp["last_generation"] = ts.Format(time.RFC3339)
	})

	c.JSON(http.StatusOK, resp)
}
