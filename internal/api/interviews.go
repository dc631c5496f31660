package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"careercoach/internal/interview"
	"careercoach/internal/models"
)

func (h *Handler) createInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var settings models.Settings
	if err := c.ShouldBindJSON(&settings); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	var sess *models.Session
	err := h.workers.Submit(c.Request.Context(), userID, func(ctx context.Context) error {
		var err error
		sess, err = h.interviews.Create(ctx, userID, settings)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"session_token": sess.Token,
		"questions":     sess.Questions,
		"interview":     sess,
	})
}

func (h *Handler) listInterviews(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	list, err := h.interviews.List(c.Request.Context(), userID)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interviews": list})
}

func (h *Handler) getInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	sess, err := h.interviews.Get(c.Request.Context(), userID, c.Param("token"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"interview": sess})
}

func (h *Handler) deleteInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	if err := h.interviews.Delete(c.Request.Context(), userID, c.Param("token")); err != nil {
		writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

type responseRequest struct {
	QuestionID string `json:"question_id"`
	interview.ResponseInput
}

func (h *Handler) saveResponse(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	var req responseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	token := c.Param("token")
	var resp *models.Response
	err := h.workers.Submit(c.Request.Context(), userID, func(ctx context.Context) error {
		var err error
		resp, err = h.interviews.SaveResponse(ctx, userID, token, req.QuestionID, req.ResponseInput)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"response": resp,
		"analysis": resp.Analysis,
	})
}

func (h *Handler) completeInterview(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	token := c.Param("token")
	var result *interview.CompletionResult
	err := h.workers.Submit(c.Request.Context(), userID, func(ctx context.Context) error {
		var err error
		result, err = h.interviews.Complete(ctx, userID, token)
		return err
	})
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

// countdown streams the recording timer for one question as server-sent
// events. Closing the connection stops the timer.
func (h *Handler) countdown(c *gin.Context) {
	userID, ok := h.authorizedUserID(c)
	if !ok {
		return
	}
	question, err := h.interviews.Question(c.Request.Context(), userID, c.Param("token"), c.Param("question_id"))
	if err != nil {
		writeError(c, err)
		return
	}

	// SSE Request construction
	flusher, ok := c.Writer.(http.Flusher)
	if !ok {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "streaming not supported"})
		return
	}
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.Header().Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	sendEvent := func(event string, payload interface{}) error {
		data, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "event: %s\n", event); err != nil {
			return err
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			return err
		}
		flusher.Flush()
		return nil
	}

	timer := interview.Countdown{Seconds: question.TimeLimit, Interval: h.tick}
	elapsed, err := timer.Run(c.Request.Context(), func(remaining int) error {
		return sendEvent("tick", gin.H{"question_id": question.ID, "remaining": remaining})
	})
	if err != nil {
		_ = sendEvent("stopped", gin.H{"question_id": question.ID, "elapsed": elapsed})
		return
	}
	_ = sendEvent("done", gin.H{"question_id": question.ID, "elapsed": elapsed, "time_limit": question.TimeLimit})
}
