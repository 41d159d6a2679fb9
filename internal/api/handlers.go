package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/chaz8081/gostt-overlay/internal/capture"
	"github.com/chaz8081/gostt-overlay/internal/models"
	"github.com/chaz8081/gostt-overlay/internal/session"
	"github.com/chaz8081/gostt-overlay/internal/textparse"
)

type sessionView struct {
	ID        string           `json:"id,omitempty"`
	Status    string           `json:"status"`
	Backend   string           `json:"backend,omitempty"`
	Provider  string           `json:"provider,omitempty"`
	Interim   string           `json:"interim,omitempty"`
	Final     string           `json:"final,omitempty"`
	Artifact  string           `json:"artifact,omitempty"`
	Error     *session.Failure `json:"error,omitempty"`
	StartedAt *time.Time       `json:"startedAt,omitempty"`
}

func viewOf(s session.Session) sessionView {
	v := sessionView{
		ID:      s.ID,
		Status:  s.Status.String(),
		Interim: s.InterimText,
		Final:   s.FinalText,
	}
	if s.ID != "" {
		v.Backend = s.Backend.String()
		v.Provider = s.Provider.String()
		t := s.StartedAt
		v.StartedAt = &t
	}
	if s.Artifact != nil {
		v.Artifact = s.Artifact.Name()
	}
	if s.Err != nil {
		f := session.Classify(s.Err)
		v.Error = &f
	}
	return v
}

type eventView struct {
	SessionID string           `json:"sessionId"`
	Status    string           `json:"status"`
	Text      string           `json:"text,omitempty"`
	Failure   *session.Failure `json:"failure,omitempty"`
}

type progressView struct {
	Model   string           `json:"model"`
	Percent int              `json:"percent"`
	Done    bool             `json:"done"`
	Failure *session.Failure `json:"failure,omitempty"`
}

// writeError sends {error, kind, action} with a status matching the
// failure kind.
func writeError(c *gin.Context, err error) {
	f := session.Classify(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, models.ErrUnknownModel):
		status = http.StatusNotFound
	case f.Kind == session.KindAlreadyListening,
		f.Kind == session.KindModeSwitch,
		f.Kind == session.KindAlreadyDownloading:
		status = http.StatusConflict
	case f.Kind == session.KindNoAPIKey,
		f.Kind == session.KindNotInstalled:
		status = http.StatusPreconditionFailed
	case f.Kind == session.KindDeviceUnavailable:
		status = http.StatusServiceUnavailable
	case f.Kind == session.KindProviderUnsupported:
		status = http.StatusBadRequest
	case f.Kind == session.KindInvalidAudio:
		status = http.StatusUnprocessableEntity
	case f.Kind == session.KindHTTP:
		status = http.StatusBadGateway
	}
	c.JSON(status, gin.H{"error": f.Message, "kind": f.Kind, "action": f.Action})
}

func (s *Service) handleSession(c *gin.Context) {
	v := viewOf(s.sessions.State())
	c.JSON(http.StatusOK, gin.H{"session": v, "mode": s.sessions.Mode().String()})
}

func (s *Service) handleStart(c *gin.Context) {
	var req struct {
		Language string `json:"language"`
	}
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}

	sel, err := s.selection()
	if err != nil {
		writeError(c, err)
		return
	}
	if req.Language != "" {
		sel.Language = req.Language
	}

	// The session outlives this request; only the backend open uses it.
	sess, err := s.sessions.Start(context.WithoutCancel(c.Request.Context()), sel)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"session": viewOf(sess)})
}

func (s *Service) handleStop(c *gin.Context) {
	// A client hanging up must not abort the transcription.
	text, err := s.sessions.Stop(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"text": text, "session": viewOf(s.sessions.State())})
}

func (s *Service) handleMode(c *gin.Context) {
	var req struct {
		Mode string `json:"mode" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}
	kind, err := capture.ParseKind(req.Mode)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err := s.sessions.SetMode(kind); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"mode": kind.String()})
}

// handleEvents streams session events until the terminal event or until
// the client goes away.
func (s *Service) handleEvents(c *gin.Context) {
	events, unsubscribe := s.sessions.Subscribe()
	defer unsubscribe()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case ev, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(ev.Kind.String(), eventView{
				SessionID: ev.SessionID,
				Status:    ev.Status.String(),
				Text:      ev.Text,
				Failure:   ev.Failure,
			})
			return !ev.Kind.Terminal()
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Service) handleModels(c *gin.Context) {
	active, err := s.models.Active()
	if err != nil && !errors.Is(err, models.ErrNoActiveModel) {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"models": s.models.List(), "active": active})
}

// handleDownload starts a download and streams its progress. The download
// keeps running if the client disconnects.
func (s *Service) handleDownload(c *gin.Context) {
	name := c.Param("name")
	progress, err := s.models.Download(context.WithoutCancel(c.Request.Context()), name)
	if err != nil {
		writeError(c, err)
		return
	}

	c.Header("Cache-Control", "no-cache")
	ctx := c.Request.Context()
	c.Stream(func(w io.Writer) bool {
		select {
		case p, ok := <-progress:
			if !ok {
				return false
			}
			v := progressView{Model: p.Model, Percent: p.Percent, Done: p.Done}
			event := "progress"
			switch {
			case p.Err != nil:
				f := session.Classify(p.Err)
				v.Failure = &f
				event = "failed"
			case p.Done:
				event = "done"
			}
			c.SSEvent(event, v)
			return p.Err == nil && !p.Done
		case <-ctx.Done():
			return false
		}
	})
}

func (s *Service) handleActiveModel(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}
	if err := s.models.SelectActive(req.Name); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"active": req.Name})
}

func (s *Service) handleActions(c *gin.Context) {
	var req struct {
		Text string `json:"text"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
		return
	}
	actions := textparse.ParseActions(req.Text)
	if actions == nil {
		actions = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"actions": actions})
}

var (
	_ Sessions = (*session.Controller)(nil)
	_ Models   = (*models.Manager)(nil)
)
