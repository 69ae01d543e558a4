package api

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medops-br/triagebot/pkg/auth"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/services"
)

//go:embed widget.html
var widgetShellHTML []byte

// decisionPayload is the wire shape shared by the webhook and the widget
// submit endpoint.
type decisionPayload struct {
	CaseID        uuid.UUID  `json:"case_id"`
	DoctorUserID  string     `json:"doctor_user_id"`
	Decision      string     `json:"decision"`
	SupportFlag   string     `json:"support_flag"`
	Reason        *string    `json:"reason,omitempty"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
	WidgetEventID *string    `json:"widget_event_id,omitempty"`
}

func (p decisionPayload) toRequest() services.DecisionRequest {
	return services.DecisionRequest{
		CaseID:        p.CaseID,
		DoctorUserID:  p.DoctorUserID,
		Decision:      models.Decision(p.Decision),
		SupportFlag:   models.SupportFlag(p.SupportFlag),
		Reason:        p.Reason,
		SubmittedAt:   p.SubmittedAt,
		WidgetEventID: p.WidgetEventID,
	}
}

func decodeStrict(body []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// decisionWebhook handles POST /callbacks/triage-decision. The caller signs
// the raw body with HMAC-SHA256 and presents the hex digest in x-signature.
func (s *Server) decisionWebhook(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}
	if !auth.VerifySignature(s.deps.HmacSecret, body, c.GetHeader("x-signature")) {
		respondError(c, http.StatusUnauthorized, "invalid_signature", "signature verification failed")
		return
	}

	var payload decisionPayload
	if err := decodeStrict(body, &payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	s.applyDecision(c, payload)
}

// widgetSubmit handles POST /widget/room2/submit for authenticated admins.
func (s *Server) widgetSubmit(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", "could not read request body")
		return
	}
	var payload decisionPayload
	if err := decodeStrict(body, &payload); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	s.applyDecision(c, payload)
}

func (s *Server) applyDecision(c *gin.Context, payload decisionPayload) {
	if payload.CaseID == uuid.Nil {
		respondError(c, http.StatusBadRequest, "validation_error", "case_id is required")
		return
	}
	if _, err := s.deps.Decisions.ApplyDecision(c.Request.Context(), payload.toRequest()); err != nil {
		s.writeServiceError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true})
}

// widgetBootstrap handles POST /widget/room2/bootstrap: the widget shell
// exchanges its case id for the snapshot it renders.
func (s *Server) widgetBootstrap(c *gin.Context) {
	var body struct {
		CaseID uuid.UUID `json:"case_id"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		respondError(c, http.StatusBadRequest, "invalid_body", err.Error())
		return
	}
	if body.CaseID == uuid.Nil {
		respondError(c, http.StatusBadRequest, "validation_error", "case_id is required")
		return
	}
	snapshot, err := s.deps.Widget.WidgetSnapshot(c.Request.Context(), body.CaseID)
	if err != nil {
		s.writeServiceError(c, err)
		return
	}
	if snapshot.Status != models.CaseStatusWaitDoctor {
		respondError(c, http.StatusConflict, "wrong_state",
			"case is not waiting for a doctor decision")
		return
	}
	c.JSON(http.StatusOK, snapshot)
}

// widgetShell serves the embedded single-page decision widget.
func (s *Server) widgetShell(c *gin.Context) {
	c.Data(http.StatusOK, "text/html; charset=utf-8", widgetShellHTML)
}
