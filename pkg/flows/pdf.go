package flows

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/ledongthuc/pdf"

	"github.com/medops-br/triagebot/pkg/llm"
	"github.com/medops-br/triagebot/pkg/models"
	"github.com/medops-br/triagebot/pkg/recordnum"
	"github.com/medops-br/triagebot/pkg/services"
)

// ProcessPdfCase drives a fresh case through download, text extraction,
// record-number extraction and both LLM stages, then queues the Room-2
// widget. Each phase is skipped when its persisted artifacts already
// exist, so a retried job resumes where the previous attempt stopped.
func (d *Deps) ProcessPdfCase(ctx context.Context, job models.Job) error {
	caseID, err := jobCaseID(job)
	if err != nil {
		return err
	}
	c, err := d.Cases.Get(ctx, caseID)
	if err != nil {
		return err
	}

	if c.Status == models.CaseStatusNew {
		if err := d.runExtractionPhase(ctx, c, payloadString(job, "pdf_mxc_url")); err != nil {
			return err
		}
		if c, err = d.Cases.Get(ctx, caseID); err != nil {
			return err
		}
	}

	if c.Status == models.CaseStatusPdfExtracted {
		if err := d.runLlm1Phase(ctx, c); err != nil {
			return err
		}
		if c, err = d.Cases.Get(ctx, caseID); err != nil {
			return err
		}
	}

	if c.Status == models.CaseStatusLlmSuggest {
		if err := d.runLlm2Phase(ctx, c); err != nil {
			return err
		}
		if c, err = d.Cases.Get(ctx, caseID); err != nil {
			return err
		}
	}

	if c.Status != models.CaseStatusR2PostWidget {
		// A replay after the widget job already advanced the case.
		return nil
	}
	return d.enqueueFollowUp(ctx, caseID, models.JobTypePostRoom2Widget, nil)
}

// runExtractionPhase downloads the report, extracts its text and the
// agency record number, and persists everything in one transaction.
func (d *Deps) runExtractionPhase(ctx context.Context, c *models.Case, mxcURL string) error {
	if mxcURL == "" && c.PdfMxcURL != nil {
		mxcURL = *c.PdfMxcURL
	}
	if mxcURL == "" {
		return retriable(CauseDownload, errors.New("job payload has no pdf_mxc_url"))
	}

	data, err := d.Chat.DownloadMedia(ctx, mxcURL)
	if err != nil {
		return retriable(CauseDownload, err)
	}

	text, err := d.extractPdfText(data)
	if err != nil {
		return retriable(CauseExtract, err)
	}
	if strings.TrimSpace(text) == "" {
		return retriable(CauseExtract, errors.New("pdf contains no extractable text"))
	}

	result := recordnum.Extract(text)
	if result.AgencyRecordNumber == "" {
		return retriable(CauseRecordExtract, errors.New("no agency record number candidate"))
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		cases := d.Cases.WithTx(tx)
		audit := d.Audit.WithTx(tx)

		if err := cases.StorePdfExtraction(ctx, c.CaseID, mxcURL, result.CleanedText, result.AgencyRecordNumber); err != nil {
			return err
		}
		if _, err := d.Transcripts.WithTx(tx).AppendReport(ctx, c.CaseID, "pdf", result.CleanedText); err != nil {
			return err
		}
		if _, err := cases.Transition(ctx, c.CaseID, models.CaseStatusPdfExtracted); err != nil {
			return err
		}
		if _, err := audit.Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &c.CaseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditPdfExtracted,
			Payload:   map[string]any{"pdf_mxc_url": mxcURL, "text_length": len(result.CleanedText)},
		}); err != nil {
			return err
		}
		_, err := audit.Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &c.CaseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditRecordNumberExtracted,
			Payload:   map[string]any{"agency_record_number": result.AgencyRecordNumber},
		})
		return err
	})
}

func (d *Deps) runLlm1Phase(ctx context.Context, c *models.Case) error {
	if c.AgencyRecordNumber == nil || c.ExtractedText == nil {
		return fmt.Errorf("%w: case %s has no extraction artifacts", services.ErrWrongState, c.CaseID)
	}
	result, err := d.Stage1.Run(ctx, llm.Stage1Input{
		CaseID:             c.CaseID,
		AgencyRecordNumber: *c.AgencyRecordNumber,
		CleanedText:        *c.ExtractedText,
	})
	if err != nil {
		return err
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		cases := d.Cases.WithTx(tx)
		if err := cases.StoreLlm1Artifacts(ctx, c.CaseID, result.StructuredData, result.SummaryOneLiner); err != nil {
			return err
		}
		if _, err := d.Transcripts.WithTx(tx).AppendLlmInteraction(ctx, result.Interaction); err != nil {
			return err
		}
		if _, err := cases.Transition(ctx, c.CaseID, models.CaseStatusLlmSuggest); err != nil {
			return err
		}
		_, err := d.Audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &c.CaseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditLlm1Completed,
			Payload:   map[string]any{"model_name": result.Interaction.ModelName},
		})
		return err
	})
}

func (d *Deps) runLlm2Phase(ctx context.Context, c *models.Case) error {
	if c.AgencyRecordNumber == nil || c.StructuredData == nil {
		return fmt.Errorf("%w: case %s has no extraction payload", services.ErrWrongState, c.CaseID)
	}
	prior, err := d.Cases.PriorCaseContext(ctx, c.CaseID, *c.AgencyRecordNumber, d.clock().Now())
	if err != nil {
		return err
	}
	result, err := d.Stage2.Run(ctx, llm.Stage2Input{
		CaseID:             c.CaseID,
		AgencyRecordNumber: *c.AgencyRecordNumber,
		StructuredData:     c.StructuredData,
		PriorCase:          priorCasePayload(prior),
	})
	if err != nil {
		return err
	}

	return services.InTx(ctx, d.DB, func(tx pgx.Tx) error {
		cases := d.Cases.WithTx(tx)
		if err := cases.StoreLlm2Artifacts(ctx, c.CaseID, result.SuggestedAction); err != nil {
			return err
		}
		if _, err := d.Transcripts.WithTx(tx).AppendLlmInteraction(ctx, result.Interaction); err != nil {
			return err
		}
		if _, err := cases.Transition(ctx, c.CaseID, models.CaseStatusR2PostWidget); err != nil {
			return err
		}
		_, err := d.Audit.WithTx(tx).Append(ctx, models.AppendAuditEventRequest{
			CaseID:    &c.CaseID,
			ActorType: models.ActorSystem,
			EventType: models.AuditLlm2Completed,
			Payload: map[string]any{
				"suggestion":     result.SuggestedAction["suggestion"],
				"contradictions": len(result.Contradictions),
			},
		})
		return err
	})
}

// priorCasePayload converts the prior-case context into the JSON block the
// suggestion prompt and the widget payload share.
func priorCasePayload(prior *models.PriorCaseContext) map[string]any {
	if prior == nil || prior.PriorCase == nil {
		return nil
	}
	payload := map[string]any{
		"prior_case": map[string]any{
			"prior_case_id": prior.PriorCase.PriorCaseID.String(),
			"decided_at":    prior.PriorCase.DecidedAt.Format(time.RFC3339),
			"decision":      prior.PriorCase.Decision,
			"reason":        strOrNil(prior.PriorCase.Reason),
		},
	}
	if prior.PriorDenialCount7d != nil {
		payload["prior_denial_count_7d"] = *prior.PriorDenialCount7d
	}
	return payload
}

func strOrNil(s *string) any {
	if s == nil {
		return nil
	}
	return *s
}

func (d *Deps) extractPdfText(data []byte) (string, error) {
	if d.ExtractPdfText != nil {
		return d.ExtractPdfText(data)
	}
	return extractPdfText(data)
}

// extractPdfText pulls the plain text of every page, in page order.
func extractPdfText(data []byte) (string, error) {
	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	var sb strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			return "", fmt.Errorf("extract page %d: %w", pageNum, err)
		}
		sb.WriteString(text)
		sb.WriteByte('\n')
	}
	return sb.String(), nil
}
