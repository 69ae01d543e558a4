package models

import (
	"time"

	"github.com/google/uuid"
)

// Prompt template names used by the two-stage pipeline.
const (
	PromptLlm1System = "llm1_system"
	PromptLlm1User   = "llm1_user"
	PromptLlm2System = "llm2_system"
	PromptLlm2User   = "llm2_user"
)

// KnownPromptNames lists every template name the pipeline loads.
var KnownPromptNames = []string{
	PromptLlm1System,
	PromptLlm1User,
	PromptLlm2System,
	PromptLlm2User,
}

// PromptTemplate is one immutable prompt version. At most one version per
// name is active at a time.
type PromptTemplate struct {
	ID              int64      `json:"id"`
	Name            string     `json:"name"`
	Version         int        `json:"version"`
	Content         string     `json:"content"`
	IsActive        bool       `json:"is_active"`
	UpdatedByUserID *uuid.UUID `json:"updated_by_user_id,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// PromptVersionInfo is the metadata view used by admin listings.
type PromptVersionInfo struct {
	Name     string `json:"name"`
	Version  int    `json:"version"`
	IsActive bool   `json:"is_active"`
}
