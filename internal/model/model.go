// Package model defines the durable entities persisted by the Record
// Repository: Conversation, Project, Preference, and ContextLink.
package model

import "time"

// Category classifies a conversation's storage rationale.
type Category string

const (
	CategoryPreference     Category = "preference"
	CategorySolution       Category = "solution"
	CategoryProjectContext Category = "project_context"
	CategoryDecision       Category = "decision"
	CategoryManual         Category = "manual"
	CategoryUnknown        Category = "unknown"
)

// ExtractedInfo is the structured output of the Storage Analyzer's heuristic
// extraction over a conversation's content.
type ExtractedInfo struct {
	Technologies []string `json:"technologies,omitempty"`
	FilePaths    []string `json:"file_paths,omitempty"`
	Decisions    []string `json:"decisions,omitempty"`
	Constraints  []string `json:"constraints,omitempty"`
}

// ConversationMetadata is the structured metadata bag attached to every
// Conversation. Extra preserves keys not yet promoted to a named field so
// round-tripping never silently drops data.
type ConversationMetadata struct {
	AutoStored          bool           `json:"auto_stored"`
	Confidence          float64        `json:"confidence"`
	AnalysisCategory     Category       `json:"analysis_category"`
	StorageReason        string         `json:"storage_reason,omitempty"`
	ExtractedInfo        ExtractedInfo  `json:"extracted_info"`
	UserQuery            string         `json:"user_query,omitempty"`
	AIResponse           string         `json:"ai_response,omitempty"`
	MergedAt             *time.Time     `json:"merged_at,omitempty"`
	LastEdited           *time.Time     `json:"last_edited,omitempty"`
	CategoryUpdated      *time.Time     `json:"category_updated,omitempty"`
	OptimizationApplied  bool           `json:"optimization_applied"`
	OptimizationReasons  []string       `json:"optimization_reasons,omitempty"`
	Extra                map[string]any `json:"extra,omitempty"`
}

// Conversation is the primary stored memory.
type Conversation struct {
	ID        string               `gorm:"primaryKey;type:text" json:"id"`
	ToolName  string               `gorm:"index;not null" json:"tool_name"`
	ProjectID *string              `gorm:"index" json:"project_id,omitempty"`
	Timestamp time.Time            `gorm:"index;not null" json:"timestamp"`
	Content   string               `gorm:"not null" json:"content"`
	Metadata  ConversationMetadata `gorm:"serializer:json" json:"metadata"`
	Tags      StringSlice          `gorm:"serializer:json" json:"tags"`
	CreatedAt time.Time            `json:"created_at"`
	UpdatedAt time.Time            `json:"updated_at"`
}

// TableName pins the GORM table name regardless of struct renames.
func (Conversation) TableName() string { return "conversations" }

// Project groups conversations under a named workspace.
type Project struct {
	ID           string     `gorm:"primaryKey;type:text" json:"id"`
	Name         string     `gorm:"uniqueIndex;not null" json:"name"`
	Path         *string    `json:"path,omitempty"`
	Description  *string    `json:"description,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	LastAccessed time.Time  `json:"last_accessed"`
}

func (Project) TableName() string { return "projects" }

// Preference is a namespaced key/value setting. Category "general" holds
// user-facing settings; category "learning" holds Learning Engine state.
type Preference struct {
	Key       string    `gorm:"primaryKey;type:text" json:"key"`
	Value     []byte    `gorm:"type:blob" json:"value"`
	Category  string    `gorm:"index;not null" json:"category"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Preference) TableName() string { return "preferences" }

// ContextLink is a directed, typed, confidence-scored edge between two
// conversations.
type ContextLink struct {
	ID               string    `gorm:"primaryKey;type:text" json:"id"`
	SourceID         string    `gorm:"index;not null" json:"source_id"`
	TargetID         string    `gorm:"index;not null" json:"target_id"`
	RelationshipType string    `gorm:"not null" json:"relationship_type"`
	ConfidenceScore  float64   `json:"confidence_score"`
	CreatedAt        time.Time `json:"created_at"`
}

func (ContextLink) TableName() string { return "context_links" }

// StringSlice is a []string that GORM's json serializer can (de)serialize;
// kept as a named type so call sites read naturally (conv.Tags, not
// conv.Tags.([]string)).
type StringSlice []string
