package http

import (
	"github.com/memoryd/memoryd/internal/services"
)

// errorResponse is the structured error body both surfaces share.
type errorResponse struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// storeContextRequest is POST /context's body.
type storeContextRequest struct {
	Content   string         `json:"content"`
	ToolName  string         `json:"tool_name"`
	ProjectID string         `json:"project_id,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	Tags      []string       `json:"tags,omitempty"`
}

// searchRequest is POST /context/search's body.
type searchRequest struct {
	Query          string  `json:"query"`
	Limit          int     `json:"limit,omitempty"`
	SearchType     string  `json:"search_type,omitempty"`
	Category       string  `json:"category,omitempty"`
	AutoStoredOnly bool    `json:"auto_stored_only,omitempty"`
	MinConfidence  float64 `json:"min_confidence,omitempty"`
	ProjectID      string  `json:"project_id,omitempty"`
	ToolName       string  `json:"tool_name,omitempty"`
}

// searchResponse wraps ranked hits.
type searchResponse struct {
	Results []services.MemoryResult `json:"results"`
	Count   int                     `json:"count"`
}

// historyRequest is POST /history's body.
type historyRequest struct {
	ToolName string `json:"tool_name"`
	Hours    int    `json:"hours,omitempty"`
	Limit    int    `json:"limit,omitempty"`
}

// editConversationRequest is PATCH /conversations/:id's body.
type editConversationRequest struct {
	NewContent *string  `json:"new_content,omitempty"`
	AddTags    []string `json:"add_tags,omitempty"`
	RemoveTags []string `json:"remove_tags,omitempty"`
	Category   *string  `json:"category,omitempty"`
}

// createProjectRequest is POST /projects's body.
type createProjectRequest struct {
	Name        string  `json:"name"`
	Path        *string `json:"path,omitempty"`
	Description *string `json:"description,omitempty"`
}

// setPreferenceRequest is PUT /preferences/:key's body.
type setPreferenceRequest struct {
	Value    any    `json:"value"`
	Category string `json:"category,omitempty"`
}

// suggestRequest is POST /suggestions's body.
type suggestRequest struct {
	UserMessage string `json:"user_message"`
	AIResponse  string `json:"ai_response"`
	ToolName    string `json:"tool_name,omitempty"`
	AutoApprove bool   `json:"auto_approve,omitempty"`
}

// approveRequest is POST /suggestions/:id/approve's body.
type approveRequest struct {
	ModifiedContent *string  `json:"modified_content,omitempty"`
	Tags            []string `json:"tags,omitempty"`
}

// rejectRequest is POST /suggestions/:id/reject's body.
type rejectRequest struct {
	Reason *string `json:"reason,omitempty"`
}
