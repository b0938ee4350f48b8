// Package suggestion owns the in-memory pending-suggestion table and its
// approve/reject state machine. Suggestions never touch the durable store
// until approved; an unattended suggestion is evicted after a bounded age.
package suggestion

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/learning"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

// Status is a suggestion's lifecycle state.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusRejected Status = "rejected"
)

// Suggestion is one pending storage proposal awaiting a user verdict.
type Suggestion struct {
	ID              string
	UserMessage     string
	AIResponse      string
	Analysis        analyzer.AnalysisResult
	ToolName        string
	CreatedAt       time.Time
	Status          Status
	ApprovedAt      *time.Time
	RejectedAt      *time.Time
	RejectionReason string
}

// Storer persists an approved suggestion as a conversation. It is the write
// path's entry point, injected so the lifecycle never reaches into the
// Repository or Search Engine directly.
type Storer interface {
	StoreApproved(ctx context.Context, s *Suggestion, content string, extraTags []string) (conversationID string, err error)
}

// FeedbackSink receives the learning events terminal transitions emit.
type FeedbackSink interface {
	RecordFeedback(ctx context.Context, fb learning.Feedback) error
}

// Lifecycle owns the pending table. All operations are O(1) lookups under a
// single mutex except Cleanup, which is O(N).
type Lifecycle struct {
	storer   Storer
	feedback FeedbackSink
	logger   *zap.Logger

	mu      sync.Mutex
	pending map[string]*Suggestion
	seq     atomic.Int64
}

// New constructs a Lifecycle. feedback may be nil; terminal transitions then
// skip learning emission entirely.
func New(storer Storer, feedback FeedbackSink, logger *zap.Logger) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Lifecycle{
		storer:   storer,
		feedback: feedback,
		logger:   logger,
		pending:  make(map[string]*Suggestion),
	}
}

// Create registers a new pending suggestion and returns its id.
func (l *Lifecycle) Create(userMsg, aiResp string, analysis analyzer.AnalysisResult, toolName string) (string, error) {
	if userMsg == "" && aiResp == "" {
		return "", apierrors.InvalidArgument("user_message or ai_response is required")
	}

	now := time.Now().UTC()
	id := fmt.Sprintf("sug_%d_%d", l.seq.Add(1), now.UnixMilli())

	l.mu.Lock()
	defer l.mu.Unlock()
	l.pending[id] = &Suggestion{
		ID:          id,
		UserMessage: userMsg,
		AIResponse:  aiResp,
		Analysis:    analysis,
		ToolName:    toolName,
		CreatedAt:   now,
		Status:      StatusPending,
	}
	return id, nil
}

// Get returns a suggestion by id, including ones already in a terminal state
// that have not yet been evicted.
func (l *Lifecycle) Get(id string) (*Suggestion, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.pending[id]
	if !ok {
		return nil, apierrors.NotFound("suggestion not found")
	}
	cp := *s
	return &cp, nil
}

// ListPending returns every suggestion still awaiting a verdict, newest first.
func (l *Lifecycle) ListPending() []Suggestion {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Suggestion, 0, len(l.pending))
	for _, s := range l.pending {
		if s.Status == StatusPending {
			out = append(out, *s)
		}
	}
	sortByCreatedDesc(out)
	return out
}

// Approve transitions pending → approved, persisting the (possibly modified)
// content through the Storer and emitting APPROVAL or MODIFICATION feedback.
// A Storer failure leaves the suggestion pending so the user can retry.
func (l *Lifecycle) Approve(ctx context.Context, id string, modifiedContent *string, extraTags []string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.pending[id]
	if !ok {
		return "", apierrors.NotFound("suggestion not found")
	}
	if s.Status != StatusPending {
		return "", apierrors.InvalidTransition("suggestion is already " + string(s.Status))
	}

	content := s.Analysis.SuggestedContent
	modified := false
	if modifiedContent != nil && *modifiedContent != "" && *modifiedContent != content {
		content = *modifiedContent
		modified = true
	}

	convID, err := l.storer.StoreApproved(ctx, s, content, extraTags)
	if err != nil {
		return "", err
	}

	now := time.Now().UTC()
	s.Status = StatusApproved
	s.ApprovedAt = &now

	fbType := learning.FeedbackApproval
	var corrected *string
	if modified {
		fbType = learning.FeedbackModification
		corrected = &content
	}
	l.emitFeedback(ctx, learning.Feedback{
		Type:       fbType,
		TargetID:   s.ID,
		Category:   s.Analysis.Category,
		Confidence: s.Analysis.Confidence,
		Original:   s.Analysis.SuggestedContent,
		Corrected:  corrected,
		Context:    map[string]any{"conversation_id": convID, "tool_name": s.ToolName},
	})

	return convID, nil
}

// Reject transitions pending → rejected and emits REJECTION feedback.
func (l *Lifecycle) Reject(ctx context.Context, id string, reason *string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	s, ok := l.pending[id]
	if !ok {
		return apierrors.NotFound("suggestion not found")
	}
	if s.Status != StatusPending {
		return apierrors.InvalidTransition("suggestion is already " + string(s.Status))
	}

	now := time.Now().UTC()
	s.Status = StatusRejected
	s.RejectedAt = &now
	if reason != nil {
		s.RejectionReason = *reason
	}

	l.emitFeedback(ctx, learning.Feedback{
		Type:       learning.FeedbackRejection,
		TargetID:   s.ID,
		Category:   s.Analysis.Category,
		Confidence: s.Analysis.Confidence,
		Original:   s.Analysis.SuggestedContent,
		Context:    map[string]any{"reason": s.RejectionReason, "tool_name": s.ToolName},
	})
	return nil
}

// emitFeedback forwards to the learning sink; failures are logged, never
// propagated — approve/reject must succeed even when learning is down.
func (l *Lifecycle) emitFeedback(ctx context.Context, fb learning.Feedback) {
	if l.feedback == nil {
		return
	}
	if err := l.feedback.RecordFeedback(ctx, fb); err != nil {
		l.logger.Warn("feedback emission failed", zap.String("suggestion_id", fb.TargetID), zap.Error(err))
	}
}

// Cleanup evicts suggestions older than maxAge, regardless of state, and
// returns the eviction count.
func (l *Lifecycle) Cleanup(maxAge time.Duration) int {
	cutoff := time.Now().UTC().Add(-maxAge)

	l.mu.Lock()
	defer l.mu.Unlock()
	evicted := 0
	for id, s := range l.pending {
		if s.CreatedAt.Before(cutoff) {
			delete(l.pending, id)
			evicted++
		}
	}
	return evicted
}

// PendingCount reports the number of suggestions awaiting a verdict.
func (l *Lifecycle) PendingCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, s := range l.pending {
		if s.Status == StatusPending {
			n++
		}
	}
	return n
}

func sortByCreatedDesc(in []Suggestion) {
	sort.Slice(in, func(i, j int) bool { return in[i].CreatedAt.After(in[j].CreatedAt) })
}
