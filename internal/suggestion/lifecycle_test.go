package suggestion

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryd/memoryd/internal/analyzer"
	"github.com/memoryd/memoryd/internal/learning"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

type fakeStorer struct {
	mu      sync.Mutex
	stored  []string
	nextID  string
	failure error
}

func (f *fakeStorer) StoreApproved(_ context.Context, _ *Suggestion, content string, _ []string) (string, error) {
	if f.failure != nil {
		return "", f.failure
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append(f.stored, content)
	if f.nextID == "" {
		f.nextID = "conv-1"
	}
	return f.nextID, nil
}

type fakeSink struct {
	mu     sync.Mutex
	events []learning.Feedback
	err    error
}

func (f *fakeSink) RecordFeedback(_ context.Context, fb learning.Feedback) error {
	if f.err != nil {
		return f.err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, fb)
	return nil
}

func pendingSuggestion(t *testing.T, l *Lifecycle) string {
	t.Helper()
	id, err := l.Create("use tabs", "noted, tabs it is", analyzer.AnalysisResult{
		Category:         model.CategoryPreference,
		Confidence:       0.72,
		SuggestedContent: "use tabs\n\nnoted, tabs it is",
	}, "test-tool")
	require.NoError(t, err)
	return id
}

func TestCreateRequiresInput(t *testing.T) {
	l := New(&fakeStorer{}, nil, nil)
	_, err := l.Create("", "", analyzer.AnalysisResult{}, "")
	require.Error(t, err)
	assert.True(t, apierrors.Is(err, apierrors.KindInvalidArgument))
}

func TestApproveStoresAndEmitsApproval(t *testing.T) {
	storer := &fakeStorer{nextID: "conv-42"}
	sink := &fakeSink{}
	l := New(storer, sink, nil)
	id := pendingSuggestion(t, l)

	convID, err := l.Approve(context.Background(), id, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "conv-42", convID)

	s, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusApproved, s.Status)
	require.NotNil(t, s.ApprovedAt)

	require.Len(t, sink.events, 1)
	assert.Equal(t, learning.FeedbackApproval, sink.events[0].Type)
}

func TestApproveWithModifiedContentEmitsModification(t *testing.T) {
	storer := &fakeStorer{}
	sink := &fakeSink{}
	l := New(storer, sink, nil)
	id := pendingSuggestion(t, l)

	modified := "use tabs everywhere, including Makefiles"
	_, err := l.Approve(context.Background(), id, &modified, []string{"indentation"})
	require.NoError(t, err)

	require.Len(t, storer.stored, 1)
	assert.Equal(t, modified, storer.stored[0])

	require.Len(t, sink.events, 1)
	assert.Equal(t, learning.FeedbackModification, sink.events[0].Type)
	require.NotNil(t, sink.events[0].Corrected)
	assert.Equal(t, modified, *sink.events[0].Corrected)
}

func TestRejectEmitsRejectionWithReason(t *testing.T) {
	sink := &fakeSink{}
	l := New(&fakeStorer{}, sink, nil)
	id := pendingSuggestion(t, l)

	reason := "not worth remembering"
	require.NoError(t, l.Reject(context.Background(), id, &reason))

	s, err := l.Get(id)
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, s.Status)
	assert.Equal(t, reason, s.RejectionReason)

	require.Len(t, sink.events, 1)
	assert.Equal(t, learning.FeedbackRejection, sink.events[0].Type)
}

func TestTerminalTransitionsAreInvalid(t *testing.T) {
	l := New(&fakeStorer{}, nil, nil)
	id := pendingSuggestion(t, l)
	require.NoError(t, l.Reject(context.Background(), id, nil))

	_, err := l.Approve(context.Background(), id, nil, nil)
	assert.True(t, apierrors.Is(err, apierrors.KindInvalidTransition))

	err = l.Reject(context.Background(), id, nil)
	assert.True(t, apierrors.Is(err, apierrors.KindInvalidTransition))
}

func TestUnknownSuggestionIsNotFound(t *testing.T) {
	l := New(&fakeStorer{}, nil, nil)
	_, err := l.Approve(context.Background(), "nope", nil, nil)
	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))

	err = l.Reject(context.Background(), "nope", nil)
	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))
}

func TestStorerFailureLeavesSuggestionPending(t *testing.T) {
	storer := &fakeStorer{failure: assert.AnError}
	l := New(storer, nil, nil)
	id := pendingSuggestion(t, l)

	_, err := l.Approve(context.Background(), id, nil, nil)
	require.Error(t, err)

	s, getErr := l.Get(id)
	require.NoError(t, getErr)
	assert.Equal(t, StatusPending, s.Status)
}

func TestFeedbackFailureDoesNotFailApprove(t *testing.T) {
	sink := &fakeSink{err: assert.AnError}
	l := New(&fakeStorer{}, sink, nil)
	id := pendingSuggestion(t, l)

	_, err := l.Approve(context.Background(), id, nil, nil)
	require.NoError(t, err)
}

func TestCleanupEvictsOldSuggestions(t *testing.T) {
	l := New(&fakeStorer{}, nil, nil)
	id := pendingSuggestion(t, l)

	// Age the suggestion past the TTL by hand.
	l.mu.Lock()
	l.pending[id].CreatedAt = time.Now().UTC().Add(-25 * time.Hour)
	l.mu.Unlock()

	assert.Equal(t, 1, l.Cleanup(24*time.Hour))
	_, err := l.Get(id)
	assert.True(t, apierrors.Is(err, apierrors.KindNotFound))
	assert.Zero(t, l.PendingCount())
}

func TestListPendingNewestFirst(t *testing.T) {
	l := New(&fakeStorer{}, nil, nil)
	a := pendingSuggestion(t, l)
	b := pendingSuggestion(t, l)

	l.mu.Lock()
	l.pending[a].CreatedAt = time.Now().UTC().Add(-time.Hour)
	l.mu.Unlock()

	list := l.ListPending()
	require.Len(t, list, 2)
	assert.Equal(t, b, list[0].ID)
	assert.Equal(t, a, list[1].ID)
}
