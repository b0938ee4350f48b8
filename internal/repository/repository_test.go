package repository_test

import (
	"context"
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memoryd/memoryd/internal/encryption"
	"github.com/memoryd/memoryd/internal/model"
	"github.com/memoryd/memoryd/internal/repository"
	"github.com/memoryd/memoryd/pkg/apierrors"
)

func newTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	repo, err := repository.Open(repository.Config{Path: ":memory:"}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestCreateAndGetConversation(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	conv := &model.Conversation{ToolName: "claude-code", Content: "use postgres for this service"}
	require.NoError(t, repo.CreateConversation(ctx, conv))
	require.NotEmpty(t, conv.ID)

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Content, got.Content)
}

func TestCreateConversationRequiresContent(t *testing.T) {
	repo := newTestRepo(t)
	err := repo.CreateConversation(context.Background(), &model.Conversation{ToolName: "x"})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindInvalidArgument, apierrors.KindOf(err))
}

func TestGetConversationNotFound(t *testing.T) {
	repo := newTestRepo(t)
	_, err := repo.GetConversation(context.Background(), "missing")
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestDeleteConversationRemovesLinks(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	a := &model.Conversation{ToolName: "t", Content: "a"}
	b := &model.Conversation{ToolName: "t", Content: "b"}
	require.NoError(t, repo.CreateConversation(ctx, a))
	require.NoError(t, repo.CreateConversation(ctx, b))

	link := &model.ContextLink{SourceID: a.ID, TargetID: b.ID, RelationshipType: "related"}
	require.NoError(t, repo.CreateContextLink(ctx, link))

	require.NoError(t, repo.DeleteConversation(ctx, a.ID))

	links, err := repo.LinksForConversation(ctx, b.ID)
	require.NoError(t, err)
	assert.Empty(t, links)

	err = repo.DeleteConversation(ctx, a.ID)
	require.Error(t, err)
	assert.Equal(t, apierrors.KindNotFound, apierrors.KindOf(err))
}

func TestProjectNameUniqueCaseInsensitive(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.CreateProject(ctx, &model.Project{Name: "Memoryd"}))
	err := repo.CreateProject(ctx, &model.Project{Name: "memoryd"})
	require.Error(t, err)
	assert.Equal(t, apierrors.KindConflict, apierrors.KindOf(err))
}

func newEncryptedTestRepo(t *testing.T) *repository.Repository {
	t.Helper()
	salt := make([]byte, 32)
	_, err := rand.Read(salt)
	require.NoError(t, err)
	cipher, err := encryption.New("test passphrase", salt, nil)
	require.NoError(t, err)

	repo, err := repository.Open(repository.Config{Path: ":memory:", Cipher: cipher}, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestEncryptedConversationRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newEncryptedTestRepo(t)

	conv := &model.Conversation{
		ToolName: "claude-code",
		Content:  "the staging database password rotation runs fridays",
		Metadata: model.ConversationMetadata{
			UserQuery:  "when does the password rotate?",
			AIResponse: "fridays, per the staging runbook",
		},
	}
	require.NoError(t, repo.CreateConversation(ctx, conv))
	// The caller's struct stays plaintext for indexing.
	assert.Equal(t, "the staging database password rotation runs fridays", conv.Content)

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, conv.Content, got.Content)
	assert.Equal(t, "when does the password rotate?", got.Metadata.UserQuery)
	assert.Equal(t, "fridays, per the staging runbook", got.Metadata.AIResponse)

	// At rest the content is ciphertext: a substring search cannot see it.
	rows, err := repo.SearchByContent(ctx, "rotation", 10)
	require.NoError(t, err)
	assert.Empty(t, rows)

	// Edits decrypt, patch, and re-seal.
	updated, err := repo.UpdateConversation(ctx, conv.ID, func(c *model.Conversation) error {
		assert.Equal(t, conv.Content, c.Content)
		c.Content = "rotation moved to mondays"
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, "rotation moved to mondays", updated.Content)

	got, err = repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	assert.Equal(t, "rotation moved to mondays", got.Content)
}

func TestPreferenceRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := newTestRepo(t)

	require.NoError(t, repo.SetPreference(ctx, "learning.threshold.solution.auto_store", "learning", 0.9))
	pref, err := repo.GetPreference(ctx, "learning.threshold.solution.auto_store")
	require.NoError(t, err)
	assert.Equal(t, "learning", pref.Category)
}
