package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conclave-ai/conclave/internal/debate"
	"github.com/conclave-ai/conclave/internal/debate/decompose"
	"github.com/conclave-ai/conclave/internal/debate/voting"
)

func newSQLite(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

// =============================================================================
// SQLite Repository
// =============================================================================

func TestSQLiteRoundTrip(t *testing.T) {
	repo := newSQLite(t)

	rec := testRecord("r1", "alice", time.Now().UTC().Truncate(time.Second))
	rec.Rounds = []debate.RoundResult{{
		RoundNumber:   1,
		Proposal:      "p",
		ProposalModel: "mock:prime",
		Challenges: []debate.ChallengeResult{
			{ModelRef: "mock:beta", Content: "The flaw is X.", Framing: debate.FramingFlaw},
		},
		Revision:      "r",
		RevisionModel: "mock:prime",
		Decision:      "r",
		Confidence:    1.0,
	}}
	rec.Votes = []voting.VoteResult{{ModelRef: "mock:beta", Content: "v"}}
	rec.Subtasks = []decompose.SubtaskResult{{Label: "a", Decision: "da", Confidence: 0.9}}
	rec.Taxonomy = &debate.Taxonomy{Intent: "technical", Category: "storage"}

	require.NoError(t, repo.SaveDeliberation(context.Background(), rec))

	got, err := repo.GetDeliberation(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, rec.Question, got.Question)
	assert.Equal(t, rec.Decision, got.Decision)
	require.Len(t, got.Rounds, 1)
	require.Len(t, got.Rounds[0].Challenges, 1)
	assert.Equal(t, debate.FramingFlaw, got.Rounds[0].Challenges[0].Framing)
	require.Len(t, got.Votes, 1)
	require.Len(t, got.Subtasks, 1)
	require.NotNil(t, got.Taxonomy)
	assert.Equal(t, "technical", got.Taxonomy.Intent)
}

func TestSQLiteGetMissing(t *testing.T) {
	repo := newSQLite(t)
	_, err := repo.GetDeliberation(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteDuplicateIDRejected(t *testing.T) {
	repo := newSQLite(t)
	rec := testRecord("r1", "", time.Now())
	require.NoError(t, repo.SaveDeliberation(context.Background(), rec))
	assert.Error(t, repo.SaveDeliberation(context.Background(), rec), "primary key holds")
}

func TestSQLiteListScoping(t *testing.T) {
	repo := newSQLite(t)
	base := time.Now().UTC()
	require.NoError(t, repo.SaveDeliberation(context.Background(), testRecord("a1", "alice", base)))
	require.NoError(t, repo.SaveDeliberation(context.Background(), testRecord("a2", "alice", base.Add(time.Minute))))
	require.NoError(t, repo.SaveDeliberation(context.Background(), testRecord("b1", "bob", base.Add(2*time.Minute))))

	all, err := repo.ListDeliberations(context.Background(), "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "b1", all[0].ID)

	alice, err := repo.ListDeliberations(context.Background(), "alice", 0)
	require.NoError(t, err)
	require.Len(t, alice, 2)
	assert.Equal(t, "a2", alice[0].ID)
}
