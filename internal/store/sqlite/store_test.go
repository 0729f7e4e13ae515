package sqlite_test

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"supportbridge/internal/domain"
	"supportbridge/internal/store/sqlite"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	// One connection so every query sees the same in-memory database.
	db.SetMaxOpenConns(1)
	require.NoError(t, sqlite.Migrate(db))
	t.Cleanup(func() { db.Close() })
	return db
}

func seedUser(t *testing.T, db *sql.DB, id string) *domain.User {
	t.Helper()
	u, err := sqlite.NewUserRepo(db).Create(context.Background(), &domain.User{
		ID:   domain.NewUserID(id),
		Name: "Customer " + id,
	})
	require.NoError(t, err)
	return u
}

func seedThread(t *testing.T, db *sql.DB, id, userID string) *domain.Thread {
	t.Helper()
	th, err := sqlite.NewThreadRepo(db).Create(context.Background(), &domain.Thread{
		ID:                domain.NewThreadID(id),
		UserID:            domain.NewUserID(userID),
		Title:             "Help",
		LastMessageSentID: domain.NewMessageID("0"),
		LastMessageReadID: domain.NewMessageID("0"),
	})
	require.NoError(t, err)
	return th
}

func TestUserCreateConflict(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewUserRepo(db)
	ctx := context.Background()

	_, err := repo.Create(ctx, &domain.User{ID: "u1", Name: "Ann"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, &domain.User{ID: "u1", Name: "Ann again"})
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestUserGetNotFound(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewUserRepo(db)

	_, err := repo.Get(context.Background(), "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	ok, err := repo.Has(context.Background(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestUserGetByExternalIDAbsent(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewUserRepo(db)

	u, err := repo.GetByExternalID(context.Background(), "999")
	require.NoError(t, err)
	assert.Nil(t, u)
}

func TestUserUpdateTransform(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewUserRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")

	threadID := domain.NewThreadID("200")
	updated, err := repo.Update(ctx, "u1", func(u domain.User) domain.User {
		u.CurrentThreadID = &threadID
		u.Name = "Renamed"
		return u
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", updated.Name)

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got.CurrentThreadID)
	assert.Equal(t, threadID, *got.CurrentThreadID)
}

func TestThreadUnreadFlag(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewThreadRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedThread(t, db, "100", "u1")

	th, err := repo.Get(ctx, "100")
	require.NoError(t, err)
	assert.False(t, th.HasUnread())

	th, err = repo.Update(ctx, "100", func(t domain.Thread) domain.Thread {
		t.LastMessageSentID = domain.NewMessageID("7")
		return t
	})
	require.NoError(t, err)
	assert.True(t, th.HasUnread())

	th, err = repo.Update(ctx, "100", func(t domain.Thread) domain.Thread {
		t.LastMessageReadID = domain.NewMessageID("7")
		return t
	})
	require.NoError(t, err)
	assert.False(t, th.HasUnread())
}

func TestThreadOwnerImmutable(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewThreadRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")
	seedThread(t, db, "100", "u1")

	th, err := repo.Update(ctx, "100", func(t domain.Thread) domain.Thread {
		t.UserID = "u2"
		return t
	})
	require.NoError(t, err)
	assert.Equal(t, domain.NewUserID("u1"), th.UserID)
}

func TestHistoryPagination(t *testing.T) {
	db := openTestDB(t)
	msgs := sqlite.NewMessageRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedThread(t, db, "100", "u1")

	now := time.Now().UTC().Truncate(time.Second)
	for i := 1; i <= 20; i++ {
		_, err := msgs.Create(ctx, &domain.Message{
			ID:        domain.NewMessageID(fmt.Sprint(i)),
			ThreadID:  "100",
			Content:   fmt.Sprintf("m%d", i),
			CreatedAt: now.Add(time.Duration(i) * time.Second),
			EditedAt:  now.Add(time.Duration(i) * time.Second),
		})
		require.NoError(t, err)
	}

	page, err := msgs.ListForThread(ctx, "100", 5, nil)
	require.NoError(t, err)
	require.Len(t, page, 5)
	for i, want := range []string{"16", "17", "18", "19", "20"} {
		assert.Equal(t, domain.NewMessageID(want), page[i].ID)
	}

	before := domain.NewMessageID("16")
	page, err = msgs.ListForThread(ctx, "100", 5, &before)
	require.NoError(t, err)
	require.Len(t, page, 5)
	for i, want := range []string{"11", "12", "13", "14", "15"} {
		assert.Equal(t, domain.NewMessageID(want), page[i].ID)
	}
}

func TestMessageEdit(t *testing.T) {
	db := openTestDB(t)
	msgs := sqlite.NewMessageRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedThread(t, db, "100", "u1")

	created := time.Now().UTC().Truncate(time.Second)
	_, err := msgs.Create(ctx, &domain.Message{
		ID:        "5",
		ThreadID:  "100",
		Content:   "hello",
		CreatedAt: created,
		EditedAt:  created,
	})
	require.NoError(t, err)

	editedAt := created.Add(time.Minute)
	got, err := msgs.Update(ctx, "5", func(m domain.Message) domain.Message {
		m.Content = "hello, edited"
		m.EditedAt = editedAt
		return m
	})
	require.NoError(t, err)
	assert.True(t, got.Edited())

	got, err = msgs.Get(ctx, "5")
	require.NoError(t, err)
	assert.Equal(t, "hello, edited", got.Content)
	assert.True(t, got.EditedAt.Equal(editedAt))
}

func TestReactions(t *testing.T) {
	db := openTestDB(t)
	msgs := sqlite.NewMessageRepo(db)
	reactions := sqlite.NewReactionRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedThread(t, db, "100", "u1")

	now := time.Now().UTC()
	for _, id := range []string{"1", "2", "3"} {
		_, err := msgs.Create(ctx, &domain.Message{
			ID: domain.NewMessageID(id), ThreadID: "100", Content: "m" + id,
			CreatedAt: now, EditedAt: now,
		})
		require.NoError(t, err)
	}

	_, err := reactions.Create(ctx, &domain.Reaction{MessageID: "1", Symbol: "👍"})
	require.NoError(t, err)
	_, err = reactions.Create(ctx, &domain.Reaction{MessageID: "2", Symbol: "🎉"})
	require.NoError(t, err)
	_, err = reactions.Create(ctx, &domain.Reaction{MessageID: "3", Symbol: "👍"})
	require.NoError(t, err)

	// Duplicate pair violates the unique constraint.
	_, err = reactions.Create(ctx, &domain.Reaction{MessageID: "1", Symbol: "👍"})
	assert.ErrorIs(t, err, domain.ErrConflict)

	got, err := reactions.ListInRange(ctx, "100", "1", "2")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.NewMessageID("1"), got[0].MessageID)
	assert.Equal(t, domain.NewMessageID("2"), got[1].MessageID)

	require.NoError(t, reactions.Delete(ctx, &domain.Reaction{MessageID: "1", Symbol: "👍"}))
	// Deleting an absent row is a no-op.
	require.NoError(t, reactions.Delete(ctx, &domain.Reaction{MessageID: "1", Symbol: "👍"}))

	got, err = reactions.ListInRange(ctx, "100", "1", "3")
	require.NoError(t, err)
	require.Len(t, got, 2)
}

func TestListThreadsForUser(t *testing.T) {
	db := openTestDB(t)
	repo := sqlite.NewThreadRepo(db)
	ctx := context.Background()
	seedUser(t, db, "u1")
	seedUser(t, db, "u2")
	seedThread(t, db, "100", "u1")
	seedThread(t, db, "101", "u1")
	seedThread(t, db, "102", "u2")

	threads, err := repo.ListForUser(ctx, "u1")
	require.NoError(t, err)
	assert.Len(t, threads, 2)

	ok, err := repo.Has(ctx, "102")
	require.NoError(t, err)
	assert.True(t, ok)
}
