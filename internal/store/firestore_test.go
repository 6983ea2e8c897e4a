package store

import (
	"context"
	"testing"
	"time"

	"github.com/anonto42/campus-feed/backend/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFirestoreMap_CommentsKeepBsonNames(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	comments := []models.Comment{
		{ID: "c1", Seq: 1, UserID: "u1", UserName: "Asha", Text: "hi", CreatedAt: created},
		{ID: "c2", Seq: 2, UserID: "u2", UserName: "Ravi", Text: "reply", ParentCommentID: "c1", CreatedAt: created},
	}

	data, err := toFirestoreMap(Fields{"comments": comments, "commentSeq": int64(2)})
	require.NoError(t, err)

	stored, ok := data["comments"].([]interface{})
	require.True(t, ok, "comments stored as %T", data["comments"])
	require.Len(t, stored, 2)
	reply, ok := stored[1].(map[string]interface{})
	require.True(t, ok, "comment stored as %T", stored[1])
	assert.Equal(t, "u2", reply["userId"])
	assert.Equal(t, "c1", reply["parentCommentId"])
	assert.IsType(t, time.Time{}, reply["createdAt"])
	assert.NotContains(t, reply, "UserID")

	back := make(Fields, len(data))
	for k, v := range data {
		back[k] = fromFirestoreValue(v)
	}
	var post models.Post
	require.NoError(t, Decode(back, &post))
	require.Len(t, post.Comments, 2)
	assert.Equal(t, "u1", post.Comments[0].UserID)
	assert.Equal(t, "u2", post.Comments[1].UserID)
	assert.Equal(t, "c1", post.Comments[1].ParentCommentID)
	assert.Equal(t, int64(2), post.Comments[1].Seq)
	assert.True(t, created.Equal(post.Comments[1].CreatedAt))
	assert.Equal(t, int64(2), post.CommentSeq)
}

func TestFirestoreStore_BatchOverLimit(t *testing.T) {
	writes := make([]Write, firestoreBatchLimit+1)
	err := NewFirestoreStore(nil).BatchAtomicUpdate(context.Background(), writes)
	assert.ErrorIs(t, err, ErrBatchTooLarge)
}
