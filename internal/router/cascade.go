package router

import (
	"context"
	"log"

	"userposts/internal/apperr"
	"userposts/internal/db"
	"userposts/internal/model"
)

// cascade is a user deletion planned against a point-in-time snapshot.
// postIDs is read before any delete runs, so the comment filter does not
// depend on whether the posts are still there when comments are removed.
type cascade struct {
	userID  any
	postIDs []any
}

// planCascade is the snapshot step: it records the ids of the user's posts.
func (rt *Router) planCascade(ctx context.Context, userID any) (cascade, error) {
	posts, err := rt.store.Collection(db.Posts).Find(ctx, db.Eq(model.FieldUserID, userID))
	if err != nil {
		return cascade{}, apperr.Wrap(apperr.KindInternal, err, "snapshot posts")
	}
	ids := make([]any, 0, len(posts))
	for _, p := range posts {
		if id, ok := p[model.FieldID]; ok {
			ids = append(ids, id)
		}
	}
	return cascade{userID: userID, postIDs: ids}, nil
}

// apply deletes the user, then its posts, then the comments of the
// snapshotted posts. Each delete commits on its own; a failure stops the
// sequence and leaves earlier deletes in place.
func (c cascade) apply(ctx context.Context, store db.Gateway) error {
	users, err := store.Collection(db.Users).DeleteOne(ctx, db.Eq(model.FieldID, c.userID))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "delete user")
	}
	posts, err := store.Collection(db.Posts).DeleteMany(ctx, db.Eq(model.FieldUserID, c.userID))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "delete posts")
	}
	comments, err := store.Collection(db.Comments).DeleteMany(ctx, db.In(model.FieldPostID, c.postIDs))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "delete comments")
	}
	log.Printf("cascade delete user=%v users=%d posts=%d comments=%d", c.userID, users, posts, comments)
	return nil
}
