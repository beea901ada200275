package router

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"

	"userposts/internal/apperr"
	"userposts/internal/db"
	"userposts/internal/model"
)

const maxBodyBytes = 1 << 20

func (rt *Router) load(w http.ResponseWriter, r *http.Request) error {
	if _, err := rt.seeder.Load(r.Context()); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Data loaded successfully"})
	return nil
}

func (rt *Router) listUsers(w http.ResponseWriter, r *http.Request) error {
	users, err := rt.store.Collection(db.Users).Find(r.Context(), db.All())
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "list users")
	}
	writeJSON(w, http.StatusOK, users)
	return nil
}

// getUser returns the user with its posts embedded, each post carrying its
// comments.
func (rt *Router) getUser(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := coerceID(userIDSegment(r.URL.EscapedPath()))
	if math.IsNaN(id) {
		return apperr.Validation("Invalid user ID")
	}
	user, err := rt.findUser(ctx, id)
	if err != nil {
		return err
	}

	posts, err := rt.store.Collection(db.Posts).Find(ctx, db.Eq(model.FieldUserID, idValue(id)))
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "find posts")
	}
	comments := rt.store.Collection(db.Comments)
	for i, post := range posts {
		related, err := comments.Find(ctx, db.Eq(model.FieldPostID, post[model.FieldID]))
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "find comments")
		}
		post = post.Clone()
		post["comments"] = related
		posts[i] = post
	}
	user = user.Clone()
	user["posts"] = posts

	writeJSON(w, http.StatusOK, user)
	return nil
}

// createUser inserts the request body as a new user. Only id and name are
// checked; every other field is stored as given.
func (rt *Router) createUser(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	doc, err := decodeBody(w, r)
	if err != nil {
		return err
	}
	if !model.Truthy(doc[model.FieldID]) || !model.Truthy(doc[model.FieldName]) {
		return apperr.Validation("Missing required fields (id, name)")
	}

	users := rt.store.Collection(db.Users)
	_, err = users.FindOne(ctx, db.Eq(model.FieldID, doc[model.FieldID]))
	switch {
	case err == nil:
		return apperr.Validation("User already exists")
	case !errors.Is(err, db.ErrNotFound):
		return apperr.Wrap(apperr.KindInternal, err, "find user")
	}
	if err := users.InsertOne(ctx, doc); err != nil {
		return apperr.Wrap(apperr.KindInternal, err, "create user")
	}
	writeJSON(w, http.StatusCreated, doc)
	return nil
}

// deleteAll empties every collection without any filter.
func (rt *Router) deleteAll(w http.ResponseWriter, r *http.Request) error {
	for _, name := range db.Collections {
		if _, err := rt.store.Collection(name).DeleteMany(r.Context(), db.All()); err != nil {
			return apperr.Wrap(apperr.KindInternal, err, "clear %s", name)
		}
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "All users and data deleted"})
	return nil
}

// deleteUser removes a user with its posts and their comments. Unlike
// getUser it does not reject non-numeric ids; those simply match no user.
func (rt *Router) deleteUser(w http.ResponseWriter, r *http.Request) error {
	ctx := r.Context()
	id := coerceID(userIDSegment(r.URL.EscapedPath()))
	if _, err := rt.findUser(ctx, id); err != nil {
		return err
	}
	plan, err := rt.planCascade(ctx, idValue(id))
	if err != nil {
		return err
	}
	if err := plan.apply(ctx, rt.store); err != nil {
		return err
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "User and related data deleted"})
	return nil
}

func (rt *Router) findUser(ctx context.Context, id float64) (model.Document, error) {
	if !matchable(id) {
		return nil, apperr.NotFound("User not found")
	}
	user, err := rt.store.Collection(db.Users).FindOne(ctx, db.Eq(model.FieldID, idValue(id)))
	if errors.Is(err, db.ErrNotFound) {
		return nil, apperr.NotFound("User not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "find user")
	}
	return user, nil
}

// decodeBody parses the request body as a single JSON value. Unparseable
// input and a null body are internal failures; any other valid non-object
// yields an empty document.
func decodeBody(w http.ResponseWriter, r *http.Request) (model.Document, error) {
	raw, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, apperr.TooLarge(fmt.Sprintf("Request body exceeds %d bytes", tooLarge.Limit))
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "read body")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, err, "Invalid JSON")
	}
	if _, err := dec.Token(); err != io.EOF {
		return nil, apperr.Internal("Invalid JSON: unexpected data after top-level value")
	}
	if v == nil {
		return nil, apperr.Internal("Invalid request body: null has no fields")
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return model.Document{}, nil
	}
	return model.Normalize(model.Document(obj)), nil
}
