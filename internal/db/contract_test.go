package db

import (
	"context"
	"errors"
	"testing"

	"userposts/internal/model"
)

// runGatewayContract exercises the behavior every backend must share.
// The gateway's collections are emptied first.
func runGatewayContract(t *testing.T, gw Gateway) {
	t.Helper()
	ctx := context.Background()

	for _, name := range Collections {
		if _, err := gw.Collection(name).DeleteMany(ctx, All()); err != nil {
			t.Fatalf("reset %s: %v", name, err)
		}
	}

	posts := gw.Collection(Posts)
	seed := []model.Document{
		model.Post{ID: 1, UserID: 10, Title: "a", Body: "x"}.Document(),
		model.Post{ID: 2, UserID: 10, Title: "b", Body: "y"}.Document(),
		model.Post{ID: 3, UserID: 11, Title: "c", Body: "z"}.Document(),
	}
	if err := posts.InsertMany(ctx, seed); err != nil {
		t.Fatalf("insert many: %v", err)
	}
	if err := posts.InsertMany(ctx, nil); err != nil {
		t.Fatalf("insert many empty: %v", err)
	}

	t.Run("find all in insertion order", func(t *testing.T) {
		docs, err := posts.Find(ctx, All())
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(docs) != 3 {
			t.Fatalf("len = %d, want 3", len(docs))
		}
		for i, d := range docs {
			id, ok := d.Int(model.FieldID)
			if !ok || id != int64(i+1) {
				t.Fatalf("docs[%d].id = %#v, want %d", i, d[model.FieldID], i+1)
			}
			if _, ok := d["_id"]; ok {
				t.Fatalf("docs[%d] exposes _id", i)
			}
		}
	})

	t.Run("find by equality", func(t *testing.T) {
		docs, err := posts.Find(ctx, Eq(model.FieldUserID, int64(10)))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("len = %d, want 2", len(docs))
		}
	})

	t.Run("find by membership", func(t *testing.T) {
		docs, err := posts.Find(ctx, In(model.FieldID, []any{int64(1), int64(3), int64(99)}))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(docs) != 2 {
			t.Fatalf("len = %d, want 2", len(docs))
		}
	})

	t.Run("empty membership matches nothing", func(t *testing.T) {
		docs, err := posts.Find(ctx, In(model.FieldID, nil))
		if err != nil {
			t.Fatalf("find: %v", err)
		}
		if len(docs) != 0 {
			t.Fatalf("len = %d, want 0", len(docs))
		}
		n, err := posts.DeleteMany(ctx, In(model.FieldID, []any{}))
		if err != nil || n != 0 {
			t.Fatalf("delete many empty = (%d, %v), want (0, nil)", n, err)
		}
	})

	t.Run("find one", func(t *testing.T) {
		doc, err := posts.FindOne(ctx, Eq(model.FieldID, int64(2)))
		if err != nil {
			t.Fatalf("find one: %v", err)
		}
		if doc["title"] != "b" {
			t.Fatalf("title = %#v, want %q", doc["title"], "b")
		}
		if _, err := posts.FindOne(ctx, Eq(model.FieldID, int64(42))); !errors.Is(err, ErrNotFound) {
			t.Fatalf("missing find one err = %v, want ErrNotFound", err)
		}
	})

	t.Run("schemaless insert one round trips", func(t *testing.T) {
		users := gw.Collection(Users)
		in := model.Document{
			"id":      int64(5),
			"name":    "Ann",
			"address": map[string]any{"city": "Gwenborough", "zip": int64(92998)},
		}
		if err := users.InsertOne(ctx, in); err != nil {
			t.Fatalf("insert one: %v", err)
		}
		if _, ok := in["_id"]; ok {
			t.Fatal("insert one mutated the caller's document")
		}
		got, err := users.FindOne(ctx, Eq(model.FieldID, int64(5)))
		if err != nil {
			t.Fatalf("find one: %v", err)
		}
		addr, ok := got["address"].(map[string]any)
		if !ok {
			t.Fatalf("address = %#v, want object", got["address"])
		}
		if zip, _ := model.AsInt(addr["zip"]); zip != 92998 {
			t.Fatalf("address.zip = %#v, want 92998", addr["zip"])
		}
	})

	t.Run("string ids do not match numbers", func(t *testing.T) {
		if _, err := posts.FindOne(ctx, Eq(model.FieldID, "1")); !errors.Is(err, ErrNotFound) {
			t.Fatalf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("equality is exact across JSON types", func(t *testing.T) {
		mixed := gw.Collection(Comments)
		docs := []model.Document{
			{"id": int64(1)},
			{"id": true},
			{"id": map[string]any{"a": int64(1), "b": int64(2)}},
			{"id": []any{int64(3), int64(4)}},
		}
		if err := mixed.InsertMany(ctx, docs); err != nil {
			t.Fatalf("insert many: %v", err)
		}
		cases := []struct {
			name   string
			filter Filter
			want   int
		}{
			{name: "number", filter: Eq(model.FieldID, int64(1)), want: 1},
			{name: "true", filter: Eq(model.FieldID, true), want: 1},
			{name: "true in set", filter: In(model.FieldID, []any{true}), want: 1},
			{name: "false", filter: Eq(model.FieldID, false), want: 0},
			{name: "partial object", filter: Eq(model.FieldID, map[string]any{"a": int64(1)}), want: 0},
			{name: "partial array", filter: Eq(model.FieldID, []any{int64(3)}), want: 0},
		}
		for _, tc := range cases {
			got, err := mixed.Find(ctx, tc.filter)
			if err != nil {
				t.Fatalf("%s: find: %v", tc.name, err)
			}
			if len(got) != tc.want {
				t.Fatalf("%s: matches = %d, want %d (%v)", tc.name, len(got), tc.want, got)
			}
		}
		if got, _ := mixed.Find(ctx, Eq(model.FieldID, true)); len(got) == 1 && got[0][model.FieldID] != true {
			t.Fatalf("true matched %#v", got[0][model.FieldID])
		}
	})

	t.Run("delete one removes a single match", func(t *testing.T) {
		n, err := posts.DeleteOne(ctx, Eq(model.FieldUserID, int64(10)))
		if err != nil || n != 1 {
			t.Fatalf("delete one = (%d, %v), want (1, nil)", n, err)
		}
		left, err := posts.Find(ctx, Eq(model.FieldUserID, int64(10)))
		if err != nil || len(left) != 1 {
			t.Fatalf("remaining = (%d, %v), want (1, nil)", len(left), err)
		}
	})

	t.Run("delete many", func(t *testing.T) {
		n, err := posts.DeleteMany(ctx, All())
		if err != nil || n != 2 {
			t.Fatalf("delete many = (%d, %v), want (2, nil)", n, err)
		}
		left, err := posts.Find(ctx, All())
		if err != nil || len(left) != 0 {
			t.Fatalf("remaining = (%d, %v), want (0, nil)", len(left), err)
		}
	})
}
