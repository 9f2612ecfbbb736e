package livequery

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liveql/liveql/internal/language"
)

func TestExtractIdentifiers_FieldAndObjectCoordinates(t *testing.T) {
	sch := newTestSchema()
	data := map[string]any{
		"user": map[string]any{
			"id":   "u1",
			"name": "Ann",
			"posts": []any{
				map[string]any{"id": "p1", "title": "T1"},
				map[string]any{"id": "p2", "title": "T2"},
			},
		},
	}

	doc := mustParseQueryLQ(t, `{ user(id: "u1") { id name posts { id title } } }`)
	operation := language.SelectOperation(doc, "")
	require.NotNil(t, operation)

	got := extractIdentifiers(extractOptions{schema: sch, document: doc}, operation, sch.GetQueryType(), data)

	want := []string{
		"Query.user",
		`Query.user(id:"u1")`,
		"User.id", "User.name", "User.posts", "User:u1",
		"Post.id", "Post.title", "Post:p1", "Post:p2",
	}
	for _, id := range want {
		require.Contains(t, got, id, "missing identifier %q", id)
	}
	require.Len(t, got, len(want))
}

func TestExtractIdentifiers_SkipDirectiveExcludesField(t *testing.T) {
	sch := newTestSchema()
	data := map[string]any{"user": map[string]any{"id": "u1", "name": "Ann"}}

	doc := mustParseQueryLQ(t, `{ user(id: "u1") { id name @skip(if: true) } }`)
	operation := language.SelectOperation(doc, "")
	got := extractIdentifiers(extractOptions{schema: sch, document: doc}, operation, sch.GetQueryType(), data)

	require.NotContains(t, got, "User.name")
	require.Contains(t, got, "User.id")
}

func TestExtractIdentifiers_NoArgumentsOmitsArgumentCoordinate(t *testing.T) {
	sch := newTestSchema()
	data := map[string]any{"user": map[string]any{"id": "u1"}}

	doc := mustParseQueryLQ(t, `{ user { id } }`)
	operation := language.SelectOperation(doc, "")
	got := extractIdentifiers(extractOptions{schema: sch, document: doc}, operation, sch.GetQueryType(), data)

	for id := range got {
		require.NotContains(t, id, "(")
	}
}

func TestExtractIdentifiers_FieldExtensionContributesExtraIdentifiers(t *testing.T) {
	sch := newTestSchema()
	sch.Types["User"].Fields[2].SetExtension(FieldExtensionKey, CollectResourceIdentifiers(
		func(rootValue any, args map[string]any) any { return "Feed.posts" },
	))

	data := map[string]any{"user": map[string]any{"id": "u1", "posts": []any{}}}
	doc := mustParseQueryLQ(t, `{ user(id: "u1") { id posts { id } } }`)
	operation := language.SelectOperation(doc, "")
	got := extractIdentifiers(extractOptions{schema: sch, document: doc}, operation, sch.GetQueryType(), data)

	require.Contains(t, got, "Feed.posts")
}

func TestExtractIdentifiers_NilChildSkipsDescent(t *testing.T) {
	sch := newTestSchema()
	data := map[string]any{"user": nil}
	doc := mustParseQueryLQ(t, `{ user(id: "u1") { id } }`)
	operation := language.SelectOperation(doc, "")
	got := extractIdentifiers(extractOptions{schema: sch, document: doc}, operation, sch.GetQueryType(), data)

	require.Contains(t, got, "Query.user")
	require.NotContains(t, got, "User.id")
}

func TestCanonicalJSON_SortsObjectKeys(t *testing.T) {
	got := CanonicalJSON(map[string]any{"b": 1, "a": 2})
	require.Equal(t, `{"a":2,"b":1}`, got)
}

func TestCoerceIdentifierReturn(t *testing.T) {
	require.Equal(t, []string{"x"}, coerceIdentifierReturn("x"))
	require.Nil(t, coerceIdentifierReturn(""))
	require.Equal(t, []string{"x", "y"}, coerceIdentifierReturn([]string{"x", "", "y"}))
	require.Equal(t, []string{"x", "y"}, coerceIdentifierReturn([]any{"x", []string{"y"}}))
	require.Nil(t, coerceIdentifierReturn(nil))
}
