package livequery

import (
	"testing"

	"github.com/liveql/liveql/internal/language"
	"github.com/liveql/liveql/internal/schema"
)

// newTestSchema builds a small User/Post schema shared by this package's
// tests: Query.user(id: ID): User, User { id name posts: [Post] }, Post { id title }.
func newTestSchema() *schema.Schema {
	postType := schema.NewType("Post", schema.TypeKindObject, "").
		AddField(schema.NewField("id", "", schema.NonNullType(schema.NamedType("ID")))).
		AddField(schema.NewField("title", "", schema.NamedType("String")))

	userType := schema.NewType("User", schema.TypeKindObject, "").
		AddField(schema.NewField("id", "", schema.NonNullType(schema.NamedType("ID")))).
		AddField(schema.NewField("name", "", schema.NamedType("String"))).
		AddField(schema.NewField("posts", "", schema.ListType(schema.NamedType("Post"))))

	queryType := schema.NewType("Query", schema.TypeKindObject, "").
		AddField(schema.NewField("user", "", schema.NamedType("User")).
			AddArgument(schema.NewInputValue("id", "", schema.NamedType("ID"))))

	return schema.NewSchema("").
		SetQueryType("Query").
		AddType(queryType).
		AddType(userType).
		AddType(postType).
		AddType(schema.NewType("ID", schema.TypeKindScalar, "")).
		AddType(schema.NewType("String", schema.TypeKindScalar, ""))
}

func mustParseQueryLQ(t *testing.T, q string) *language.QueryDocument {
	t.Helper()
	d, err := language.ParseQuery(q)
	if err != nil {
		t.Fatalf("parse error: %v", err)
	}
	return d
}
