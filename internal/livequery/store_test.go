package livequery

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/liveql/liveql/internal/executor"
	"github.com/liveql/liveql/internal/schema"
)

func TestStore_NonLiveOperationPassesThroughWithoutASequence(t *testing.T) {
	sch := newTestSchema()
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.user": executor.NewMockValueResolver(map[string]any{"id": "u1", "name": "Ann"}),
		"User.id":    executor.NewMockValueResolver("u1"),
		"User.name":  executor.NewMockValueResolver("Ann"),
	})
	store := NewStore(StoreOptions{})
	doc := mustParseQueryLQ(t, `{ user(id: "u1") { id name } }`)

	result, seq, err := store.Execute(context.Background(), ExecuteOptions{Runtime: rt, Schema: sch, Document: doc})

	require.NoError(t, err)
	require.Nil(t, seq)
	require.Equal(t, map[string]any{"user": map[string]any{"id": "u1", "name": "Ann"}}, result.Data)
	require.Equal(t, 0, store.ix.size(), "a non-live operation must never register resource identifiers")
}

func TestStore_IncludeIdentifierExtensionAttachesSortedIdentifiers(t *testing.T) {
	sch := newTestSchema()
	calls := 0
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.user": func(ctx context.Context, src any, args map[string]any) (any, error) {
			calls++
			return map[string]any{"id": "u1", "name": "Ann"}, nil
		},
		"User.id":   executor.NewMockValueResolver("u1"),
		"User.name": executor.NewMockValueResolver("Ann"),
	})
	store := NewStore(StoreOptions{IncludeIdentifierExtension: true})
	doc := mustParseQueryLQ(t, `query @live { user(id: "u1") { id name } }`)

	_, seq, err := store.Execute(context.Background(), ExecuteOptions{Runtime: rt, Schema: sch, Document: doc})
	require.NoError(t, err)
	defer seq.Stop()

	initial := pullWithTimeout(t, seq) // drain the result Execute already pushed
	require.True(t, initial.IsLive)

	<-store.Invalidate(context.Background(), "User:u1")
	live := pullWithTimeout(t, seq)

	ext, ok := live.Extensions["liveResourceIdentifier"].([]string)
	require.True(t, ok)
	require.Contains(t, ext, "User:u1")
	require.Contains(t, ext, "User.name")

	sorted := append([]string(nil), ext...)
	for i := 1; i < len(sorted); i++ {
		require.LessOrEqual(t, sorted[i-1], sorted[i])
	}
}

func TestStore_InvalidateWaitsForScheduledReruns(t *testing.T) {
	sch := newTestSchema()
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.user": executor.NewMockValueResolver(map[string]any{"id": "u1", "name": "Ann"}),
		"User.id":    executor.NewMockValueResolver("u1"),
		"User.name":  executor.NewMockValueResolver("Ann"),
	})
	store := NewStore(StoreOptions{})
	doc := mustParseQueryLQ(t, `query @live { user(id: "u1") { id name } }`)
	_, seq, err := store.Execute(context.Background(), ExecuteOptions{Runtime: rt, Schema: sch, Document: doc})
	require.NoError(t, err)
	defer seq.Stop()

	initial := pullWithTimeout(t, seq) // drain the result Execute already pushed
	require.True(t, initial.IsLive)

	<-store.Invalidate(context.Background(), "User:u1")

	live := pullWithTimeout(t, seq)
	require.True(t, live.IsLive)
	require.Empty(t, live.Extensions)
}

func TestStore_ContextCancellationDisposesRecord(t *testing.T) {
	sch := newTestSchema()
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.user": executor.NewMockValueResolver(map[string]any{"id": "u1"}),
		"User.id":    executor.NewMockValueResolver("u1"),
	})
	store := NewStore(StoreOptions{})
	doc := mustParseQueryLQ(t, `query @live { user(id: "u1") { id } }`)

	ctx, cancel := context.WithCancel(context.Background())
	_, seq, err := store.Execute(ctx, ExecuteOptions{Runtime: rt, Schema: sch, Document: doc, ContextValue: ctx})
	require.NoError(t, err)

	initial := pullWithTimeout(t, seq) // drain the result Execute already pushed
	require.True(t, initial.IsLive)

	cancel()
	_, ok := seq.Next(context.Background())
	require.False(t, ok, "canceling the caller's context must terminate the sequence")
}

// newWidgetSchema builds a Query.widget: Widget schema whose object identifier
// is named "uuid" rather than "id", for exercising StoreOptions.IDFieldName.
func newWidgetSchema() *schema.Schema {
	widgetType := schema.NewType("Widget", schema.TypeKindObject, "").
		AddField(schema.NewField("uuid", "", schema.NonNullType(schema.NamedType("ID")))).
		AddField(schema.NewField("label", "", schema.NamedType("String")))

	queryType := schema.NewType("Query", schema.TypeKindObject, "").
		AddField(schema.NewField("widget", "", schema.NamedType("Widget")))

	return schema.NewSchema("").
		SetQueryType("Query").
		AddType(queryType).
		AddType(widgetType).
		AddType(schema.NewType("ID", schema.TypeKindScalar, "")).
		AddType(schema.NewType("String", schema.TypeKindScalar, ""))
}

func TestStore_CustomIDFieldNameDrivesObjectIdentifierRule(t *testing.T) {
	sch := newWidgetSchema()
	rt := executor.NewMockRuntime(map[string]executor.MockResolver{
		"Query.widget": executor.NewMockValueResolver(map[string]any{"uuid": "w1", "label": "Gadget"}),
		"Widget.uuid":  executor.NewMockValueResolver("w1"),
		"Widget.label": executor.NewMockValueResolver("Gadget"),
	})
	store := NewStore(StoreOptions{IDFieldName: "uuid"})
	doc := mustParseQueryLQ(t, `query @live { widget { uuid label } }`)

	_, seq, err := store.Execute(context.Background(), ExecuteOptions{Runtime: rt, Schema: sch, Document: doc})
	require.NoError(t, err)
	defer seq.Stop()

	initial := pullWithTimeout(t, seq)
	require.True(t, initial.IsLive)
	require.Contains(t, store.ix.lookup("Widget:w1"), seq.record,
		"the object-identifier rule must fire on the configured field name, not the default \"id\"")

	<-store.Invalidate(context.Background(), "Widget:w1")
	rerun := pullWithTimeout(t, seq)
	require.True(t, rerun.IsLive)
}
