package livequery

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndex_RegisterAndLookup(t *testing.T) {
	ix := newIndex()
	r1 := &Record{id: "r1"}
	r2 := &Record{id: "r2"}

	ix.register(r1, []string{"User:u1", "User.name"})
	ix.register(r2, []string{"User:u1"})

	got := ix.lookup("User:u1")
	require.Len(t, got, 2)
	require.Contains(t, got, r1)
	require.Contains(t, got, r2)

	got = ix.lookup("User.name")
	require.Equal(t, []*Record{r1}, got)

	require.Equal(t, 2, ix.size())
}

func TestIndex_RegisterSupersedesPriorAssociation(t *testing.T) {
	ix := newIndex()
	r := &Record{id: "r1"}

	ix.register(r, []string{"User:u1", "User.name"})
	ix.register(r, []string{"User:u1"})

	require.Nil(t, ix.lookup("User.name"))
	require.Equal(t, []*Record{r}, ix.lookup("User:u1"))
}

func TestIndex_ClearRemovesAllAssociations(t *testing.T) {
	ix := newIndex()
	r := &Record{id: "r1"}
	ix.register(r, []string{"User:u1", "User.name"})

	ix.clear(r)

	require.Nil(t, ix.lookup("User:u1"))
	require.Nil(t, ix.lookup("User.name"))
	require.Equal(t, 0, ix.size())
}

func TestIndex_LookupUnknownIdentifierReturnsNil(t *testing.T) {
	ix := newIndex()
	require.Nil(t, ix.lookup("nothing"))
}
