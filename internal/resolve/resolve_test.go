package resolve

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"todochat/internal/domain"
)

func TestResolveSubstringTieBreaksOnNewestID(t *testing.T) {
	tasks := []domain.Task{{ID: 1, Title: "Buy milk"}, {ID: 2, Title: "milk run"}}
	got, err := Resolve("milk", tasks)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ID)
}

func TestResolveExactIsCaseInsensitive(t *testing.T) {
	got, err := Resolve("Milk", []domain.Task{{ID: 3, Title: "milk"}})
	require.NoError(t, err)
	assert.Equal(t, int64(3), got.ID)
}

func TestResolveExactBeatsNewerSubstring(t *testing.T) {
	tasks := []domain.Task{{ID: 1, Title: "Milk"}, {ID: 9, Title: "milk run"}}
	got, err := Resolve("milk", tasks)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.ID)
}

func TestResolveExactDuplicatesPickNewest(t *testing.T) {
	tasks := []domain.Task{{ID: 5, Title: "milk"}, {ID: 2, Title: "MILK"}, {ID: 4, Title: " milk "}}
	got, err := Resolve("milk", tasks)
	require.NoError(t, err)
	assert.Equal(t, int64(5), got.ID)
}

func TestResolveCollapsesWhitespace(t *testing.T) {
	got, err := Resolve("buy   Milk", []domain.Task{{ID: 7, Title: "Buy  milk today"}})
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.ID)
}

func TestResolveByID(t *testing.T) {
	tasks := []domain.Task{{ID: 1, Title: "a"}, {ID: 12, Title: "b"}}
	got, err := Resolve("12", tasks)
	require.NoError(t, err)
	assert.Equal(t, "b", got.Title)

	_, err = Resolve("99", tasks)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveNotFound(t *testing.T) {
	_, err := Resolve("bread", nil)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve("bread", []domain.Task{{ID: 1, Title: "milk"}})
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = Resolve("   ", []domain.Task{{ID: 1, Title: "milk"}})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveIsOrderIndependent(t *testing.T) {
	a := []domain.Task{{ID: 1, Title: "milk a"}, {ID: 3, Title: "milk b"}, {ID: 2, Title: "milk c"}}
	b := []domain.Task{a[2], a[0], a[1]}
	ga, err := Resolve("milk", a)
	require.NoError(t, err)
	gb, err := Resolve("milk", b)
	require.NoError(t, err)
	assert.Equal(t, ga, gb)
	assert.Equal(t, int64(3), ga.ID)
}

func TestSuggest(t *testing.T) {
	tasks := []domain.Task{{ID: 1, Title: "Buy milk"}, {ID: 2, Title: "Walk dog"}}
	got, ok := Suggest("bmilk", tasks)
	require.True(t, ok)
	assert.Equal(t, "Buy milk", got)

	_, ok = Suggest("zzz", tasks)
	assert.False(t, ok)

	_, ok = Suggest("milk", nil)
	assert.False(t, ok)
}
