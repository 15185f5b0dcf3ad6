package symbols

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/colorfulnotion/lirx64/x64errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInternReturnsSameHandle(t *testing.T) {
	tab := NewTable()
	a := tab.Intern("memcpy", External)
	b := tab.Intern("memcpy", External)
	assert.Equal(t, a, b)
	assert.NotEqual(t, NoSymbol, a)
	assert.Equal(t, 1, tab.Len())
	assert.True(t, tab.Get(a).IsExternal())

	// a later definition upgrades the linkage
	c := tab.Intern("memcpy", Internal)
	assert.Equal(t, a, c)
	assert.Equal(t, Internal, tab.Get(a).Linkage)
}

func TestDeclareDuplicate(t *testing.T) {
	tab := NewTable()
	id, err := tab.Declare("main", Default)
	require.NoError(t, err)
	assert.Equal(t, "main", tab.Name(id))

	_, err = tab.Declare("main", Internal)
	require.Error(t, err)
	assert.True(t, errors.Is(err, x64errors.ErrDuplicateSymbol))

	// declaring a forward-referenced extern is fine
	ext := tab.Intern("helper", External)
	got, err := tab.Declare("helper", Internal)
	require.NoError(t, err)
	assert.Equal(t, ext, got)
}

func TestLookupAndAll(t *testing.T) {
	tab := NewTable()
	names := []string{"a", "b", "c"}
	for _, n := range names {
		tab.Intern(n, Default)
	}
	_, ok := tab.Lookup("missing")
	assert.False(t, ok)
	id, ok := tab.Lookup("b")
	require.True(t, ok)
	assert.Equal(t, ID(2), id)

	all := tab.All()
	require.Len(t, all, 3)
	for i, s := range all {
		assert.Equal(t, names[i], s.Name)
	}
	assert.Equal(t, Symbol{}, tab.Get(99))
}

func TestConcurrentIntern(t *testing.T) {
	tab := NewTable()
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				tab.Intern(fmt.Sprintf("sym%d", i), Internal)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, tab.Len())
}

func TestParseLinkage(t *testing.T) {
	for _, l := range []Linkage{External, Internal, Default} {
		got, ok := ParseLinkage(l.String())
		require.True(t, ok)
		assert.Equal(t, l, got)
	}
	_, ok := ParseLinkage("weak")
	assert.False(t, ok)
}
