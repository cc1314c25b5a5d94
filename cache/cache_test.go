package cache

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKey(t *testing.T) {
	a := Key("app:pnl:cache", "2024-01-01", "2024-01-31", "")
	b := Key("app:pnl:cache", "2024-01-01", "2024-01-31", "")
	c := Key("app:pnl:cache", "2024-01-01", "2024-01-31", "12")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasPrefix(a, "app:pnl:cache:"))
	assert.Len(t, strings.TrimPrefix(a, "app:pnl:cache:"), 32)
}

func TestNoop(t *testing.T) {
	ctx := context.Background()
	c := Noop()
	require.NoError(t, c.Set(ctx, "k", []byte("v"), time.Minute))

	_, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)

	var out map[string]int
	ok, err = GetJSON(ctx, c, "k", &out)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.NoError(t, c.Close())
}

// memory is a map backed Cache for tests.
type memory map[string][]byte

func (m memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	v, ok := m[key]
	return v, ok, nil
}

func (m memory) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m[key] = value
	return nil
}

func (m memory) Close() error { return nil }

func TestJSONRoundTrip(t *testing.T) {
	ctx := context.Background()
	m := memory{}

	type payload struct {
		Rows []int `json:"rows"`
	}
	require.NoError(t, SetJSON(ctx, m, "k", payload{Rows: []int{1, 2}}, time.Minute))
	assert.Equal(t, `{"rows":[1,2]}`, string(m["k"]))

	var out payload
	ok, err := GetJSON(ctx, m, "k", &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []int{1, 2}, out.Rows)

	m["bad"] = []byte("{")
	ok, err = GetJSON(ctx, m, "bad", &out)
	assert.Error(t, err)
	assert.False(t, ok)
}
