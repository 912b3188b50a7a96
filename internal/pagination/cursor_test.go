package pagination

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecode(t *testing.T) {
	ts := time.Date(2026, 2, 15, 10, 30, 0, 123, time.UTC)

	c, err := Decode(Encode(ts, "EP0123456789ab"))
	require.NoError(t, err)
	require.NotNil(t, c)
	assert.True(t, ts.Equal(c.CreatedAt))
	assert.Equal(t, "EP0123456789ab", c.ID)
}

func TestDecode(t *testing.T) {
	c, err := Decode("")
	assert.NoError(t, err)
	assert.Nil(t, c, "empty cursor is the first page")

	for _, bad := range []string{
		"not base64!!!",
		base64.RawURLEncoding.EncodeToString([]byte("nopipe")),
		base64.RawURLEncoding.EncodeToString([]byte("abc|EP1")),
		base64.RawURLEncoding.EncodeToString([]byte("123|")),
	} {
		_, err := Decode(bad)
		assert.ErrorIs(t, err, ErrInvalidCursor, bad)
	}
}

func TestCursorAfter(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := &Cursor{CreatedAt: base, ID: "EPm"}

	tests := []struct {
		name string
		at   time.Time
		id   string
		want bool
	}{
		{"older", base.Add(-time.Second), "EPz", true},
		{"newer", base.Add(time.Second), "EPa", false},
		{"tie lower id", base, "EPa", true},
		{"tie same id", base, "EPm", false},
		{"tie higher id", base, "EPz", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, c.After(tt.at, tt.id))
		})
	}

	var first *Cursor
	assert.True(t, first.After(base, "EPa"))
}

func TestPage(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	type item struct {
		at time.Time
		id string
	}
	items := []item{{base.Add(3), "c"}, {base.Add(2), "b"}, {base.Add(1), "a"}}
	key := func(i item) (time.Time, string) { return i.at, i.id }

	page, next := Page(items, 2, key)
	assert.Len(t, page, 2)
	require.NotEmpty(t, next)
	c, err := Decode(next)
	require.NoError(t, err)
	assert.Equal(t, "b", c.ID)

	page, next = Page(items, 3, key)
	assert.Len(t, page, 3)
	assert.Empty(t, next)
}
