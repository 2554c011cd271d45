package permalink

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)

func TestGenerateAndParse(t *testing.T) {
	link, data, err := Generate("https://example.com/cake/", "  Ada  ", " Happy birthday & more ", 0, now)
	require.NoError(t, err)

	assert.Equal(t, "Ada", data.Name)
	assert.Equal(t, "Happy birthday & more", data.Message)
	assert.Equal(t, now.Add(24*time.Hour).UnixMilli(), data.Expires.UnixMilli())
	_, err = uuid.Parse(data.ID)
	assert.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.Equal(t, "/cake/", u.Path)
	assert.Equal(t, "1773576000000", u.Query().Get("expires"))

	parsed, err := Parse(link)
	require.NoError(t, err)
	assert.Equal(t, data.Name, parsed.Name)
	assert.Equal(t, data.Message, parsed.Message)
	assert.Equal(t, data.ID, parsed.ID)
	assert.True(t, data.Expires.Equal(parsed.Expires))
}

func TestGenerateOmitsEmptyMessage(t *testing.T) {
	link, _, err := Generate("https://example.com/", "Bo", "   ", time.Hour, now)
	require.NoError(t, err)

	u, err := url.Parse(link)
	require.NoError(t, err)
	assert.False(t, u.Query().Has("message"))
}

func TestGenerateUniqueIDs(t *testing.T) {
	_, a, err := Generate("https://example.com/", "Bo", "", time.Hour, now)
	require.NoError(t, err)
	_, b, err := Generate("https://example.com/", "Bo", "", time.Hour, now)
	require.NoError(t, err)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestGenerateRejectsEmptyName(t *testing.T) {
	_, _, err := Generate("https://example.com/", " \t", "hi", time.Hour, now)
	assert.ErrorIs(t, err, ErrEmptyName)
}

func TestParseErrors(t *testing.T) {
	_, err := Parse("https://example.com/?name=Ada&id=1")
	assert.ErrorIs(t, err, ErrMissingParams)

	_, err = Parse("https://example.com/")
	assert.ErrorIs(t, err, ErrMissingParams)

	_, err = Parse("https://example.com/?name=Ada&id=1&expires=soon")
	assert.ErrorContains(t, err, "invalid expires")
}

func TestExpiry(t *testing.T) {
	d := &Data{Expires: now.Add(90 * time.Minute)}

	assert.False(t, d.IsExpired(now))
	assert.False(t, d.IsExpired(d.Expires), "expiry instant itself is still valid")
	assert.True(t, d.IsExpired(d.Expires.Add(time.Millisecond)))

	assert.NoError(t, d.Validate(now))
	assert.ErrorIs(t, d.Validate(now.Add(2*time.Hour)), ErrExpired)

	assert.Equal(t, 90*time.Minute, d.TimeRemaining(now))
	assert.Zero(t, d.TimeRemaining(now.Add(2*time.Hour)))
}

func TestFormatTimeRemaining(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "Expired"},
		{-time.Minute, "Expired"},
		{30 * time.Second, "0m remaining"},
		{45 * time.Minute, "45m remaining"},
		{23*time.Hour + 59*time.Minute + 59*time.Second, "23h 59m remaining"},
		{2 * time.Hour, "2h 0m remaining"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTimeRemaining(tt.in), tt.in.String())
	}
}
