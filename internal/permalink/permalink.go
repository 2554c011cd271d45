package permalink

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// DefaultTTL is how long a shared cake stays blowable.
const DefaultTTL = 24 * time.Hour

var (
	ErrEmptyName     = errors.New("name must not be empty")
	ErrMissingParams = errors.New("link is missing name, id or expires")
	ErrExpired       = errors.New("link has expired")
)

// Data is what a shared link carries.
type Data struct {
	Name    string
	Message string
	ID      string
	Expires time.Time
}

// Generate builds a shareable link for name. The link expires ttl after now;
// a non-positive ttl means DefaultTTL.
func Generate(baseURL, name, message string, ttl time.Duration, now time.Time) (string, *Data, error) {
	name = strings.TrimSpace(name)
	message = strings.TrimSpace(message)
	if name == "" {
		return "", nil, ErrEmptyName
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	u, err := url.Parse(baseURL)
	if err != nil {
		return "", nil, fmt.Errorf("invalid base URL: %w", err)
	}

	data := &Data{
		Name:    name,
		Message: message,
		ID:      uuid.NewString(),
		Expires: time.UnixMilli(now.Add(ttl).UnixMilli()),
	}

	q := url.Values{}
	q.Set("name", data.Name)
	q.Set("id", data.ID)
	q.Set("expires", strconv.FormatInt(data.Expires.UnixMilli(), 10))
	if data.Message != "" {
		q.Set("message", data.Message)
	}
	u.RawQuery = q.Encode()
	u.Fragment = ""

	return u.String(), data, nil
}

// Parse reads the cake parameters back out of a shared link.
func Parse(rawURL string) (*Data, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid link: %w", err)
	}

	q := u.Query()
	name, id, expires := q.Get("name"), q.Get("id"), q.Get("expires")
	if name == "" || id == "" || expires == "" {
		return nil, ErrMissingParams
	}

	ms, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid expires value %q: %w", expires, err)
	}

	return &Data{
		Name:    name,
		Message: q.Get("message"),
		ID:      id,
		Expires: time.UnixMilli(ms),
	}, nil
}

// IsExpired reports whether now is past the expiry instant.
func (d *Data) IsExpired(now time.Time) bool {
	return now.After(d.Expires)
}

// Validate returns ErrExpired once the link is past its expiry.
func (d *Data) Validate(now time.Time) error {
	if d.IsExpired(now) {
		return fmt.Errorf("%w on %s", ErrExpired, d.Expires.Format(time.RFC1123))
	}
	return nil
}

func (d *Data) TimeRemaining(now time.Time) time.Duration {
	return max(0, d.Expires.Sub(now))
}

// FormatTimeRemaining renders d as "Xh Ym remaining", "Ym remaining" or
// "Expired".
func FormatTimeRemaining(d time.Duration) string {
	if d <= 0 {
		return "Expired"
	}
	hours := int(d / time.Hour)
	minutes := int((d % time.Hour) / time.Minute)
	if hours > 0 {
		return fmt.Sprintf("%dh %dm remaining", hours, minutes)
	}
	return fmt.Sprintf("%dm remaining", minutes)
}
