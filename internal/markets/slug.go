package markets

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// WindowDuration maps a timeframe label to its settlement window length.
func WindowDuration(timeframe string) (time.Duration, error) {
	switch timeframe {
	case "15m":
		return 15 * time.Minute, nil
	case "1h":
		return time.Hour, nil
	case "4h":
		return 4 * time.Hour, nil
	case "1d":
		return 24 * time.Hour, nil
	default:
		return 0, fmt.Errorf("unsupported timeframe %q", timeframe)
	}
}

// WindowStart aligns at down to the start of its settlement window.
func WindowStart(timeframe string, at time.Time) (time.Time, error) {
	d, err := WindowDuration(timeframe)
	if err != nil {
		return time.Time{}, err
	}

	return at.UTC().Truncate(d), nil
}

// Slug builds the Gamma slug for one settlement window:
// <asset>-updown-<timeframe>-<windowStartUnix>, e.g.
// btc-updown-15m-1733571600.
func Slug(symbol, timeframe string, windowStart time.Time) string {
	return fmt.Sprintf("%s-updown-%s-%d",
		strings.ToLower(symbol), timeframe, windowStart.Unix())
}

// WindowSlugs returns the slugs for the window containing at and the
// one after it.
func WindowSlugs(symbol, timeframe string, at time.Time) (current, next string, err error) {
	start, err := WindowStart(timeframe, at)
	if err != nil {
		return "", "", err
	}
	d, _ := WindowDuration(timeframe)

	return Slug(symbol, timeframe, start), Slug(symbol, timeframe, start.Add(d)), nil
}

// ParseSlug extracts symbol, timeframe and window start from a slug
// produced by Slug.
func ParseSlug(slug string) (symbol, timeframe string, windowStart time.Time, err error) {
	parts := strings.Split(slug, "-")
	if len(parts) != 4 || parts[1] != "updown" {
		return "", "", time.Time{}, fmt.Errorf("malformed slug %q", slug)
	}

	unix, err := strconv.ParseInt(parts[3], 10, 64)
	if err != nil {
		return "", "", time.Time{}, fmt.Errorf("malformed slug timestamp %q: %w", parts[3], err)
	}
	if _, err := WindowDuration(parts[2]); err != nil {
		return "", "", time.Time{}, err
	}

	return strings.ToUpper(parts[0]), parts[2], time.Unix(unix, 0).UTC(), nil
}
