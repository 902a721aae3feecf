// Package hours stores the opening hours shown on the kiosk banner. The
// value lives in the generic settings store so every terminal sees the same
// schedule without a config rollout.
package hours

import (
	"context"
	"fmt"
	"strings"
	"time"
)

const settingKey = "business_hours"

// Settings is the key/value surface backing the stored hours.
type Settings interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string) error
}

// Get returns the stored opening hours, or "" when none are set.
func Get(ctx context.Context, s Settings) (string, error) {
	v, _, err := s.Get(ctx, settingKey)
	if err != nil {
		return "", fmt.Errorf("read hours: %w", err)
	}
	return v, nil
}

// Set validates and stores opening hours in "HH:MM-HH:MM" form. An empty
// value clears them.
func Set(ctx context.Context, s Settings, value string) error {
	normalized, err := normalize(value)
	if err != nil {
		return err
	}
	if err := s.Set(ctx, settingKey, normalized); err != nil {
		return fmt.Errorf("store hours: %w", err)
	}
	return nil
}

func normalize(value string) (string, error) {
	if strings.TrimSpace(value) == "" {
		return "", nil
	}
	parts := strings.Split(value, "-")
	if len(parts) != 2 {
		return "", fmt.Errorf("hours %q: want HH:MM-HH:MM", value)
	}
	open, err := time.Parse("15:04", strings.TrimSpace(parts[0]))
	if err != nil {
		return "", fmt.Errorf("hours %q: want HH:MM-HH:MM", value)
	}
	// closing past midnight is fine, so no ordering check
	closing, err := time.Parse("15:04", strings.TrimSpace(parts[1]))
	if err != nil {
		return "", fmt.Errorf("hours %q: want HH:MM-HH:MM", value)
	}
	return open.Format("15:04") + "-" + closing.Format("15:04"), nil
}
