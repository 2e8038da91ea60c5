package utils

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var timeRx = regexp.MustCompile(`^\d{1,2}:\d{2}$`)

// ParseHM parses a 24h "HH:MM" string.
func ParseHM(s string) (hour, minute int, err error) {
	s = strings.TrimSpace(s)
	if !timeRx.MatchString(s) {
		return 0, 0, fmt.Errorf("expected HH:MM, got %q", s)
	}
	parts := strings.Split(s, ":")
	hour, _ = strconv.Atoi(parts[0])
	minute, _ = strconv.Atoi(parts[1])
	if hour > 23 || minute > 59 {
		return 0, 0, fmt.Errorf("time out of range: %q", s)
	}
	return hour, minute, nil
}

func FormatHM(hour, minute int) string {
	return fmt.Sprintf("%02d:%02d", hour, minute)
}
