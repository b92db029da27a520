package lib

import (
	"strings"
	"time"
)

func VerifyDelimiter(name, existingDelimiter, expectedDelimiter string) string {
	if existingDelimiter == expectedDelimiter || existingDelimiter == "" || expectedDelimiter == "" {
		return name
	}
	name = strings.ReplaceAll(name, expectedDelimiter, "\\"+expectedDelimiter)
	// TODO: verify we're not replacing \existingDelimiter (escaped delimiter)
	name = strings.ReplaceAll(name, existingDelimiter, expectedDelimiter)
	return name
}

// SafePadding removes a day from the date, to be safe around timezones when
// asking a server to filter by date.
func SafePadding(since time.Time) time.Time {
	if since.IsZero() {
		return since
	}
	return since.AddDate(0, 0, -1)
}
