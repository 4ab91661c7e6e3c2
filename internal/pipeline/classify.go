package pipeline

import (
	"fmt"
	"path"
	"regexp"
	"strings"
	"time"
)

// classifyByFilenamePrefix resolves a MeetingType from a bucket-notification
// filename per spec §3: "weekly__" -> weekly, "tech__" -> tech, else general.
func classifyByFilenamePrefix(filename string) MeetingType {
	switch {
	case strings.HasPrefix(filename, "weekly__"):
		return MeetingWeekly
	case strings.HasPrefix(filename, "tech__"):
		return MeetingTech
	default:
		return MeetingGeneral
	}
}

func baseName(key string) string {
	return path.Base(key)
}

func formatEpochMillis(t time.Time) string {
	return fmt.Sprintf("%d", t.UnixMilli())
}

// ResolveMeetingType implements the precedence from spec §4.2 step 7 /
// §4.3 step 2: a non-empty, non-"general" value on the message wins; else
// the value from the already-loaded record; else "general".
func ResolveMeetingType(fromMessage MeetingType, fromRecord MeetingType) MeetingType {
	if fromMessage != "" && fromMessage != MeetingGeneral {
		return fromMessage
	}
	if fromRecord != "" {
		return fromRecord
	}
	return MeetingGeneral
}

var emailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// ValidEmail reports whether an address passes the simple regex contract
// the upload collaborator uses to filter recipientEmails (spec §6).
func ValidEmail(addr string) bool {
	return emailPattern.MatchString(strings.TrimSpace(addr))
}

// FilterValidEmails keeps only the addresses that pass ValidEmail.
func FilterValidEmails(addrs []string) []string {
	out := make([]string, 0, len(addrs))
	for _, a := range addrs {
		a = strings.TrimSpace(a)
		if ValidEmail(a) {
			out = append(out, a)
		}
	}
	return out
}
