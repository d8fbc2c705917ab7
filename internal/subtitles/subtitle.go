package subtitles

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"mediaprep/internal/faults"
)

// Subtitle is one timed cue. Times are offsets from the start of the media.
type Subtitle struct {
	Start time.Duration
	End   time.Duration
	Text  string
}

var timestampPattern = regexp.MustCompile(`(\d{1,2}):(\d{2}):(\d{2})[.,](\d{1,5})`)

// ParseTimestamp reads H:MM:SS.cc or HH:MM:SS,fff (one to five fractional
// digits, either separator) from value. Surrounding text is ignored.
func ParseTimestamp(value string) (time.Duration, error) {
	match := timestampPattern.FindStringSubmatch(value)
	if match == nil {
		return 0, faults.Wrap(faults.ErrParse, "subtitles", "parse timestamp",
			fmt.Sprintf("no timestamp in %q", strings.TrimSpace(value)), nil)
	}
	hours, _ := strconv.Atoi(match[1])
	minutes, _ := strconv.Atoi(match[2])
	seconds, _ := strconv.Atoi(match[3])
	micros, _ := strconv.Atoi(padFraction(match[4]))
	return time.Duration(hours)*time.Hour +
		time.Duration(minutes)*time.Minute +
		time.Duration(seconds)*time.Second +
		time.Duration(micros)*time.Microsecond, nil
}

// padFraction right-pads a fractional part to microsecond width.
func padFraction(frac string) string {
	if len(frac) >= 6 {
		return frac[:6]
	}
	return frac + strings.Repeat("0", 6-len(frac))
}

// FormatSRTTimestamp renders HH:MM:SS,fff, truncating below a millisecond.
func FormatSRTTimestamp(d time.Duration) string {
	h, m, s, rem := splitDuration(d)
	return fmt.Sprintf("%02d:%02d:%02d,%03d", h, m, s, rem/time.Millisecond)
}

// FormatSSATimestamp renders H:MM:SS.cc, truncating below a centisecond.
func FormatSSATimestamp(d time.Duration) string {
	h, m, s, rem := splitDuration(d)
	return fmt.Sprintf("%d:%02d:%02d.%02d", h, m, s, rem/(10*time.Millisecond))
}

func splitDuration(d time.Duration) (hours, minutes, seconds int64, rem time.Duration) {
	if d < 0 {
		d = 0
	}
	hours = int64(d / time.Hour)
	d -= time.Duration(hours) * time.Hour
	minutes = int64(d / time.Minute)
	d -= time.Duration(minutes) * time.Minute
	seconds = int64(d / time.Second)
	rem = d - time.Duration(seconds)*time.Second
	return hours, minutes, seconds, rem
}

// Parse dispatches on a file extension or format name ("srt", "ssa", "ass").
func Parse(text, format string) ([]Subtitle, error) {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "srt":
		return ParseSRT(text)
	case "ssa", "ass":
		return ParseSSA(text)
	default:
		return nil, faults.Wrap(faults.ErrParse, "subtitles", "parse",
			fmt.Sprintf("unsupported subtitle format %q", format), nil)
	}
}

func normalizeNewlines(text string) string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	return strings.ReplaceAll(text, "\r", "\n")
}
