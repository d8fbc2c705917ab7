package subtitles

import (
	"fmt"
	"strconv"
	"strings"

	"mediaprep/internal/faults"
)

// ParseSRT reads numbered SRT blocks. Blocks are separated by blank lines; the
// index line is optional, the timing line is required.
func ParseSRT(text string) ([]Subtitle, error) {
	blocks := splitBlocks(normalizeNewlines(strings.TrimPrefix(text, byteOrderMark)))
	subs := make([]Subtitle, 0, len(blocks))
	for n, block := range blocks {
		idx := 0
		if len(block) > 1 && isNumeric(block[0]) {
			idx = 1
		}
		timing := block[idx]
		start, end, ok := strings.Cut(timing, "-->")
		if !ok {
			return nil, faults.Wrap(faults.ErrParse, "subtitles", "parse srt",
				fmt.Sprintf("block %d: missing timing line", n+1), nil)
		}
		startAt, err := ParseTimestamp(start)
		if err != nil {
			return nil, fmt.Errorf("block %d start: %w", n+1, err)
		}
		endAt, err := ParseTimestamp(end)
		if err != nil {
			return nil, fmt.Errorf("block %d end: %w", n+1, err)
		}
		subs = append(subs, Subtitle{
			Start: startAt,
			End:   endAt,
			Text:  strings.Join(block[idx+1:], "\n"),
		})
	}
	return subs, nil
}

// CreateSRT renumbers subs from 1 and separates blocks by exactly one blank line.
// Blank lines inside cue text would end the block, so they are dropped.
func CreateSRT(subs []Subtitle) string {
	blocks := make([]string, 0, len(subs))
	for i, sub := range subs {
		blocks = append(blocks, fmt.Sprintf("%d\n%s --> %s\n%s\n",
			i+1,
			FormatSRTTimestamp(sub.Start),
			FormatSRTTimestamp(sub.End),
			srtText(sub.Text),
		))
	}
	return strings.Join(blocks, "\n")
}

func srtText(text string) string {
	lines := strings.Split(normalizeNewlines(text), "\n")
	kept := lines[:0]
	for _, line := range lines {
		if isBlank(line) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.Join(kept, "\n")
}

func isBlank(line string) bool {
	return strings.TrimSpace(line) == ""
}

// splitBlocks groups lines into runs separated by whitespace-only lines. Text
// lines are kept as written.
func splitBlocks(content string) [][]string {
	var (
		blocks  [][]string
		current []string
	)
	for _, line := range strings.Split(content, "\n") {
		if isBlank(line) {
			if len(current) > 0 {
				blocks = append(blocks, current)
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		blocks = append(blocks, current)
	}
	return blocks
}

func isNumeric(value string) bool {
	value = strings.TrimSpace(value)
	if value == "" {
		return false
	}
	_, err := strconv.Atoi(value)
	return err == nil
}
