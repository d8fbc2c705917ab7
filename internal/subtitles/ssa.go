package subtitles

import (
	"fmt"
	"regexp"
	"slices"
	"strconv"
	"strings"

	"mediaprep/internal/faults"
)

const (
	// SSANewline is the escaped hard line break inside SSA dialogue text.
	SSANewline = `\N`
	// SSANextColor styles the preview of the upcoming cue.
	SSANextColor = `{\c&HFFFFFF&}`

	defaultFontSize = 16
)

var (
	overrideBlock = regexp.MustCompile(`\{[^}]*\}`)
	// Legacy \a5-\a7 and numpad \an7-\an9 place a line at the top of the frame.
	topAlignment = regexp.MustCompile(`\{[^}]*\\(?:a[567]|an[789])\b[^}]*\}`)
)

var v4EventFormat = []string{"Marked", "Start", "End", "Style", "Name", "MarginL", "MarginR", "MarginV", "Effect", "Text"}

var v4StyleFormat = []string{
	"Name", "Fontname", "Fontsize", "PrimaryColour", "SecondaryColour", "TertiaryColour", "BackColour",
	"Bold", "Italic", "BorderStyle", "Outline", "Shadow", "Alignment", "MarginL", "MarginR", "MarginV",
	"AlphaLevel", "Encoding",
}

type eventLayout struct {
	fields int
	start  int
	end    int
	text   int
}

func layoutFor(format []string) (eventLayout, error) {
	layout := eventLayout{fields: len(format), start: -1, end: -1, text: -1}
	for i, name := range format {
		switch strings.ToLower(strings.TrimSpace(name)) {
		case "start":
			layout.start = i
		case "end":
			layout.end = i
		case "text":
			layout.text = i
		}
	}
	if layout.start < 0 || layout.end < 0 || layout.text != len(format)-1 {
		return eventLayout{}, fmt.Errorf("event format %q lacks Start/End or does not end with Text", strings.Join(format, ","))
	}
	return layout, nil
}

// ParseSSA reads the Dialogue lines of an SSA/ASS script. Override tags are
// stripped, \N becomes a newline and top-aligned lines become empty cues.
// Sub-lines repeated in the following cue are removed from the current one.
func ParseSSA(text string) ([]Subtitle, error) {
	layout, _ := layoutFor(v4EventFormat)
	var subs []Subtitle
	inEvents := false
	for n, raw := range strings.Split(normalizeNewlines(strings.TrimPrefix(text, byteOrderMark)), "\n") {
		line := strings.TrimSpace(raw)
		if strings.HasPrefix(line, "[") && strings.HasSuffix(line, "]") {
			inEvents = strings.EqualFold(line, "[Events]")
			continue
		}
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		switch {
		case inEvents && strings.EqualFold(key, "Format"):
			custom, err := layoutFor(strings.Split(value, ","))
			if err != nil {
				return nil, faults.Wrap(faults.ErrParse, "subtitles", "parse ssa",
					fmt.Sprintf("line %d", n+1), err)
			}
			layout = custom
		case strings.EqualFold(key, "Dialogue"):
			sub, err := parseDialogue(value, layout)
			if err != nil {
				return nil, faults.Wrap(faults.ErrParse, "subtitles", "parse ssa",
					fmt.Sprintf("line %d", n+1), err)
			}
			subs = append(subs, sub)
		}
	}
	return dropRepeatedLines(subs), nil
}

func parseDialogue(value string, layout eventLayout) (Subtitle, error) {
	fields := strings.SplitN(strings.TrimSpace(value), ",", layout.fields)
	if len(fields) != layout.fields {
		return Subtitle{}, fmt.Errorf("dialogue has %d fields, want %d", len(fields), layout.fields)
	}
	start, err := ParseTimestamp(fields[layout.start])
	if err != nil {
		return Subtitle{}, err
	}
	end, err := ParseTimestamp(fields[layout.end])
	if err != nil {
		return Subtitle{}, err
	}
	return Subtitle{Start: start, End: end, Text: cleanDialogueText(fields[layout.text])}, nil
}

func cleanDialogueText(text string) string {
	if topAlignment.MatchString(text) {
		return ""
	}
	text = overrideBlock.ReplaceAllString(text, "")
	return strings.ReplaceAll(text, SSANewline, "\n")
}

// dropRepeatedLines compares each cue against the original text of the next.
func dropRepeatedLines(subs []Subtitle) []Subtitle {
	if len(subs) < 2 {
		return subs
	}
	original := make([]string, len(subs))
	for i, sub := range subs {
		original[i] = sub.Text
	}
	for i := 0; i < len(subs)-1; i++ {
		next := strings.Split(original[i+1], "\n")
		current := strings.Split(original[i], "\n")
		kept := current[:0]
		for _, line := range current {
			if !slices.Contains(next, line) {
				kept = append(kept, line)
			}
		}
		subs[i].Text = strings.Join(kept, "\n")
	}
	return subs
}

// SSAOptions controls the single style of generated scripts. Zero PlayResX or
// PlayResY omits the play resolution from [Script Info].
type SSAOptions struct {
	FontSize int
	MarginH  int
	MarginV  int
	PlayResX int
	PlayResY int
}

// CreateSSA renders subs as an SSA v4 script in the overlay convention: every
// Dialogue carries its cue, a line break, and the next cue in the highlight
// colour. The final cue has no next line.
func CreateSSA(subs []Subtitle, opts SSAOptions) string {
	fontSize := opts.FontSize
	if fontSize <= 0 {
		fontSize = defaultFontSize
	}

	var out []string
	out = append(out,
		"[Script Info]",
		"Title: <untitled>",
		"Original Script: <unknown>",
		"ScriptType: v4.00",
	)
	if opts.PlayResX > 0 && opts.PlayResY > 0 {
		out = append(out,
			"PlayResX: "+strconv.Itoa(opts.PlayResX),
			"PlayResY: "+strconv.Itoa(opts.PlayResY),
		)
	}
	out = append(out, "")

	style := []string{
		"Default", "Arial", strconv.Itoa(fontSize), "65535", "16777215", "16777215", "0",
		"-1", "0", "3", "1", "1", "2",
		strconv.Itoa(opts.MarginH), strconv.Itoa(opts.MarginH), strconv.Itoa(opts.MarginV),
		"0", "128",
	}
	out = append(out,
		"[V4 Styles]",
		"Format: "+strings.Join(v4StyleFormat, ", "),
		"Style: "+strings.Join(style, ","),
		"",
	)

	out = append(out,
		"[Events]",
		"Format: "+strings.Join(v4EventFormat, ", "),
	)
	for i, sub := range subs {
		text := escapeSSAText(sub.Text)
		if i+1 < len(subs) {
			text += SSANewline + SSANextColor + escapeSSAText(subs[i+1].Text)
		}
		out = append(out, "Dialogue: "+strings.Join([]string{
			"Marked=0",
			FormatSSATimestamp(sub.Start),
			FormatSSATimestamp(sub.End),
			"*Default",
			"NTP",
			"0000", "0000", "0000",
			"!Effect",
			text,
		}, ","))
	}
	out = append(out, "")

	return strings.Join(out, "\n")
}

func escapeSSAText(text string) string {
	return strings.ReplaceAll(normalizeNewlines(text), "\n", SSANewline)
}
