// Package subtitles normalizes SRT and SSA subtitle text into a single
// in-memory representation and renders it back out.
//
// Parsing is a pure function of text in, []Subtitle out. SSA input follows the
// karaoke overlay convention where each Dialogue line carries the current cue
// followed by the next one; ParseSSA strips override tags, drops top-aligned
// title lines and removes the repeated next-line text so each cue holds one
// logical line. CreateSSA rebuilds that overlay convention for burn-in, and
// CreateSRT emits the plain track exported alongside encoded media.
//
// Timestamps truncate to the target resolution: milliseconds for SRT and
// centiseconds for SSA.
package subtitles
