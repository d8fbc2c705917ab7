package encoding

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"

	"mediaprep/internal/faults"
	"mediaprep/internal/logging"
	"mediaprep/internal/meta"
	"mediaprep/internal/processed"
	"mediaprep/internal/scan"
	"mediaprep/internal/subtitles"
)

func (j *job) sourceHash(context.Context) (bool, error) {
	c := j.collection
	if c.File(scan.RoleVideo) == nil && c.File(scan.RoleAudio) == nil && c.File(scan.RoleImage) == nil {
		return false, faults.Wrap(faults.ErrMissingSource, "encoding", string(StepSourceHash), "item has no video, audio or image source", nil)
	}

	hash, err := c.SourceHash()
	if err != nil {
		return false, faults.Wrap(faults.ErrMissingSource, "encoding", string(StepSourceHash), c.Name, err)
	}
	if j.record.SourceHash != hash {
		if j.record.SourceHash != "" {
			j.logger.Info("source hash changed",
				logging.String("previous", j.record.SourceHash),
				logging.String("current", hash),
			)
		}
		j.record.SourceHash = hash
		j.record.SourceDetails = meta.SourceDetails{}
	}
	j.result.SourceHash = hash
	return false, nil
}

func (j *job) primaryVideo(ctx context.Context) (bool, error) {
	store := j.enc.processed
	target := store.File(j.record.SourceHash, processed.KindVideo)
	if target.Exists() {
		return true, nil
	}

	videoHasAudio, err := j.probeSources(ctx)
	if err != nil {
		return false, err
	}
	details := j.record.SourceDetails
	if details.Duration <= 0 {
		return false, faults.Wrap(faults.ErrProbe, "encoding", string(StepVideo), "unable to determine source duration; the source may be damaged", nil)
	}

	c := j.collection
	tool := j.enc.tool
	videoSource := ""
	if v := c.File(scan.RoleVideo); v != nil {
		videoSource = v.Path
	} else if img := c.File(scan.RoleImage); img != nil {
		videoSource = j.work.File("image.mp4")
		if err := tool.ImageToVideo(ctx, img.Path, details.Duration, videoSource); err != nil {
			return false, err
		}
	} else {
		return false, faults.Wrap(faults.ErrMissingSource, "encoding", string(StepVideo), "no video or image to render", nil)
	}

	overlay := ""
	if sub := c.File(scan.RoleSubtitle); sub != nil {
		subs, err := j.loadSubtitles()
		if err != nil {
			return false, err
		}
		if len(subs) == 0 {
			return false, faults.Wrap(faults.ErrParse, "encoding", string(StepVideo),
				fmt.Sprintf("subtitle file %s given but no subtitles parsed", sub.Name), nil)
		}
		script := subtitles.CreateSSA(subs, subtitles.SSAOptions{
			FontSize: j.enc.cfg.Encode.SubtitleFontSize,
			PlayResX: details.Width,
			PlayResY: details.Height,
		})
		overlay = j.work.File("subtitles.ssa")
		if err := os.WriteFile(overlay, []byte(script), 0o644); err != nil {
			return false, faults.Wrap(faults.ErrStorage, "encoding", string(StepVideo), "write ssa overlay", err)
		}
	}

	audioSource := ""
	if a := c.File(scan.RoleAudio); a != nil {
		audioSource = a.Path
	} else if v := c.File(scan.RoleVideo); v != nil && videoHasAudio {
		audioSource = v.Path
	}

	final := j.work.File("video.mp4")
	if audioSource == "" {
		j.logger.Info("no audio source; publishing video without audio")
		if err := tool.RenderVideo(ctx, videoSource, overlay, final); err != nil {
			return false, err
		}
		return false, j.publish(target, final)
	}

	audio := j.work.File("audio.m4a")
	if err := tool.RenderAudio(ctx, audioSource, audio); err != nil {
		return false, err
	}
	if err := tool.RenderVideo(ctx, videoSource, overlay, final); err != nil {
		return false, err
	}
	muxed := j.work.File("muxed.mp4")
	if err := tool.Mux(ctx, final, audio, muxed); err != nil {
		return false, err
	}
	return false, j.publish(target, muxed)
}

// probeSources fills the record's source details. Image dimensions and audio
// duration are taken first; a video source overrides any field it reports.
// It returns whether the video source carries its own audio.
func (j *job) probeSources(ctx context.Context) (bool, error) {
	c := j.collection
	tool := j.enc.tool
	var details meta.SourceDetails
	videoHasAudio := false

	if img := c.File(scan.RoleImage); img != nil {
		d, err := tool.Probe(ctx, img.Path)
		if err != nil {
			return false, err
		}
		details.Width, details.Height = d.Width, d.Height
	}
	if a := c.File(scan.RoleAudio); a != nil {
		d, err := tool.Probe(ctx, a.Path)
		if err != nil {
			return false, err
		}
		details.Duration = d.Duration
	}
	if v := c.File(scan.RoleVideo); v != nil {
		d, err := tool.Probe(ctx, v.Path)
		if err != nil {
			return false, err
		}
		if d.Width > 0 && d.Height > 0 {
			details.Width, details.Height = d.Width, d.Height
		}
		if d.Duration > 0 {
			details.Duration = d.Duration
		}
		details.Codec = d.Codec
		videoHasAudio = d.HasAudio
	} else if details.Duration <= 0 && c.File(scan.RoleImage) != nil {
		if seconds := j.enc.cfg.Encode.ImageVideoSeconds; seconds > 0 {
			details.Duration = float64(seconds)
		}
	}

	j.record.SourceDetails = details
	return videoHasAudio, nil
}

// loadSubtitles parses the subtitle source once per job.
func (j *job) loadSubtitles() ([]subtitles.Subtitle, error) {
	if j.subsLoaded {
		return j.subs, nil
	}
	sub := j.collection.File(scan.RoleSubtitle)
	if sub == nil {
		j.subsLoaded = true
		return nil, nil
	}
	subs, err := subtitles.ParseFile(sub.Path)
	if err != nil {
		switch {
		case errors.Is(err, fs.ErrNotExist):
			return nil, faults.Wrap(faults.ErrMissingSource, "encoding", "subtitles", sub.Name, err)
		case errors.Is(err, faults.ErrParse):
			return nil, fmt.Errorf("%s: %w", sub.Name, err)
		default:
			return nil, faults.Wrap(faults.ErrParse, "encoding", "subtitles", sub.Name, err)
		}
	}
	j.subs = subs
	j.subsLoaded = true
	return subs, nil
}

func (j *job) subtitleTrack(context.Context) (bool, error) {
	target := j.enc.processed.File(j.record.SourceHash, processed.KindSubtitle)
	if target.Exists() {
		return true, nil
	}

	subs, err := j.loadSubtitles()
	if err != nil {
		return false, err
	}
	if j.collection.File(scan.RoleSubtitle) == nil {
		j.logger.Debug("no subtitle source; publishing empty subtitle track")
	} else if len(subs) == 0 {
		logging.WarnWithContext(j.logger, "no subtitles parsed from subtitle source", "subtitles_empty",
			logging.String(logging.FieldErrorHint, "check the subtitle file for top-aligned or malformed lines"),
			logging.String(logging.FieldImpact, "empty subtitle track published"),
		)
	}

	scratch := j.work.File("subtitles.srt")
	if err := os.WriteFile(scratch, []byte(subtitles.CreateSRT(subs)), 0o644); err != nil {
		return false, faults.Wrap(faults.ErrStorage, "encoding", string(StepSubtitle), "write srt", err)
	}
	return false, j.publish(target, scratch)
}

func (j *job) preview(ctx context.Context) (bool, error) {
	store := j.enc.processed
	target := store.File(j.record.SourceHash, processed.KindPreview)
	if target.Exists() {
		return true, nil
	}
	video := store.File(j.record.SourceHash, processed.KindVideo)
	if !video.Exists() {
		return false, faults.Wrap(faults.ErrMissingSource, "encoding", string(StepPreview), "primary video not published", nil)
	}

	scratch := j.work.File("preview.mp4")
	if err := j.enc.tool.RenderPreview(ctx, video.Path, scratch); err != nil {
		return false, err
	}
	return false, j.publish(target, scratch)
}

func (j *job) thumbnails(ctx context.Context) (bool, error) {
	targets := j.enc.processed.Thumbnails(j.record.SourceHash)
	if len(processed.Missing(targets)) == 0 {
		return true, nil
	}

	c := j.collection
	var source string
	var offsets []float64
	if v := c.File(scan.RoleVideo); v != nil {
		duration := j.record.SourceDetails.Duration
		if duration <= 0 {
			if _, err := j.probeSources(ctx); err != nil {
				return false, err
			}
			duration = j.record.SourceDetails.Duration
		}
		if duration <= 0 {
			return false, faults.Wrap(faults.ErrProbe, "encoding", string(StepThumbnails), "unable to determine source duration", nil)
		}
		source = v.Path
		offsets = ThumbnailOffsets(duration, len(targets))
	} else if img := c.File(scan.RoleImage); img != nil {
		source = img.Path
		offsets = make([]float64, len(targets))
	} else {
		return false, faults.Wrap(faults.ErrMissingSource, "encoding", string(StepThumbnails), "no video or image to extract frames from", nil)
	}

	for i, target := range targets {
		if target.Exists() {
			continue
		}
		scratch := j.work.File(fmt.Sprintf("%d.jpg", i))
		if err := j.enc.tool.ExtractFrame(ctx, source, offsets[i], scratch); err != nil {
			return false, err
		}
		if err := j.publish(target, scratch); err != nil {
			return false, err
		}
	}
	return false, nil
}

// ThumbnailOffsets spaces n frame times evenly inside duration, excluding both
// ends, rounded to milliseconds.
func ThumbnailOffsets(duration float64, n int) []float64 {
	offsets := make([]float64, n)
	for i := range offsets {
		offsets[i] = math.Round(duration*float64(i+1)/float64(n+1)*1000) / 1000
	}
	return offsets
}

func (j *job) tags(context.Context) (bool, error) {
	src := j.collection.File(scan.RoleTags)
	if src == nil {
		logging.WarnWithContext(j.logger, "no tag source", "tags_missing",
			logging.String(logging.FieldErrorHint, "add a .txt tag file next to the media"),
			logging.String(logging.FieldImpact, "item has no tag artifact"),
		)
		return false, nil
	}
	target := j.enc.processed.File(j.record.SourceHash, processed.KindTags)
	if target.Exists() {
		return true, nil
	}
	if err := target.Copy(src.Path); err != nil {
		return false, err
	}
	j.result.Published = append(j.result.Published, target)
	return false, nil
}
