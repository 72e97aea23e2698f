package processing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"hash/fnv"
	"net/url"
	"os"
	"path"
	"path/filepath"

	"github.com/tomecast/spout/internal/config"
	"github.com/tomecast/spout/internal/diarize"
	"github.com/tomecast/spout/internal/logger"
	"github.com/tomecast/spout/internal/media"
	"github.com/tomecast/spout/internal/services/download"
	"github.com/tomecast/spout/internal/services/publish"
	"github.com/tomecast/spout/internal/speech"
	"github.com/tomecast/spout/internal/transcript"
	"github.com/tomecast/spout/internal/types"
)

// EpisodeProcessor handles task_type == "episode_transcription": one full
// pipeline run from source audio to published transcript. Every run owns its
// own credential pool and token cache; nothing carries over between episodes.
type EpisodeProcessor struct {
	cfg       config.Config
	downloads *download.Service
	publisher *publish.Service
}

func NewEpisodeProcessor(cfg config.Config, downloads *download.Service, publisher *publish.Service) *EpisodeProcessor {
	return &EpisodeProcessor{
		cfg:       cfg,
		downloads: downloads,
		publisher: publisher,
	}
}

func (p *EpisodeProcessor) TaskType() string { return "episode_transcription" }

func (p *EpisodeProcessor) Process(ctx context.Context, task *types.Task) *types.TaskResult {
	var payload types.EpisodePayload
	if err := json.Unmarshal(task.Payload, &payload); err != nil {
		return types.NewTaskFailure(fmt.Errorf("failed to unmarshal task payload: %w", err))
	}
	if payload.EpisodeTitle == "" || payload.EpisodeURL == "" {
		return types.NewTaskFailure(fmt.Errorf("episode task missing title or url"))
	}

	slug := transcript.Slug(payload.EpisodeTitle)
	ctx = logger.WithEpisode(ctx, slug)

	runDir := filepath.Join(p.cfg.WorkDir, slug)
	clipsDir := filepath.Join(runDir, "segments")
	if err := os.MkdirAll(clipsDir, 0o755); err != nil {
		return types.NewTaskFailure(fmt.Errorf("failed to create run directory: %w", err))
	}

	episodePath := filepath.Join(runDir, "episode"+sourceExt(payload.EpisodeURL))
	wavPath := filepath.Join(runDir, "podcast.wav")
	segPath := filepath.Join(runDir, "podcast.seg")

	logger.Info(ctx, "downloading episode source audio")
	if err := p.downloads.Fetch(ctx, payload.EpisodeURL, episodePath); err != nil {
		return types.NewTaskFailure(err)
	}

	logger.Info(ctx, "converting episode to mono 16kHz wav for diarization")
	if err := media.Resample(ctx, episodePath, wavPath); err != nil {
		return types.NewTaskFailure(err)
	}

	logger.Info(ctx, "running speaker diarization")
	if err := diarize.Run(ctx, p.cfg.DiarizerJarPath, wavPath, segPath); err != nil {
		return types.NewTaskFailure(err)
	}

	logger.Info(ctx, "parsing speech segments")
	segments, report, err := diarize.ParseFile(segPath, diarize.Options{
		LongSegmentThreshold: p.cfg.LongSegmentThreshold,
		GapThreshold:         p.cfg.GapThreshold,
	})
	if err != nil {
		return types.NewTaskFailure(err)
	}
	logReport(ctx, report)

	logger.Info(ctx, "splitting episode audio into clips", logger.Fields{"segments": len(segments)})
	for _, segment := range segments {
		clipPath := filepath.Join(clipsDir, transcript.SegmentKey(segment.Start, segment.Length)+".wav")
		if err := media.Split(ctx, wavPath, clipPath, segment.Start, segment.Length); err != nil {
			return types.NewTaskFailure(err)
		}
	}

	store, err := transcript.NewStore(filepath.Join(runDir, "transcripts"))
	if err != nil {
		return types.NewTaskFailure(err)
	}

	if err := p.transcribeSegments(ctx, slug, segments, clipsDir, store); err != nil {
		return types.NewTaskFailure(err)
	}

	logger.Info(ctx, "coalescing per-segment results into transcript document")
	doc := transcript.NewCoalescer(store).Coalesce(ctx, segments, transcript.Metadata{
		Title:       payload.EpisodeTitle,
		Description: payload.Description,
		EpisodeURL:  payload.EpisodeURL,
		PubDate:     payload.PubDate,
	})

	resp, err := p.publisher.Publish(ctx, payload.PodcastTitle, doc)
	if err != nil {
		return types.NewTaskFailure(err)
	}

	if err := os.RemoveAll(runDir); err != nil {
		logger.Warn(ctx, "failed to clean up run directory", logger.Fields{"error": err.Error()})
	}

	return types.NewTaskSuccess(resp)
}

// transcribeSegments drives one recognition exchange per segment, strictly in
// order. A segment that exhausts its retries is left to its failure marker
// and the run continues; any other error aborts the whole run.
func (p *EpisodeProcessor) transcribeSegments(ctx context.Context, slug string, segments []diarize.Segment, clipsDir string, store *transcript.Store) error {
	auth := speech.NewAuthenticator(p.cfg.SpeechTokenURL, p.cfg.SpeechAPIKeys, p.cfg.TokenSafetyMargin, p.cfg.RetryDelay)
	if err := auth.Probe(ctx); err != nil {
		return err
	}

	client := speech.NewClient(speech.ClientConfig{
		Endpoint:       p.cfg.SpeechEndpoint,
		Locale:         p.cfg.SpeechLocale,
		MaxAttempts:    p.cfg.MaxTranscribeTries,
		RetryDelay:     p.cfg.RetryDelay,
		RequestSpacing: p.cfg.RequestSpacing,
		RoutingHash:    routingHash(slug),
	}, auth, store)

	var transcribed, tombstoned int
	for _, segment := range segments {
		clipPath := filepath.Join(clipsDir, transcript.SegmentKey(segment.Start, segment.Length)+".wav")
		audio, err := os.ReadFile(clipPath)
		if err != nil {
			return fmt.Errorf("failed to read segment clip: %w", err)
		}

		result, err := client.Transcribe(ctx, segment, audio)
		if err != nil {
			var exhausted *speech.RetriesExhaustedError
			if errors.As(err, &exhausted) {
				logger.Warn(ctx, "segment failed all recognition attempts, continuing", logger.Fields{
					"segment":  segment.Start,
					"attempts": exhausted.Attempts,
				})
				tombstoned++
				continue
			}
			return err
		}

		transcribed++
		logger.Debug(ctx, "segment transcribed", logger.Fields{
			"segment":    segment.Start,
			"status":     string(result.Status),
			"request_id": result.RequestID,
		})
	}

	logger.Info(ctx, "segment transcription finished", logger.Fields{
		"transcribed": transcribed,
		"tombstoned":  tombstoned,
	})
	return nil
}

func logReport(ctx context.Context, report *diarize.Report) {
	if len(report.LongSegments) == 0 {
		logger.Info(ctx, "no long segments found")
	}
	for _, segment := range report.LongSegments {
		logger.Warn(ctx, "found long segment", logger.Fields{
			"segment": segment.Start,
			"length":  segment.Length,
		})
	}

	if len(report.Gaps) == 0 {
		logger.Info(ctx, "no significant gaps found between segments")
	}
	for _, gap := range report.Gaps {
		logger.Warn(ctx, "found significant gap between segments", logger.Fields{
			"gap":              gap.Size,
			"prev_segment_end": gap.PrevEnd,
			"segment":          gap.CurrentStart,
		})
	}
}

// routingHash derives the run's stable credential-routing value from the
// episode slug, so retries within a run keep hitting the same key while
// different episodes spread across the pool.
func routingHash(slug string) uint32 {
	h := fnv.New32a()
	h.Write([]byte(slug))
	return h.Sum32()
}

func sourceExt(episodeURL string) string {
	u, err := url.Parse(episodeURL)
	if err != nil {
		return ".mp3"
	}
	ext := path.Ext(u.Path)
	if ext == "" || len(ext) > 5 {
		return ".mp3"
	}
	return ext
}
