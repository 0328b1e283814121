package workflow

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/jackc/pgx/v5"
	"github.com/newtube/newtube/internal/storage"
	"github.com/newtube/newtube/internal/validate"
	"github.com/riverqueue/river"
)

var (
	errVideoGone     = errors.New("video no longer exists")
	errNoTranscript  = errors.New("video has no transcript")
	errEmptyResponse = errors.New("AI returned an empty response")
)

const titleSystemPrompt = `You write titles for online videos. Given the video's transcript, reply with one concise, descriptive title of at most 100 characters. Reply with the title only: no quotes, no hashtags, no explanation.`

const descriptionSystemPrompt = `You write descriptions for online videos. Given the video's transcript, reply with a description of one or two short paragraphs that tells a viewer what the video covers. Reply with the description only: no headings, no hashtags, no markdown.`

// transcriptFor loads the transcript text of a video owned by userID.
func (d Deps) transcriptFor(ctx context.Context, videoID, userID string) (string, error) {
	var url *string
	err := d.DB.QueryRow(ctx,
		"SELECT transcript_url FROM videos WHERE id = $1 AND user_id = $2", videoID, userID,
	).Scan(&url)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", errVideoGone
	}
	if err != nil {
		return "", fmt.Errorf("load video: %w", err)
	}
	if url == nil || *url == "" {
		return "", errNoTranscript
	}

	text, err := fetchTranscript(ctx, d.HTTPClient, *url)
	if err != nil {
		return "", err
	}
	if text == "" {
		return "", errNoTranscript
	}
	return text, nil
}

// cancelIfPermanent stops retries for failures another attempt cannot fix.
func cancelIfPermanent(err error) error {
	if errors.Is(err, errVideoGone) || errors.Is(err, errNoTranscript) {
		return river.JobCancel(err)
	}
	return err
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	return string([]rune(s)[:max])
}

type TitleWorker struct {
	river.WorkerDefaults[GenerateTitleArgs]
	deps Deps
}

func (w *TitleWorker) Timeout(*river.Job[GenerateTitleArgs]) time.Duration { return jobTimeout }

func (w *TitleWorker) Work(ctx context.Context, job *river.Job[GenerateTitleArgs]) error {
	args := job.Args
	transcript, err := w.deps.transcriptFor(ctx, args.VideoID, args.UserID)
	if err != nil {
		slog.Warn("workflow: title transcript", "job_id", job.ID, "video_id", args.VideoID, "error", err)
		return cancelIfPermanent(err)
	}

	reply, err := w.deps.AI.Complete(ctx, titleSystemPrompt, transcript)
	if err != nil {
		return fmt.Errorf("generate title: %w", err)
	}
	title := truncateRunes(stripQuotes(reply), validate.MaxTitleLength)
	if title == "" {
		return errEmptyResponse
	}

	if _, err := w.deps.DB.Exec(ctx,
		"UPDATE videos SET title = $1, updated_at = now() WHERE id = $2 AND user_id = $3",
		title, args.VideoID, args.UserID,
	); err != nil {
		return fmt.Errorf("save title: %w", err)
	}

	slog.Info("workflow: title generated", "job_id", job.ID, "video_id", args.VideoID)
	return nil
}

type DescriptionWorker struct {
	river.WorkerDefaults[GenerateDescriptionArgs]
	deps Deps
}

func (w *DescriptionWorker) Timeout(*river.Job[GenerateDescriptionArgs]) time.Duration {
	return jobTimeout
}

func (w *DescriptionWorker) Work(ctx context.Context, job *river.Job[GenerateDescriptionArgs]) error {
	args := job.Args
	transcript, err := w.deps.transcriptFor(ctx, args.VideoID, args.UserID)
	if err != nil {
		slog.Warn("workflow: description transcript", "job_id", job.ID, "video_id", args.VideoID, "error", err)
		return cancelIfPermanent(err)
	}

	reply, err := w.deps.AI.Complete(ctx, descriptionSystemPrompt, transcript)
	if err != nil {
		return fmt.Errorf("generate description: %w", err)
	}
	description := truncateRunes(stripQuotes(reply), validate.MaxDescriptionLength)
	if description == "" {
		return errEmptyResponse
	}

	if _, err := w.deps.DB.Exec(ctx,
		"UPDATE videos SET description = $1, updated_at = now() WHERE id = $2 AND user_id = $3",
		description, args.VideoID, args.UserID,
	); err != nil {
		return fmt.Errorf("save description: %w", err)
	}

	slog.Info("workflow: description generated", "job_id", job.ID, "video_id", args.VideoID)
	return nil
}

type ThumbnailWorker struct {
	river.WorkerDefaults[GenerateThumbnailArgs]
	deps Deps
}

func (w *ThumbnailWorker) Timeout(*river.Job[GenerateThumbnailArgs]) time.Duration { return jobTimeout }

// Work stores the generated image under a fixed per-video key and drops any
// previous custom thumbnail.
func (w *ThumbnailWorker) Work(ctx context.Context, job *river.Job[GenerateThumbnailArgs]) error {
	args := job.Args

	var oldKey *string
	err := w.deps.DB.QueryRow(ctx,
		"SELECT thumbnail_key FROM videos WHERE id = $1 AND user_id = $2", args.VideoID, args.UserID,
	).Scan(&oldKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return river.JobCancel(errVideoGone)
	}
	if err != nil {
		return fmt.Errorf("load video: %w", err)
	}

	img, err := w.deps.AI.GenerateImage(ctx, args.Prompt)
	if err != nil {
		return fmt.Errorf("generate thumbnail: %w", err)
	}

	key := storage.GeneratedThumbnailKey(args.UserID, args.VideoID)
	if err := w.deps.Storage.PutObject(ctx, key, bytes.NewReader(img), "image/png"); err != nil {
		return fmt.Errorf("upload thumbnail: %w", err)
	}

	tag, err := w.deps.DB.Exec(ctx,
		"UPDATE videos SET thumbnail_key = $1, updated_at = now() WHERE id = $2 AND user_id = $3",
		key, args.VideoID, args.UserID,
	)
	if err != nil {
		return fmt.Errorf("save thumbnail: %w", err)
	}
	if tag.RowsAffected() == 0 {
		w.deleteObject(ctx, job.ID, key)
		return river.JobCancel(errVideoGone)
	}
	if oldKey != nil && *oldKey != key {
		w.deleteObject(ctx, job.ID, *oldKey)
	}

	slog.Info("workflow: thumbnail generated", "job_id", job.ID, "video_id", args.VideoID)
	return nil
}

func (w *ThumbnailWorker) deleteObject(ctx context.Context, jobID int64, key string) {
	if err := w.deps.Storage.DeleteObject(ctx, key); err != nil {
		slog.Warn("workflow: delete thumbnail", "job_id", jobID, "key", key, "error", err)
	}
}
