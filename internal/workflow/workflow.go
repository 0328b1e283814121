// Package workflow runs the AI generation jobs on a River queue.
package workflow

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/newtube/newtube/internal/database"
	"github.com/riverqueue/river"
	"github.com/riverqueue/river/riverdriver/riverpgxv5"
	"github.com/riverqueue/river/rivermigrate"
)

const (
	KindGenerateTitle       = "generate_title"
	KindGenerateDescription = "generate_description"
	KindGenerateThumbnail   = "generate_thumbnail"

	maxAttempts = 5
	jobTimeout  = 3 * time.Minute
)

type GenerateTitleArgs struct {
	VideoID string `json:"video_id"`
	UserID  string `json:"user_id"`
}

func (GenerateTitleArgs) Kind() string { return KindGenerateTitle }

func (GenerateTitleArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxAttempts}
}

type GenerateDescriptionArgs struct {
	VideoID string `json:"video_id"`
	UserID  string `json:"user_id"`
}

func (GenerateDescriptionArgs) Kind() string { return KindGenerateDescription }

func (GenerateDescriptionArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxAttempts}
}

type GenerateThumbnailArgs struct {
	VideoID string `json:"video_id"`
	UserID  string `json:"user_id"`
	Prompt  string `json:"prompt"`
}

func (GenerateThumbnailArgs) Kind() string { return KindGenerateThumbnail }

func (GenerateThumbnailArgs) InsertOpts() river.InsertOpts {
	return river.InsertOpts{MaxAttempts: maxAttempts}
}

// AI is the model API the workers call.
type AI interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
	GenerateImage(ctx context.Context, prompt string) ([]byte, error)
}

// ObjectStore receives generated thumbnails.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentType string) error
	DeleteObject(ctx context.Context, key string) error
}

// Deps are shared by all workers.
type Deps struct {
	DB         database.DBTX
	AI         AI
	Storage    ObjectStore
	HTTPClient *http.Client
}

// Client enqueues generation jobs and runs their workers.
type Client struct {
	river *river.Client[pgx.Tx]
}

// New builds a River client over pool with one worker per job kind.
func New(pool *pgxpool.Pool, deps Deps, maxWorkers int) (*Client, error) {
	if deps.HTTPClient == nil {
		deps.HTTPClient = &http.Client{Timeout: 30 * time.Second}
	}
	if maxWorkers < 1 {
		maxWorkers = 1
	}

	workers := river.NewWorkers()
	river.AddWorker(workers, &TitleWorker{deps: deps})
	river.AddWorker(workers, &DescriptionWorker{deps: deps})
	river.AddWorker(workers, &ThumbnailWorker{deps: deps})

	client, err := river.NewClient(riverpgxv5.New(pool), &river.Config{
		Queues: map[string]river.QueueConfig{
			river.QueueDefault: {MaxWorkers: maxWorkers},
		},
		Workers: workers,
	})
	if err != nil {
		return nil, fmt.Errorf("create river client: %w", err)
	}
	return &Client{river: client}, nil
}

// Migrate installs or upgrades River's own tables.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	migrator, err := rivermigrate.New(riverpgxv5.New(pool), nil)
	if err != nil {
		return fmt.Errorf("create river migrator: %w", err)
	}
	if _, err := migrator.Migrate(ctx, rivermigrate.DirectionUp, nil); err != nil {
		return fmt.Errorf("migrate river: %w", err)
	}
	return nil
}

func (c *Client) Start(ctx context.Context) error {
	return c.river.Start(ctx)
}

// Stop waits for running jobs to finish or ctx to expire.
func (c *Client) Stop(ctx context.Context) error {
	return c.river.Stop(ctx)
}

func (c *Client) GenerateTitle(ctx context.Context, videoID, userID string) (int64, error) {
	return c.insert(ctx, GenerateTitleArgs{VideoID: videoID, UserID: userID})
}

func (c *Client) GenerateDescription(ctx context.Context, videoID, userID string) (int64, error) {
	return c.insert(ctx, GenerateDescriptionArgs{VideoID: videoID, UserID: userID})
}

func (c *Client) GenerateThumbnail(ctx context.Context, videoID, userID, prompt string) (int64, error) {
	return c.insert(ctx, GenerateThumbnailArgs{VideoID: videoID, UserID: userID, Prompt: prompt})
}

func (c *Client) insert(ctx context.Context, args river.JobArgs) (int64, error) {
	res, err := c.river.Insert(ctx, args, nil)
	if err != nil {
		return 0, fmt.Errorf("enqueue %s: %w", args.Kind(), err)
	}
	return res.Job.ID, nil
}
