package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"

	"github.com/your-org/facecheck/internal/attendance"
	"github.com/your-org/facecheck/internal/config"
	"github.com/your-org/facecheck/internal/cooldown"
	"github.com/your-org/facecheck/internal/enroll"
	"github.com/your-org/facecheck/internal/gallery"
	"github.com/your-org/facecheck/internal/matcher"
	"github.com/your-org/facecheck/internal/models"
	"github.com/your-org/facecheck/internal/observability"
	"github.com/your-org/facecheck/internal/queue"
	"github.com/your-org/facecheck/internal/recognition"
	"github.com/your-org/facecheck/internal/reload"
	"github.com/your-org/facecheck/internal/storage"
	"github.com/your-org/facecheck/internal/vision"
)

// Core is the recognition core and its collaborators, shared by the API
// and the worker binaries.
type Core struct {
	Config *config.Config
	Origin string

	DB        *storage.PostgresStore
	MinIO     *storage.MinIOStore // nil when object storage is unreachable
	Producer  *queue.Producer
	Consumer  *queue.Consumer
	Extractor *vision.Extractor // nil without a face model

	Gallery     *gallery.Gallery
	Matcher     *matcher.Matcher
	Cooldown    *cooldown.Tracker
	Ledger      *attendance.Ledger
	Enroll      *enroll.Service
	Recognition *recognition.Service
	Monitor     *reload.Monitor
	Scheduler   *gocron.Scheduler

	gallerySub *nats.Subscription
	closers    []func()
}

// Options selects what a binary needs from the core.
type Options struct {
	// RequireExtractor fails startup when the face model cannot load.
	RequireExtractor bool
}

// New connects every collaborator and wires the core. Failures of optional
// collaborators are logged and leave the matching field nil.
func New(ctx context.Context, cfg *config.Config, opts Options) (*Core, error) {
	c := &Core{Config: cfg, Origin: origin()}

	loc, err := cfg.Attendance.Location()
	if err != nil {
		return nil, err
	}

	db, err := storage.NewPostgresStore(ctx, cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	if err := db.Migrate(ctx); err != nil {
		c.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if store, err := storage.NewMinIOStore(cfg.MinIO); err != nil {
		slog.Warn("minio unavailable, image enrollment disabled", "error", err)
	} else if err := store.EnsureBucket(ctx); err != nil {
		slog.Warn("ensure minio bucket, image enrollment disabled", "error", err)
	} else {
		c.MinIO = store
	}

	producer, err := queue.NewProducer(cfg.NATS.URL)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Producer = producer
	c.closers = append(c.closers, producer.Close)
	if err := producer.EnsureStreams(ctx); err != nil {
		slog.Warn("ensure nats streams", "error", err)
	}

	consumer, err := queue.NewConsumer(cfg.NATS.URL)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Consumer = consumer
	c.closers = append(c.closers, consumer.Close)

	if err := c.loadExtractor(); err != nil {
		if opts.RequireExtractor {
			c.Close()
			return nil, err
		}
		slog.Warn("face extractor unavailable, image endpoints disabled", "error", err)
	}

	var snapshots gallery.SnapshotStore
	switch {
	case cfg.Gallery.SnapshotObject != "" && c.MinIO != nil:
		snapshots = c.MinIO.GallerySnapshotStore(cfg.Gallery.SnapshotObject)
	case cfg.Gallery.SnapshotPath != "":
		snapshots = gallery.NewFileStore(cfg.Gallery.SnapshotPath)
	}
	c.Gallery = gallery.New(cfg.Matching.Dimension, snapshots)

	c.Matcher, err = matcher.New(c.Gallery, cfg.Matching.Threshold)
	if err != nil {
		c.Close()
		return nil, err
	}
	c.Cooldown = cooldown.New(cfg.Cooldown.Window)
	c.Ledger = attendance.NewLedger(db, attendance.Options{
		Location: loc,
		Attempts: cfg.Attendance.RetryAttempts,
		Backoff:  cfg.Attendance.RetryBackoff,
		Timeout:  cfg.Attendance.StoreTimeout,
		Deadline: cfg.Attendance.RecordDeadline,
	})

	// Interfaces stay nil when the concrete collaborator is missing.
	var (
		images    enroll.ImageStore
		enrollExt enroll.Extractor
		recogExt  recognition.Extractor
	)
	if c.MinIO != nil {
		images = c.MinIO
	}
	if c.Extractor != nil {
		enrollExt = c.Extractor
		recogExt = c.Extractor
	}

	c.Enroll = enroll.NewService(c.Gallery, db, images, enrollExt, producer, enroll.Options{
		Workers: cfg.Sync.ExtractWorkers,
		Origin:  c.Origin,
	})
	c.Recognition = recognition.NewService(c.Matcher, c.Cooldown, c.Ledger, recogExt, producer)
	c.Monitor = reload.NewMonitor(db, c.Enroll, cfg.Sync.CheckInterval, cfg.Sync.FetchTimeout)
	return c, nil
}

// Objects is the object store as seen by task processing, or nil.
func (c *Core) Objects() recognition.ObjectGetter {
	if c.MinIO == nil {
		return nil
	}
	return c.MinIO
}

func (c *Core) loadExtractor() error {
	if err := vision.InitRuntime(c.Config.Vision.ONNXLibrary); err != nil {
		return err
	}
	ext, err := vision.NewExtractor(c.Config.Vision)
	if err != nil {
		vision.DestroyRuntime()
		return err
	}
	c.Extractor = ext
	c.closers = append(c.closers, vision.DestroyRuntime, ext.Close)
	return nil
}

// Start loads the gallery, follows other replicas' gallery changes,
// schedules housekeeping and, unless sync is manual, starts the reload
// monitor. Background work ends with ctx.
func (c *Core) Start(ctx context.Context) error {
	known, err := c.Enroll.Initialize(ctx)
	if err != nil {
		// The monitor retries on its own schedule.
		slog.Error("initial gallery load failed", "error", err, "hint", models.Hint(err))
	}
	c.Monitor.SetKnownCount(known)

	sub, err := c.Consumer.SubscribeGalleryChanges(c.Origin, func(change models.GalleryChange) {
		c.Enroll.Apply(ctx, change)
	})
	if err != nil {
		slog.Warn("gallery change subscription", "error", err)
	} else {
		c.gallerySub = sub
	}

	c.Scheduler = gocron.NewScheduler(time.UTC)
	c.Scheduler.SingletonModeAll()
	if _, err := c.Scheduler.Every(c.Config.Cooldown.PruneInterval).Do(func() {
		if n := c.Cooldown.Prune(time.Now()); n > 0 {
			slog.Debug("pruned cooldown entries", "removed", n)
		}
	}); err != nil {
		return fmt.Errorf("schedule cooldown prune: %w", err)
	}
	if _, err := c.Scheduler.Every(c.Config.Gallery.FlushInterval).Do(func() {
		flushCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
		defer cancel()
		if err := c.Gallery.Flush(flushCtx); err != nil {
			slog.Warn("gallery snapshot flush", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("schedule gallery flush: %w", err)
	}
	if _, err := c.Scheduler.Every(10 * time.Second).Do(func() {
		depthCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if depth, err := c.Producer.QueueDepth(depthCtx); err == nil {
			observability.QueueDepth.Set(float64(depth))
		}
	}); err != nil {
		return fmt.Errorf("schedule queue depth: %w", err)
	}
	c.Scheduler.StartAsync()

	if !c.Config.Sync.Manual {
		c.Monitor.Start(ctx)
	}
	return nil
}

// Close stops background work and releases connections in reverse order.
func (c *Core) Close() {
	if c.Monitor != nil {
		c.Monitor.Stop()
	}
	if c.Scheduler != nil {
		c.Scheduler.Stop()
	}
	if c.gallerySub != nil {
		_ = c.gallerySub.Unsubscribe()
	}
	if c.Gallery != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		if err := c.Gallery.Flush(ctx); err != nil {
			slog.Warn("final gallery flush", "error", err)
		}
		cancel()
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
}

func origin() string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		host = "facecheck"
	}
	return host + "-" + uuid.NewString()[:8]
}
