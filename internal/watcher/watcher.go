// Package watcher polls the database for changes made outside this process.
package watcher

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/qwmc/qwmc-web/internal/models"
	internalsettings "github.com/qwmc/qwmc-web/internal/settings"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Default timings for the watcher loop.
const (
	// defaultPollInterval controls how often the settings table is checked.
	defaultPollInterval = 5 * time.Second
	// defaultSweepInterval controls how often expired punishments are lifted.
	defaultSweepInterval = time.Minute
	// defaultQueryTimeout bounds DB query duration.
	defaultQueryTimeout = 10 * time.Second
)

// Expirer lifts punishments whose time ran out.
type Expirer interface {
	ExpireDue(ctx context.Context) (int, error)
}

// Option configures a Watcher.
type Option func(*Watcher)

// WithPollInterval overrides the settings poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithSweepInterval overrides the punishment sweep interval.
func WithSweepInterval(d time.Duration) Option {
	return func(w *Watcher) {
		if d > 0 {
			w.sweepInterval = d
		}
	}
}

// Watcher keeps the settings snapshot in step with the settings table and
// periodically expires punishments. Several instances may share one database.
type Watcher struct {
	db      *gorm.DB
	expirer Expirer

	pollInterval  time.Duration
	sweepInterval time.Duration

	// settings snapshot fingerprint
	settingsLatestAt  time.Time
	settingsLatestKey string
	settingsCount     int64
	hasSettingsLatest bool

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New constructs a Watcher. expirer may be nil to disable the sweep.
func New(db *gorm.DB, expirer Expirer, opts ...Option) *Watcher {
	w := &Watcher{
		db:            db,
		expirer:       expirer,
		pollInterval:  defaultPollInterval,
		sweepInterval: defaultSweepInterval,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Start launches the polling goroutine. It is a no-op when already running.
func (w *Watcher) Start(ctx context.Context) {
	if w == nil || w.db == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		return
	}
	runCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		w.run(runCtx)
	}()
	log.Infof("db watcher started (poll_interval=%s sweep_interval=%s)", w.pollInterval, w.sweepInterval)
}

// Stop cancels the polling goroutine and waits for it to exit.
func (w *Watcher) Stop() {
	if w == nil {
		return
	}
	w.mu.Lock()
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	w.wg.Wait()
}

func (w *Watcher) run(ctx context.Context) {
	w.pollSettings(ctx, true)
	w.sweep(ctx)

	pollTicker := time.NewTicker(w.pollInterval)
	defer pollTicker.Stop()
	sweepTicker := time.NewTicker(w.sweepInterval)
	defer sweepTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-pollTicker.C:
			w.pollSettings(ctx, false)
		case <-sweepTicker.C:
			w.sweep(ctx)
		}
	}
}

// pollSettings reloads the snapshot when the newest row or the row count changed.
func (w *Watcher) pollSettings(ctx context.Context, force bool) {
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()

	// latestRow captures the newest setting timestamp for change detection.
	type latestRow struct {
		Key       string     `gorm:"column:key"`        // Latest settings key.
		UpdatedAt *time.Time `gorm:"column:updated_at"` // Latest settings update time.
	}
	var latest latestRow
	hasLatest := true
	errLatest := w.db.WithContext(qctx).
		Model(&models.Setting{}).
		Select("key", "updated_at").
		Order("updated_at DESC").
		Order("key DESC").
		Limit(1).
		Take(&latest).Error
	if errLatest != nil {
		if errors.Is(errLatest, context.Canceled) {
			return
		}
		if !errors.Is(errLatest, gorm.ErrRecordNotFound) {
			log.WithError(errLatest).Warn("db watcher: query settings latest row failed")
			return
		}
		hasLatest = false
	}
	var count int64
	if errCount := w.db.WithContext(qctx).Model(&models.Setting{}).Count(&count).Error; errCount != nil {
		if !errors.Is(errCount, context.Canceled) {
			log.WithError(errCount).Warn("db watcher: count settings failed")
		}
		return
	}

	latestKey := strings.TrimSpace(latest.Key)
	latestAt := time.Time{}
	if hasLatest && latest.UpdatedAt != nil {
		latestAt = latest.UpdatedAt.UTC()
	}

	if !force && w.hasSettingsLatest == hasLatest &&
		latestAt.Equal(w.settingsLatestAt) && latestKey == w.settingsLatestKey && count == w.settingsCount {
		return
	}

	if !force {
		log.Infof("db watcher: settings changed, reloading (latest_updated_at=%s latest_key=%s)", latestAt.Format(time.RFC3339Nano), latestKey)
	}
	if errRefresh := internalsettings.Refresh(qctx, w.db); errRefresh != nil {
		log.WithError(errRefresh).Warn("db watcher: reload settings failed")
		return
	}
	w.settingsLatestAt = latestAt
	w.settingsLatestKey = latestKey
	w.settingsCount = count
	w.hasSettingsLatest = hasLatest
}

// sweep lifts expired punishments.
func (w *Watcher) sweep(ctx context.Context) {
	if w.expirer == nil {
		return
	}
	qctx, cancel := context.WithTimeout(ctx, defaultQueryTimeout)
	defer cancel()
	n, errExpire := w.expirer.ExpireDue(qctx)
	if errExpire != nil {
		if !errors.Is(errExpire, context.Canceled) {
			log.WithError(errExpire).Warn("db watcher: expire punishments failed")
		}
		return
	}
	if n > 0 {
		log.Infof("db watcher: lifted %d expired punishments", n)
	}
}
