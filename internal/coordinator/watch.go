package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"golang.org/x/sync/errgroup"

	"github.com/leapstack-labs/formflow/internal/workspace"
)

// Handler receives newly processed completed workbooks.
type Handler func(ctx context.Context, processed []Processed) error

// Watch processes the completed folder, then again each time a workbook
// is written to it, until ctx is cancelled. A handler error stops the
// watch.
func (c *Coordinator) Watch(ctx context.Context, experiment string, handler Handler) error {
	dir := c.layout.Dir(workspace.StageCompleted)

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer func() { _ = watcher.Close() }()

	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	c.logger.Info("watching completed folder", "dir", dir, "debounce", c.cfg.Debounce)

	if err := c.processAndHandle(ctx, experiment, handler); err != nil {
		return err
	}

	trigger := make(chan struct{}, 1)
	eg, egctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var debounceTimer *time.Timer
		defer func() {
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
		}()

		for {
			select {
			case <-egctx.Done():
				return nil

			case event, ok := <-watcher.Events:
				if !ok {
					return nil
				}
				if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
					continue
				}
				if !isWorkbook(event.Name) {
					continue
				}

				if debounceTimer != nil {
					debounceTimer.Stop()
				}
				name := event.Name
				debounceTimer = time.AfterFunc(c.cfg.Debounce, func() {
					c.logger.Debug("completed folder changed", "file", name)
					select {
					case trigger <- struct{}{}:
					default:
					}
				})

			case err, ok := <-watcher.Errors:
				if !ok {
					return nil
				}
				c.logger.Error("watcher error", "error", err)
			}
		}
	})

	eg.Go(func() error {
		for {
			select {
			case <-egctx.Done():
				return nil
			case <-trigger:
				if err := c.processAndHandle(egctx, experiment, handler); err != nil {
					if egctx.Err() != nil {
						return nil
					}
					return err
				}
			}
		}
	})

	return eg.Wait()
}

func (c *Coordinator) processAndHandle(ctx context.Context, experiment string, handler Handler) error {
	processed, err := c.ProcessCompletedFolder(ctx, experiment)
	if err != nil {
		// A workbook still being written fails to open; the next write
		// event retries it.
		c.logger.Warn("failed to process completed folder", "error", err)
	}
	if len(processed) == 0 || handler == nil {
		return nil
	}
	return handler(ctx, processed)
}

func isWorkbook(path string) bool {
	base := filepath.Base(path)
	// Office lock files
	if strings.HasPrefix(base, "~$") {
		return false
	}
	return strings.EqualFold(filepath.Ext(base), workspace.Extension)
}
