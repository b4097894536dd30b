package transport

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"time"

	"go.uber.org/zap"

	"hl7-interop-bridge/internal/domain"
)

// FileInbox polls InboxPath for files matching FileGlob on a fixed
// interval, processing each exactly once by renaming it into a
// ".processing" sibling before handing it to Handler, then to ".done" or
// ".error" depending on the outcome — a rename-based claim rather than a
// delete, so a crash mid-poll leaves evidence instead of silently losing it.
type FileInbox struct {
	Endpoint *domain.Endpoint
	Handler  MessageHandler
	Logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
}

// Start begins polling in a background goroutine at Endpoint.PollInterval.
func (f *FileInbox) Start(ctx context.Context) error {
	f.stop = make(chan struct{})
	f.done = make(chan struct{})
	interval := f.Endpoint.PollInterval
	if interval <= 0 {
		interval = 5 * time.Second
	}
	go f.pollLoop(interval)
	return nil
}

// Stop signals the poll loop to exit and waits for it to finish its
// current cycle.
func (f *FileInbox) Stop() error {
	if f.stop == nil {
		return nil
	}
	close(f.stop)
	<-f.done
	return nil
}

func (f *FileInbox) pollLoop(interval time.Duration) {
	defer close(f.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-f.stop:
			return
		case <-ticker.C:
			f.pollOnce()
		}
	}
}

func (f *FileInbox) pollOnce() {
	glob := f.Endpoint.FileGlob
	if glob == "" {
		glob = "*"
	}
	matches, err := filepath.Glob(filepath.Join(f.Endpoint.InboxPath, glob))
	if err != nil {
		f.logger().Warn("file inbox glob failed", zap.Error(err))
		return
	}
	for _, path := range matches {
		if strings.HasSuffix(path, ".processing") || strings.HasSuffix(path, ".done") || strings.HasSuffix(path, ".error") {
			continue
		}
		f.processOne(path)
	}
}

func (f *FileInbox) processOne(path string) {
	claimed := path + ".processing"
	if err := os.Rename(path, claimed); err != nil {
		// Another poll cycle, or an external writer, already claimed it.
		return
	}

	raw, err := os.ReadFile(claimed)
	if err != nil {
		f.logger().Error("file inbox read failed", zap.String("path", claimed), zap.Error(err))
		_ = os.Rename(claimed, path+".error")
		return
	}

	if _, err := f.Handler(context.Background(), raw, f.Endpoint); err != nil {
		f.logger().Error("file inbox handler failed", zap.String("path", claimed), zap.Error(err))
		_ = os.Rename(claimed, path+".error")
		return
	}
	_ = os.Rename(claimed, path+".done")
}

func (f *FileInbox) logger() *zap.Logger {
	if f.Logger == nil {
		return zap.NewNop()
	}
	return f.Logger
}
