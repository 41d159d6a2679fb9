package models

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
)

// Progress is one event of a download task. Percent never decreases within
// a task. The last event has Done set or Err non-nil, and the channel is
// closed after it.
type Progress struct {
	Model   string
	Percent int
	Done    bool
	Err     error
}

// Download fetches a catalog model in the background and streams progress.
// A second call for a model that is still downloading is rejected with
// ErrAlreadyDownloading.
func (m *Manager) Download(ctx context.Context, name string) (<-chan Progress, error) {
	e, ok := lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownModel, name)
	}
	if !m.begin(name) {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyDownloading, name)
	}

	ch := make(chan Progress, 16)
	go func() {
		defer close(ch)
		defer m.finish(name)

		err := m.fetch(ctx, e, func(pct int) {
			// Keep one slot free so the terminal event is never dropped.
			if len(ch) < cap(ch)-1 {
				ch <- Progress{Model: name, Percent: pct}
			}
		})
		if err != nil {
			slog.Error("[models] download failed", "model", name, "error", err)
			ch <- Progress{Model: name, Err: err}
			return
		}
		slog.Info("[models] download complete", "model", name)
		ch <- Progress{Model: name, Percent: 100, Done: true}
	}()
	return ch, nil
}

func (m *Manager) fetch(ctx context.Context, e catalogEntry, report func(int)) error {
	if err := os.MkdirAll(m.dir, 0755); err != nil {
		return fmt.Errorf("models: creating models dir: %w", err)
	}

	url := m.baseURL + e.FileName
	destPath := filepath.Join(m.dir, e.FileName)
	slog.Info("[models] downloading", "model", e.Name, "url", url, "dest", destPath)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("models: building request: %w", err)
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return fmt.Errorf("models: downloading %s: %w", e.Name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("models: downloading %s: HTTP %d", e.Name, resp.StatusCode)
	}

	// Write to a side file first, then rename into place.
	tmpPath := destPath + ".download"
	f, err := os.Create(tmpPath)
	if err != nil {
		return fmt.Errorf("models: creating temp file: %w", err)
	}

	report(0)
	pw := &progressWriter{
		writer: f,
		total:  resp.ContentLength,
		report: report,
	}

	_, err = io.Copy(pw, resp.Body)
	f.Close()
	if err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: writing %s: %w", e.FileName, err)
	}

	if err := os.Rename(tmpPath, destPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("models: moving %s into place: %w", e.FileName, err)
	}

	if !installed(destPath) {
		os.Remove(destPath)
		return fmt.Errorf("models: %s is empty after download", e.FileName)
	}
	return nil
}

// progressWriter wraps an io.Writer and reports whole-percent progress
// each time it advances.
type progressWriter struct {
	writer  io.Writer
	total   int64
	written int64
	last    int
	report  func(int)
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.writer.Write(p)
	pw.written += int64(n)
	if pw.total > 0 {
		pct := int(pw.written * 100 / pw.total)
		// 100 is reserved for the terminal event.
		if pct > 99 {
			pct = 99
		}
		if pct > pw.last {
			pw.last = pct
			pw.report(pct)
		}
	}
	return n, err
}
