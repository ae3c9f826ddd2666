package storage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"review-scraper/pkg/utils"
)

// Fetcher resolves a job's input reference into a local workbook file.
// The reference is either an HTTP(S) URL or a path on disk.
type Fetcher struct {
	client *http.Client
	log    *logrus.Entry
}

func NewFetcher(log *logrus.Entry) *Fetcher {
	return &Fetcher{
		client: &http.Client{Timeout: 60 * time.Second},
		log:    log,
	}
}

// Fetch materializes ref into destDir and returns the local path. Local
// paths are used in place without copying.
func (f *Fetcher) Fetch(ctx context.Context, ref, destDir string) (string, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return f.download(ctx, ref, destDir)
	}

	if _, err := os.Stat(ref); err != nil {
		return "", fmt.Errorf("%w: input file %s: %v", utils.ErrJobInput, ref, err)
	}
	return ref, nil
}

func (f *Fetcher) download(ctx context.Context, url, destDir string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("%w: building request for %s: %v", utils.ErrJobInput, url, err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: downloading %s: %v", utils.ErrJobInput, url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("%w: downloading %s: status %d", utils.ErrJobInput, url, resp.StatusCode)
	}

	tmp, err := os.CreateTemp(destDir, "input-*.xlsx")
	if err != nil {
		return "", fmt.Errorf("%w: creating input file: %v", utils.ErrFilesystem, err)
	}
	defer tmp.Close()

	n, err := io.Copy(tmp, resp.Body)
	if err != nil {
		os.Remove(tmp.Name())
		return "", fmt.Errorf("%w: saving %s: %v", utils.ErrJobInput, url, err)
	}

	f.log.WithFields(logrus.Fields{
		"url":   url,
		"bytes": n,
		"path":  filepath.Base(tmp.Name()),
	}).Info("Input workbook downloaded")
	return tmp.Name(), nil
}
