package storage

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"review-scraper/pkg/utils"
)

// Artifacts preserves debug screenshots alongside the job's output so a
// failed crawl can be diagnosed after the browser session is gone
type Artifacts struct {
	srcDir string
	log    *logrus.Entry
}

func NewArtifacts(srcDir string, log *logrus.Entry) *Artifacts {
	return &Artifacts{srcDir: srcDir, log: log}
}

// Archive copies the debug screenshots captured during a job into outDir,
// prefixed with the job ID. Missing screenshots are not an error; a run
// without failures produces none.
func (a *Artifacts) Archive(jobID, outDir string) []string {
	matches, err := filepath.Glob(filepath.Join(a.srcDir, "debug_*.png"))
	if err != nil {
		a.log.Warnf("Artifact scan failed: %v", err)
		return nil
	}

	var archived []string
	for _, src := range matches {
		dst := filepath.Join(outDir, fmt.Sprintf("%s_%s", utils.SanitizeFilename(jobID), filepath.Base(src)))
		if err := copyFile(src, dst); err != nil {
			a.log.Warnf("Could not archive %s: %v", src, err)
			continue
		}
		os.Remove(src)
		archived = append(archived, dst)
	}

	if len(archived) > 0 {
		a.log.WithField("count", len(archived)).Info("Debug artifacts archived")
	}
	return archived
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Sync()
}
