package storage

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"review-scraper/pkg/models"
	"review-scraper/pkg/utils"
)

const (
	// ReviewsSheet holds the extracted reviews, one row per review
	ReviewsSheet = "Отзывы Ozon"
	// ErrorsSheet lists per-product and job-level failures
	ErrorsSheet = "ОШИБКА"
	// LogsSheet carries the captured log lines for post-mortem reading
	LogsSheet = "ЛОГИ"

	// ErrorFileMarker is appended to the workbook name when any error
	// was recorded, so operators spot failed runs in a directory listing
	ErrorFileMarker = "ОШИБКА"
)

var reviewHeaders = []interface{}{
	"Ссылка", "Вариант товара", "Комментарий", "Оценка", "Дата",
	"Пользователь", "Порядковый номер", "Id товара", "Совпавший товар",
}

// ReadLinks extracts product URLs from the first sheet of an input
// workbook. Only cells starting with prefix count as product links.
func ReadLinks(path, prefix string) ([]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening workbook %s: %v", utils.ErrJobInput, path, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("%w: reading sheet %s: %v", utils.ErrJobInput, sheet, err)
	}

	var links []string
	for _, row := range rows {
		for _, cell := range row {
			cell = strings.TrimSpace(cell)
			if strings.HasPrefix(cell, prefix) {
				links = append(links, cell)
			}
		}
	}
	if len(links) == 0 {
		return nil, fmt.Errorf("%w: no product links found in %s", utils.ErrJobInput, path)
	}
	return links, nil
}

// Writer produces result workbooks in the output directory
type Writer struct {
	dir string
	log *logrus.Entry

	// now is swapped out in tests for stable filenames
	now func() time.Time
}

func NewWriter(dir string, log *logrus.Entry) *Writer {
	return &Writer{dir: dir, log: log, now: time.Now}
}

// Write renders the job outcome into a workbook and returns its path.
// A workbook is produced even when every product failed; the error state
// only changes the filename and adds the error and log sheets.
func (w *Writer) Write(results []models.ProductResult, jobErr string) (string, error) {
	f := excelize.NewFile()
	defer f.Close()

	f.SetSheetName("Sheet1", ReviewsSheet)
	if err := w.fillReviews(f, results); err != nil {
		return "", err
	}

	hasError := jobErr != ""
	for _, r := range results {
		if r.ErrorOccurred {
			hasError = true
			break
		}
	}

	if hasError {
		if err := w.fillErrors(f, results, jobErr); err != nil {
			return "", err
		}
		if err := w.fillLogs(f, results); err != nil {
			return "", err
		}
	}

	name := fmt.Sprintf("result_%d.xlsx", w.now().Unix())
	if hasError {
		name = fmt.Sprintf("result_%d_%s.xlsx", w.now().Unix(), ErrorFileMarker)
	}
	path := filepath.Join(w.dir, name)

	if err := f.SaveAs(path); err != nil {
		return "", fmt.Errorf("%w: saving workbook %s: %v", utils.ErrOutputStage, path, err)
	}
	w.log.WithField("path", path).Info("Result workbook written")
	return path, nil
}

func (w *Writer) fillReviews(f *excelize.File, results []models.ProductResult) error {
	if err := setRow(f, ReviewsSheet, 1, reviewHeaders); err != nil {
		return err
	}

	row := 2
	for _, r := range results {
		if r.Skipped {
			// one marker row pointing at the URL that claimed the fingerprint
			err := setRow(f, ReviewsSheet, row, []interface{}{
				r.URL, "", "", "", "", "", "", "", r.DuplicateOfURL,
			})
			if err != nil {
				return err
			}
			row++
			continue
		}
		for _, rev := range r.Reviews {
			err := setRow(f, ReviewsSheet, row, []interface{}{
				rev.SourceURL, rev.ProductVariant, rev.Comment, rev.Rating,
				rev.Date, rev.User, rev.Ordinal, rev.FingerprintHash, "",
			})
			if err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func (w *Writer) fillErrors(f *excelize.File, results []models.ProductResult, jobErr string) error {
	if _, err := f.NewSheet(ErrorsSheet); err != nil {
		return fmt.Errorf("%w: creating sheet %s: %v", utils.ErrOutputStage, ErrorsSheet, err)
	}
	if err := setRow(f, ErrorsSheet, 1, []interface{}{"Ссылка", "Ошибка"}); err != nil {
		return err
	}

	row := 2
	if jobErr != "" {
		if err := setRow(f, ErrorsSheet, row, []interface{}{"", jobErr}); err != nil {
			return err
		}
		row++
	}
	for _, r := range results {
		if !r.ErrorOccurred {
			continue
		}
		if err := setRow(f, ErrorsSheet, row, []interface{}{r.URL, r.Error}); err != nil {
			return err
		}
		row++
	}
	return nil
}

func (w *Writer) fillLogs(f *excelize.File, results []models.ProductResult) error {
	if _, err := f.NewSheet(LogsSheet); err != nil {
		return fmt.Errorf("%w: creating sheet %s: %v", utils.ErrOutputStage, LogsSheet, err)
	}

	row := 1
	for _, r := range results {
		for _, line := range r.Logs {
			if err := setRow(f, LogsSheet, row, []interface{}{line}); err != nil {
				return err
			}
			row++
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("%w: %v", utils.ErrOutputStage, err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("%w: writing row %d of %s: %v", utils.ErrOutputStage, row, sheet, err)
	}
	return nil
}
