// Package extract turns raw review-page markup into structured review
// records. It is a pure function of (markup, mode): no I/O, no browser.
//
// The classification of text leaves into name/date/comment/rating is
// heuristic and order-dependent: rules are applied in a fixed sequence over
// the flattened text-leaf list, and that ordering is load-bearing.
package extract

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/sirupsen/logrus"

	"review-scraper/pkg/models"
)

const (
	// ReviewBlockSelector matches one rendered review
	ReviewBlockSelector = "[data-review-uuid]"

	// avatarMarker appears in the avatar <img> src when the author has a
	// real profile picture; its presence means the first text leaf is the name
	avatarMarker = "fs-my-account-avatar"

	gallerySelector = `button[aria-label="Открыть галерею"]`

	// ImageOnlyComment substitutes the comment for reviews that carry only photos
	ImageOnlyComment = "Пользователь загрузил изображение. Текст отсутствует."

	// NoTextComment is the final fallback so a comment is never empty
	NoTextComment = "Нет текста"

	maxStars = 5
)

var (
	// dateRe matches source-locale dates like "12 марта 2024"
	dateRe = regexp.MustCompile(`(?i)\b\d{1,2}\s+(января|февраля|марта|апреля|мая|июня|июля|августа|сентября|октября|ноября|декабря)\s+\d{4}\b`)

	// helpfulPromptRe marks the trailing "was this helpful?" block; every
	// leaf from here on belongs to page chrome, not the review text
	helpfulPromptRe = regexp.MustCompile(`(?i)^Вам помог`)

	// voteLabelRes are the yes/no helpfulness counters next to the prompt
	voteLabelRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^да\s*\d*$`),
		regexp.MustCompile(`(?i)^нет\s*\d*$`),
	}

	// bannedRes are boilerplate labels that leak into the leaf list:
	// variant descriptors, the reply control and bare timestamps
	bannedRes = []*regexp.Regexp{
		regexp.MustCompile(`(?i)^Цвет товара`),
		regexp.MustCompile(`(?i)^Название цвета`),
		regexp.MustCompile(`(?i)^Российский размер`),
		regexp.MustCompile(`(?i)^Размер производителя`),
		regexp.MustCompile(`(?i)^Ответить$`),
		regexp.MustCompile(`^\d{1,2}:\d{2}$`),
	}
)

// Result is the outcome of extracting one page of markup
type Result struct {
	Reviews []models.Review
	Stop    bool // Mode-specific stop signal: end this product's crawl now
}

// Extractor parses review blocks out of page markup
type Extractor struct {
	log *logrus.Entry
}

// New creates an Extractor logging through the given entry
func New(log *logrus.Entry) *Extractor {
	return &Extractor{log: log}
}

// Extract parses every review block in markup according to mode.
//
// Mode policy: strict-text sets Stop and discards the remainder of the page
// at the first review without a comment; text-only skips such reviews;
// all keeps everything. A malformed block is logged and skipped, it never
// aborts the page.
func (e *Extractor) Extract(markup string, mode models.Mode) (Result, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(markup))
	if err != nil {
		return Result{}, err
	}

	var res Result
	blocks := doc.Find(ReviewBlockSelector)
	e.log.Debugf("Found %d review blocks", blocks.Length())

	blocks.EachWithBreak(func(i int, block *goquery.Selection) bool {
		review, empty, ok := e.extractBlock(i, block)

		if mode == models.ModeStrictText && empty {
			e.log.Warnf("Review #%d has no text, stopping extraction (strict-text)", i+1)
			res.Stop = true
			return false // discard this review and the rest of the page
		}
		if !ok {
			return true // malformed block, already logged
		}
		if mode == models.ModeTextOnly && empty {
			return true
		}

		res.Reviews = append(res.Reviews, review)
		return true
	})

	return res, nil
}

// extractBlock classifies a single review block. empty reports whether no
// comment text was found even after the image-only substitution check ran;
// ok is false when the block was malformed beyond use.
func (e *Extractor) extractBlock(index int, block *goquery.Selection) (review models.Review, empty bool, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Warnf("Skipping malformed review block #%d: %v", index+1, r)
			ok = false
		}
	}()

	texts := TextLeaves(block)
	links := AnchorTexts(block)
	hasAvatar := block.Find(`img[src*="` + avatarMarker + `"]`).Length() > 0

	review = models.Review{
		User:           models.UnknownField,
		ProductVariant: models.UnknownField,
		Rating:         models.UnknownField,
		Date:           models.UnknownField,
	}
	if len(links) > 0 {
		review.ProductVariant = links[0]
	}

	// Author name. With an avatar image the first leaf is the name. Without
	// one the site may render a single-character initial placeholder that
	// duplicates the first rune of the real name; detect and drop it.
	if len(texts) > 0 {
		switch {
		case hasAvatar:
			review.User = texts[0]
		case len(texts) > 1 &&
			len([]rune(texts[0])) == 1 &&
			len([]rune(texts[1])) > 1 &&
			texts[0] == string([]rune(texts[1])[0]):
			review.User = texts[1]
			texts = texts[1:]
		default:
			review.User = texts[0]
		}
	}

	// Date: first leaf matching the month-name pattern
	for _, t := range texts {
		if dateRe.MatchString(t) {
			review.Date = t
			break
		}
	}

	// Comment: every leaf before the helpfulness prompt that is not a known
	// token (name, date, anchor text), a vote label or boilerplate
	known := map[string]bool{review.User: true, review.Date: true}
	for _, l := range links {
		known[l] = true
	}

	var parts []string
	for _, t := range texts {
		if helpfulPromptRe.MatchString(t) {
			break
		}
		if known[t] || matchesAny(voteLabelRes, t) || matchesAny(bannedRes, t) {
			continue
		}
		parts = append(parts, t)
	}
	review.Comment = strings.TrimSpace(strings.Join(parts, " "))

	// Photo-only reviews get a fixed sentinel instead of an empty comment
	if review.Comment == "" && block.Find(gallerySelector).Length() > 0 {
		review.Comment = ImageOnlyComment
	}
	empty = review.Comment == ""

	review.Rating = extractRating(block)

	if empty {
		review.Comment = NoTextComment
	}
	return review, empty, true
}

// extractRating counts the leading star icons that share the first icon's
// inline style. The first star sets the "filled" baseline; the rating is
// where the styling first diverges, or 5 when all match.
func extractRating(block *goquery.Selection) string {
	stars := block.Find("svg")
	n := stars.Length()
	if n == 0 {
		return models.UnknownField
	}
	if n > maxStars {
		n = maxStars
	}

	firstStyle, _ := stars.Eq(0).Attr("style")
	rating := maxStars
	for i := 1; i < n; i++ {
		style, _ := stars.Eq(i).Attr("style")
		if style != firstStyle {
			rating = i
			break
		}
	}
	return strconv.Itoa(rating)
}

func matchesAny(res []*regexp.Regexp, s string) bool {
	for _, re := range res {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}
