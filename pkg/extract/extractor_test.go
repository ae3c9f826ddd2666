package extract

import (
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"review-scraper/pkg/models"
)

func newTestExtractor() *Extractor {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	return New(logrus.NewEntry(logger))
}

const starsFull = `<svg style="color: gold;"></svg><svg style="color: gold;"></svg><svg style="color: gold;"></svg><svg style="color: gold;"></svg><svg style="color: gold;"></svg>`

// reviewBlock builds one review block in the shape the extractor expects:
// optional avatar, name/date leaves, star icons, variant link, comment
// leaves and the trailing helpfulness prompt.
func reviewBlock(avatar bool, name, date, stars, comment string) string {
	var b strings.Builder
	b.WriteString(`<div data-review-uuid="x">`)
	if avatar {
		b.WriteString(`<img src="https://cdn.example/fs-my-account-avatar/1.png">`)
	}
	b.WriteString(`<span>` + name + `</span>`)
	b.WriteString(`<span>` + date + `</span>`)
	b.WriteString(stars)
	b.WriteString(`<a href="/product/x">Серый / 42</a>`)
	if comment != "" {
		b.WriteString(`<p>` + comment + `</p>`)
	}
	b.WriteString(`<span>Вам помог этот отзыв?</span><button>Да 3</button><button>Нет 1</button>`)
	b.WriteString(`</div>`)
	return b.String()
}

func TestExtract_BasicReview(t *testing.T) {
	e := newTestExtractor()
	html := reviewBlock(true, "Анна", "12 марта 2024", starsFull, "Очень хороший товар")

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)

	r := res.Reviews[0]
	assert.Equal(t, "Анна", r.User)
	assert.Equal(t, "12 марта 2024", r.Date)
	assert.Equal(t, "Очень хороший товар", r.Comment)
	assert.Equal(t, "5", r.Rating)
	assert.Equal(t, "Серый / 42", r.ProductVariant)
	assert.False(t, res.Stop)
}

func TestExtract_Deterministic(t *testing.T) {
	e := newTestExtractor()
	html := reviewBlock(true, "Анна", "12 марта 2024", starsFull, "Очень хороший товар") +
		reviewBlock(false, "Борис", "13 марта 2024", starsFull, "Неплохо")

	first, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	second, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestExtract_InitialPlaceholderDropped(t *testing.T) {
	e := newTestExtractor()
	// No avatar: a one-character initial duplicating the name's first rune
	// precedes the real name and must be discarded
	html := `<div data-review-uuid="x"><span>А</span><span>Анна</span><span>12 марта 2024</span>` +
		starsFull + `<p>Текст отзыва</p><span>Вам помог этот отзыв?</span></div>`

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, "Анна", res.Reviews[0].User)
	assert.Equal(t, "Текст отзыва", res.Reviews[0].Comment)
}

func TestExtract_PartialRating(t *testing.T) {
	e := newTestExtractor()
	stars := `<svg style="color: gold;"></svg><svg style="color: gold;"></svg><svg style="color: gold;"></svg><svg style="color: grey;"></svg><svg style="color: grey;"></svg>`
	html := reviewBlock(true, "Анна", "12 марта 2024", stars, "Средне")

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, "3", res.Reviews[0].Rating)
}

func TestExtract_NoStars(t *testing.T) {
	e := newTestExtractor()
	html := reviewBlock(true, "Анна", "12 марта 2024", "", "Без звёзд")

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, models.UnknownField, res.Reviews[0].Rating)
}

func TestExtract_BoilerplateExcludedFromComment(t *testing.T) {
	e := newTestExtractor()
	html := `<div data-review-uuid="x"><span>Анна</span><span>12 марта 2024</span>` + starsFull +
		`<span>Цвет товара: серый</span><span>Российский размер: 42</span><span>Ответить</span><span>14:32</span>` +
		`<p>Сам отзыв</p><span>Вам помог этот отзыв?</span><span>Да 5</span><span>Нет</span></div>`

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, "Сам отзыв", res.Reviews[0].Comment)
}

func TestExtract_TextAfterPromptIgnored(t *testing.T) {
	e := newTestExtractor()
	html := `<div data-review-uuid="x"><span>Анна</span><span>12 марта 2024</span>` + starsFull +
		`<p>Отзыв</p><span>Вам помог этот отзыв?</span><p>мусор после промпта</p></div>`

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, "Отзыв", res.Reviews[0].Comment)
}

func TestExtract_ImageOnlySentinel(t *testing.T) {
	e := newTestExtractor()
	html := `<div data-review-uuid="x"><span>Анна</span><span>12 марта 2024</span>` + starsFull +
		`<button aria-label="Открыть галерею"></button><span>Вам помог этот отзыв?</span></div>`

	res, err := e.Extract(html, models.ModeStrictText)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, ImageOnlyComment, res.Reviews[0].Comment)
	assert.False(t, res.Stop)
}

func TestExtract_StrictTextStopsAtEmptyComment(t *testing.T) {
	e := newTestExtractor()
	html := reviewBlock(true, "Анна", "1 марта 2024", starsFull, "Первый") +
		reviewBlock(true, "Борис", "2 марта 2024", starsFull, "Второй") +
		reviewBlock(true, "Вера", "3 марта 2024", starsFull, "") + // empty comment at position 3
		reviewBlock(true, "Глеб", "4 марта 2024", starsFull, "Четвёртый") +
		reviewBlock(true, "Дина", "5 марта 2024", starsFull, "Пятый")

	res, err := e.Extract(html, models.ModeStrictText)
	require.NoError(t, err)

	assert.True(t, res.Stop)
	require.Len(t, res.Reviews, 2)
	assert.Equal(t, "Первый", res.Reviews[0].Comment)
	assert.Equal(t, "Второй", res.Reviews[1].Comment)
}

func TestExtract_TextOnlySkipsEmptyComment(t *testing.T) {
	e := newTestExtractor()
	html := reviewBlock(true, "Анна", "1 марта 2024", starsFull, "Первый") +
		reviewBlock(true, "Вера", "3 марта 2024", starsFull, "") +
		reviewBlock(true, "Дина", "5 марта 2024", starsFull, "Пятый")

	res, err := e.Extract(html, models.ModeTextOnly)
	require.NoError(t, err)

	assert.False(t, res.Stop)
	require.Len(t, res.Reviews, 2)
	assert.Equal(t, "Первый", res.Reviews[0].Comment)
	assert.Equal(t, "Пятый", res.Reviews[1].Comment)
}

func TestExtract_ModeAllKeepsEmptyComment(t *testing.T) {
	e := newTestExtractor()
	html := reviewBlock(true, "Вера", "3 марта 2024", starsFull, "")

	res, err := e.Extract(html, models.ModeAll)
	require.NoError(t, err)
	require.Len(t, res.Reviews, 1)
	assert.Equal(t, NoTextComment, res.Reviews[0].Comment)
}

func TestExtract_NoBlocks(t *testing.T) {
	e := newTestExtractor()
	res, err := e.Extract("<div><p>ничего</p></div>", models.ModeAll)
	require.NoError(t, err)
	assert.Empty(t, res.Reviews)
	assert.False(t, res.Stop)
}
