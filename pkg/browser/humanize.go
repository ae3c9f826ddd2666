package browser

import (
	"context"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"
)

// Humanizer scatters human-looking interaction noise over a session:
// wandering mouse moves, uneven scrolling, occasional key presses and
// idle pauses between them.
type Humanizer struct {
	session Session
	log     *logrus.Entry
	rng     *rand.Rand

	// sleep is swapped out in tests to avoid real delays
	sleep func(ctx context.Context, d time.Duration)
}

func NewHumanizer(session Session, log *logrus.Entry) *Humanizer {
	return &Humanizer{
		session: session,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// pause waits a random duration within [min, max)
func (h *Humanizer) pause(ctx context.Context, min, max time.Duration) {
	h.sleep(ctx, min+time.Duration(h.rng.Int63n(int64(max-min))))
}

// Wander performs a short burst of mouse movement and an occasional key
// press, the kind of idle activity a reader produces between pages
func (h *Humanizer) Wander(ctx context.Context) {
	moves := 2 + h.rng.Intn(3)
	for i := 0; i < moves; i++ {
		if ctx.Err() != nil {
			return
		}
		x := 100 + h.rng.Float64()*1200
		y := 100 + h.rng.Float64()*700
		if err := h.session.MoveMouse(ctx, x, y); err != nil {
			h.log.Debugf("Mouse move skipped: %v", err)
			return
		}
		h.pause(ctx, 120*time.Millisecond, 450*time.Millisecond)
	}

	if h.rng.Intn(4) == 0 {
		if err := h.session.PressKey(ctx, "ArrowDown"); err != nil {
			h.log.Debugf("Key press skipped: %v", err)
		}
	}
}

// ScrollThrough scrolls the page to its end in uneven segments so lazy
// content loads the way it would for a real reader
func (h *Humanizer) ScrollThrough(ctx context.Context) error {
	const maxSegments = 40

	for i := 0; i < maxSegments; i++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		delta := 250 + h.rng.Float64()*400
		if err := h.session.ScrollBy(ctx, delta); err != nil {
			return err
		}
		h.pause(ctx, 150*time.Millisecond, 500*time.Millisecond)

		var atBottom bool
		script := `(window.innerHeight + window.scrollY) >= document.body.scrollHeight - 50`
		if err := h.session.Evaluate(ctx, script, &atBottom); err != nil {
			return err
		}
		if atBottom {
			break
		}
	}
	return nil
}

// expandSpoilersScript clicks every collapsed review body so the full
// text is present in the markup before extraction
const expandSpoilersScript = `(() => {
	let clicked = 0;
	const spans = document.querySelectorAll('span');
	for (const span of spans) {
		const text = (span.textContent || '').trim().toLowerCase();
		if (text === 'читать полностью' || text === 'показать полностью') {
			try { span.click(); clicked++; } catch (e) {}
		}
	}
	return clicked;
})()`

// ExpandSpoilers reveals truncated review texts; returns how many
// collapsed blocks were opened
func (h *Humanizer) ExpandSpoilers(ctx context.Context) (int, error) {
	var clicked int
	if err := h.session.Evaluate(ctx, expandSpoilersScript, &clicked); err != nil {
		return 0, err
	}
	if clicked > 0 {
		h.log.Debugf("Expanded %d collapsed reviews", clicked)
		h.pause(ctx, 300*time.Millisecond, 800*time.Millisecond)
	}
	return clicked, nil
}
