package transcript

import (
	"strings"
	"sync"
	"time"
)

// Segment detector defaults.
const (
	DefaultSilenceGap     = 10 * time.Second
	DefaultReviewInterval = 12 * time.Minute
	DefaultDebounce       = 30 * time.Second
)

// DefaultTransitionPhrases are conversation markers that usually open a new
// topic. Matching is case-insensitive substring.
var DefaultTransitionPhrases = []string{
	"moving on",
	"next topic",
	"let's switch to",
	"next on the agenda",
	"before we wrap up",
	"any other business",
}

// SegmentConfig tunes the detector. Zero values fall back to the defaults.
type SegmentConfig struct {
	SilenceGap        time.Duration
	ReviewInterval    time.Duration
	Debounce          time.Duration
	TransitionPhrases []string
}

// SegmentDetector observes the utterance stream for natural break points:
// silence gaps, transition phrases, or a fixed wall-clock interval. Each
// trigger emits one boundary signal, debounced so no two signals fire within
// the debounce window.
type SegmentDetector struct {
	cfg     SegmentConfig
	onBreak func(reason string)

	mu           sync.Mutex
	lastChunk    time.Time
	lastSignal   time.Time
	silenceFired bool

	stop chan struct{}
	wg   sync.WaitGroup
}

// NewSegmentDetector creates a detector that invokes onBreak with the
// trigger reason ("silence", "transition_phrase", "interval").
func NewSegmentDetector(cfg SegmentConfig, onBreak func(reason string)) *SegmentDetector {
	if cfg.SilenceGap <= 0 {
		cfg.SilenceGap = DefaultSilenceGap
	}
	if cfg.ReviewInterval <= 0 {
		cfg.ReviewInterval = DefaultReviewInterval
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = DefaultDebounce
	}
	if len(cfg.TransitionPhrases) == 0 {
		cfg.TransitionPhrases = DefaultTransitionPhrases
	}
	return &SegmentDetector{
		cfg:     cfg,
		onBreak: onBreak,
		stop:    make(chan struct{}),
	}
}

// Start launches the wall-clock tickers: the review interval and the
// silence check, which fires a boundary during an ongoing pause rather than
// waiting for the next utterance. A stopped detector may be started again
// (session pause/resume).
func (d *SegmentDetector) Start() {
	d.mu.Lock()
	select {
	case <-d.stop:
		d.stop = make(chan struct{})
	default:
	}
	stop := d.stop
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		review := time.NewTicker(d.cfg.ReviewInterval)
		defer review.Stop()
		silence := time.NewTicker(d.cfg.SilenceGap / 2)
		defer silence.Stop()
		for {
			select {
			case <-stop:
				return
			case <-review.C:
				d.trigger("interval", time.Now())
			case <-silence.C:
				d.checkSilence(time.Now())
			}
		}
	}()
}

// checkSilence fires one silence boundary per gap; the flag resets when the
// next utterance arrives.
func (d *SegmentDetector) checkSilence(now time.Time) {
	d.mu.Lock()
	quiet := !d.lastChunk.IsZero() && now.Sub(d.lastChunk) > d.cfg.SilenceGap && !d.silenceFired
	if quiet {
		d.silenceFired = true
	}
	d.mu.Unlock()

	if quiet {
		d.trigger("silence", now)
	}
}

// Stop halts the interval ticker and waits for it to exit.
func (d *SegmentDetector) Stop() {
	d.mu.Lock()
	select {
	case <-d.stop:
	default:
		close(d.stop)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

// Observe feeds one utterance to the detector. Called from the session's
// ingest path after the chunk is buffered.
func (d *SegmentDetector) Observe(text string, at time.Time) {
	d.mu.Lock()
	prev := d.lastChunk
	alreadyFired := d.silenceFired
	d.lastChunk = at
	d.silenceFired = false
	d.mu.Unlock()

	if !alreadyFired && !prev.IsZero() && at.Sub(prev) > d.cfg.SilenceGap {
		d.trigger("silence", at)
		return
	}

	lower := strings.ToLower(text)
	for _, phrase := range d.cfg.TransitionPhrases {
		if strings.Contains(lower, phrase) {
			d.trigger("transition_phrase", at)
			return
		}
	}
}

// trigger fires the boundary callback unless inside the debounce window.
func (d *SegmentDetector) trigger(reason string, at time.Time) {
	d.mu.Lock()
	if !d.lastSignal.IsZero() && at.Sub(d.lastSignal) < d.cfg.Debounce {
		d.mu.Unlock()
		return
	}
	d.lastSignal = at
	d.mu.Unlock()

	if d.onBreak != nil {
		d.onBreak(reason)
	}
}
