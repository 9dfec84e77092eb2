package transcript

import (
	"encoding/binary"
	"hash/fnv"
	"math"
	"strings"
	"time"

	"github.com/doramirdor/friday-ai/internal/protocol"
)

// Segment is one timed piece of text produced by the transcription engine
// for a single chunk. Times are in seconds relative to the chunk.
type Segment struct {
	Text  string
	Start float64
	End   float64
}

// Update is a completed sentence emitted by the accumulator, bounded either
// by terminal punctuation or by the sentence timeout.
type Update struct {
	Text       string
	StartTime  float64
	EndTime    float64
	StreamType protocol.StreamType
}

// Config contains accumulator tunables
type Config struct {
	SentenceTimeout    time.Duration // partial sentences older than this are force-emitted
	MinSegmentDuration float64       // seconds; shorter segments are dropped
	HistorySize        int           // retained recent segments, oldest evicted
}

// placeholderMarkers are non-speech annotations the engine emits for audio
// it could not transcribe. They are stripped before accumulation.
var placeholderMarkers = []string{
	"[BLANK_AUDIO]",
	"[INAUDIBLE]",
	"[MUSIC]",
	"[NOISE]",
	"[SILENCE]",
	"(silence)",
	"(music)",
}

// Accumulator merges successive engine segments for one stream into
// sentence-bounded updates. It has two states: empty (no pending sentence)
// and accumulating (partial sentence held); every emission returns it to
// empty. The processing loop is its only writer, so it needs no lock.
type Accumulator struct {
	streamType protocol.StreamType
	cfg        Config

	accumulating    bool
	currentSentence string
	sentenceStart   float64
	lastUpdate      time.Time

	lastFingerprint uint64
	hasFingerprint  bool

	// Fixed-capacity ring of recently accepted segments, kept for context
	// in later processing. Oldest entries are evicted first.
	history     []Segment
	historyNext int
	historyLen  int

	nowFunc func() time.Time
}

// NewAccumulator creates an accumulator for one stream
func NewAccumulator(streamType protocol.StreamType, cfg Config) *Accumulator {
	if cfg.HistorySize < 1 {
		cfg.HistorySize = 1
	}

	return &Accumulator{
		streamType: streamType,
		cfg:        cfg,
		history:    make([]Segment, cfg.HistorySize),
		lastUpdate: time.Now(),
		nowFunc:    time.Now,
	}
}

// AddSegment feeds one engine segment through the state machine. It returns
// a completed sentence update when the segment ends with terminal
// punctuation, or nil. Malformed, empty, too-short, and duplicate segments
// are dropped without error; only the timing bookkeeping advances.
func (a *Accumulator) AddSegment(seg Segment) *Update {
	defer func() { a.lastUpdate = a.nowFunc() }()

	cleaned := CleanText(seg.Text)
	if cleaned == "" {
		return nil
	}

	if seg.End-seg.Start < a.cfg.MinSegmentDuration {
		return nil
	}

	// The overlap window between consecutive chunks re-covers the same
	// audio, so the engine can return the same segment twice in a row.
	fp := fingerprint(cleaned, seg.Start, seg.End)
	if a.hasFingerprint && fp == a.lastFingerprint {
		return nil
	}
	a.lastFingerprint = fp
	a.hasFingerprint = true

	a.remember(Segment{Text: cleaned, Start: seg.Start, End: seg.End})

	if !a.accumulating {
		a.accumulating = true
		a.sentenceStart = seg.Start
		a.currentSentence = cleaned
	} else {
		a.currentSentence += " " + cleaned
	}

	if endsSentence(cleaned) {
		return a.emit(seg.End)
	}

	return nil
}

// CheckTimeout force-emits the pending partial sentence once it has been
// idle longer than the sentence timeout. The end time is estimated as
// start + timeout since no terminal segment arrived.
func (a *Accumulator) CheckTimeout() *Update {
	if !a.accumulating {
		return nil
	}

	if a.nowFunc().Sub(a.lastUpdate) <= a.cfg.SentenceTimeout {
		return nil
	}

	return a.emit(a.sentenceStart + a.cfg.SentenceTimeout.Seconds())
}

// FlushPending emits whatever partial sentence is held, if any. Used during
// the final drain when a stream stops so trailing speech is not lost.
func (a *Accumulator) FlushPending() *Update {
	if !a.accumulating {
		return nil
	}

	return a.emit(a.sentenceStart + a.cfg.SentenceTimeout.Seconds())
}

// Accumulating reports whether a partial sentence is held
func (a *Accumulator) Accumulating() bool {
	return a.accumulating
}

// Recent returns the retained segment history, oldest first
func (a *Accumulator) Recent() []Segment {
	out := make([]Segment, 0, a.historyLen)
	start := a.historyNext - a.historyLen
	if start < 0 {
		start += len(a.history)
	}
	for i := 0; i < a.historyLen; i++ {
		out = append(out, a.history[(start+i)%len(a.history)])
	}
	return out
}

func (a *Accumulator) emit(endTime float64) *Update {
	text := strings.TrimSpace(a.currentSentence)
	if text == "" {
		a.reset()
		return nil
	}

	update := &Update{
		Text:       text,
		StartTime:  a.sentenceStart,
		EndTime:    endTime,
		StreamType: a.streamType,
	}

	a.reset()
	return update
}

func (a *Accumulator) reset() {
	a.accumulating = false
	a.currentSentence = ""
	a.sentenceStart = 0
}

func (a *Accumulator) remember(seg Segment) {
	a.history[a.historyNext] = seg
	a.historyNext = (a.historyNext + 1) % len(a.history)
	if a.historyLen < len(a.history) {
		a.historyLen++
	}
}

// CleanText strips non-speech placeholder markers and surrounding
// whitespace from engine output
func CleanText(text string) string {
	for _, marker := range placeholderMarkers {
		text = strings.ReplaceAll(text, marker, "")
	}
	return strings.TrimSpace(text)
}

func endsSentence(text string) bool {
	return strings.HasSuffix(text, ".") ||
		strings.HasSuffix(text, "?") ||
		strings.HasSuffix(text, "!")
}

func fingerprint(text string, start, end float64) uint64 {
	h := fnv.New64a()
	h.Write([]byte(text))

	var buf [16]byte
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(start))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(end))
	h.Write(buf[:])

	return h.Sum64()
}
