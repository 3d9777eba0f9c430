package middleware

import (
	"encoding/json"
	"io"
	"math"
	"reflect"
	"slices"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"
)

const reasonSkipped = "skipped (ShouldLoad=false)"

const (
	outcomeApplied   = "applied"
	outcomeCancelled = "cancelled"
	outcomeSkipped   = "skipped"
	outcomeError     = "error"
)

// dispatchRecord is one line of the debug log.
type dispatchRecord struct {
	Time       time.Time `json:"ts"`
	Event      EventName `json:"event"`
	Step       int       `json:"step"`
	Middleware string    `json:"middleware"`
	Priority   int       `json:"priority"`
	Outcome    string    `json:"outcome"`
	Reason     string    `json:"reason,omitempty"`

	TextChanged    bool     `json:"text_changed,omitempty"`
	TokensBefore   int      `json:"tokens_before_est"`
	TokensAfter    int      `json:"tokens_after_est"`
	OptionsChanged []string `json:"options_changed,omitempty"`
}

// dispatchLog writes dispatch records as JSON lines. The zero value discards.
type dispatchLog struct {
	mu  sync.Mutex
	enc *json.Encoder
	now func() time.Time
}

func (l *dispatchLog) setWriter(w io.Writer) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if w == nil {
		l.enc = nil
		return
	}
	l.enc = json.NewEncoder(w)
}

func (l *dispatchLog) record(e *Event, res DecisionResult, before eventSnapshot, outcome string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.enc == nil {
		return
	}
	now := time.Now
	if l.now != nil {
		now = l.now
	}
	after := e.snapshot()
	_ = l.enc.Encode(dispatchRecord{
		Time:           now().UTC(),
		Event:          e.Name,
		Step:           e.Step,
		Middleware:     res.MiddlewareID,
		Priority:       res.Priority,
		Outcome:        outcome,
		Reason:         res.Decision.Reason,
		TextChanged:    before.text != after.text,
		TokensBefore:   estimateTokens(before.text),
		TokensAfter:    estimateTokens(after.text),
		OptionsChanged: changedKeys(before.options, after.options),
	})
}

// eventSnapshot is the part of an event a middleware can change.
type eventSnapshot struct {
	text    string
	options Options
}

func (e *Event) snapshot() eventSnapshot {
	return eventSnapshot{text: e.text(), options: e.Options.Clone()}
}

// text is the event's subject: the prompt before a request, the reply after.
func (e *Event) text() string {
	if e.Name == EventAfterLLMResponse {
		return e.LLMText
	}
	return e.UserText
}

func (e *Event) apply(dec Decision) {
	if dec.OverrideOptions != nil {
		e.Options = dec.OverrideOptions
	}
	if dec.ReplaceText == nil {
		return
	}
	if e.Name == EventAfterLLMResponse {
		e.LLMText = *dec.ReplaceText
	} else {
		e.UserText = *dec.ReplaceText
	}
}

// changedKeys lists, sorted, the keys added, removed or changed between a and b.
func changedKeys(a, b Options) []string {
	var out []string
	for k, av := range a {
		if bv, ok := b[k]; !ok || !reflect.DeepEqual(av, bv) {
			out = append(out, k)
		}
	}
	for k := range b {
		if _, ok := a[k]; !ok {
			out = append(out, k)
		}
	}
	slices.Sort(out)
	return out
}

// estimateTokens approximates a token count as the larger of the word count
// and a quarter of the rune count.
func estimateTokens(s string) int {
	if s == "" {
		return 0
	}
	words := len(strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r) || unicode.IsPunct(r)
	}))
	return max(words, int(math.Ceil(float64(utf8.RuneCountInString(s))/4)))
}
