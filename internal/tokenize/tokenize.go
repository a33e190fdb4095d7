// Package tokenize counts tokens for budgeting context bundles.
package tokenize

import (
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is the BPE encoding used when none is configured.
const DefaultEncoding = "cl100k_base"

// Counter measures the token cost of text. Implementations never fail.
type Counter interface {
	Count(text string) int
}

// Estimate approximates tokens as characters / 4.
func Estimate(text string) int {
	return utf8.RuneCountInString(text) / 4
}

// EstimateCounter counts with Estimate.
type EstimateCounter struct{}

// Count implements Counter.
func (EstimateCounter) Count(text string) int { return Estimate(text) }

// DefaultLoadTimeout bounds how long callers wait for the encoding on
// first use. tiktoken fetches BPE files over HTTP when they are not cached
// (TIKTOKEN_CACHE_DIR or the system temp dir).
const DefaultLoadTimeout = 10 * time.Second

// TiktokenCounter counts with a tiktoken BPE encoding. The encoding is
// loaded in the background on first use. Calls made before it is ready wait
// until the load deadline and then count with Estimate, as do all calls
// when the encoding cannot be loaded or encoding panics.
type TiktokenCounter struct {
	encoding string
	timeout  time.Duration
	load     func(string) (*tiktoken.Tiktoken, error)

	once     sync.Once
	ready    chan struct{}
	deadline time.Time
	enc      *tiktoken.Tiktoken
}

// NewTiktoken creates a counter for the named encoding.
func NewTiktoken(encoding string) *TiktokenCounter {
	return newTiktoken(encoding, DefaultLoadTimeout, tiktoken.GetEncoding)
}

func newTiktoken(encoding string, timeout time.Duration, load func(string) (*tiktoken.Tiktoken, error)) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding, timeout: timeout, load: load}
}

func (c *TiktokenCounter) start() {
	c.once.Do(func() {
		c.ready = make(chan struct{})
		c.deadline = time.Now().Add(c.timeout)
		go func() {
			defer close(c.ready)
			enc, err := c.load(c.encoding)
			if err != nil {
				slog.Warn("tokenizer unavailable, using character estimate",
					slog.String("encoding", c.encoding),
					slog.String("error", err.Error()))
				return
			}
			c.enc = enc
		}()
	})
}

// encoder returns the loaded encoding, or nil while it is unavailable.
func (c *TiktokenCounter) encoder() *tiktoken.Tiktoken {
	c.start()
	select {
	case <-c.ready:
		return c.enc
	default:
	}

	wait := time.Until(c.deadline)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-c.ready:
		return c.enc
	case <-timer.C:
		slog.Warn("tokenizer still loading, using character estimate",
			slog.String("encoding", c.encoding),
			slog.Duration("waited", c.timeout))
		return nil
	}
}

// Count implements Counter.
func (c *TiktokenCounter) Count(text string) (n int) {
	enc := c.encoder()
	if enc == nil {
		return Estimate(text)
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Warn("tokenizer failed, using character estimate", slog.Any("panic", r))
			n = Estimate(text)
		}
	}()
	return len(enc.Encode(text, nil, nil))
}

// New returns the counter for provider ("tiktoken" or "estimate").
func New(provider, encoding string) Counter {
	if strings.EqualFold(provider, "estimate") {
		return EstimateCounter{}
	}
	return NewTiktoken(encoding)
}

// Func adapts a function to Counter.
type Func func(string) int

// Count implements Counter.
func (f Func) Count(text string) int { return f(text) }
