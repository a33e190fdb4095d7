package tokenize

import (
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkoukk/tiktoken-go"
	"github.com/stretchr/testify/assert"
)

func TestEstimate_CharactersOverFour(t *testing.T) {
	assert.Equal(t, 0, Estimate(""))
	assert.Equal(t, 2, Estimate("12345678"))
	assert.Equal(t, 1, Estimate("한글한글"), "counts runes, not bytes")
}

func TestNew_SelectsProvider(t *testing.T) {
	assert.IsType(t, EstimateCounter{}, New("estimate", ""))
	assert.IsType(t, &TiktokenCounter{}, New("tiktoken", ""))
}

func TestTiktokenCounter_UnknownEncodingFallsBack(t *testing.T) {
	// Given: an encoding tiktoken does not know
	c := NewTiktoken("no_such_encoding")

	// When: counting
	n := c.Count(strings.Repeat("a", 40))

	// Then: the character estimate is used and nothing panics
	assert.Equal(t, 10, n)
}

func TestFunc(t *testing.T) {
	var c Counter = Func(func(s string) int { return len(s) })
	assert.Equal(t, 3, c.Count("abc"))
}

func TestTiktokenCounter_SlowLoadFallsBack(t *testing.T) {
	// Given: an encoding whose download never finishes within the deadline
	release := make(chan struct{})
	defer close(release)
	var calls atomic.Int32
	c := newTiktoken("cl100k_base", 20*time.Millisecond, func(string) (*tiktoken.Tiktoken, error) {
		calls.Add(1)
		<-release
		return nil, errors.New("offline")
	})

	// When: counting before and after the deadline
	start := time.Now()
	first := c.Count(strings.Repeat("a", 40))
	second := c.Count(strings.Repeat("b", 8))

	// Then: both use the estimate, the wait is bounded and the load runs once
	assert.Equal(t, 10, first)
	assert.Equal(t, 2, second)
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.Equal(t, int32(1), calls.Load())
}

func TestTiktokenCounter_ConcurrentCallersShareDeadline(t *testing.T) {
	release := make(chan struct{})
	defer close(release)
	c := newTiktoken("", 50*time.Millisecond, func(string) (*tiktoken.Tiktoken, error) {
		<-release
		return nil, errors.New("offline")
	})

	var wg sync.WaitGroup
	counts := make([]int, 8)
	for i := range counts {
		wg.Add(1)
		go func() {
			defer wg.Done()
			counts[i] = c.Count("abcdefgh")
		}()
	}
	wg.Wait()

	for _, n := range counts {
		assert.Equal(t, 2, n)
	}
}
