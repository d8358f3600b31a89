// Package tokens provides token counting for prompt budgeting and for
// filling in usage figures when a backend does not report them.
package tokens

import (
	"math"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Counter counts tokens for models it recognizes.
type Counter interface {
	// SupportsModel reports whether the counter knows the model's encoding.
	SupportsModel(model string) bool
	// Count returns the token count of text under the model's encoding.
	Count(model, text string) (int, error)
}

// Registry resolves a counter per model, falling back to estimation when
// no registered counter recognizes the model.
type Registry struct {
	counters []Counter
	fallback Counter
}

// NewRegistry creates a registry with the tiktoken counter registered and
// the character estimator as fallback.
func NewRegistry() *Registry {
	return &Registry{
		counters: []Counter{NewTiktokenCounter()},
		fallback: NewEstimator(),
	}
}

// Register adds a counter. Registered counters are tried in order.
func (r *Registry) Register(counter Counter) {
	r.counters = append(r.counters, counter)
}

// Count returns the token count of text for the model. It never fails:
// when no counter recognizes the model, or counting errors, the estimate
// is returned instead.
func (r *Registry) Count(model, text string) int {
	for _, c := range r.counters {
		if !c.SupportsModel(model) {
			continue
		}
		if n, err := c.Count(model, text); err == nil {
			return n
		}
	}
	n, _ := r.fallback.Count(model, text)
	return n
}

// TiktokenCounter counts with OpenAI's BPE encodings. Most of the
// supported backends expose OpenAI-compatible chat models whose
// tokenization is close enough to cl100k for budgeting purposes.
type TiktokenCounter struct {
	mu    sync.RWMutex
	cache map[tokenizer.Encoding]tokenizer.Codec
}

// NewTiktokenCounter creates a tiktoken-backed counter.
func NewTiktokenCounter() *TiktokenCounter {
	return &TiktokenCounter{cache: make(map[tokenizer.Encoding]tokenizer.Codec)}
}

// SupportsModel always reports true; unknown models fall back to the
// cl100k_base encoding rather than failing.
func (c *TiktokenCounter) SupportsModel(model string) bool {
	return true
}

// Count tokenizes text under the model's encoding.
func (c *TiktokenCounter) Count(model, text string) (int, error) {
	codec, err := c.codec(model)
	if err != nil {
		return 0, err
	}
	ids, _, err := codec.Encode(text)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

func (c *TiktokenCounter) codec(model string) (tokenizer.Codec, error) {
	if codec, err := tokenizer.ForModel(tokenizer.Model(model)); err == nil {
		return codec, nil
	}

	encoding := tokenizer.Cl100kBase

	c.mu.RLock()
	cached, ok := c.cache[encoding]
	c.mu.RUnlock()
	if ok {
		return cached, nil
	}

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[encoding] = codec
	c.mu.Unlock()
	return codec, nil
}

// Estimator approximates token counts from character length. Used when
// exact tokenization is unavailable.
type Estimator struct {
	// CharsPerToken is the assumed average characters per token.
	CharsPerToken float64
}

// NewEstimator creates an estimator with the default ratio of four
// characters per token.
func NewEstimator() *Estimator {
	return &Estimator{CharsPerToken: 4.0}
}

// SupportsModel always reports true.
func (e *Estimator) SupportsModel(model string) bool {
	return true
}

// Count estimates the token count of text.
func (e *Estimator) Count(model, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	ratio := e.CharsPerToken
	if ratio <= 0 {
		ratio = 4.0
	}
	return int(math.Ceil(float64(len(text)) / ratio)), nil
}
