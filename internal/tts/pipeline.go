// Package tts turns text into WAV audio through an ordered list of synthesis
// tiers: a primary neural backend, a simpler fallback backend, and a silence
// generator that cannot fail.
package tts

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"
)

// TierName identifies which tier produced a synthesis result.
type TierName string

const (
	TierPrimary  TierName = "primary"
	TierFallback TierName = "fallback"
	TierSilence  TierName = "silence"
)

// Tier is one synthesis strategy. A failing tier returns an error and the
// pipeline moves on; it never aborts the request.
type Tier interface {
	Name() TierName
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Result carries the synthesized WAV bytes and, for diagnostics, the tier
// that produced them.
type Result struct {
	Audio []byte
	Tier  TierName
}

// Pipeline walks its tiers in order and returns the first success. The last
// tier must be total, which makes the pipeline itself total once input
// validation has passed.
type Pipeline struct {
	tiers  []Tier
	maxLen int
	onMiss func(tier TierName, err error)
}

// Option tweaks pipeline construction.
type Option func(*Pipeline)

// WithTierMissHook registers a callback invoked whenever a tier fails over,
// used for logging and metrics.
func WithTierMissHook(hook func(tier TierName, err error)) Option {
	return func(p *Pipeline) { p.onMiss = hook }
}

// NewPipeline builds a pipeline over the given tiers. maxLen bounds the
// accepted text length in characters.
func NewPipeline(maxLen int, tiers []Tier, opts ...Option) (*Pipeline, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("pipeline requires at least one tier")
	}
	if maxLen <= 0 {
		maxLen = 5000
	}
	p := &Pipeline{tiers: tiers, maxLen: maxLen}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// ValidationError marks caller-fixable input problems. Handlers map it to a
// 400; everything past validation cannot error.
type ValidationError struct{ msg string }

func (e *ValidationError) Error() string { return e.msg }

// Synthesize validates text and runs the tiers. It returns an error only for
// invalid input; the silence tier guarantees audio for everything else.
func (p *Pipeline) Synthesize(ctx context.Context, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, &ValidationError{msg: "text cannot be empty"}
	}
	// Bound is in characters, not bytes; multibyte scripts stay within it.
	if utf8.RuneCountInString(text) > p.maxLen {
		return Result{}, &ValidationError{msg: fmt.Sprintf("text too long (max %d characters)", p.maxLen)}
	}

	var lastErr error
	for _, tier := range p.tiers {
		audio, err := tier.Synthesize(ctx, text)
		if err == nil && len(audio) > 0 {
			return Result{Audio: audio, Tier: tier.Name()}, nil
		}
		if err == nil {
			err = fmt.Errorf("tier %s returned empty audio", tier.Name())
		}
		lastErr = err
		if p.onMiss != nil {
			p.onMiss(tier.Name(), err)
		}
	}

	// Unreachable when the silence tier is installed last; kept so a
	// misconfigured tier list fails loudly instead of returning nothing.
	return Result{}, fmt.Errorf("all synthesis tiers failed: %w", lastErr)
}
