// Package captcha issues image challenges and manages their lifecycle:
// paired image/solution records with access budgets, lazy rendering, and
// TTL-backed expiry.
package captcha

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ammarsys/captchaAPI/internal/logging"
	"github.com/ammarsys/captchaAPI/internal/store"
)

const (
	// MinLimit and MaxLimit bound the caller-configured access budgets on
	// both the image and the solution side.
	MinLimit = 1
	MaxLimit = 19

	// DefaultTTL is how long issued records live when no TTL is configured.
	DefaultTTL = 5 * time.Minute

	lockStripes = 64
)

// Renderer turns a solution string into encoded raster image bytes.
type Renderer interface {
	Render(solution string) ([]byte, error)
}

// Challenge is the pair of opaque handles returned by Issue. The solution
// itself is never part of it.
type Challenge struct {
	CDNID      string
	SolutionID string
}

// Outcome reports how a verification attempt compared against the stored
// solution.
type Outcome struct {
	CaseSensitiveMatch   bool
	CaseInsensitiveMatch bool
}

// Engine owns the two record tables and drives the challenge lifecycle.
// Construct one per process with NewEngine and share it across handlers;
// all methods are safe for concurrent use. Atomicity of the
// read-check-increment-or-delete step is per handle, via striped locks.
type Engine struct {
	images    store.Store[ImageRecord]
	solutions store.Store[SolutionRecord]
	renderer  Renderer
	ttl       time.Duration
	alphabet  string

	issued atomic.Uint64
	locks  [lockStripes]sync.Mutex
}

// NewEngine wires an engine over the two record tables. A non-positive ttl
// falls back to DefaultTTL, an empty alphabet to DefaultAlphabet.
func NewEngine(images store.Store[ImageRecord], solutions store.Store[SolutionRecord], renderer Renderer, ttl time.Duration, alphabet string) *Engine {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if alphabet == "" {
		alphabet = DefaultAlphabet
	}
	return &Engine{
		images:    images,
		solutions: solutions,
		renderer:  renderer,
		ttl:       ttl,
		alphabet:  alphabet,
	}
}

// Issue creates one challenge: a fresh solution, an image record reachable
// through the returned CDNID and a solution record reachable through the
// returned SolutionID, both inserted with the engine's TTL. Limits outside
// [MinLimit, MaxLimit] fail with ErrInvalidParameter before any state is
// touched.
func (e *Engine) Issue(ctx context.Context, maxCDNAccess, maxSolutionCheck int) (Challenge, error) {
	if maxCDNAccess < MinLimit || maxCDNAccess > MaxLimit {
		return Challenge{}, fmt.Errorf("%w: maxCdnAccess %d not in [%d, %d]", ErrInvalidParameter, maxCDNAccess, MinLimit, MaxLimit)
	}
	if maxSolutionCheck < MinLimit || maxSolutionCheck > MaxLimit {
		return Challenge{}, fmt.Errorf("%w: maxSolutionCheck %d not in [%d, %d]", ErrInvalidParameter, maxSolutionCheck, MinLimit, MaxLimit)
	}

	solution, err := newSolution(e.alphabet)
	if err != nil {
		return Challenge{}, err
	}

	// Both handles of one challenge share the same counter value.
	n := e.issued.Add(1)
	now := time.Now()
	cdnID, err := encodeHandle(n, e.alphabet, now)
	if err != nil {
		return Challenge{}, err
	}
	solutionID, err := encodeHandle(n, e.alphabet, now)
	if err != nil {
		return Challenge{}, err
	}

	if err := e.solutions.Insert(ctx, solutionID, SolutionRecord{
		Solution: solution,
		MaxCheck: maxSolutionCheck,
	}, e.ttl); err != nil {
		return Challenge{}, fmt.Errorf("insert solution record: %w", err)
	}
	if err := e.images.Insert(ctx, cdnID, ImageRecord{
		Solution:    solution,
		ExpiresAt:   now.Add(e.ttl),
		MaxAccess:   maxCDNAccess,
		SolutionRef: solutionID,
	}, e.ttl); err != nil {
		return Challenge{}, fmt.Errorf("insert image record: %w", err)
	}

	return Challenge{CDNID: cdnID, SolutionID: solutionID}, nil
}

// Retrieve serves the rendered captcha image for cdnID. Every call counts
// against the record's access budget; the call that finds the budget
// already spent deletes the image record AND its paired solution record,
// then fails with ErrExhausted. The image is rendered on first fetch and
// memoized, so later fetches return byte-identical content.
func (e *Engine) Retrieve(ctx context.Context, cdnID string) ([]byte, error) {
	record, err := e.consumeImageAccess(ctx, cdnID)
	if err != nil {
		return nil, err
	}
	if record.Image != nil {
		return record.Image, nil
	}

	// Render outside the record lock, then install the result with a
	// set-if-absent pass. First fetches must not serialize behind
	// rendering latency.
	rendered, err := e.renderer.Render(record.Solution)
	if err != nil {
		return nil, fmt.Errorf("render captcha image: %w", err)
	}
	return e.memoizeImage(ctx, cdnID, rendered), nil
}

// Verify compares attempt with the solution behind solutionID. Every call
// counts against the record's check budget, including calls that turn out
// to carry no attempt; the call that finds the budget already spent
// deletes the solution record only and fails with ErrExhausted. The paired
// image record is left to its TTL.
func (e *Engine) Verify(ctx context.Context, solutionID, attempt string) (Outcome, error) {
	record, err := e.consumeSolutionCheck(ctx, solutionID)
	if err != nil {
		return Outcome{}, err
	}

	// The check above is already spent; an empty attempt still burned it.
	if attempt == "" {
		return Outcome{}, ErrInvalidRequest
	}

	return Outcome{
		CaseSensitiveMatch:   attempt == record.Solution,
		CaseInsensitiveMatch: foldASCII(attempt) == foldASCII(record.Solution),
	}, nil
}

// consumeImageAccess runs the read-check-increment-or-delete step for one
// cdn handle under that handle's lock.
func (e *Engine) consumeImageAccess(ctx context.Context, cdnID string) (ImageRecord, error) {
	lock := e.lockFor(cdnID)
	lock.Lock()
	defer lock.Unlock()

	record, err := e.images.Get(ctx, cdnID)
	if err != nil {
		return ImageRecord{}, asNotFound(err)
	}
	if record.AccessCount >= record.MaxAccess {
		// Over-accessing the image endpoint kills the whole challenge,
		// paired solution record included.
		if err := e.images.Delete(ctx, cdnID); err != nil {
			return ImageRecord{}, fmt.Errorf("delete exhausted image record: %w", err)
		}
		if err := e.solutions.Delete(ctx, record.SolutionRef); err != nil {
			return ImageRecord{}, fmt.Errorf("delete paired solution record: %w", err)
		}
		return ImageRecord{}, ErrExhausted
	}
	record.AccessCount++
	if err := e.images.Update(ctx, cdnID, record); err != nil {
		return ImageRecord{}, asNotFound(err)
	}
	return record, nil
}

// consumeSolutionCheck is the solution-side twin of consumeImageAccess.
// Exhaustion here deletes the solution record alone, so probing the check
// endpoint reveals nothing about the image handle's validity.
func (e *Engine) consumeSolutionCheck(ctx context.Context, solutionID string) (SolutionRecord, error) {
	lock := e.lockFor(solutionID)
	lock.Lock()
	defer lock.Unlock()

	record, err := e.solutions.Get(ctx, solutionID)
	if err != nil {
		return SolutionRecord{}, asNotFound(err)
	}
	if record.CheckCount >= record.MaxCheck {
		if err := e.solutions.Delete(ctx, solutionID); err != nil {
			return SolutionRecord{}, fmt.Errorf("delete exhausted solution record: %w", err)
		}
		return SolutionRecord{}, ErrExhausted
	}
	record.CheckCount++
	if err := e.solutions.Update(ctx, solutionID, record); err != nil {
		return SolutionRecord{}, asNotFound(err)
	}
	return record, nil
}

// memoizeImage installs freshly rendered bytes on the record unless a
// concurrent fetch got there first; whatever ends up stored is what every
// caller returns, keeping repeated fetches byte-identical.
func (e *Engine) memoizeImage(ctx context.Context, cdnID string, rendered []byte) []byte {
	lock := e.lockFor(cdnID)
	lock.Lock()
	defer lock.Unlock()

	record, err := e.images.Get(ctx, cdnID)
	if err != nil {
		// Record expired or was exhausted while we rendered. The access
		// was already counted, so serve what we drew.
		if !errors.Is(err, store.ErrNotFound) {
			logging.Logger.WithError(err).Warn("captcha image memoization failed")
		}
		return rendered
	}
	if record.Image != nil {
		return record.Image
	}
	record.Image = rendered
	if err := e.images.Update(ctx, cdnID, record); err != nil && !errors.Is(err, store.ErrNotFound) {
		logging.Logger.WithError(err).Warn("captcha image memoization failed")
	}
	return rendered
}

func (e *Engine) lockFor(key string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(key))
	return &e.locks[h.Sum32()%lockStripes]
}

func asNotFound(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

// foldASCII lower-cases ASCII letters and leaves every other byte alone.
// Solutions never leave ASCII, and a byte-wise fold keeps the
// case-insensitive comparison locale-independent for arbitrary client
// input.
func foldASCII(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
