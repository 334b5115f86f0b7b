package narrative

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// ErrNoNarration is returned when a narrator produced no usable text.
var ErrNoNarration = errors.New("narrative: no narration produced")

// Fallback tries each narrator in order and returns the first non-empty text.
type Fallback struct {
	chain  []Narrator
	logger *zap.Logger
}

// NewFallback builds a Fallback over chain. Nil entries are skipped.
//
// Precondition: logger must be non-nil.
func NewFallback(logger *zap.Logger, chain ...Narrator) *Fallback {
	f := &Fallback{logger: logger}
	for _, n := range chain {
		if n != nil {
			f.chain = append(f.chain, n)
		}
	}
	return f
}

// Narrate implements Narrator.
//
// Postcondition: Returns an error joining every failure when no narrator succeeds.
func (f *Fallback) Narrate(ctx context.Context, req Request) (string, error) {
	var errs []error
	for i, n := range f.chain {
		text, err := n.Narrate(ctx, req)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = ErrNoNarration
		}
		f.logger.Debug("narrator failed, trying next",
			zap.Int("position", i),
			zap.String("category", string(req.Category)),
			zap.Error(err),
		)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	if len(errs) == 0 {
		return "", ErrNoNarration
	}
	return "", errors.Join(errs...)
}
