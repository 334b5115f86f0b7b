package dice

import "go.uber.org/zap"

// Roller wraps a Source and logger to provide logged dice rolling.
// All rolls are logged at debug level with expression, dice values, modifier, and total.
type Roller struct {
	src    Source
	logger *zap.Logger
}

// NewLoggedRoller creates a Roller that rolls with src and logs each roll to logger.
//
// Precondition: src and logger must be non-nil.
func NewLoggedRoller(src Source, logger *zap.Logger) *Roller {
	return &Roller{src: src, logger: logger}
}

// Source exposes the underlying randomness so callers can share one stream.
func (r *Roller) Source() Source { return r.src }

// Roll evaluates expr and logs the result at debug level.
func (r *Roller) Roll(expr Expression) RollResult {
	result := expr.Roll(r.src)
	r.logger.Debug("dice roll",
		zap.String("expression", result.Expression),
		zap.Ints("dice", result.Dice),
		zap.Int("modifier", result.Modifier),
		zap.Int("total", result.Total()),
	)
	return result
}

// RollExpr parses expr and rolls it, logging the result.
//
// Postcondition: Returns a RollResult or a parse error.
func (r *Roller) RollExpr(expr string) (RollResult, error) {
	e, err := Parse(expr)
	if err != nil {
		return RollResult{}, err
	}
	return r.Roll(e), nil
}

// Die rolls a single die with the given number of sides, logged as "d<sides>".
//
// Precondition: sides >= 2.
func (r *Roller) Die(sides int) int {
	return r.Roll(Expression{Raw: "d" + itoa(sides), Count: 1, Sides: sides}).Total()
}

// Between draws uniformly from [lo, hi] and logs it as a range roll.
func (r *Roller) Between(label string, lo, hi int) int {
	v := Between(r.src, lo, hi)
	r.logger.Debug("range roll",
		zap.String("label", label),
		zap.Int("min", lo),
		zap.Int("max", hi),
		zap.Int("value", v),
	)
	return v
}
