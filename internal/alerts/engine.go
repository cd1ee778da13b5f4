package alerts

import (
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"

	"cryptoalert/internal/models"
)

// Engine decides whether a price sample triggers an alert condition and
// produces the message for it. Evaluation is pure except for the condition's
// own trigger state: a triggering evaluation stamps last_triggered and bumps
// trigger_count, a non-triggering one touches nothing. There is no cooldown;
// every qualifying sample re-triggers.
type Engine struct {
	log *zap.Logger
	now func() time.Time
}

// NewEngine creates an Engine.
func NewEngine(log *zap.Logger) *Engine {
	return &Engine{log: log, now: time.Now}
}

// Evaluate compares price against cond and returns whether it triggered plus
// a human-readable message. Invalid values, disabled conditions and the
// unimplemented directions never trigger and report why in the message.
func (e *Engine) Evaluate(price float64, cond *models.AlertCondition) (bool, string) {
	if !validValue(price) || !validValue(cond.Threshold) {
		return false, "invalid value"
	}
	if !cond.Enabled {
		return false, "disabled"
	}

	switch cond.Direction {
	case models.DirectionAbove:
		if price > cond.Threshold {
			e.markTriggered(cond)
			return true, fmt.Sprintf("Alert!!! %s is above threshold of $%.2f, current value is $%.2f",
				cond.CoinID, cond.Threshold, price)
		}
		return false, fmt.Sprintf("No alert. %s is still below threshold of $%.2f, current value is $%.2f",
			cond.CoinID, cond.Threshold, price)

	case models.DirectionBelow:
		if price < cond.Threshold {
			e.markTriggered(cond)
			return true, fmt.Sprintf("Alert!!! %s is below threshold of $%.2f, current value is $%.2f",
				cond.CoinID, cond.Threshold, price)
		}
		return false, fmt.Sprintf("No alert. %s is still above threshold of $%.2f, current value is $%.2f",
			cond.CoinID, cond.Threshold, price)

	case models.DirectionPercentageChange, models.DirectionVolatility:
		return false, "not implemented"

	default:
		e.log.Error("Unknown alert direction",
			zap.String("coin_id", cond.CoinID),
			zap.String("direction", string(cond.Direction)),
		)
		return false, "unknown direction"
	}
}

func (e *Engine) markTriggered(cond *models.AlertCondition) {
	now := e.now()
	cond.LastTriggered = &now
	cond.TriggerCount++
}

// validValue rejects negative and non-finite prices and thresholds.
func validValue(v float64) bool {
	return v >= 0 && !math.IsNaN(v) && !math.IsInf(v, 0)
}
