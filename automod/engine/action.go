package engine

import (
	"math"
)

// Picks the enforcement action for an inspected message. Pure function.
//
// A risk score strictly above the threshold always results in a ban, regardless of language or trust. Below
// that, an untrusted member writing in a flagged language is warned and the message deleted. A trusted member
// is never actioned for language alone.
func SelectAction(flagged bool, risk float64, untrusted bool, threshold float64) Action {
	if clampRisk(risk) > threshold {
		return ActionDeleteAndBan
	}
	if flagged && untrusted {
		return ActionWarnAndDelete
	}
	return ActionAllow
}

// Clamps to [0.0, 1.0]. NaN is treated as zero risk.
func clampRisk(risk float64) float64 {
	if math.IsNaN(risk) || risk < 0 {
		return 0
	}
	if risk > 1 {
		return 1
	}
	return risk
}
