package models

// GuardrailVerdict is the outcome of one guardrail stage for one phase
// invocation. It is a value, immutable once produced: a rejection is a
// normal business outcome, not an error.
type GuardrailVerdict struct {
	Passed  bool     `json:"passed"`
	Reasons []string `json:"reasons"`
}

// Pass returns a passing verdict
func Pass() GuardrailVerdict {
	return GuardrailVerdict{Passed: true}
}

// Reject returns a failing verdict with the accumulated reasons
func Reject(reasons ...string) GuardrailVerdict {
	return GuardrailVerdict{Passed: false, Reasons: reasons}
}

// Merge combines two verdicts: the result passes only if both pass, and
// reasons accumulate in order.
func (v GuardrailVerdict) Merge(other GuardrailVerdict) GuardrailVerdict {
	merged := GuardrailVerdict{
		Passed:  v.Passed && other.Passed,
		Reasons: make([]string, 0, len(v.Reasons)+len(other.Reasons)),
	}
	merged.Reasons = append(merged.Reasons, v.Reasons...)
	merged.Reasons = append(merged.Reasons, other.Reasons...)
	if len(merged.Reasons) == 0 {
		merged.Reasons = nil
	}
	return merged
}
