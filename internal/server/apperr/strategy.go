package apperr

import "time"

// Strategy describes how a client should retry a failed call.
type Strategy struct {
	ShouldRetry bool
	MaxAttempts int
	Delay       time.Duration
}

// StrategyFor returns the retry strategy for code. Non-retryable codes
// always get ShouldRetry=false.
func StrategyFor(code Code) Strategy {
	if !code.Retryable() {
		return Strategy{}
	}

	switch code {
	case CodeGeminiTimeout:
		return Strategy{ShouldRetry: true, MaxAttempts: 2, Delay: 2 * time.Second}
	case CodeGeminiQuotaExceeded:
		return Strategy{ShouldRetry: true, MaxAttempts: 2, Delay: 5 * time.Second}
	default:
		return Strategy{ShouldRetry: true, MaxAttempts: 3, Delay: time.Second}
	}
}
