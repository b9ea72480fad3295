package modelrouter

import (
	"strings"
	"testing"
)

func TestEstimateTokensGrowsWithText(t *testing.T) {
	short := EstimateTokens("hola")
	long := EstimateTokens(strings.Repeat("remind me to pay rent tomorrow ", 50))

	if short <= 0 {
		t.Errorf("short estimate = %d, want > 0", short)
	}
	if long <= short {
		t.Errorf("long estimate %d not greater than short %d", long, short)
	}
}

func TestEstimateTokensEmpty(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d, want 0", got)
	}
}

func TestEstimateTurnTokensIncludesOverheadAndHistory(t *testing.T) {
	bare := EstimateTurnTokens(nil, "hola")
	if bare <= 400 {
		t.Errorf("turn estimate %d should exceed system overhead", bare)
	}

	withHistory := EstimateTurnTokens([]string{"first message", "second message"}, "hola")
	if withHistory <= bare {
		t.Errorf("history should increase the estimate: %d vs %d", withHistory, bare)
	}
}
