package models

import "testing"

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from     string
		to       string
		expected bool
	}{
		// Happy path
		{OfferStatusRequested, OfferStatusAccepted, true},
		{OfferStatusRequested, OfferStatusCanceled, true},

		// Terminal states never move again
		{OfferStatusAccepted, OfferStatusCanceled, false},
		{OfferStatusAccepted, OfferStatusRequested, false},
		{OfferStatusCanceled, OfferStatusAccepted, false},
		{OfferStatusCanceled, OfferStatusRequested, false},

		// No self-loops, no resurrection
		{OfferStatusRequested, OfferStatusRequested, false},
		{OfferStatusAccepted, OfferStatusAccepted, false},

		// Unknown statuses
		{"nonexistent", OfferStatusAccepted, false},
		{OfferStatusRequested, "nonexistent", false},
	}

	for _, tt := range tests {
		t.Run(tt.from+"->"+tt.to, func(t *testing.T) {
			result := IsValidTransition(tt.from, tt.to)
			if result != tt.expected {
				t.Errorf("IsValidTransition(%q, %q) = %v, want %v", tt.from, tt.to, result, tt.expected)
			}
		})
	}
}

func TestAllStatusesHaveTransitionEntry(t *testing.T) {
	allStatuses := []string{OfferStatusRequested, OfferStatusAccepted, OfferStatusCanceled}

	for _, status := range allStatuses {
		if _, ok := ValidOfferTransitions[status]; !ok {
			t.Errorf("status %q missing from ValidOfferTransitions map", status)
		}
	}
}

func TestTerminalStatusesHaveNoTransitions(t *testing.T) {
	terminal := []string{OfferStatusAccepted, OfferStatusCanceled}
	for _, status := range terminal {
		transitions := ValidOfferTransitions[status]
		if len(transitions) != 0 {
			t.Errorf("terminal status %q should have no transitions, got %v", status, transitions)
		}
	}
}
