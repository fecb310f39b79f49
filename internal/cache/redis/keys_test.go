package redis

import "testing"

func TestHasPattern(t *testing.T) {
	tests := map[string]bool{
		"markets:*": true,
		"bets:u?":   true,
		"bets:[ab]": true,
		"markets:7": false,
		"status":    false,
	}
	for ch, want := range tests {
		if got := hasPattern(ch); got != want {
			t.Errorf("hasPattern(%q) = %v, want %v", ch, got, want)
		}
	}
}

func TestKeyLayout(t *testing.T) {
	if got := matchKey(42); got != "match:42" {
		t.Errorf("matchKey = %q", got)
	}
	if got := lockKey("archive:settled_bets"); got != "lock:archive:settled_bets" {
		t.Errorf("lockKey = %q", got)
	}
	if got := rateLimitKey("bets:u1"); got != "ratelimit:bets:u1" {
		t.Errorf("rateLimitKey = %q", got)
	}
}
