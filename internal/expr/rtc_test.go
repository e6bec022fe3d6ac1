package expr

import (
	"testing"
	"time"
)

// fixedEnv returns an environment pinned to a known instant:
// Wednesday 15 July 2026, 14:45:00 UTC.
func fixedEnv() Env {
	return Env{
		Now: time.Date(2026, time.July, 15, 14, 45, 0, 0, time.UTC),
		UTC: true,
	}
}

func TestRTCQueries(t *testing.T) {
	tests := []struct {
		src  string
		env  Env
		want float64
	}{
		{src: "rtc.y", env: fixedEnv(), want: 2026},
		// 15 July 2026 is a Wednesday: index 2 from Monday, 3 from Sunday.
		{src: "rtc.dow", env: fixedEnv(), want: 2},
		{src: "rtc.wss rtc.dow", env: fixedEnv(), want: 3},
		{src: "rtc.dom", env: fixedEnv(), want: 14},
		{src: "rtc.tod", env: fixedEnv(), want: 14.75},
		// July is month index 6.
		{src: "rtc.moy", env: fixedEnv(), want: 6},
		// Days 1-7 are aligned week 0, 8-14 week 1, 15-21 week 2.
		{src: "rtc.awm", env: fixedEnv(), want: 2},
		// 1 July 2026 is a Wednesday (offset 2 from Monday): (15-1+2)/7 = 2.
		{src: "rtc.wom", env: fixedEnv(), want: 2},
		// 1 Jan 2026 is a Thursday (offset 3): (196-1+3)/7 = 28.
		{src: "rtc.woy", env: fixedEnv(), want: 28},
	}
	for _, tt := range tests {
		t.Run(tt.src, func(t *testing.T) {
			if got := evalFloat(t, tt.src, tt.env); got != tt.want {
				t.Errorf("%q = %v, want %v", tt.src, got, tt.want)
			}
		})
	}
}

func TestRTCOneBased(t *testing.T) {
	env := fixedEnv()
	env.OneBased = true
	if got := evalFloat(t, "rtc.dom", env); got != 15 {
		t.Errorf("one-based rtc.dom = %v, want 15", got)
	}
	if got := evalFloat(t, "rtc.moy", env); got != 7 {
		t.Errorf("one-based rtc.moy = %v, want 7", got)
	}
	if got := evalFloat(t, "rtc.dow", env); got != 3 {
		t.Errorf("one-based rtc.dow = %v, want 3", got)
	}
}

func TestRTCTogglesScopedToEvaluation(t *testing.T) {
	env := fixedEnv()
	if got := evalFloat(t, "rtc.wss rtc.dow", env); got != 3 {
		t.Fatalf("sunday-start dow = %v, want 3", got)
	}

	// The wss toggle must not leak into a later evaluation of a different
	// program against the same environment value.
	if got := evalFloat(t, "rtc.dow", env); got != 2 {
		t.Errorf("dow after separate wss evaluation = %v, want 2 (monday start)", got)
	}
}

func TestRTCDeterministicWithInjectedClock(t *testing.T) {
	p := MustCompile("rtc.tod rtc.dow + rtc.dom +")
	env := fixedEnv()
	first := evalFloat(t, "rtc.tod rtc.dow + rtc.dom +", env)
	for i := 0; i < 10; i++ {
		v, ok, err := p.EvaluateFloat(env)
		if err != nil || !ok || v != first {
			t.Fatalf("iteration %d: (%v, %v, %v) differs from %v", i, v, ok, err, first)
		}
	}
}
