package hotkey

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDecideModifierOnly(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	hk := optionOnly()

	tests := []struct {
		name       string
		minKeyTime time.Duration
		elapsed    time.Duration
		want       Decision
	}{
		{"below configured minimum", 200 * time.Millisecond, 150 * time.Millisecond, DecisionDiscardShortRecording},
		{"above minimum but below floor", 200 * time.Millisecond, 250 * time.Millisecond, DecisionDiscardShortRecording},
		{"at the floor", 200 * time.Millisecond, 300 * time.Millisecond, DecisionProceedToTranscription},
		{"well past the floor", 200 * time.Millisecond, 400 * time.Millisecond, DecisionProceedToTranscription},
		{"user minimum above floor wins", 500 * time.Millisecond, 400 * time.Millisecond, DecisionDiscardShortRecording},
		{"user minimum above floor met", 500 * time.Millisecond, 600 * time.Millisecond, DecisionProceedToTranscription},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Decide(DecisionContext{
				Hotkey:         hk,
				MinimumKeyTime: tt.minKeyTime,
				RecordingStart: start,
				Now:            start.Add(tt.elapsed),
			})
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecideKeyModifierAlwaysProceeds(t *testing.T) {
	start := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for _, elapsed := range []time.Duration{0, 50 * time.Millisecond, 10 * time.Second} {
		got := Decide(DecisionContext{
			Hotkey:         cmdShiftD(),
			MinimumKeyTime: 200 * time.Millisecond,
			RecordingStart: start,
			Now:            start.Add(elapsed),
		})
		assert.Equal(t, DecisionProceedToTranscription, got, "elapsed=%v", elapsed)
	}
}

func TestDecideMissingStartTimeDiscards(t *testing.T) {
	got := Decide(DecisionContext{
		Hotkey:         optionOnly(),
		MinimumKeyTime: 200 * time.Millisecond,
		Now:            time.Now(),
	})
	assert.Equal(t, DecisionDiscardShortRecording, got)
}
