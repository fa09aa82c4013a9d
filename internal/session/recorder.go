package session

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// Audio is a finished capture handed from the recorder to the transcriber.
// The controller never inspects the samples; the format is a private
// contract between the two collaborators.
type Audio struct {
	Samples    []byte
	SampleRate int
	Channels   int
	Duration   time.Duration
}

// Recorder captures audio for the duration of a session. Implementations
// are provided by the embedding application; this package ships only a
// no-op recorder for wiring without an audio stack.
type Recorder interface {
	// Start begins capturing. Called once per session.
	Start(ctx context.Context) error
	// Stop ends capturing and returns what was recorded.
	Stop(ctx context.Context) (Audio, error)
	// Abort ends capturing and discards everything. Idempotent.
	Abort() error
}

// Transcriber turns captured audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio Audio) (string, error)
}

// NopRecorder records nothing but tracks session timing. Used when the
// daemon runs without an audio stack, which still exercises the trigger
// and delivery machinery end to end.
type NopRecorder struct {
	mu      sync.Mutex
	started time.Time
}

func (r *NopRecorder) Start(ctx context.Context) error {
	r.mu.Lock()
	r.started = time.Now()
	r.mu.Unlock()
	return nil
}

func (r *NopRecorder) Stop(ctx context.Context) (Audio, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started.IsZero() {
		return Audio{}, fmt.Errorf("recorder was not started")
	}
	audio := Audio{Duration: time.Since(r.started)}
	r.started = time.Time{}
	return audio, nil
}

func (r *NopRecorder) Abort() error {
	r.mu.Lock()
	r.started = time.Time{}
	r.mu.Unlock()
	return nil
}

// ExecTranscriber pipes audio samples to an external command and reads the
// transcript from its stdout. The sample wiring point for a local
// speech-to-text binary; anything heavier belongs behind a purpose-built
// Transcriber.
type ExecTranscriber struct {
	// Command is the argv to run; Command[0] is the binary.
	Command []string
}

func (t *ExecTranscriber) Transcribe(ctx context.Context, audio Audio) (string, error) {
	if len(t.Command) == 0 {
		return "", fmt.Errorf("no transcriber command configured")
	}
	cmd := exec.CommandContext(ctx, t.Command[0], t.Command[1:]...)
	cmd.Stdin = bytes.NewReader(audio.Samples)
	var out bytes.Buffer
	cmd.Stdout = &out
	if err := cmd.Run(); err != nil {
		return "", fmt.Errorf("transcriber %s: %w", t.Command[0], err)
	}
	return strings.TrimSpace(out.String()), nil
}
