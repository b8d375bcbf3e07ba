package media

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"

	"github.com/dkeye/VoiceMesh/internal/core"
)

type fakeDevice struct {
	kind core.TrackKind
	mu   sync.Mutex
	left int
	// forever ignores left and runs until closed
	forever bool
	closed  bool
}

func (d *fakeDevice) Kind() core.TrackKind { return d.kind }

func (d *fakeDevice) Codec() webrtc.RTPCodecCapability {
	if d.kind == core.KindAudio {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
}

func (d *fakeDevice) Next() (pmedia.Sample, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed || (!d.forever && d.left == 0) {
		return pmedia.Sample{}, io.EOF
	}
	d.left--
	return pmedia.Sample{Data: []byte{1, 2, 3, 4}, Duration: time.Millisecond}, nil
}

func (d *fakeDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func opener(d *fakeDevice) Opener {
	return func(context.Context) (Device, error) { return d, nil }
}

type recorder struct {
	mu      sync.Mutex
	samples []pmedia.Sample
}

func (r *recorder) WriteSample(s pmedia.Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
	return nil
}

func TestRunGatesPayloadButNotPreview(t *testing.T) {
	tests := []struct {
		name    string
		kind    core.TrackKind
		enabled bool
		want    []byte
	}{
		{"audio enabled", core.KindAudio, true, []byte{1, 2, 3, 4}},
		{"audio disabled", core.KindAudio, false, opusSilence},
		{"video disabled", core.KindVideo, false, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gate := &atomic.Bool{}
			gate.Store(tt.enabled)
			var previewed int
			rec := &recorder{}
			run(context.Background(), tt.kind, &fakeDevice{kind: tt.kind, left: 3}, rec, gate, func(core.TrackKind, pmedia.Sample) {
				previewed++
			})
			if previewed != 3 {
				t.Fatalf("preview got %d samples, want 3", previewed)
			}
			if len(rec.samples) != 3 {
				t.Fatalf("sent %d samples, want 3", len(rec.samples))
			}
			for _, s := range rec.samples {
				if string(s.Data) != string(tt.want) {
					t.Fatalf("sent %v, want %v", s.Data, tt.want)
				}
				if s.Duration != time.Millisecond {
					t.Fatalf("duration %v not preserved", s.Duration)
				}
			}
		})
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		run(ctx, core.KindAudio, &fakeDevice{kind: core.KindAudio, forever: true}, &recorder{}, nil, nil)
		close(done)
	}()
	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}
}

func TestAcquireLocalMissingDevice(t *testing.T) {
	src := NewSource(Config{Microphone: opener(&fakeDevice{kind: core.KindAudio, forever: true})})
	_, err := src.AcquireLocal(context.Background(), core.Constraints{Audio: true, Video: true})
	var ae *core.AcquireError
	if !errors.As(err, &ae) || !errors.Is(err, core.ErrDeviceUnavailable) {
		t.Fatalf("want DeviceUnavailable acquire error, got %v", err)
	}
}

func TestAcquireLocalPermissionDenied(t *testing.T) {
	cam := &fakeDevice{kind: core.KindVideo, forever: true}
	src := NewSource(Config{
		Microphone: func(context.Context) (Device, error) { return nil, os.ErrPermission },
		Camera:     opener(cam),
	})
	_, err := src.AcquireLocal(context.Background(), core.Constraints{Audio: true, Video: true})
	if !errors.Is(err, core.ErrPermissionDenied) {
		t.Fatalf("want PermissionDenied, got %v", err)
	}
}

func TestAcquireScreenShareUnsupported(t *testing.T) {
	src := NewSource(Config{})
	if _, err := src.AcquireScreenShare(context.Background()); !errors.Is(err, core.ErrUnsupported) {
		t.Fatalf("want Unsupported, got %v", err)
	}
}

func TestToggleAndRelease(t *testing.T) {
	mic := &fakeDevice{kind: core.KindAudio, forever: true}
	src := NewSource(Config{Microphone: opener(mic)})

	if err := src.SetTrackEnabled(core.KindAudio, false); !errors.Is(err, core.ErrNoLocalMedia) {
		t.Fatalf("toggle before acquire: %v", err)
	}

	h, err := src.AcquireLocal(context.Background(), core.Constraints{Audio: true})
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	if len(h.Tracks()) != 1 {
		t.Fatalf("tracks = %d, want 1", len(h.Tracks()))
	}
	if _, ok := h.Track(core.KindVideo); ok {
		t.Fatal("unexpected video track")
	}
	if err := src.SetTrackEnabled(core.KindVideo, false); !errors.Is(err, core.ErrNoLocalMedia) {
		t.Fatalf("toggle absent kind: %v", err)
	}

	if err := src.SetTrackEnabled(core.KindAudio, false); err != nil {
		t.Fatalf("toggle: %v", err)
	}
	if src.TrackEnabled(core.KindAudio) {
		t.Fatal("audio still enabled")
	}

	src.Release(h)
	src.Release(h)
	select {
	case <-h.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("handle not ended after release")
	}
	if !src.TrackEnabled(core.KindAudio) {
		t.Fatal("release did not reset the gate")
	}
}

func TestCaptureEndsWhenDeviceExhausted(t *testing.T) {
	src := NewSource(Config{Screen: opener(&fakeDevice{kind: core.KindVideo, left: 2})})
	h, err := src.AcquireScreenShare(context.Background())
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}
	select {
	case <-h.Ended():
	case <-time.After(2 * time.Second):
		t.Fatal("screen capture did not end")
	}
	src.Release(h)
}
