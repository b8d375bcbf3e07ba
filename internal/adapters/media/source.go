package media

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/VoiceMesh/internal/core"
)

// Config names the devices behind each capture. A nil opener means the
// device is absent.
type Config struct {
	Microphone Opener
	Camera     Opener
	Screen     Opener
	// Preview receives every captured sample, enabled or not.
	Preview func(kind core.TrackKind, s pmedia.Sample)
}

type sampleWriter interface {
	WriteSample(s pmedia.Sample) error
}

type pump struct {
	kind    core.TrackKind
	dev     Device
	track   *webrtc.TrackLocalStaticSample
	enabled *atomic.Bool
}

type handle struct {
	id     string
	pumps  []*pump
	cancel context.CancelFunc
	wg     conc.WaitGroup
	ended  chan struct{}
	once   sync.Once
}

func (h *handle) ID() string { return h.id }

func (h *handle) Tracks() []webrtc.TrackLocal {
	out := make([]webrtc.TrackLocal, 0, len(h.pumps))
	for _, p := range h.pumps {
		out = append(out, p.track)
	}
	return out
}

func (h *handle) Track(kind core.TrackKind) (webrtc.TrackLocal, bool) {
	for _, p := range h.pumps {
		if p.kind == kind {
			return p.track, true
		}
	}
	return nil, false
}

func (h *handle) Ended() <-chan struct{} { return h.ended }

func (h *handle) stop() {
	h.once.Do(func() {
		h.cancel()
		for _, p := range h.pumps {
			_ = p.dev.Close()
		}
		h.wg.Wait()
		close(h.ended)
	})
}

// Source is a core.MediaSource reading encoded samples from Devices.
type Source struct {
	cfg Config

	mu      sync.Mutex
	local   *handle
	enabled map[core.TrackKind]*atomic.Bool
}

func NewSource(cfg Config) *Source {
	audio, video := &atomic.Bool{}, &atomic.Bool{}
	audio.Store(true)
	video.Store(true)
	return &Source{
		cfg:     cfg,
		enabled: map[core.TrackKind]*atomic.Bool{core.KindAudio: audio, core.KindVideo: video},
	}
}

func (s *Source) AcquireLocal(ctx context.Context, c core.Constraints) (core.MediaHandle, error) {
	var openers []Opener
	if c.Audio {
		if s.cfg.Microphone == nil {
			return nil, &core.AcquireError{Reason: core.ErrDeviceUnavailable, Err: errors.New("no microphone")}
		}
		openers = append(openers, s.cfg.Microphone)
	}
	if c.Video {
		if s.cfg.Camera == nil {
			return nil, &core.AcquireError{Reason: core.ErrDeviceUnavailable, Err: errors.New("no camera")}
		}
		openers = append(openers, s.cfg.Camera)
	}
	h, err := s.open(ctx, openers, true)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	old := s.local
	s.local = h
	s.mu.Unlock()
	if old != nil {
		old.stop()
	}
	return h, nil
}

func (s *Source) AcquireScreenShare(ctx context.Context) (core.MediaHandle, error) {
	if s.cfg.Screen == nil {
		return nil, &core.AcquireError{Reason: core.ErrUnsupported, Err: errors.New("no screen capture")}
	}
	return s.open(ctx, []Opener{s.cfg.Screen}, false)
}

func (s *Source) open(ctx context.Context, openers []Opener, gated bool) (*handle, error) {
	id := uuid.NewString()
	pctx, cancel := context.WithCancel(context.Background())
	h := &handle{id: id, cancel: cancel, ended: make(chan struct{})}

	for _, open := range openers {
		dev, err := open(ctx)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			if dev != nil {
				_ = dev.Close()
			}
			h.stop()
			return nil, acquireErr(err)
		}
		kind := dev.Kind()
		track, err := webrtc.NewTrackLocalStaticSample(dev.Codec(), kind.String()+"-"+id[:8], "mesh-"+id)
		if err != nil {
			_ = dev.Close()
			h.stop()
			return nil, &core.AcquireError{Reason: core.ErrUnsupported, Err: err}
		}
		p := &pump{kind: kind, dev: dev, track: track}
		if gated {
			p.enabled = s.enabled[kind]
		}
		h.pumps = append(h.pumps, p)
	}

	var running sync.WaitGroup
	running.Add(len(h.pumps))
	for _, p := range h.pumps {
		h.wg.Go(func() {
			defer running.Done()
			run(pctx, p.kind, p.dev, p.track, p.enabled, s.cfg.Preview)
		})
	}
	// the capture ends on its own once every device is exhausted
	go func() {
		running.Wait()
		if pctx.Err() == nil {
			log.Info().Str("module", "media").Str("handle", id).Msg("capture ended")
		}
		go h.stop()
	}()

	log.Info().Str("module", "media").Str("handle", id).Int("tracks", len(h.pumps)).Msg("capture started")
	return h, nil
}

// run paces samples from dev onto w. A disabled gate swaps the payload for a
// blank one; preview always sees the real sample.
func run(ctx context.Context, kind core.TrackKind, dev Device, w sampleWriter, gate *atomic.Bool, preview func(core.TrackKind, pmedia.Sample)) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	<-timer.C

	for {
		sample, err := dev.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && ctx.Err() == nil {
				log.Warn().Err(err).Str("module", "media").Str("kind", kind.String()).Msg("device read failed")
			}
			return
		}
		if preview != nil {
			preview(kind, sample)
		}
		out := sample
		if gate != nil && !gate.Load() {
			out = blank(kind, sample)
		}
		if err := w.WriteSample(out); err != nil && !errors.Is(err, io.ErrClosedPipe) {
			log.Debug().Err(err).Str("module", "media").Str("kind", kind.String()).Msg("write sample")
		}

		timer.Reset(sample.Duration)
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
	}
}

func blank(kind core.TrackKind, s pmedia.Sample) pmedia.Sample {
	if kind == core.KindAudio {
		return pmedia.Sample{Data: opusSilence, Duration: s.Duration}
	}
	return pmedia.Sample{Duration: s.Duration}
}

func (s *Source) SetTrackEnabled(kind core.TrackKind, enabled bool) error {
	s.mu.Lock()
	local := s.local
	s.mu.Unlock()
	if local == nil {
		return core.ErrNoLocalMedia
	}
	if _, ok := local.Track(kind); !ok {
		return core.ErrNoLocalMedia
	}
	s.enabled[kind].Store(enabled)
	return nil
}

func (s *Source) TrackEnabled(kind core.TrackKind) bool {
	gate, ok := s.enabled[kind]
	return ok && gate.Load()
}

func (s *Source) Release(mh core.MediaHandle) {
	h, ok := mh.(*handle)
	if !ok || h == nil {
		return
	}
	s.mu.Lock()
	if s.local == h {
		s.local = nil
		for _, gate := range s.enabled {
			gate.Store(true)
		}
	}
	s.mu.Unlock()
	h.stop()
	log.Debug().Str("module", "media").Str("handle", h.id).Msg("released")
}
