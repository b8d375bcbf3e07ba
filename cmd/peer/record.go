package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4/pkg/media/ivfwriter"
	"github.com/pion/webrtc/v4/pkg/media/oggwriter"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/core"
)

var errFileClosed = errors.New("file closed")

type rtpFile interface {
	WriteRTP(p *rtp.Packet) error
	Close() error
}

// lockedFile lets relay goroutines write while the console closes.
type lockedFile struct {
	mu     sync.Mutex
	f      rtpFile
	closed bool
}

func (l *lockedFile) WriteRTP(p *rtp.Packet) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return errFileClosed
	}
	return l.f.WriteRTP(p)
}

func (l *lockedFile) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true
	return l.f.Close()
}

// recorder writes every announced remote stream into dir, Opus audio as Ogg
// and video as IVF.
type recorder struct {
	dir string

	mu    sync.Mutex
	files []*lockedFile
}

func newRecorder(dir string) (*recorder, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create record dir: %w", err)
	}
	return &recorder{dir: dir}, nil
}

func (r *recorder) attach(e events.RemoteTrackAvailable) error {
	base := filepath.Join(r.dir, fmt.Sprintf("%s-%s", e.ID, e.Stream.ID))

	ogg, err := oggwriter.New(base+".ogg", 48000, 2)
	if err != nil {
		return fmt.Errorf("failed to open ogg writer: %w", err)
	}
	ivf, err := ivfwriter.New(base + ".ivf")
	if err != nil {
		_ = ogg.Close()
		return fmt.Errorf("failed to open ivf writer: %w", err)
	}

	audio := &lockedFile{f: ogg}
	video := &lockedFile{f: ivf}
	r.mu.Lock()
	r.files = append(r.files, audio, video)
	r.mu.Unlock()

	e.Stream.Subscribe("record-audio", core.KindAudio, audio)
	e.Stream.Subscribe("record-video", core.KindVideo, video)
	log.Info().Str("module", "peer").Str("remote", string(e.ID)).Str("stream_id", e.Stream.ID).Str("path", base).Msg("recording stream")
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	files := r.files
	r.files = nil
	r.mu.Unlock()

	var errs []error
	for _, f := range files {
		errs = append(errs, f.Close())
	}
	return errors.Join(errs...)
}
