package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"
	pmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/ivfreader"
	"github.com/pion/webrtc/v4/pkg/media/oggreader"

	"github.com/dkeye/VoiceMesh/internal/core"
)

const opusFrame = 20 * time.Millisecond

// opusSilence is a single Opus frame of digital silence.
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Device produces encoded samples for one track.
type Device interface {
	Kind() core.TrackKind
	Codec() webrtc.RTPCodecCapability
	// Next returns the next sample. io.EOF ends the capture.
	Next() (pmedia.Sample, error)
	Close() error
}

// Opener opens a fresh Device for one capture.
type Opener func(ctx context.Context) (Device, error)

// acquireErr maps an open failure onto the acquire reasons.
func acquireErr(err error) error {
	var ae *core.AcquireError
	switch {
	case errors.As(err, &ae):
		return ae
	case errors.Is(err, os.ErrPermission):
		return &core.AcquireError{Reason: core.ErrPermissionDenied, Err: err}
	default:
		return &core.AcquireError{Reason: core.ErrDeviceUnavailable, Err: err}
	}
}

type oggDevice struct {
	f           *os.File
	r           *oggreader.OggReader
	lastGranule uint64
}

// OggFile opens an Ogg/Opus file as a microphone.
func OggFile(path string) Opener {
	return func(ctx context.Context) (Device, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r, _, err := oggreader.NewWith(f)
		if err != nil {
			_ = f.Close()
			return nil, &core.AcquireError{Reason: core.ErrUnsupported, Err: fmt.Errorf("%s: %w", path, err)}
		}
		return &oggDevice{f: f, r: r}, nil
	}
}

func (d *oggDevice) Kind() core.TrackKind { return core.KindAudio }

func (d *oggDevice) Codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func (d *oggDevice) Next() (pmedia.Sample, error) {
	for {
		page, header, err := d.r.ParseNextPage()
		if err != nil {
			return pmedia.Sample{}, err
		}
		// header pages carry no granule advance
		if header.GranulePosition <= d.lastGranule {
			continue
		}
		count := header.GranulePosition - d.lastGranule
		d.lastGranule = header.GranulePosition
		return pmedia.Sample{Data: page, Duration: time.Duration(count) * time.Second / 48000}, nil
	}
}

func (d *oggDevice) Close() error { return d.f.Close() }

type ivfDevice struct {
	f     *os.File
	r     *ivfreader.IVFReader
	mime  string
	frame time.Duration
}

// IVFFile opens a VP8, VP9 or AV1 IVF file as a camera.
func IVFFile(path string) Opener {
	return func(ctx context.Context) (Device, error) {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		r, header, err := ivfreader.NewWith(f)
		if err != nil {
			_ = f.Close()
			return nil, &core.AcquireError{Reason: core.ErrUnsupported, Err: fmt.Errorf("%s: %w", path, err)}
		}
		mime, ok := ivfMime(header.FourCC)
		if !ok {
			_ = f.Close()
			return nil, &core.AcquireError{Reason: core.ErrUnsupported, Err: fmt.Errorf("%s: codec %q", path, header.FourCC)}
		}
		frame := 33 * time.Millisecond
		if header.TimebaseDenominator != 0 {
			frame = time.Duration(header.TimebaseNumerator) * time.Second / time.Duration(header.TimebaseDenominator)
		}
		return &ivfDevice{f: f, r: r, mime: mime, frame: frame}, nil
	}
}

func ivfMime(fourcc string) (string, bool) {
	switch fourcc {
	case "VP80":
		return webrtc.MimeTypeVP8, true
	case "VP90":
		return webrtc.MimeTypeVP9, true
	case "AV01":
		return webrtc.MimeTypeAV1, true
	}
	return "", false
}

func (d *ivfDevice) Kind() core.TrackKind { return core.KindVideo }

func (d *ivfDevice) Codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: d.mime, ClockRate: 90000}
}

func (d *ivfDevice) Next() (pmedia.Sample, error) {
	frame, _, err := d.r.ParseNextFrame()
	if err != nil {
		return pmedia.Sample{}, err
	}
	return pmedia.Sample{Data: frame, Duration: d.frame}, nil
}

func (d *ivfDevice) Close() error { return d.f.Close() }

type silenceDevice struct {
	closed chan struct{}
	once   sync.Once
}

// Silence is a microphone that produces Opus silence until closed.
func Silence() Opener {
	return func(ctx context.Context) (Device, error) {
		return &silenceDevice{closed: make(chan struct{})}, nil
	}
}

func (d *silenceDevice) Kind() core.TrackKind { return core.KindAudio }

func (d *silenceDevice) Codec() webrtc.RTPCodecCapability {
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func (d *silenceDevice) Next() (pmedia.Sample, error) {
	select {
	case <-d.closed:
		return pmedia.Sample{}, io.EOF
	default:
	}
	return pmedia.Sample{Data: opusSilence, Duration: opusFrame}, nil
}

func (d *silenceDevice) Close() error {
	d.once.Do(func() { close(d.closed) })
	return nil
}
