package rtc

import (
	"fmt"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

const DefaultPLIInterval = 3 * time.Second

func DefaultICEServers() []webrtc.ICEServer {
	return []webrtc.ICEServer{
		{URLs: []string{"stun:stun.l.google.com:19302"}},
	}
}

// NewAPI builds a pion API with the default codecs and interceptors plus a
// periodic PLI so remote video recovers quickly from loss.
func NewAPI(pliInterval time.Duration) (*webrtc.API, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	registry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, registry); err != nil {
		return nil, fmt.Errorf("register interceptors: %w", err)
	}

	if pliInterval <= 0 {
		pliInterval = DefaultPLIInterval
	}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(pliInterval))
	if err != nil {
		return nil, fmt.Errorf("interval pli: %w", err)
	}
	registry.Add(pli)

	log.Debug().Str("module", "webrtc").Dur("pli_interval", pliInterval).Msg("api initialized")
	return webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine), webrtc.WithInterceptorRegistry(registry)), nil
}

// Factory is a core.ConnectionFactory backed by one pion API.
type Factory struct {
	API *webrtc.API
}

func (f Factory) NewConnection(remote domain.ParticipantID, iceServers []webrtc.ICEServer) (core.MediaConnection, error) {
	return NewWebRTCConnection(f.API, webrtc.Configuration{ICEServers: iceServers}, remote)
}
