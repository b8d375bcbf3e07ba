package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/pion/webrtc/v4"
	"github.com/pterm/pterm"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/dkeye/VoiceMesh/internal/adapters/ice"
	"github.com/dkeye/VoiceMesh/internal/adapters/media"
	"github.com/dkeye/VoiceMesh/internal/adapters/rtc"
	wssignal "github.com/dkeye/VoiceMesh/internal/adapters/signal"
	"github.com/dkeye/VoiceMesh/internal/app/events"
	"github.com/dkeye/VoiceMesh/internal/app/orch"
	"github.com/dkeye/VoiceMesh/internal/config"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

var joinCmd = &cobra.Command{
	Use:   "join",
	Short: "Join a room and stay until leave or quit",
	Long: `Join a room and exchange media with everyone in it.

Examples:
  peer join --room r1
  peer join --room r1 --user alice --audio mic.ogg --video cam.ivf --screen screen.ivf
  peer join --room r1 --record ./received`,
	PreRunE: func(cmd *cobra.Command, args []string) error {
		return bindFlags(cmd, peerViper)
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.LoadPeer(peerViper)
		if err != nil {
			return err
		}
		return runJoin(cmd.Context(), cfg)
	},
}

func init() {
	f := joinCmd.Flags()
	f.String("room", "", "room to join")
	f.String("user", "", "participant id (generated when empty)")
	f.String("signal", "", "signaling server websocket URL")
	f.String("token", "", "room join token")
	f.String("ice_url", "", "ICE credentials endpoint")
	f.StringSlice("stun", nil, "static STUN/TURN URLs")
	f.String("initiator", "", "who offers first: lower-id or always")
	f.String("audio", "", "Ogg/Opus file used as microphone (silence when empty)")
	f.String("video", "", "IVF file used as camera")
	f.String("screen", "", "IVF file used as screen capture")
	f.String("share_mode", "", "screen share mode: replace or add")
	f.String("record", "", "directory to write received streams into")
	f.String("log_level", "", "log level")
}

func buildOrchestrator(cfg *config.PeerConfig) (*orch.Orchestrator, error) {
	api, err := rtc.NewAPI(cfg.PLIInterval)
	if err != nil {
		return nil, err
	}

	mc := media.Config{Microphone: media.Silence()}
	if cfg.Audio != "" {
		mc.Microphone = media.OggFile(cfg.Audio)
	}
	if cfg.Video != "" {
		mc.Camera = media.IVFFile(cfg.Video)
	}
	if cfg.Screen != "" {
		mc.Screen = media.IVFFile(cfg.Screen)
	}

	static := rtc.DefaultICEServers()
	if len(cfg.STUN) > 0 {
		static = []webrtc.ICEServer{{URLs: cfg.STUN}}
	}

	deps := orch.Deps{
		Media:      media.NewSource(mc),
		Transports: wssignal.Factory(wssignal.ClientConfig{URL: cfg.SignalURL, Token: cfg.Token}),
		Conns:      rtc.Factory{API: api},
	}
	if cfg.ICEURL != "" {
		deps.ICE = ice.HTTPSource{URL: cfg.ICEURL, Static: static}
	}
	return orch.New(deps, orch.Config{
		Constraints:  core.Constraints{Audio: true, Video: cfg.Video != ""},
		Initiator:    orch.InitiatorPolicy(cfg.Initiator),
		StaticICE:    static,
		AnomalyLimit: cfg.AnomalyLimit,
	}), nil
}

func runJoin(parent context.Context, cfg *config.PeerConfig) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	o, err := buildOrchestrator(cfg)
	if err != nil {
		return err
	}
	defer o.Close()

	var rec *recorder
	if cfg.Record != "" {
		if rec, err = newRecorder(cfg.Record); err != nil {
			return err
		}
		defer func() {
			if err := rec.Close(); err != nil {
				log.Warn().Err(err).Str("module", "peer").Msg("failed to close recordings")
			}
		}()
	}

	subs := watchEvents(o.Events(), rec)
	defer func() {
		for _, s := range subs {
			s.Unsubscribe()
		}
	}()

	spinner, _ := pterm.DefaultSpinner.Start("Joining room " + cfg.Room + "...")
	if _, err := o.Join(ctx, domain.RoomID(cfg.Room), domain.ParticipantID(cfg.User)); err != nil {
		spinner.Fail(err.Error())
		return err
	}
	spinner.Success(fmt.Sprintf("Joined %s as %s", cfg.Room, o.Self()))
	pterm.Info.Println("commands: mute, unmute, video off|on, share, unshare, deafen|hear <id>, hide|show <id>, links, status, leave, quit")

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	c := &console{o: o, shareMode: parseShareMode(cfg.ShareMode)}
	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			quit, err := c.exec(ctx, line)
			if err != nil {
				pterm.Warning.Println(err.Error())
			}
			if quit {
				return nil
			}
		}
	}
}

func watchEvents(bus *events.Bus, rec *recorder) []*events.Subscription {
	return []*events.Subscription{
		bus.Joined.Subscribe(func(e events.ParticipantJoined) {
			pterm.Success.Printfln("%s joined", e.ID)
		}),
		bus.Left.Subscribe(func(e events.ParticipantLeft) {
			pterm.Info.Printfln("%s left", e.ID)
		}),
		bus.Track.Subscribe(func(e events.RemoteTrackAvailable) {
			pterm.Info.Printfln("receiving stream %s from %s", e.Stream.ID, e.ID)
			if rec == nil {
				return
			}
			if err := rec.attach(e); err != nil {
				log.Warn().Err(err).Str("module", "peer").Str("remote", string(e.ID)).Msg("failed to record stream")
			}
		}),
		bus.Degraded.Subscribe(func(e events.SessionDegraded) {
			pterm.Warning.Printfln("signaling lost: %v (existing links stay up)", e.Err)
		}),
		bus.Failed.Subscribe(func(e events.LinkFailed) {
			log.Warn().Err(e.Err).Str("module", "peer").Str("remote", string(e.ID)).Msg("link failed")
			pterm.Error.Printfln("link to %s failed", e.ID)
		}),
	}
}
