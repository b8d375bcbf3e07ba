package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/pterm/pterm"

	"github.com/dkeye/VoiceMesh/internal/app/orch"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

type command struct {
	name string
	arg  string
}

func parseCommand(line string) (command, error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return command{}, nil
	}
	cmd := command{name: strings.ToLower(fields[0])}
	if len(fields) > 1 {
		cmd.arg = fields[1]
	}
	switch cmd.name {
	case "mute", "unmute", "share", "unshare", "links", "status", "leave", "quit", "exit":
		cmd.arg = strings.ToLower(cmd.arg)
		return cmd, nil
	case "deafen", "hear", "hide", "show":
		if cmd.arg == "" {
			return command{}, fmt.Errorf("usage: %s <participant>", cmd.name)
		}
		return cmd, nil
	case "video":
		cmd.arg = strings.ToLower(cmd.arg)
		if cmd.arg != "on" && cmd.arg != "off" {
			return command{}, fmt.Errorf("usage: video on|off")
		}
		return cmd, nil
	}
	return command{}, fmt.Errorf("unknown command %q", cmd.name)
}

func parseShareMode(s string) orch.ShareMode {
	if strings.EqualFold(s, "add") {
		return orch.ShareAdd
	}
	return orch.ShareReplace
}

type console struct {
	o         *orch.Orchestrator
	shareMode orch.ShareMode
}

// exec runs one console line and reports whether the session is over.
func (c *console) exec(ctx context.Context, line string) (bool, error) {
	cmd, err := parseCommand(line)
	if err != nil {
		return false, err
	}
	switch cmd.name {
	case "":
		return false, nil
	case "mute":
		return false, c.o.ToggleAudio(false)
	case "unmute":
		return false, c.o.ToggleAudio(true)
	case "video":
		return false, c.o.ToggleVideo(cmd.arg == "on")
	case "share":
		mode := c.shareMode
		if cmd.arg != "" {
			mode = parseShareMode(cmd.arg)
		}
		return false, c.o.ShareScreen(ctx, mode)
	case "unshare":
		return false, c.o.StopScreenShare()
	case "deafen", "hear":
		return false, c.o.MuteRemote(domain.ParticipantID(cmd.arg), core.KindAudio, cmd.name == "deafen")
	case "hide", "show":
		return false, c.o.MuteRemote(domain.ParticipantID(cmd.arg), core.KindVideo, cmd.name == "hide")
	case "links":
		return false, c.printLinks()
	case "status":
		return false, c.printStatus()
	case "leave", "quit", "exit":
		c.o.Leave()
		return true, nil
	}
	return false, nil
}

func (c *console) printLinks() error {
	links := c.o.Links()
	if len(links) == 0 {
		pterm.Info.Println("no links")
		return nil
	}
	data := pterm.TableData{{"remote", "state", "pending", "streams", "packets", "muted"}}
	for _, l := range links {
		muted := make([]string, 0, len(l.Muted))
		for _, k := range l.Muted {
			muted = append(muted, k.String())
		}
		data = append(data, []string{
			string(l.Remote),
			l.State.String(),
			strconv.Itoa(l.Pending),
			strings.Join(l.Streams, ","),
			strconv.FormatUint(l.Packets, 10),
			strings.Join(muted, ","),
		})
	}
	return pterm.DefaultTable.WithHasHeader().WithData(data).Render()
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func (c *console) printStatus() error {
	m, err := c.o.LocalMedia()
	if err != nil {
		return err
	}
	pterm.Info.Printfln("microphone %s, camera %s, screen %s", onOff(m.Audio), onOff(m.Video), onOff(m.Sharing))
	return nil
}
