package main

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dkeye/VoiceMesh/internal/config"
)

var peerViper = config.NewPeerViper()

var rootCmd = &cobra.Command{
	Use:   "peer",
	Short: "Full-mesh audio/video room participant",
	Long: `peer joins a VoiceMesh room and keeps one WebRTC connection to every
other participant. Media comes from Ogg/Opus and IVF files.`,
}

func init() {
	rootCmd.AddCommand(joinCmd)
}

func bindFlags(cmd *cobra.Command, vp *viper.Viper) error {
	return vp.BindPFlags(cmd.Flags())
}
