package main

import (
	"fmt"

	"navsync/internal/playback"

	"github.com/spf13/cobra"
)

func newSourcesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sources",
		Short: "Print the media sources each mode uses",
		Long: `Prints the media sources after applying MEDIA_CONFIG and resolving them
against BASE_URL, in the form the page reports them.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := loadSettings("")
			if err != nil {
				return err
			}
			cfg := s.Session.Playback
			out := cmd.OutOrStdout()
			rows := []struct {
				mode, panel, src string
			}{
				{playback.ModeStandard.String(), playback.TitleStandardNav, cfg.Sources.StandardVisualNav},
				{playback.ModeStandard.String(), playback.TitleStandardMap, cfg.Sources.StandardIndoorMap},
				{playback.ModeRealtime.String(), playback.TitleRealtimeNav, "(rear camera)"},
				{playback.ModeRealtime.String(), playback.TitleRealtimeMap, cfg.Sources.RealtimeIndoorLocation},
			}
			for _, r := range rows {
				src := r.src
				if src != "(rear camera)" {
					src = playback.ResolveSource(cfg.Base, src)
				}
				if _, err := fmt.Fprintf(out, "%-9s %-46s %s\n", r.mode, r.panel, src); err != nil {
					return err
				}
			}
			return nil
		},
	}
}
