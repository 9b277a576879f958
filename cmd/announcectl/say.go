package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/micro-nova/lms-announce/internal/models"
)

var sayOpts struct {
	zones      []string
	repeat     int
	volume     float64
	alertSound string
	force      bool
	presence   string
	pause      float64
}

var sayCmd = &cobra.Command{
	Use:   "say [flags] MESSAGE...",
	Short: "Play an announcement on one or more zones",
	Long: `Queue an announcement on the given zones. The daemon returns as soon as
the announcement is queued; use "announcectl status" to follow playback.

Example:
  announcectl say -z kitchen -z office --volume 0.4 "Dinner is ready"`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSay,
}

func init() {
	rootCmd.AddCommand(sayCmd)

	sayCmd.Flags().StringSliceVarP(&sayOpts.zones, "zone", "z", nil,
		"Zone id (repeatable)")
	sayCmd.Flags().IntVarP(&sayOpts.repeat, "repeat", "r", 0,
		"Number of times to play the message (zone default if unset)")
	sayCmd.Flags().Float64Var(&sayOpts.volume, "volume", 0,
		"Announcement volume between 0.0 and 1.0 (zone default if unset)")
	sayCmd.Flags().StringVar(&sayOpts.alertSound, "alert-sound", "",
		"Tone played before each repetition")
	sayCmd.Flags().BoolVarP(&sayOpts.force, "force", "f", false,
		"Play even if the presence check fails")
	sayCmd.Flags().StringVar(&sayOpts.presence, "presence", "",
		"Presence entity that must be present")
	sayCmd.Flags().Float64Var(&sayOpts.pause, "pause", 0,
		"Pause in seconds between tone and message (zone default if unset)")
	_ = sayCmd.MarkFlagRequired("zone")
}

// buildAnnounce turns the flags that were set into a request.
func buildAnnounce(cmd *cobra.Command, args []string) models.AnnounceRequest {
	req := models.AnnounceRequest{
		Zones:     models.ZoneList(sayOpts.zones),
		Message:   strings.Join(args, " "),
		ForcePlay: sayOpts.force,
	}
	flags := cmd.Flags()
	if flags.Changed("repeat") {
		req.Repeat = &sayOpts.repeat
	}
	if flags.Changed("volume") {
		req.Volume = &sayOpts.volume
	}
	if flags.Changed("alert-sound") {
		req.AlertSound = &sayOpts.alertSound
	}
	if flags.Changed("presence") {
		req.PresenceIndicator = &sayOpts.presence
	}
	if flags.Changed("pause") {
		req.Pause = &sayOpts.pause
	}
	return req
}

func runSay(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), globalOpts.timeout)
	defer cancel()

	resp, err := newClient().announce(ctx, buildAnnounce(cmd, args))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	for _, a := range resp.Accepted {
		fmt.Fprintf(out, "queued %s (%s)\n", a.Zone, a.ID)
	}
	for _, z := range resp.Dropped {
		fmt.Fprintf(out, "dropped %s\n", z)
	}
	return nil
}
