package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/frudas24/frameit/internal/ffmpeg"
	"github.com/frudas24/frameit/internal/media"
)

// newProbeCmd returns the command that reports what the upload boundary
// and ffprobe see in a file.
func newProbeCmd() *cobra.Command {
	var ffprobePath string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "probe <file>",
		Short: "Show how frameit classifies a file and its video metadata",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := args[0]
			st, err := os.Stat(path)
			if err != nil {
				return err
			}
			kind, err := sniffFile(path)
			if err != nil {
				return err
			}
			limits := media.DefaultLimits()
			if err := limits.Check(kind, st.Size()); err != nil {
				loggerFromContext(cmd.Context()).Warn("over the default upload limit", "err", err)
			}
			out := map[string]any{"kind": kind.String(), "size": humanize.IBytes(uint64(st.Size()))}
			if kind == media.KindVideo {
				info, err := ffmpeg.Probe(cmd.Context(), ffprobePath, path)
				if err != nil {
					return err
				}
				out["width"] = info.Width
				out["height"] = info.Height
				out["rotation"] = info.Rotation
				out["fps"] = info.FPS
				out["duration"] = info.Duration.String()
				out["codec"] = info.Codec
				out["audio"] = info.HasAudio
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(out)
			}
			for _, k := range []string{"kind", "size", "width", "height", "rotation", "fps", "duration", "codec", "audio"} {
				if v, ok := out[k]; ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%-9s %v\n", k+":", v)
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&ffprobePath, "ffprobe", "ffprobe", "ffprobe binary")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}
