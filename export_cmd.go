package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/dgnsrekt/singlingo/player"
	"github.com/spf13/cobra"
)

var exportOutput string

var exportCmd = &cobra.Command{
	Use:   "export [ID]",
	Short: "Export a song's line analyses as seed JSON",
	Long: "\nExport every analyzed line of a saved song as a seed document keyed " +
		"by normalized line text. A seed can pre-populate analyses for another " +
		"copy of the same lyrics without calling the analysis API.",
	Args: cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		songs, err := loadLibrarySongs()
		if err != nil {
			return err
		}
		var song *player.Song
		for i := range songs {
			if songs[i].ID == args[0] {
				song = &songs[i]
				break
			}
		}
		if song == nil {
			return fmt.Errorf("no song with id %q in the library", args[0])
		}

		seed := player.ExportSeed(song.Lyrics)
		b, err := json.MarshalIndent(seed, "", "  ")
		if err != nil {
			return fmt.Errorf("unable to encode seed: %w", err)
		}
		if exportOutput != "" {
			if err := os.WriteFile(exportOutput, append(b, '\n'), 0o644); err != nil { //nolint:gosec
				return fmt.Errorf("unable to write seed file: %w", err)
			}
			fmt.Printf("Wrote %d analyses to %s\n", len(seed), exportOutput)
			return nil
		}
		fmt.Println(string(b))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringVarP(&exportOutput, "output", "O", "", "write the seed to a file instead of stdout")
}
