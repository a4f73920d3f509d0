package main

import (
	"context"
	"fmt"
	"time"

	"github.com/dgnsrekt/singlingo/library"
	"github.com/dgnsrekt/singlingo/player"
	"github.com/dustin/go-humanize"
	"github.com/sahilm/fuzzy"
	"github.com/spf13/cobra"
)

var libraryFilter string

var libraryCmd = &cobra.Command{
	Use:   "library",
	Short: "List songs saved in the library",
	Args:  cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		songs, err := loadLibrarySongs()
		if err != nil {
			return err
		}
		if libraryFilter != "" {
			songs = filterSongs(songs, libraryFilter)
		}
		if len(songs) == 0 {
			fmt.Println("The library is empty.")
			return nil
		}
		for _, s := range songs {
			fmt.Printf("%-38s  %-40s  %4d lines  %10s  %s\n",
				s.ID, s.Name, len(s.Lyrics),
				humanize.Bytes(uint64(len(s.Audio))),
				humanize.Time(s.CreatedAt))
		}
		return nil
	},
}

var libraryDeleteCmd = &cobra.Command{
	Use:   "delete [ID]",
	Short: "Delete a song from the library",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		lib, err := openLibrary()
		if err != nil {
			return err
		}
		defer lib.Close() //nolint:errcheck

		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := lib.Delete(ctx, args[0]); err != nil {
			return fmt.Errorf("unable to delete song: %w", err)
		}
		fmt.Println("Deleted", args[0])
		return nil
	},
}

func openLibrary() (*library.Library, error) {
	path, err := libraryPath()
	if err != nil {
		return nil, fmt.Errorf("unable to locate the library: %w", err)
	}
	lib, err := library.Open(path)
	if err != nil {
		return nil, fmt.Errorf("unable to open the library: %w", err)
	}
	return lib, nil
}

func loadLibrarySongs() ([]player.Song, error) {
	lib, err := openLibrary()
	if err != nil {
		return nil, err
	}
	defer lib.Close() //nolint:errcheck

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	songs, err := lib.LoadAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("unable to load the library: %w", err)
	}
	return songs, nil
}

func filterSongs(songs []player.Song, query string) []player.Song {
	names := make([]string, len(songs))
	for i, s := range songs {
		names[i] = s.Name
	}
	matches := fuzzy.Find(query, names)
	out := make([]player.Song, 0, len(matches))
	for _, m := range matches {
		out = append(out, songs[m.Index])
	}
	return out
}

func init() {
	libraryCmd.Flags().StringVarP(&libraryFilter, "filter", "f", "", "fuzzy-filter songs by name")
	libraryCmd.AddCommand(libraryDeleteCmd)
}
