// Package main provides the entry point for the SingLingo CLI application.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/dgnsrekt/singlingo/gemini"
	"github.com/dgnsrekt/singlingo/internal/audio"
	"github.com/dgnsrekt/singlingo/library"
	"github.com/dgnsrekt/singlingo/lrc"
	"github.com/dgnsrekt/singlingo/player"
	"github.com/dgnsrekt/singlingo/ui"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	mouse      bool
	offline    bool
	lookahead  bool
	watchLRC   bool
	silent     bool

	envCfg envOverrides

	rootCmd = &cobra.Command{
		Use:   "singlingo [AUDIO] [LRC]",
		Short: "Sing along and study lyrics on the CLI",
		Long: "\nPlay a song with time-synced lyrics, loop tricky lines, and get " +
			"per-line pronunciation analysis and translations as you listen.",
		SilenceErrors:    false,
		SilenceUsage:     true,
		TraverseChildren: true,
		Args:             cobra.MaximumNArgs(2),
		ValidArgsFunction: func(*cobra.Command, []string, string) ([]string, cobra.ShellCompDirective) {
			return nil, cobra.ShellCompDirectiveDefault
		},
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return loadOptions()
		},
		RunE: execute,
	}
)

// envOverrides holds settings that only make sense as environment
// variables. The API key in particular should stay off argv.
type envOverrides struct {
	GeminiAPIKey string `env:"SINGLINGO_GEMINI_API_KEY"`
	LogFile      string `env:"SINGLINGO_LOGFILE"`
	Debug        bool   `env:"SINGLINGO_DEBUG"`
}

func loadOptions() error {
	mouse = viper.GetBool("mouse")
	offline = viper.GetBool("offline")
	lookahead = viper.GetBool("lookahead")
	silent = viper.GetBool("silent")
	return nil
}

func execute(_ *cobra.Command, args []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("singlingo needs a terminal; use the library and export subcommands for scripting")
	}

	var audioPath, lrcPath string
	switch len(args) {
	case 1:
		audioPath = args[0]
		lrcPath = siblingLRC(audioPath)
	case 2:
		audioPath, lrcPath = args[0], args[1]
	}
	return runTUI(audioPath, lrcPath)
}

// siblingLRC looks for an .lrc file next to the audio file, sharing its
// base name.
func siblingLRC(audioPath string) string {
	candidate := strings.TrimSuffix(audioPath, filepath.Ext(audioPath)) + ".lrc"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func runTUI(audioPath, lrcPath string) error {
	element, err := newElement()
	if err != nil {
		return err
	}

	analyzer := gemini.New(gemini.Config{
		APIKey:            geminiKey(),
		Models:            viper.GetStringSlice("gemini.models"),
		RequestsPerMinute: viper.GetInt("gemini.requests_per_minute"),
	})
	if analyzer.Offline() {
		log.Info("no Gemini API key configured, analysis runs in offline mode")
	}

	var store player.SongStore
	if path, err := libraryPath(); err != nil {
		log.Warn("could not locate the library", "err", err)
	} else if lib, err := library.Open(path); err != nil {
		log.Warn("could not open the library, songs will not persist", "path", path, "err", err)
	} else {
		store = lib
		defer lib.Close() //nolint:errcheck
	}

	ctrl := player.NewController(element, &audio.Factory{}, analyzer, store, player.ControllerConfig{
		Lookahead:     lookahead,
		RecoverableID: demoSongID,
		RecoverFetch:  fetchDemoAudio,
	})
	defer ctrl.Close()

	song, err := startupSong(audioPath, lrcPath, store)
	if err != nil {
		return err
	}
	if err := ctrl.LoadSong(song); err != nil {
		return fmt.Errorf("unable to load song: %w", err)
	}

	if watchLRC && lrcPath != "" {
		stop, err := watchLyrics(lrcPath, ctrl)
		if err != nil {
			log.Warn("lyrics watcher unavailable", "path", lrcPath, "err", err)
		} else {
			defer stop()
		}
	}

	if _, err := ui.NewProgram(ui.Config{
		Controller: ctrl,
		Library:    store,
		ShowMouse:  mouse,
	}).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func newElement() (player.Element, error) {
	if silent {
		return audio.NewMockElement(), nil
	}
	e, err := audio.NewElement()
	if err != nil {
		log.Warn("audio device unavailable, simulating playback", "err", err)
		return audio.NewMockElement(), nil
	}
	return e, nil
}

func geminiKey() string {
	if offline {
		return ""
	}
	if envCfg.GeminiAPIKey != "" {
		return envCfg.GeminiAPIKey
	}
	return viper.GetString("gemini.api_key")
}

func libraryPath() (string, error) {
	if p := viper.GetString("library.path"); p != "" {
		return p, nil
	}
	scope := gap.NewScope(gap.User, "singlingo")
	return scope.DataPath("library.db")
}

// startupSong picks what to play: the files given on the command line, the
// most recent library song, or the bundled demo.
func startupSong(audioPath, lrcPath string, store player.SongStore) (player.Song, error) {
	if audioPath != "" {
		content, err := os.ReadFile(audioPath)
		if err != nil {
			return player.Song{}, fmt.Errorf("unable to read audio file: %w", err)
		}
		var lines []player.TimedLine
		if lrcPath != "" {
			lines, err = lrc.ParseFile(lrcPath)
			if err != nil {
				return player.Song{}, fmt.Errorf("unable to read lyrics file: %w", err)
			}
		}
		name := strings.TrimSuffix(filepath.Base(audioPath), filepath.Ext(audioPath))
		return player.Song{
			ID:        uuid.NewString(),
			Name:      name,
			Audio:     content,
			Lyrics:    lines,
			CreatedAt: time.Now(),
		}, nil
	}

	if store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		songs, err := store.LoadAll(ctx)
		if err != nil {
			log.Warn("could not load the library", "err", err)
		}
		if len(songs) > 0 {
			return songs[0], nil
		}
	}
	return demoSong(store), nil
}

// watchLyrics reloads the LRC file into the running session whenever it
// changes. The parent directory is watched because editors tend to replace
// files rather than write them in place.
func watchLyrics(path string, ctrl *player.Controller) (func(), error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := w.Add(filepath.Dir(abs)); err != nil {
		_ = w.Close()
		return nil, err
	}
	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Name != abs || !ev.Op.Has(fsnotify.Write|fsnotify.Create) {
					continue
				}
				lines, err := lrc.ParseFile(abs)
				if err != nil {
					log.Warn("could not reload lyrics", "path", abs, "err", err)
					continue
				}
				ctrl.SetLyrics(lines)
				log.Debug("reloaded lyrics", "path", abs, "lines", len(lines))
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				log.Warn("lyrics watcher error", "err", err)
			}
		}
	}()
	return func() { _ = w.Close() }, nil
}

func setupLog() (func() error, error) {
	cfg, err := env.ParseAs[envOverrides]()
	if err != nil {
		return nil, fmt.Errorf("error parsing environment: %w", err)
	}
	envCfg = cfg

	if cfg.Debug {
		log.SetLevel(log.DebugLevel)
	}
	if cfg.LogFile == "" {
		// The TUI owns the terminal, so without a log file there is
		// nowhere safe to write.
		log.SetOutput(io.Discard)
		return func() error { return nil }, nil
	}
	f, err := os.OpenFile(cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644) //nolint:gosec
	if err != nil {
		return nil, fmt.Errorf("error setting up logging: %w", err)
	}
	log.SetOutput(f)
	return f.Close, nil
}

func main() {
	closer, err := setupLog()
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	if err := rootCmd.Execute(); err != nil {
		_ = closer()
		os.Exit(1)
	}
	_ = closer()
}

func init() {
	tryLoadConfigFromDefaultPlaces()
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", fmt.Sprintf("config file (default %s)", viper.GetViper().ConfigFileUsed()))
	rootCmd.Flags().BoolVarP(&mouse, "mouse", "m", false, "enable mouse wheel")
	_ = rootCmd.Flags().MarkHidden("mouse")
	rootCmd.Flags().BoolVarP(&offline, "offline", "o", false, "skip the analysis API even when a key is configured")
	rootCmd.Flags().BoolVar(&lookahead, "lookahead", true, "analyze the next line ahead of playback")
	rootCmd.Flags().BoolVarP(&watchLRC, "watch", "w", false, "reload the LRC file when it changes")
	rootCmd.Flags().BoolVar(&silent, "silent", false, "simulate playback without an audio device")

	// Config bindings
	_ = viper.BindPFlag("mouse", rootCmd.Flags().Lookup("mouse"))
	_ = viper.BindPFlag("offline", rootCmd.Flags().Lookup("offline"))
	_ = viper.BindPFlag("lookahead", rootCmd.Flags().Lookup("lookahead"))
	_ = viper.BindPFlag("silent", rootCmd.Flags().Lookup("silent"))

	viper.SetDefault("lookahead", true)
	viper.SetDefault("gemini.requests_per_minute", 15)

	rootCmd.AddCommand(configCmd, libraryCmd, exportCmd, manCmd)
}

func tryLoadConfigFromDefaultPlaces() {
	scope := gap.NewScope(gap.User, "singlingo")
	dirs, err := scope.ConfigDirs()
	if err != nil {
		fmt.Println("Could not load find configuration directory.")
		os.Exit(1)
	}

	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, "singlingo")}, dirs...)
	}

	if c := os.Getenv("SINGLINGO_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}

	for _, v := range dirs {
		viper.AddConfigPath(v)
	}

	viper.SetConfigName("singlingo")
	viper.SetConfigType("yaml")
	viper.SetEnvPrefix("singlingo")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			log.Warn("Could not parse configuration file", "err", err)
		}
	}

	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", viper.ConfigFileUsed())
		return
	}

	if viper.ConfigFileUsed() == "" {
		configFile = filepath.Join(dirs[0], "singlingo.yml")
	}
	if err := ensureConfigFile(); err != nil {
		log.Error("Could not create default configuration", "error", err)
	}
}
