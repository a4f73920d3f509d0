package ui

import "github.com/dgnsrekt/singlingo/player"

// statusTickMsg drives the periodic session re-sample.
type statusTickMsg struct{}

// noticeMsg carries a transient user notice from the controller.
type noticeMsg string

// songsLoadedMsg delivers the library contents, or the load failure.
type songsLoadedMsg struct {
	songs []player.Song
	err   error
}

// songChosenMsg asks the top model to load a library song.
type songChosenMsg player.Song

// songDeletedMsg reports a finished delete so the list can reload.
type songDeletedMsg struct {
	id  string
	err error
}
