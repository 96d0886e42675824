package mpdaudio

import "errors"

// errNotPlaying is reported when MPD accepts the play command but never
// reaches the play state within the readiness window.
var errNotPlaying = errors.New("stream did not enter play state")
