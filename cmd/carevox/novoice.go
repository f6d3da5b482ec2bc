//go:build !voice

package main

import (
	"errors"

	"carevox/internal/config"
	"carevox/internal/vox"
)

var errNoVoice = errors.New("built without voice support; rebuild with -tags voice")

func newTranscriber(*config.Config) (vox.Transcriber, func(), error) {
	return nil, func() {}, errNoVoice
}

func openVoice(*config.Config) (*frontEnd, error) {
	return nil, errNoVoice
}
