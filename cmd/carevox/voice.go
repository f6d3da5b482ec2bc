//go:build voice

package main

import (
	"fmt"
	log "log/slog"
	"time"

	"carevox/internal/audio"
	"carevox/internal/config"
	"carevox/internal/notify"
	"carevox/internal/tts"
	"carevox/internal/vox"
	"carevox/pkg/stt"
)

func newTranscriber(cfg *config.Config) (vox.Transcriber, func(), error) {
	tr, err := stt.NewTranscriber(cfg.WhisperModel, stt.DefaultOptions())
	if err != nil {
		return nil, func() {}, fmt.Errorf("load whisper: %w", err)
	}
	log.Debug("Loaded whisper", "model", cfg.WhisperModel)
	return tr, func() { _ = tr.Close() }, nil
}

func openVoice(cfg *config.Config) (*frontEnd, error) {
	rec := audio.NewRecorder()
	if err := rec.Init(); err != nil {
		return nil, fmt.Errorf("init audio: %w", err)
	}
	log.Debug("Loaded recorder")

	tr, err := stt.NewTranscriber(cfg.WhisperModel, stt.DefaultOptions())
	if err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("load whisper: %w", err)
	}
	log.Debug("Loaded whisper", "model", cfg.WhisperModel)

	speaker := tts.NewEspeak("en", tts.NewSettings(tts.DefaultRate, tts.DefaultVolume))
	cue := notify.NewCue("beep.mp3")

	listener := &audio.Listener{
		Capture:    rec,
		Transcribe: tr,
		Ducker:     audio.NewDucker(audio.Pactl{}, []string{"carevox", "espeak-ng"}, 10),
		Cue: func() {
			if err := cue.Play(); err != nil {
				log.Debug("Listening cue failed", "err", err)
			}
		},
	}

	return &frontEnd{
		listener: listener,
		speaker:  speaker,
		tuner:    speaker,
		close: func() {
			_ = speaker.Close()
			_ = tr.Close()
			_ = rec.Close()
		},
		sentencePause: 300 * time.Millisecond,
		itemPause:     time.Second,
		turnPause:     500 * time.Millisecond,
	}, nil
}
