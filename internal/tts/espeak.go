//go:build voice

package tts

/*
#cgo LDFLAGS: -lespeak-ng
#include <stdlib.h>
#include <espeak-ng/speak_lib.h>

static int
espeak_open(const char *voice)
{
	if (espeak_Initialize(AUDIO_OUTPUT_SYNCH_PLAYBACK, 500, NULL, 0) < 0)
	{ return -1; }

	espeak_VOICE specs = { 0 };
	specs.languages = voice;
	if (espeak_SetVoiceByProperties(&specs) != EE_OK)
	{ return -2; }

	return 0;
}

static int
espeak_say(const char *text, int rate, int volume)
{
	if (!text)
	{ return -1; }

	espeak_SetParameter(espeakRATE, rate, 0);
	espeak_SetParameter(espeakVOLUME, volume, 0);

	if (espeak_Synth(text, 0, 0, POS_CHARACTER, 0, espeakCHARS_AUTO, NULL, NULL) != EE_OK)
	{ return -2; }

	return espeak_Synchronize() == EE_OK ? 0 : -3;
}
*/
import "C"

import (
	"context"
	"fmt"
	"sync"
	"unsafe"
)

// Espeak speaks through espeak-ng. The engine is initialized on first use
// and one utterance plays at a time.
type Espeak struct {
	*Settings

	voice string

	mu      sync.Mutex
	once    sync.Once
	initErr error
}

func NewEspeak(voice string, s *Settings) *Espeak {
	if voice == "" {
		voice = "en"
	}
	if s == nil {
		s = NewSettings(DefaultRate, DefaultVolume)
	}
	return &Espeak{Settings: s, voice: voice}
}

func (e *Espeak) init() error {
	e.once.Do(func() {
		cvoice := C.CString(e.voice)
		defer C.free(unsafe.Pointer(cvoice))
		if rc := C.espeak_open(cvoice); rc != 0 {
			e.initErr = fmt.Errorf("espeak init failed: %d", int(rc))
		}
	})
	return e.initErr
}

func (e *Espeak) Speak(ctx context.Context, text string) error {
	if text == "" {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := e.init(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	ctext := C.CString(text)
	defer C.free(unsafe.Pointer(ctext))

	// espeak volume 100 is normal loudness.
	rc := C.espeak_say(ctext, C.int(e.Rate()), C.int(e.Volume()*100))
	if rc != 0 {
		return fmt.Errorf("espeak_say failed: %d", int(rc))
	}
	return nil
}

func (e *Espeak) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.initErr == nil {
		C.espeak_Terminate()
	}
	return nil
}
