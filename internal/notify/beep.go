//go:build voice

package notify

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Cue plays a short mp3 to signal that the assistant is listening. The file
// is decoded once and kept in memory.
type Cue struct {
	path string

	once sync.Once
	buf  *beep.Buffer
	err  error
}

func NewCue(path string) *Cue {
	return &Cue{path: path}
}

func (c *Cue) load() error {
	c.once.Do(func() {
		f, err := os.Open(c.path)
		if err != nil {
			c.err = fmt.Errorf("open cue: %w", err)
			return
		}
		defer f.Close()

		streamer, format, err := mp3.Decode(f)
		if err != nil {
			c.err = fmt.Errorf("decode cue: %w", err)
			return
		}
		defer streamer.Close()

		c.buf = beep.NewBuffer(format)
		c.buf.Append(streamer)

		if err := speaker.Init(format.SampleRate, format.SampleRate.N(time.Second/10)); err != nil {
			c.err = fmt.Errorf("init speaker: %w", err)
		}
	})
	return c.err
}

// Play blocks until the cue has finished.
func (c *Cue) Play() error {
	if err := c.load(); err != nil {
		return err
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(c.buf.Streamer(0, c.buf.Len()), beep.Callback(func() {
		close(done)
	})))
	<-done
	return nil
}
