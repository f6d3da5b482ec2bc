package audio

import (
	"context"
	"fmt"
	"math"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

const maxVolume = 150

// Stream is one playback stream of the sound server.
type Stream struct {
	ID      int
	Volume  int // percent
	AppName string
}

// Mixer lists and sets playback stream volumes.
type Mixer interface {
	Streams(ctx context.Context) ([]Stream, error)
	SetVolume(ctx context.Context, id, percent int) error
}

type fadeTarget struct {
	id   int
	from int
	to   int
}

// Ducker lowers the volume of other applications (a television, a radio)
// while the assistant listens, and restores it afterwards. Streams whose
// application name is in selfNames are left alone.
type Ducker struct {
	mu          sync.Mutex
	mixer       Mixer
	active      bool
	selfNames   []string
	originalVol map[int]int
	minVolume   int
}

func NewDucker(mixer Mixer, selfNames []string, minVolume int) *Ducker {
	return &Ducker{
		mixer:       mixer,
		selfNames:   append([]string(nil), selfNames...),
		originalVol: make(map[int]int),
		minVolume:   min(max(minVolume, 0), maxVolume),
	}
}

// DuckOthers fades every other stream to factor of its current volume, but
// not below the minimum.
func (d *Ducker) DuckOthers(ctx context.Context, factor float64, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	d.originalVol = make(map[int]int)
	var targets []fadeTarget
	for _, s := range streams {
		if d.isSelfStream(s) {
			continue
		}
		to := math.Max(float64(s.Volume)*factor, float64(d.minVolume))
		to = math.Min(to, maxVolume)

		d.originalVol[s.ID] = s.Volume
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: int(math.Round(to))})
	}

	d.active = true
	return d.fade(ctx, targets, duration)
}

// UnduckOthers fades ducked streams back to where they were. Streams that
// appeared after ducking are not touched.
func (d *Ducker) UnduckOthers(ctx context.Context, duration time.Duration) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if !d.active {
		return nil
	}

	streams, err := d.mixer.Streams(ctx)
	if err != nil {
		return fmt.Errorf("list streams: %w", err)
	}

	var targets []fadeTarget
	for _, s := range streams {
		orig, ok := d.originalVol[s.ID]
		if !ok || d.isSelfStream(s) {
			continue
		}
		targets = append(targets, fadeTarget{id: s.ID, from: s.Volume, to: orig})
	}

	d.originalVol = make(map[int]int)
	d.active = false
	return d.fade(ctx, targets, duration)
}

func (d *Ducker) isSelfStream(s Stream) bool {
	for _, name := range d.selfNames {
		if s.AppName == name {
			return true
		}
	}
	return false
}

func (d *Ducker) fade(ctx context.Context, targets []fadeTarget, duration time.Duration) error {
	if len(targets) == 0 {
		return nil
	}

	const minStep = 10 * time.Millisecond
	steps := max(int(duration/minStep), 1)
	if duration <= 0 {
		steps = 0
	}

	for i := 0; i <= steps; i++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		frac := 1.0
		if steps > 0 {
			frac = float64(i) / float64(steps)
		}
		for _, t := range targets {
			v := int(math.Round(float64(t.from) + float64(t.to-t.from)*frac))
			if err := d.mixer.SetVolume(ctx, t.id, v); err != nil {
				return fmt.Errorf("set volume id=%d: %w", t.id, err)
			}
		}

		if i < steps {
			time.Sleep(duration / time.Duration(steps))
		}
	}
	return nil
}

// Pactl drives PulseAudio or PipeWire through the pactl command.
type Pactl struct{}

func (Pactl) Streams(ctx context.Context) ([]Stream, error) {
	out, err := exec.CommandContext(ctx, "pactl", "list", "sink-inputs").Output()
	if err != nil {
		return nil, fmt.Errorf("pactl list sink-inputs: %w", err)
	}
	return parseSinkInputs(string(out)), nil
}

func (Pactl) SetVolume(ctx context.Context, id, percent int) error {
	percent = min(max(percent, 0), maxVolume)
	return exec.CommandContext(ctx, "pactl", "set-sink-input-volume",
		strconv.Itoa(id), fmt.Sprintf("%d%%", percent)).Run()
}

var percentRe = regexp.MustCompile(`(\d+)\s*%`)

func parseSinkInputs(text string) []Stream {
	blocks := strings.Split(text, "Sink Input #")
	if len(blocks) <= 1 {
		return nil
	}

	var res []Stream
	for _, block := range blocks[1:] {
		head, body, ok := strings.Cut(block, "\n")
		if !ok {
			continue
		}
		id, err := strconv.Atoi(strings.TrimSpace(head))
		if err != nil {
			continue
		}

		s := Stream{ID: id}
		for _, line := range strings.Split(body, "\n") {
			line = strings.TrimSpace(line)

			if strings.HasPrefix(line, "Volume:") && s.Volume == 0 {
				if m := percentRe.FindStringSubmatch(line); len(m) >= 2 {
					s.Volume, _ = strconv.Atoi(m[1])
				}
			}
			if rest, ok := strings.CutPrefix(line, "application.name = "); ok && s.AppName == "" {
				s.AppName = strings.Trim(rest, `"`)
			}
		}

		if s.Volume == 0 && s.AppName == "" {
			continue
		}
		res = append(res, s)
	}
	return res
}
