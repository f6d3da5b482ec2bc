// Package audioconv decodes recorded speech into mono float32 PCM at 16 kHz,
// the input the speech recognizer expects.
package audioconv

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
)

const SampleRate = 16000

var ErrUnsupported = errors.New("unsupported audio format")

type Options struct {
	// MaxSamples truncates the output; 0 keeps everything.
	MaxSamples int
}

// Format names a container.
type Format string

const (
	WAV     Format = "wav"
	MP3     Format = "mp3"
	Ogg     Format = "ogg"
	Unknown Format = ""
)

// FormatOf picks the container from a file extension or MIME type, falling
// back to the leading magic bytes.
func FormatOf(hint string, data []byte) Format {
	h := strings.ToLower(hint)
	switch {
	case strings.HasSuffix(h, "wav"), strings.Contains(h, "wave"):
		return WAV
	case strings.HasSuffix(h, "mp3"), strings.Contains(h, "mpeg"):
		return MP3
	case strings.HasSuffix(h, "ogg"), strings.HasSuffix(h, "oga"), strings.HasSuffix(h, "opus"):
		return Ogg
	}

	switch {
	case bytes.HasPrefix(data, []byte("RIFF")):
		return WAV
	case bytes.HasPrefix(data, []byte("OggS")):
		return Ogg
	case bytes.HasPrefix(data, []byte("ID3")),
		len(data) > 1 && data[0] == 0xFF && data[1]&0xE0 == 0xE0:
		return MP3
	}
	return Unknown
}

// Decode converts an encoded clip. hint is an extension or MIME type and may
// be empty.
func Decode(_ context.Context, data []byte, hint string, opt Options) ([]float32, error) {
	var (
		x   []float32
		err error
	)
	switch f := FormatOf(hint, data); f {
	case WAV:
		x, err = decodeWAV(bytes.NewReader(data))
	case MP3:
		x, err = decodeMP3(bytes.NewReader(data))
	case Ogg:
		x, err = decodeOggVorbis(bytes.NewReader(data))
		if err != nil {
			var e2 error
			if x, e2 = decodeOggOpus(bytes.NewReader(data)); e2 != nil {
				err = fmt.Errorf("ogg is neither vorbis (%v) nor opus (%w)", err, e2)
			} else {
				err = nil
			}
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupported, hint)
	}
	if err != nil {
		return nil, err
	}

	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x, nil
}

func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Decode(ctx, data, filepath.Ext(path), opt)
}

func decodeWAV(r io.ReadSeeker) ([]float32, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil || pb == nil || pb.Data == nil {
		if err == nil {
			err = errors.New("empty wav")
		}
		return nil, err
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	x := intSliceToFloat32(pb.Data, bd)

	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return resampleLinear(downmixInterleaved(x, ch), sr, SampleRate), nil
}

func decodeMP3(r io.Reader) ([]float32, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, err
	}
	// go-mp3 always yields interleaved stereo.
	x := downmixInterleaved(int16SliceToFloat32(ints), 2)

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return resampleLinear(x, sr, SampleRate), nil
}

func decodeOggVorbis(r io.Reader) ([]float32, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, errors.New("invalid ogg/vorbis stream")
	}
	return resampleLinear(downmixInterleaved(pcm, format.Channels), format.SampleRate, SampleRate), nil
}

func intSliceToFloat32(data []int, bitDepth int) []float32 {
	out := make([]float32, len(data))
	scale := 1.0 / float64(int64(1)<<(bitDepth-1))
	for i, v := range data {
		out[i] = float32(clamp(float64(v)*scale, -1.0, 1.0))
	}
	return out
}

func int16SliceToFloat32(data []int16) []float32 {
	out := make([]float32, len(data))
	const scale = 1.0 / 32768.0
	for i, v := range data {
		out[i] = float32(float64(v) * scale)
	}
	return out
}

func downmixInterleaved(in []float32, channels int) []float32 {
	if channels <= 1 {
		return in
	}
	frames := len(in) / channels
	out := make([]float32, frames)
	for i := range frames {
		sum := 0.0
		for c := range channels {
			sum += float64(in[i*channels+c])
		}
		out[i] = float32(sum / float64(channels))
	}
	return out
}

func resampleLinear(in []float32, inSR, outSR int) []float32 {
	if inSR == outSR || len(in) == 0 {
		return in
	}
	ratio := float64(outSR) / float64(inSR)
	outN := int(math.Ceil(float64(len(in)) * ratio))
	out := make([]float32, outN)
	for i := range outN {
		src := float64(i) / ratio
		i0 := int(math.Floor(src))
		i1 := i0 + 1
		switch {
		case i0 >= len(in):
			out[i] = in[len(in)-1]
		case i1 >= len(in):
			out[i] = in[i0]
		default:
			a := float32(src - float64(i0))
			out[i] = in[i0]*(1-a) + in[i1]*a
		}
	}
	return out
}

func clamp(x, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, x))
}
