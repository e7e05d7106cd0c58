package audioconv

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-audio/wav"
	"github.com/hajimehoshi/go-mp3"
	"github.com/jfreymuth/oggvorbis"
	popus "github.com/pekim/opus"
)

// TargetRate is the sample rate whisper models expect.
const TargetRate = 16000

var (
	ErrUnsupported = errors.New("unsupported audio format")
	ErrEmptyAudio  = errors.New("empty audio stream")
)

type Options struct {
	MaxSamples int
}

type decodeFunc func(r io.ReadSeeker) (samples []float32, rate int, channels int, err error)

var byExt = map[string]decodeFunc{
	".wav":  decodeWAV,
	".wave": decodeWAV,
	".mp3":  decodeMP3,
	".ogg":  decodeOgg,
	".oga":  decodeOgg,
	".opus": decodeOpus,
}

var byMagic = map[string]decodeFunc{
	"RIFF":    decodeWAV,
	"OggS":    decodeOgg,
	"ID3\x03": decodeMP3,
	"ID3\x04": decodeMP3,
}

// ConvertFileToPCM16k decodes the file at path into mono float32 samples at 16 kHz.
func ConvertFileToPCM16k(ctx context.Context, path string, opt Options) ([]float32, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	dec, err := pickDecoder(f, filepath.Ext(path))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	x, rate, channels, err := dec(f)
	if err != nil {
		return nil, err
	}
	return normalize(x, rate, channels, opt)
}

// Decode is ConvertFileToPCM16k for an in-memory stream whose format is
// sniffed from its first bytes.
func Decode(r io.ReadSeeker, opt Options) ([]float32, error) {
	dec, err := pickDecoder(r, "")
	if err != nil {
		return nil, err
	}
	x, rate, channels, err := dec(r)
	if err != nil {
		return nil, err
	}
	return normalize(x, rate, channels, opt)
}

func pickDecoder(r io.ReadSeeker, ext string) (decodeFunc, error) {
	if dec, ok := byExt[strings.ToLower(ext)]; ok {
		return dec, nil
	}

	magic, _ := bufio.NewReader(r).Peek(4)
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	if dec, ok := byMagic[string(magic)]; ok {
		return dec, nil
	}
	return nil, fmt.Errorf("%w: %q (supported: wav/mp3/ogg-vorbis/opus)", ErrUnsupported, ext)
}

func normalize(x []float32, rate, channels int, opt Options) ([]float32, error) {
	if len(x) == 0 {
		return nil, ErrEmptyAudio
	}
	if channels > 1 {
		x = downmixInterleaved(x, channels)
	}
	if rate != TargetRate {
		x = resampleLinear(x, rate, TargetRate)
	}
	if opt.MaxSamples > 0 && len(x) > opt.MaxSamples {
		x = x[:opt.MaxSamples]
	}
	return x, nil
}

func decodeWAV(r io.ReadSeeker) ([]float32, int, int, error) {
	dec := wav.NewDecoder(r)
	if !dec.IsValidFile() {
		return nil, 0, 0, errors.New("invalid wav")
	}
	pb, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, 0, 0, fmt.Errorf("read wav: %w", err)
	}
	if pb == nil || len(pb.Data) == 0 {
		return nil, 0, 0, ErrEmptyAudio
	}

	bd := int(dec.BitDepth)
	if bd == 0 {
		bd = 16
	}
	ch, sr := 1, 44100
	if pb.Format != nil {
		if pb.Format.NumChannels > 0 {
			ch = pb.Format.NumChannels
		}
		if pb.Format.SampleRate > 0 {
			sr = pb.Format.SampleRate
		}
	}
	return intSliceToFloat32(pb.Data, bd), sr, ch, nil
}

// go-mp3 always yields 16-bit little-endian stereo.
func decodeMP3(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	var raw bytes.Buffer
	if _, err := io.Copy(&raw, dec); err != nil {
		return nil, 0, 0, err
	}
	ints := make([]int16, raw.Len()/2)
	if err := binary.Read(bytes.NewReader(raw.Bytes()), binary.LittleEndian, &ints); err != nil {
		return nil, 0, 0, err
	}

	sr := dec.SampleRate()
	if sr <= 0 {
		sr = 44100
	}
	return int16SliceToFloat32(ints), sr, 2, nil
}

// decodeOgg tries Vorbis first and falls back to Opus in the same container.
func decodeOgg(r io.ReadSeeker) ([]float32, int, int, error) {
	x, sr, ch, vErr := decodeVorbis(r)
	if vErr == nil {
		return x, sr, ch, nil
	}
	if _, err := r.Seek(0, io.SeekStart); err != nil {
		return nil, 0, 0, err
	}
	x, sr, ch, oErr := decodeOpus(r)
	if oErr != nil {
		return nil, 0, 0, fmt.Errorf("ogg: not vorbis (%v) nor opus (%w)", vErr, oErr)
	}
	return x, sr, ch, nil
}

func decodeVorbis(r io.ReadSeeker) ([]float32, int, int, error) {
	pcm, format, err := oggvorbis.ReadAll(r)
	if err != nil {
		return nil, 0, 0, err
	}
	if format == nil || format.Channels <= 0 || format.SampleRate <= 0 {
		return nil, 0, 0, errors.New("invalid ogg/vorbis stream")
	}
	return pcm, format.SampleRate, format.Channels, nil
}

// Opus always decodes at 48 kHz.
func decodeOpus(r io.ReadSeeker) ([]float32, int, int, error) {
	dec, err := popus.NewDecoder(r)
	if err != nil {
		return nil, 0, 0, err
	}
	defer dec.Destroy()

	ch := dec.ChannelCount()
	if ch <= 0 {
		ch = 1
	}

	var (
		out []float32
		buf = make([]int16, 48_000*ch/2) // ~0.5s
	)
	for {
		n, err := dec.Read(buf) // n = samples per channel
		if n > 0 {
			out = append(out, int16SliceToFloat32(buf[:n*ch])...)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, 0, 0, err
		}
	}
	return out, 48000, ch, nil
}
