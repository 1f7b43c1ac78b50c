package beatkey

import (
	"errors"
	"fmt"

	"github.com/mkb218/gosndfile/sndfile"
)

// maxDecodeFrames bounds how much of a file AudioFile will read, the same
// safety valve the teacher's sound file reader used to avoid an unbounded
// allocation on a malformed header.
const maxDecodeFrames = EngineSampleRate * 7200 // 2 hours at 44.1kHz

// AudioFile decodes an audio file via libsndfile, covering formats go-wav's
// pure-Go WAV reader doesn't (FLAC, OGG, AIFF, and compressed WAV variants).
// The batch CLI uses it as a fallback for non-.wav inputs.
type AudioFile struct {
	Channels int
	Frames   int64
	file     *sndfile.File
}

func OpenAudioFile(path string) (*AudioFile, error) {
	info := &sndfile.Info{}
	file, err := sndfile.Open(path, sndfile.Read, info)
	if err != nil {
		return nil, fmt.Errorf("beatkey: open %s: %w", path, err)
	}
	if !sndfile.FormatCheck(*info) {
		file.Close()
		return nil, fmt.Errorf("beatkey: %s: %w", path, errors.New("unsupported or malformed audio format"))
	}

	frames := info.Frames
	if frames > maxDecodeFrames {
		frames = maxDecodeFrames
	}

	return &AudioFile{Channels: int(info.Channels), Frames: frames, file: file}, nil
}

// ReadFrames reads interleaved samples into out, which must be one of the
// slice types libsndfile's binding supports (e.g. []float64).
func (f *AudioFile) ReadFrames(out interface{}) (int64, error) {
	read, err := f.file.ReadFrames(out)
	if err != nil {
		return read, fmt.Errorf("beatkey: read frames: %w", err)
	}
	return read, nil
}

func (f *AudioFile) Close() error {
	return f.file.Close()
}

// ReadMono reads the entire file, downmixing to a single float32 channel by
// averaging across channels, ready to feed directly to Engine.ProcessAudio.
func (f *AudioFile) ReadMono() ([]float32, error) {
	buf := make([]float64, f.Frames*int64(f.Channels))
	n, err := f.ReadFrames(buf)
	if err != nil {
		return nil, err
	}
	buf = buf[:n*int64(f.Channels)]

	mono := make([]float32, n)
	for i := int64(0); i < n; i++ {
		sum := 0.0
		for c := 0; c < f.Channels; c++ {
			sum += buf[i*int64(f.Channels)+int64(c)]
		}
		mono[i] = float32(sum / float64(f.Channels))
	}
	return mono, nil
}
