// Command beatkey runs the tempo/key engine over an audio file in batch mode
// (.wav via go-wav, other formats via libsndfile) and prints the final BPM
// and key once the whole file has been processed.
package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/youpy/go-wav"

	"github.com/comfortfood/beatkey"
)

const chunkSize = 4096

func main() {
	beatModelPath := flag.String("beat-model", "", "path to the BeatNet ONNX model")
	keyModelPath := flag.String("key-model", "", "path to the MusicalKeyCNN ONNX model")
	flag.Parse()

	if flag.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "usage: beatkey [-beat-model path] [-key-model path] <input.wav>")
		os.Exit(2)
	}

	if err := run(flag.Arg(0), *beatModelPath, *keyModelPath); err != nil {
		slog.Error("beatkey failed", "error", err)
		os.Exit(1)
	}
}

func run(inputPath, beatModelPath, keyModelPath string) error {
	engine := beatkey.NewEngine()
	defer engine.Close()

	if beatModelPath != "" {
		if err := engine.LoadBeatModel(beatModelPath); err != nil {
			return fmt.Errorf("load beat model: %w", err)
		}
		if err := engine.WarmUpBeat(); err != nil {
			return fmt.Errorf("warm up beat model: %w", err)
		}
	}
	if keyModelPath != "" {
		if err := engine.LoadKeyModel(keyModelPath); err != nil {
			return fmt.Errorf("load key model: %w", err)
		}
	}

	if strings.EqualFold(strings.TrimPrefix(filepath.Ext(inputPath), "."), "wav") {
		if err := runWav(engine, inputPath); err != nil {
			return err
		}
	} else {
		if err := runLibsndfile(engine, inputPath); err != nil {
			return err
		}
	}

	if engine.BeatReady() {
		fmt.Printf("bpm: %.1f (%d frames)\n", engine.CurrentBPM(), engine.BPMFrameCount())
	}
	if engine.KeyReady() {
		key := engine.CurrentKey()
		if key.Valid {
			fmt.Printf("key: %s / %s (confidence %.2f)\n", key.Camelot, key.Notation, key.Confidence)
		} else {
			fmt.Println("key: not enough audio yet")
		}
	}

	return nil
}

// runWav decodes input with the pure-Go go-wav reader, streaming chunkSize
// sample blocks straight into the engine.
func runWav(engine *beatkey.Engine, inputPath string) error {
	f, err := os.Open(inputPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", inputPath, err)
	}
	defer f.Close()

	reader := wav.NewReader(f)
	format, err := reader.Format()
	if err != nil {
		return fmt.Errorf("read wav format: %w", err)
	}
	if format.SampleRate != beatkey.EngineSampleRate {
		slog.Warn("input sample rate does not match the engine's native rate",
			"got", format.SampleRate, "want", beatkey.EngineSampleRate)
	}

	chunk := make([]float32, 0, chunkSize)
	channels := int(format.NumChannels)

	flush := func() {
		if len(chunk) == 0 {
			return
		}
		engine.ProcessAudio(chunk, nil)
		chunk = chunk[:0]
	}

	for {
		samples, err := reader.ReadSamples(chunkSize)
		if err != nil {
			break
		}
		for _, s := range samples {
			mono := reader.FloatValue(s, 0)
			if channels > 1 {
				mono = (mono + reader.FloatValue(s, 1)) / 2
			}
			chunk = append(chunk, float32(mono))
			if len(chunk) == chunkSize {
				flush()
			}
		}
	}
	flush()
	return nil
}

// runLibsndfile decodes anything go-wav can't (FLAC, OGG, AIFF, compressed
// WAV variants) via libsndfile, then feeds the whole downmixed signal to the
// engine in chunkSize blocks.
func runLibsndfile(engine *beatkey.Engine, inputPath string) error {
	af, err := beatkey.OpenAudioFile(inputPath)
	if err != nil {
		return err
	}
	defer af.Close()

	mono, err := af.ReadMono()
	if err != nil {
		return err
	}

	for start := 0; start < len(mono); start += chunkSize {
		end := start + chunkSize
		if end > len(mono) {
			end = len(mono)
		}
		engine.ProcessAudio(mono[start:end], nil)
	}
	return nil
}
