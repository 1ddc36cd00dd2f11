package media

import (
	"errors"
	"fmt"
	"os"

	"github.com/go-audio/wav"
	"github.com/gopxl/beep/v2"
)

// OpenWAVElement decodes a 16, 24 or 32 bit mono/stereo WAV file into a clip.
func OpenWAVElement(path string, loop bool) (*ClipElement, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	decoder := wav.NewDecoder(file)
	decoder.ReadInfo()
	if !decoder.IsValidFile() {
		return nil, errors.New("invalid WAV file format")
	}
	if decoder.NumChans != 1 && decoder.NumChans != 2 {
		return nil, fmt.Errorf("unsupported number of channels: %d", decoder.NumChans)
	}
	divisor, err := wavDivisor(int(decoder.BitDepth))
	if err != nil {
		return nil, err
	}

	buf, err := decoder.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}

	channels := int(decoder.NumChans)
	frames := make([][2]float64, len(buf.Data)/channels)
	for i := range frames {
		left := float64(buf.Data[i*channels]) / divisor
		right := left
		if channels == 2 {
			right = float64(buf.Data[i*channels+1]) / divisor
		}
		frames[i] = [2]float64{left, right}
	}
	return newClip(frames, beep.SampleRate(decoder.SampleRate), loop), nil
}

func wavDivisor(bitDepth int) (float64, error) {
	switch bitDepth {
	case 16:
		return 32768.0, nil
	case 24:
		return 8388608.0, nil
	case 32:
		return 2147483648.0, nil
	default:
		return 0, fmt.Errorf("unsupported bit depth: %d", bitDepth)
	}
}
