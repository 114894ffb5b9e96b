// Package imageproc prepares image bytes for the classifiers: animated
// GIFs are flattened to a single representative frame, and undersized
// images can be upsampled for the premium API's retry path.
package imageproc

import (
	"bytes"
	"fmt"
	"image/gif"
	"image/png"
	"io"
	"strings"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/spawn"
)

// IsAnimatedGIF detects an animated GIF by byte inspection. Animation
// requires the graphic control extension (21 F9 04) which only exists in
// GIF89a; GIF87a and non-GIF data never match. This is a fast heuristic,
// not a container parse: a malformed file carrying the byte sequence in
// pixel data can false-positive, which only costs one frame extraction.
func IsAnimatedGIF(content []byte) bool {
	if len(content) < 6 || !bytes.HasPrefix(content, []byte("GIF89a")) {
		return false
	}
	return bytes.Contains(content, []byte{0x21, 0xF9, 0x04})
}

// Flattener extracts the first frame of animated GIFs before classifier
// upload. Classifiers charge per image and cannot score animations.
type Flattener struct {
	convertPath string
	logger      *zap.Logger
}

func NewFlattener(convertPath string, logger *zap.Logger) *Flattener {
	return &Flattener{convertPath: convertPath, logger: logger}
}

// Flatten returns the first frame of an animated GIF as PNG bytes, or the
// input unchanged for anything else. Flattening failures fall back to the
// original bytes; the classifiers will score the animation header frame.
func (f *Flattener) Flatten(filename string, content []byte) []byte {
	if !strings.HasSuffix(strings.ToLower(filename), ".gif") {
		return content
	}
	if !IsAnimatedGIF(content) {
		return content
	}
	f.logger.Debug("Detected animated gif, flattening", zap.String("filename", filename))

	if flat, err := f.convert(content); err == nil {
		return flat
	} else {
		f.logger.Warn("convert failed, falling back to in-process decode", zap.Error(err))
	}
	if flat, err := firstFrame(content); err == nil {
		return flat
	} else {
		f.logger.Warn("Could not flatten gif", zap.Error(err))
	}
	return content
}

// convert pipes the bytes through the external frame-extraction tool,
// asking for frame zero as PNG on stdout.
func (f *Flattener) convert(content []byte) ([]byte, error) {
	proc, err := spawn.New(f.convertPath, "-[0]", "png:-")
	if err != nil {
		return nil, err
	}
	defer proc.Close()
	f.logger.Info("spawned convert", zap.Int("pid", proc.Pid()))

	if _, err := proc.Stdin().Write(content); err != nil {
		return nil, err
	}
	proc.SendEOF()

	out, err := io.ReadAll(proc.Stdout())
	if err != nil {
		return nil, err
	}
	code, err := proc.Wait()
	if err != nil {
		return nil, err
	}
	if code != 0 {
		return nil, fmt.Errorf("convert exited with status %d", code)
	}
	return out, nil
}

func firstFrame(content []byte) ([]byte, error) {
	img, err := gif.Decode(bytes.NewReader(content))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
