// tessd is the isolated OCR worker. It reads one image from stdin, OCRs
// it with tesseract and writes the extracted text to stdout. Stdout is
// reserved for text; everything else, including every failure mode, is
// reported through the exit code so a crash here can never take the
// scanning service down with it.
package main

import (
	"bytes"
	"context"
	"flag"
	"image"
	"io"
	"os"
	"os/exec"
	"time"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"go.uber.org/zap"

	"github.com/brainboxdotcc/beholder/internal/tessd"
)

func main() {
	tesseractPath := flag.String("tesseract", "tesseract", "path to the tesseract binary")
	lang := flag.String("lang", "eng", "OCR language")
	flag.Parse()

	logger, err := zap.NewProduction()
	if err != nil {
		os.Exit(int(tessd.TessInit))
	}
	defer logger.Sync()

	os.Exit(int(run(logger, *tesseractPath, *lang)))
}

func run(logger *zap.Logger, tesseractPath, lang string) tessd.ExitCode {
	// The parent never waits forever, but a hung engine must not pile up
	// zombie workers either; the worker polices its own wall clock.
	deadline := time.AfterFunc(tessd.WallClock*time.Second, func() {
		logger.Error("Wall clock exceeded, aborting")
		os.Exit(int(tessd.Timeout))
	})
	defer deadline.Stop()

	content, err := io.ReadAll(os.Stdin)
	if err != nil || len(content) == 0 {
		logger.Error("Failed to read image from stdin", zap.Error(err))
		return tessd.Read
	}

	cfg, _, err := image.DecodeConfig(bytes.NewReader(content))
	if err != nil {
		logger.Error("Failed to decode image", zap.Error(err))
		return tessd.PixReadMem
	}
	if cfg.Width*cfg.Height > tessd.MaxPixelArea {
		logger.Error("Image dimensions too large",
			zap.Int("width", cfg.Width), zap.Int("height", cfg.Height))
		return tessd.ImageSize
	}

	ctx, cancel := context.WithTimeout(context.Background(), tessd.WallClock*time.Second)
	defer cancel()

	// "stdin ... stdout" makes tesseract a pure filter; no temp files.
	cmd := exec.CommandContext(ctx, tesseractPath, "stdin", "stdout", "-l", lang)
	cmd.Stdin = bytes.NewReader(content)
	var out, stderr bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Start(); err != nil {
		logger.Error("Failed to start OCR engine", zap.Error(err))
		return tessd.TessInit
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			logger.Error("OCR engine timed out")
			return tessd.Timeout
		}
		logger.Error("OCR engine failed",
			zap.Error(err), zap.String("stderr", stderr.String()))
		return tessd.NoOutput
	}

	text := out.Bytes()
	if len(bytes.TrimSpace(text)) == 0 {
		return tessd.NoOutput
	}
	if _, err := os.Stdout.Write(text); err != nil {
		logger.Error("Failed to write OCR output", zap.Error(err))
		return tessd.NoOutput
	}
	return tessd.NoError
}
