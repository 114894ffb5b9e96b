// Package tessd defines the exit-code protocol shared between the OCR
// worker process (cmd/tessd) and the scan pipeline that spawns it. The
// worker communicates failure solely through these codes; extracted text
// travels over stdout.
package tessd

// ExitCode is the worker's sole failure channel.
type ExitCode int

const (
	NoError ExitCode = iota
	// Read means stdin errored before EOF.
	Read
	// TessInit means the OCR engine could not be initialised.
	TessInit
	// PixReadMem means the image could not be decoded.
	PixReadMem
	// ImageSize means the pixel area exceeds MaxPixelArea.
	ImageSize
	// NoOutput means OCR ran but produced no text.
	NoOutput
	// Timeout means the worker exceeded its own wall-clock ceiling.
	Timeout
)

// MaxPixelArea is the largest width*height the worker will OCR. The same
// ceiling is applied at intake when the platform supplied dimensions, and
// re-checked here because bare-URL images arrive with unknown dimensions.
const MaxPixelArea = 33554432

// WallClock is the worker's self-imposed run ceiling in seconds.
const WallClock = 20

var descriptions = map[ExitCode]string{
	NoError:    "no error",
	Read:       "error reading from stdin",
	TessInit:   "error initialising OCR engine",
	PixReadMem: "error decoding image",
	ImageSize:  "image dimensions too large",
	NoOutput:   "no OCR output",
	Timeout:    "worker timeout",
}

func (e ExitCode) String() string {
	if d, ok := descriptions[e]; ok {
		return d
	}
	return "unknown exit code"
}
