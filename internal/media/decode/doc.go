// Package decode turns audio files into a bounded mono PCM window.
//
// Decoding shells out to ffmpeg, downmixes to one channel, resamples to the
// configured rate, and stops after the requested number of seconds. Failures
// are tagged with services markers: ErrUnsupported when no decode path exists
// for the file, ErrDecode for corrupt or empty output, and ErrTimeout when the
// decode exceeds its bound.
package decode
