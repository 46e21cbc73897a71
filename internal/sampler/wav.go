package sampler

import (
	"bufio"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
)

// WAVSource replays a 16-bit PCM WAV file. Multi-channel files are
// reduced to their first channel.
type WAVSource struct {
	file       *os.File
	reader     *bufio.Reader
	sampleRate int
	channels   int
	remaining  int64 // Bytes left in the data chunk
}

// OpenWAV opens path and positions the reader at the first sample
func OpenWAV(path string) (*WAVSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open wav %q: %w", path, err)
	}

	src := &WAVSource{file: f, reader: bufio.NewReader(f)}
	if err := src.readHeader(); err != nil {
		f.Close()
		return nil, fmt.Errorf("wav %q: %w", path, err)
	}
	return src, nil
}

// SampleRate returns the file's sample rate in Hz
func (w *WAVSource) SampleRate() int {
	return w.sampleRate
}

// Close releases the file
func (w *WAVSource) Close() error {
	return w.file.Close()
}

func (w *WAVSource) readHeader() error {
	var riff [12]byte
	if _, err := io.ReadFull(w.reader, riff[:]); err != nil {
		return fmt.Errorf("read RIFF header: %w", err)
	}
	if string(riff[0:4]) != "RIFF" || string(riff[8:12]) != "WAVE" {
		return errors.New("not a RIFF/WAVE file")
	}

	foundFmt := false
	for {
		var header [8]byte
		if _, err := io.ReadFull(w.reader, header[:]); err != nil {
			return fmt.Errorf("read chunk header: %w", err)
		}
		id := string(header[0:4])
		size := int64(binary.LittleEndian.Uint32(header[4:8]))

		switch id {
		case "fmt ":
			if size < 16 {
				return fmt.Errorf("fmt chunk too short: %d bytes", size)
			}
			var format [16]byte
			if _, err := io.ReadFull(w.reader, format[:]); err != nil {
				return fmt.Errorf("read fmt chunk: %w", err)
			}
			audioFormat := binary.LittleEndian.Uint16(format[0:2])
			w.channels = int(binary.LittleEndian.Uint16(format[2:4]))
			w.sampleRate = int(binary.LittleEndian.Uint32(format[4:8]))
			bitsPerSample := binary.LittleEndian.Uint16(format[14:16])
			if audioFormat != 1 || bitsPerSample != 16 || w.channels < 1 {
				return fmt.Errorf("unsupported format %d with %d bits and %d channels", audioFormat, bitsPerSample, w.channels)
			}
			if err := w.skip(size - 16 + size%2); err != nil {
				return err
			}
			foundFmt = true

		case "data":
			if !foundFmt {
				return errors.New("data chunk before fmt chunk")
			}
			w.remaining = size
			return nil

		default:
			if err := w.skip(size + size%2); err != nil {
				return err
			}
		}
	}
}

func (w *WAVSource) skip(n int64) error {
	if _, err := io.CopyN(io.Discard, w.reader, n); err != nil {
		return fmt.Errorf("skip chunk: %w", err)
	}
	return nil
}

// Read fills buf with the next samples. A short tail is padded with
// silence; the read after that returns io.EOF.
func (w *WAVSource) Read(buf []int16) error {
	frameSize := int64(2 * w.channels)
	if w.remaining < frameSize {
		return io.EOF
	}

	frame := make([]byte, frameSize)
	for i := range buf {
		if w.remaining < frameSize {
			buf[i] = 0
			continue
		}
		if _, err := io.ReadFull(w.reader, frame); err != nil {
			if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
				w.remaining = 0
				buf[i] = 0
				continue
			}
			return fmt.Errorf("read wav samples: %w", err)
		}
		w.remaining -= frameSize
		buf[i] = int16(binary.LittleEndian.Uint16(frame[0:2]))
	}
	return nil
}
