package audio

import (
	"encoding/binary"
	"fmt"
	"log/slog"
	"os"
)

const bitsPerSample = 16

type WavHeader struct {
	ChunkID       [4]byte
	ChunkSize     uint32
	Format        [4]byte
	Subchunk1ID   [4]byte
	Subchunk1Size uint32
	AudioFormat   uint16
	NumChannels   uint16
	SampleRate    uint32
	ByteRate      uint32
	BlockAlign    uint16
	BitsPerSample uint16
	Subchunk2ID   [4]byte
	Subchunk2Size uint32
}

func WriteWavHeader(file *os.File, dataSize uint32) error {
	header := WavHeader{
		ChunkID:       [4]byte{'R', 'I', 'F', 'F'},
		ChunkSize:     dataSize + 36,
		Format:        [4]byte{'W', 'A', 'V', 'E'},
		Subchunk1ID:   [4]byte{'f', 'm', 't', ' '},
		Subchunk1Size: 16,
		AudioFormat:   1,
		NumChannels:   Channels,
		SampleRate:    SampleRate,
		ByteRate:      SampleRate * uint32(Channels) * uint32(bitsPerSample) / 8,
		BlockAlign:    Channels * bitsPerSample / 8,
		BitsPerSample: bitsPerSample,
		Subchunk2ID:   [4]byte{'d', 'a', 't', 'a'},
		Subchunk2Size: dataSize,
	}

	return binary.Write(file, binary.LittleEndian, header)
}

func UpdateWavHeader(file *os.File, dataSize uint32) error {
	// Update ChunkSize (file size - 8)
	if _, err := file.Seek(4, 0); err != nil {
		return fmt.Errorf("failed to seek to ChunkSize: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, uint32(dataSize+36)); err != nil {
		return fmt.Errorf("failed to write ChunkSize: %w", err)
	}

	// Update Subchunk2Size (data size)
	if _, err := file.Seek(40, 0); err != nil {
		return fmt.Errorf("failed to seek to Subchunk2Size: %w", err)
	}
	if err := binary.Write(file, binary.LittleEndian, dataSize); err != nil {
		return fmt.Errorf("failed to write Subchunk2Size: %w", err)
	}

	return nil
}

// Recorder tees every frame pulled from a Source into a WAV file so a live
// session can be replayed later. A write failure never interrupts the
// stream; the recording just stops growing.
type Recorder struct {
	src     Source
	file    *os.File
	written uint32
	failed  bool
}

// NewRecorder wraps src, recording everything it yields to path.
func NewRecorder(src Source, path string) (*Recorder, error) {
	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create recording file: %w", err)
	}
	if err := WriteWavHeader(file, 0); err != nil {
		file.Close()
		os.Remove(path)
		return nil, fmt.Errorf("write WAV header: %w", err)
	}
	return &Recorder{src: src, file: file}, nil
}

func (r *Recorder) ReadFrame(max int) ([]byte, error) {
	frame, err := r.src.ReadFrame(max)
	if len(frame) > 0 && !r.failed {
		if _, werr := r.file.Write(frame); werr != nil {
			slog.Warn("Recording write failed, continuing without recording",
				"error", werr,
				"file", r.file.Name())
			r.failed = true
		} else {
			r.written += uint32(len(frame))
		}
	}
	return frame, err
}

// Close finalizes the WAV header and releases both the recording file and
// the wrapped source.
func (r *Recorder) Close() error {
	err := r.src.Close()

	if uerr := UpdateWavHeader(r.file, r.written); uerr != nil {
		slog.Error("Failed to update WAV header", "error", uerr, "file", r.file.Name())
	}
	if cerr := r.file.Close(); cerr != nil && err == nil {
		err = fmt.Errorf("close recording file: %w", cerr)
	}

	slog.Debug("Recording closed", "file", r.file.Name(), "bytes", r.written)
	return err
}
