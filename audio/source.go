package audio

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/gordonklaus/portaudio"
	wav "github.com/youpy/go-wav"
)

const (
	// Recognition service expects LINEAR16 mono at 16kHz.
	SampleRate = 16000
	Channels   = 1

	// One capture frame: 1024 samples of 16-bit audio.
	FrameSamples = 1024
	FrameBytes   = FrameSamples * 2
)

var (
	ErrDeviceUnavailable = errors.New("audio: capture device unavailable")
	ErrUnsupportedFormat = errors.New("audio: unsupported audio format")
)

// Source produces PCM audio bytes for the streaming pipeline. ReadFrame
// blocks until audio is available and returns at most max bytes; io.EOF
// signals the end of the stream. Close releases the underlying device or
// file handle.
type Source interface {
	ReadFrame(max int) ([]byte, error)
	Close() error
}

// MicrophoneSource captures live audio from an input device via PortAudio.
type MicrophoneSource struct {
	stream    *portaudio.Stream
	buf       []int16
	pending   []byte
	overflows atomic.Uint64
}

// OpenMicrophone opens the capture device and starts the stream. A deviceID
// of zero selects the default input device.
func OpenMicrophone(deviceID int) (*MicrophoneSource, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	buf := make([]int16, FrameSamples)

	var stream *portaudio.Stream
	var err error
	if deviceID > 0 {
		devices, derr := portaudio.Devices()
		if derr != nil {
			portaudio.Terminate()
			return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, derr)
		}
		if deviceID >= len(devices) {
			portaudio.Terminate()
			return nil, fmt.Errorf("%w: invalid device ID %d", ErrDeviceUnavailable, deviceID)
		}
		device := devices[deviceID]
		if device.MaxInputChannels == 0 {
			portaudio.Terminate()
			return nil, fmt.Errorf("%w: device %q has no input channels", ErrDeviceUnavailable, device.Name)
		}

		slog.Info("Using specified audio device",
			"deviceID", deviceID,
			"deviceName", device.Name,
			"sampleRate", device.DefaultSampleRate,
			"inputChannels", device.MaxInputChannels)

		params := portaudio.StreamParameters{
			Input: portaudio.StreamDeviceParameters{
				Device:   device,
				Channels: Channels,
				Latency:  device.DefaultLowInputLatency,
			},
			SampleRate:      SampleRate,
			FramesPerBuffer: FrameSamples,
		}
		stream, err = portaudio.OpenStream(params, buf)
	} else {
		stream, err = portaudio.OpenDefaultStream(Channels, 0, SampleRate, FrameSamples, buf)
	}
	if err != nil {
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return nil, fmt.Errorf("%w: %v", ErrDeviceUnavailable, err)
	}

	slog.Debug("Microphone stream started",
		"sampleRate", SampleRate,
		"framesPerBuffer", FrameSamples)

	return &MicrophoneSource{stream: stream, buf: buf}, nil
}

// ReadFrame blocks until the next capture buffer is available. Device
// overflow is tolerated silently: the read keeps whatever samples the
// device delivered and the overflow counter is bumped.
func (m *MicrophoneSource) ReadFrame(max int) ([]byte, error) {
	if max <= 0 {
		return nil, nil
	}

	if len(m.pending) == 0 {
		if err := m.stream.Read(); err != nil {
			if errors.Is(err, portaudio.InputOverflowed) {
				m.overflows.Add(1)
			} else {
				return nil, fmt.Errorf("read capture device: %w", err)
			}
		}
		m.pending = make([]byte, len(m.buf)*2)
		for i, sample := range m.buf {
			binary.LittleEndian.PutUint16(m.pending[i*2:], uint16(sample))
		}
	}

	n := max
	if n > len(m.pending) {
		n = len(m.pending)
	}
	out := m.pending[:n]
	m.pending = m.pending[n:]
	return out, nil
}

// Overflows reports how many capture buffers overflowed since the stream
// was opened. Overflowed reads may have dropped samples.
func (m *MicrophoneSource) Overflows() uint64 {
	return m.overflows.Load()
}

// Close stops the capture stream and releases the device.
func (m *MicrophoneSource) Close() error {
	if err := m.stream.Stop(); err != nil {
		slog.Error("Failed to stop audio stream", "error", err)
	}
	err := m.stream.Close()
	portaudio.Terminate()
	if err != nil {
		return fmt.Errorf("close capture stream: %w", err)
	}
	return nil
}

// FileSource reads PCM audio from a WAV file. The file is decoded fully
// up front; ReadFrame hands out sequential slices until exhausted.
type FileSource struct {
	data []byte
	off  int
}

// OpenFile opens a WAV file and validates that it carries 16-bit PCM.
// Compressed codecs are rejected with ErrUnsupportedFormat.
func OpenFile(path string) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open audio file: %w", err)
	}
	defer f.Close()

	reader := wav.NewReader(f)
	format, err := reader.Format()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedFormat, err)
	}
	if format.AudioFormat != wav.AudioFormatPCM {
		return nil, fmt.Errorf("%w: audio format %d is not PCM", ErrUnsupportedFormat, format.AudioFormat)
	}
	if format.BitsPerSample != 16 {
		return nil, fmt.Errorf("%w: %d bits per sample, want 16", ErrUnsupportedFormat, format.BitsPerSample)
	}
	if format.SampleRate != SampleRate || format.NumChannels != Channels {
		slog.Warn("Audio file does not match recognition config",
			"sampleRate", format.SampleRate,
			"channels", format.NumChannels,
			"wantSampleRate", SampleRate,
			"wantChannels", Channels)
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, fmt.Errorf("decode audio file: %w", err)
	}

	slog.Debug("Loaded audio file",
		"path", path,
		"sampleRate", format.SampleRate,
		"bytes", len(data))

	return &FileSource{data: data}, nil
}

// ReadFrame returns the next slice of decoded audio, at most max bytes.
func (s *FileSource) ReadFrame(max int) ([]byte, error) {
	if s.off >= len(s.data) {
		return nil, io.EOF
	}
	end := s.off + max
	if end > len(s.data) {
		end = len(s.data)
	}
	out := s.data[s.off:end]
	s.off = end
	return out, nil
}

// Close is a no-op for file sources; the file handle is released as soon
// as decoding finishes.
func (s *FileSource) Close() error {
	return nil
}

// ListInputDevices returns the available audio input devices.
func ListInputDevices() ([]portaudio.DeviceInfo, error) {
	err := portaudio.Initialize()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize PortAudio: %w", err)
	}
	defer portaudio.Terminate()

	devices, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("failed to get devices: %w", err)
	}

	inputDevices := make([]portaudio.DeviceInfo, 0)
	for _, device := range devices {
		if device.MaxInputChannels > 0 {
			inputDevices = append(inputDevices, *device)
		}
	}

	return inputDevices, nil
}
