package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/Ernesto385291/vexa-googlestt/audio"
	"github.com/Ernesto385291/vexa-googlestt/render"
	"github.com/Ernesto385291/vexa-googlestt/scribe"
	"github.com/Ernesto385291/vexa-googlestt/session"
)

func main() {
	filePath := flag.String("file", "", "Transcribe a WAV file instead of the microphone")
	serveConfig := flag.String("serve", "", "Run the scribe service with the given config file")
	credentials := flag.String("credentials", "", "Path to Google service account JSON (falls back to GOOGLE_APPLICATION_CREDENTIALS)")
	language := flag.String("lang", "es-SV", "Recognition language code")
	chunkBytes := flag.Int("chunk", audio.FrameBytes, "Recognition chunk size in bytes")
	interim := flag.Bool("interim", true, "Show interim results")
	punctuation := flag.Bool("punctuation", true, "Enable automatic punctuation")
	recordPath := flag.String("record", "", "Record captured audio to a WAV file")
	outPath := flag.String("out", "", "Save the final transcript to a file")
	listDevices := flag.Bool("list-devices", false, "List available audio input devices")
	deviceID := flag.Int("device", 0, "Audio input device ID to use")
	verbose := flag.Bool("verbose", false, "Enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if *listDevices {
		devices, err := audio.ListInputDevices()
		if err != nil {
			slog.Error("Failed to list audio devices", "error", err)
			os.Exit(1)
		}

		fmt.Println("Available audio input devices:")
		for i, device := range devices {
			fmt.Printf("[%d] %s\n", i, device.Name)
			fmt.Printf("    Max Input Channels: %d\n", device.MaxInputChannels)
			fmt.Printf("    Default Sample Rate: %f\n", device.DefaultSampleRate)
			fmt.Println()
		}
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if *serveConfig != "" {
		runServe(ctx, cancel, sigChan, *serveConfig)
		return
	}

	cfg := session.Config{
		CredentialsFile: *credentials,
		LanguageCode:    *language,
		InterimResults:  *interim,
		Punctuation:     *punctuation,
	}

	if err := runLive(ctx, cancel, sigChan, cfg, *filePath, *chunkBytes, *deviceID, *recordPath, *outPath); err != nil {
		slog.Error("Transcription failed", "error", err)
		os.Exit(1)
	}
}

func runLive(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal,
	cfg session.Config, filePath string, chunkBytes, deviceID int, recordPath, outPath string) error {

	var src audio.Source
	var err error
	if filePath != "" {
		src, err = audio.OpenFile(filePath)
	} else {
		src, err = audio.OpenMicrophone(deviceID)
	}
	if err != nil {
		return err
	}

	if recordPath != "" {
		if filePath != "" {
			slog.Warn("Ignoring -record for file input")
		} else {
			rec, rerr := audio.NewRecorder(src, recordPath)
			if rerr != nil {
				src.Close()
				return rerr
			}
			src = rec
		}
	}
	// Closing the recorder finalizes the WAV header and closes the wrapped
	// source, so one close of the outermost value covers both.
	defer func() { src.Close() }()

	recognizer, err := session.NewGoogleRecognizer(ctx, cfg)
	if err != nil {
		return err
	}
	defer recognizer.Close()

	console := render.NewConsole(os.Stdout, true)
	store := render.NewStore()

	chunker := audio.NewChunker(src, chunkBytes)
	sess := session.New(recognizer, chunker, session.Multi(console, store))

	if err := sess.Start(ctx); err != nil {
		return err
	}

	if filePath == "" {
		fmt.Println("Listening. Press Ctrl+C to stop.")
	}

	go func() {
		select {
		case <-sigChan:
			slog.Debug("Received shutdown signal")
			sess.Stop()
		case <-sess.Done():
		}
	}()

	err = sess.Wait()
	console.Flush()

	if outPath != "" {
		if serr := store.Save(outPath); serr != nil {
			slog.Error("Failed to save transcript", "error", serr)
		} else {
			slog.Info("Transcript saved", "file", outPath, "events", store.Len())
		}
	}

	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func runServe(ctx context.Context, cancel context.CancelFunc, sigChan chan os.Signal, configPath string) {
	cfg, err := scribe.LoadConfig(configPath)
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	service, err := scribe.New(cfg)
	if err != nil {
		slog.Error("Failed to initialize scribe", "error", err)
		os.Exit(1)
	}

	go func() {
		<-sigChan
		slog.Debug("Received shutdown signal")
		cancel()
	}()

	if err := service.Start(ctx); err != nil {
		slog.Error("Scribe service failed", "error", err)
		os.Exit(1)
	}

	if err := service.Stop(context.Background()); err != nil {
		slog.Error("Failed to stop scribe service", "error", err)
	}

	slog.Debug("Program exiting")
}
