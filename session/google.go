package session

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Config describes one recognition session. The audio parameters are fixed
// by the pipeline (LINEAR16 mono); only the language and result options
// vary per session.
type Config struct {
	// CredentialsFile is a service account JSON file. When empty, the
	// GOOGLE_APPLICATION_CREDENTIALS environment variable must point at one.
	CredentialsFile string

	LanguageCode string
	SampleRate   int

	InterimResults  bool
	Punctuation     bool
	WordTimeOffsets bool
}

// GoogleRecognizer streams audio to the Google Cloud Speech-to-Text v1
// API. It satisfies the Recognizer interface.
type GoogleRecognizer struct {
	client *speech.Client
	cfg    Config
}

// NewGoogleRecognizer validates credentials and dials the Speech API.
// Credential problems are reported as ErrCredentials before any session
// can start.
func NewGoogleRecognizer(ctx context.Context, cfg Config) (*GoogleRecognizer, error) {
	if cfg.SampleRate == 0 {
		cfg.SampleRate = 16000
	}
	if cfg.LanguageCode == "" {
		cfg.LanguageCode = "es-SV"
	}

	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		if _, err := os.Stat(cfg.CredentialsFile); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrCredentials, err)
		}
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	} else if os.Getenv("GOOGLE_APPLICATION_CREDENTIALS") == "" {
		return nil, fmt.Errorf("%w: no credentials file given and GOOGLE_APPLICATION_CREDENTIALS is not set", ErrCredentials)
	}

	client, err := speech.NewClient(ctx, opts...)
	if err != nil {
		return nil, classifyServiceError("create speech client", err)
	}

	slog.Debug("Speech client initialized",
		"language", cfg.LanguageCode,
		"sampleRate", cfg.SampleRate,
		"interimResults", cfg.InterimResults)

	return &GoogleRecognizer{client: client, cfg: cfg}, nil
}

// Open starts a streaming recognition exchange and sends the
// configuration message.
func (g *GoogleRecognizer) Open(ctx context.Context) (Stream, error) {
	st, err := g.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, classifyServiceError("open recognition stream", err)
	}

	cfgReq := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:                   speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:            int32(g.cfg.SampleRate),
					LanguageCode:               g.cfg.LanguageCode,
					EnableAutomaticPunctuation: g.cfg.Punctuation,
					EnableWordTimeOffsets:      g.cfg.WordTimeOffsets,
				},
				InterimResults: g.cfg.InterimResults,
			},
		},
	}
	if err := st.Send(cfgReq); err != nil {
		return nil, classifyServiceError("send streaming config", err)
	}

	return &googleStream{st: st}, nil
}

// Close releases the underlying gRPC connection.
func (g *GoogleRecognizer) Close() error {
	return g.client.Close()
}

type googleStream struct {
	st speechpb.Speech_StreamingRecognizeClient
}

func (s *googleStream) Send(chunk []byte) error {
	req := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
			AudioContent: chunk,
		},
	}
	if err := s.st.Send(req); err != nil {
		// gRPC reports a dead stream as io.EOF on Send; the real cause
		// surfaces from Recv.
		return classifyServiceError("send audio", err)
	}
	return nil
}

func (s *googleStream) Recv() (*Response, error) {
	resp, err := s.st.Recv()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, classifyServiceError("receive results", err)
	}
	if e := resp.GetError(); e != nil {
		return nil, fmt.Errorf("%w: recognition error %d: %s", ErrTransport, e.GetCode(), e.GetMessage())
	}

	out := &Response{}
	for _, r := range resp.GetResults() {
		result := Result{Final: r.GetIsFinal()}
		for _, alt := range r.GetAlternatives() {
			result.Alternatives = append(result.Alternatives, Alternative{
				Transcript: alt.GetTranscript(),
				Confidence: alt.GetConfidence(),
			})
		}
		out.Results = append(out.Results, result)
	}
	return out, nil
}

func (s *googleStream) CloseSend() error {
	if err := s.st.CloseSend(); err != nil {
		return classifyServiceError("close send side", err)
	}
	return nil
}

// classifyServiceError sorts a service error into the session taxonomy:
// authentication failures become ErrCredentials, everything else is a
// transport failure.
func classifyServiceError(op string, err error) error {
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.Unauthenticated, codes.PermissionDenied:
			return fmt.Errorf("%w: %s: %v", ErrCredentials, op, err)
		}
	}
	return fmt.Errorf("%w: %s: %v", ErrTransport, op, err)
}
