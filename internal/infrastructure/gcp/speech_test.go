package gcp

import (
	"context"
	"testing"

	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func okResponse(texts ...string) *speechpb.RecognizeResponse {
	resp := &speechpb.RecognizeResponse{}
	for _, s := range texts {
		resp.Results = append(resp.Results, &speechpb.SpeechRecognitionResult{
			Alternatives: []*speechpb.SpeechRecognitionAlternative{{Transcript: s}},
		})
	}
	return resp
}

func TestTranscribeJoinsResults(t *testing.T) {
	var got *speechpb.RecognizeRequest
	tr := newTranscriber(SpeechConfig{}, func(_ context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		got = req
		return okResponse("hello there", " how are you "), nil
	}, zap.NewNop())

	out, err := tr.Transcribe(context.Background(), []byte("OggS"), "audio/ogg")
	if err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if out.Text != "hello there how are you" || out.Provider != providerName {
		t.Errorf("out = %+v", out)
	}
	if got.GetConfig().GetEncoding() != speechpb.RecognitionConfig_OGG_OPUS || got.GetConfig().GetLanguageCode() != "en-US" {
		t.Errorf("config = %+v", got.GetConfig())
	}
}

func TestTranscribeRetriesUnavailable(t *testing.T) {
	calls := 0
	tr := newTranscriber(SpeechConfig{}, func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		calls++
		if calls < 3 {
			return nil, status.Error(codes.Unavailable, "try later")
		}
		return okResponse("ok"), nil
	}, zap.NewNop())
	tr.backoff = 0

	if _, err := tr.Transcribe(context.Background(), []byte{1}, "audio/wav"); err != nil {
		t.Fatalf("Transcribe: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestTranscribeDoesNotRetryInvalidArgument(t *testing.T) {
	calls := 0
	tr := newTranscriber(SpeechConfig{}, func(context.Context, *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
		calls++
		return nil, status.Error(codes.InvalidArgument, "bad encoding")
	}, zap.NewNop())
	tr.backoff = 0

	if _, err := tr.Transcribe(context.Background(), []byte{1}, "audio/wav"); err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestInferEncoding(t *testing.T) {
	tests := map[string]speechpb.RecognitionConfig_AudioEncoding{
		"audio/webm;codecs=opus": speechpb.RecognitionConfig_WEBM_OPUS,
		"audio/wav":              speechpb.RecognitionConfig_LINEAR16,
		"audio/mpeg":             speechpb.RecognitionConfig_MP3,
		"":                       speechpb.RecognitionConfig_ENCODING_UNSPECIFIED,
	}
	for mime, want := range tests {
		if got := inferEncoding(mime); got != want {
			t.Errorf("inferEncoding(%q) = %s, want %s", mime, got, want)
		}
	}
}
