package audio

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"testing"
)

type fakeAudioService struct {
	calls [][]int
	// failChapter, when non-zero, fails the request for that chapter.
	failChapter int
	failWith    error
	// cancelAfter, when non-zero, cancels the context after that many calls.
	cancelAfter int
	cancel      context.CancelFunc

	fullResponse *Response
}

func (f *fakeAudioService) Generate(_ context.Context, req Request) (*Response, error) {
	f.calls = append(f.calls, append([]int(nil), req.ChapterNumbers...))

	if f.cancelAfter > 0 && len(f.calls) >= f.cancelAfter {
		f.cancel()
	}

	if len(req.ChapterNumbers) == 0 {
		if f.fullResponse != nil {
			return f.fullResponse, nil
		}
		return &Response{Success: true, Type: "full", AudioURL: "https://cdn/full.mp3"}, nil
	}

	num := req.ChapterNumbers[0]
	if f.failChapter == num {
		return nil, f.failWith
	}
	return &Response{
		Success: true,
		Type:    "chapters",
		Chapters: []ChapterAudio{{
			ChapterNumber: num,
			AudioURL:      fmt.Sprintf("https://cdn/ch%d.mp3", num),
			Duration:      60,
		}},
	}, nil
}

func (f *fakeAudioService) ListVoices(context.Context) ([]Voice, error) {
	return nil, errors.New("not implemented")
}

func TestRunChaptersAscendingOrder(t *testing.T) {
	svc := &fakeAudioService{}
	o := NewOrchestrator(OrchestratorConfig{Service: svc, BookID: "b1"})

	result, err := o.RunChapters(context.Background(), []int{3, 1, 2}, VoiceParams{Voice: "alloy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := [][]int{{1}, {2}, {3}}
	if !reflect.DeepEqual(svc.calls, want) {
		t.Fatalf("expected one ascending request per chapter, got %v", svc.calls)
	}
	if !reflect.DeepEqual(result.Completed, []int{1, 2, 3}) {
		t.Fatalf("expected completed [1 2 3], got %v", result.Completed)
	}
	if result.Cancelled {
		t.Fatal("unexpected cancellation")
	}
}

func TestRunChaptersFailureStopsRun(t *testing.T) {
	svc := &fakeAudioService{
		failChapter: 2,
		failWith:    &ServiceError{StatusCode: 402, Message: "quota exceeded"},
	}
	o := NewOrchestrator(OrchestratorConfig{Service: svc, BookID: "b1"})

	result, err := o.RunChapters(context.Background(), []int{1, 2, 3}, VoiceParams{})

	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
	if svcErr.ChapterNumber != 2 {
		t.Fatalf("expected failing chapter 2, got %d", svcErr.ChapterNumber)
	}

	// Chapter 1 stays recorded; chapter 3 must never be requested.
	if !reflect.DeepEqual(result.Completed, []int{1}) {
		t.Fatalf("expected completed [1], got %v", result.Completed)
	}
	if !reflect.DeepEqual(svc.calls, [][]int{{1}, {2}}) {
		t.Fatalf("chapter after the failure was requested: %v", svc.calls)
	}

	if len(result.Chapters) != 1 || result.Chapters[0].Status() != ChapterReady {
		t.Fatalf("expected chapter 1 ready, got %+v", result.Chapters)
	}
}

func TestRunChaptersNetworkErrorTagged(t *testing.T) {
	svc := &fakeAudioService{
		failChapter: 1,
		failWith:    &NetworkError{Err: errors.New("dial tcp: connection refused")},
	}
	o := NewOrchestrator(OrchestratorConfig{Service: svc, BookID: "b1"})

	_, err := o.RunChapters(context.Background(), []int{1}, VoiceParams{})

	var netErr *NetworkError
	if !errors.As(err, &netErr) {
		t.Fatalf("expected NetworkError, got %v", err)
	}
	if netErr.ChapterNumber != 1 {
		t.Fatalf("expected failing chapter 1, got %d", netErr.ChapterNumber)
	}
	if netErr.Hint() == "" {
		t.Fatal("expected a remediation hint")
	}
}

func TestRunChaptersCancellationPartialSuccess(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	svc := &fakeAudioService{cancelAfter: 1, cancel: cancel}
	o := NewOrchestrator(OrchestratorConfig{Service: svc, BookID: "b1"})

	result, err := o.RunChapters(ctx, []int{1, 2, 3}, VoiceParams{})
	if err != nil {
		t.Fatalf("cancellation must not be an error: %v", err)
	}
	if !result.Cancelled {
		t.Fatal("expected cancelled result")
	}
	if !reflect.DeepEqual(result.Completed, []int{1}) {
		t.Fatalf("expected completed [1], got %v", result.Completed)
	}
	if len(svc.calls) != 1 {
		t.Fatalf("expected no further requests after cancellation, got %v", svc.calls)
	}
}

func TestRunChaptersOverwritesPriorArtifact(t *testing.T) {
	svc := &fakeAudioService{}
	o := NewOrchestrator(OrchestratorConfig{
		Service: svc,
		BookID:  "b1",
		Chapters: []*ChapterState{
			{ChapterNumber: 1, Title: "Intro", AudioURL: "https://cdn/old.mp3"},
		},
	})

	result, err := o.RunChapters(context.Background(), []int{1}, VoiceParams{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := result.Chapters[0].AudioURL; got != "https://cdn/ch1.mp3" {
		t.Fatalf("regeneration must overwrite the prior artifact, got %q", got)
	}
	if result.Chapters[0].Title != "Intro" {
		t.Fatal("regeneration must keep chapter metadata")
	}
}

func TestRunFull(t *testing.T) {
	svc := &fakeAudioService{}
	o := NewOrchestrator(OrchestratorConfig{Service: svc, BookID: "b1"})

	result, err := o.RunFull(context.Background(), VoiceParams{Voice: "alloy"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.FullBookURL != "https://cdn/full.mp3" {
		t.Fatalf("unexpected full-book URL: %q", result.FullBookURL)
	}
	if len(svc.calls) != 1 || len(svc.calls[0]) != 0 {
		t.Fatalf("full mode must issue exactly one request with no chapters, got %v", svc.calls)
	}
}

func TestRunFullRejectsWrongResponseType(t *testing.T) {
	svc := &fakeAudioService{
		fullResponse: &Response{Success: true, Type: "chapters"},
	}
	o := NewOrchestrator(OrchestratorConfig{Service: svc, BookID: "b1"})

	_, err := o.RunFull(context.Background(), VoiceParams{})
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		t.Fatalf("expected ServiceError, got %v", err)
	}
}

func TestErrorHints(t *testing.T) {
	tests := []struct {
		name string
		err  interface{ Hint() string }
		want string
	}{
		{
			name: "timeout suggests fewer chapters",
			err:  &TimeoutError{ChapterNumber: 3},
			want: "Narration is taking too long. Try generating fewer chapters at a time.",
		},
		{
			name: "network suggests checking connection",
			err:  &NetworkError{},
			want: "Could not reach the narration service. Check your connection and try again.",
		},
		{
			name: "service defaults to api key",
			err:  &ServiceError{Message: "unauthorized"},
			want: "The narration service rejected the request. Check the configured API key.",
		},
		{
			name: "service hint passes through",
			err:  &ServiceError{Message: "bad voice", ServiceHint: "Pick a voice from /api/voices."},
			want: "Pick a voice from /api/voices.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Hint(); got != tt.want {
				t.Fatalf("Hint() = %q, want %q", got, tt.want)
			}
		})
	}
}
