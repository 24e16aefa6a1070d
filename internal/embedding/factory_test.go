package embedding

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		wantErr bool
	}{
		{"mock", Options{Provider: "mock", Dimensions: 16, CacheSize: 4}, false},
		{"default is mock", Options{Dimensions: 16}, false},
		{"openai without key", Options{Provider: "openai", Dimensions: 16}, false},
		{"openai with key", Options{Provider: "openai", APIKey: "k", Dimensions: 16}, false},
		{"onnx without model", Options{Provider: "onnx", Dimensions: 16}, false},
		{"unknown", Options{Provider: "word2vec"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.opts, zap.NewNop())
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil {
				return
			}
			defer e.Close()
			if e.Dimensions() != tt.opts.Dimensions {
				t.Errorf("Dimensions() = %d", e.Dimensions())
			}
		})
	}
}

func TestNew_MockEmbeds(t *testing.T) {
	e, err := New(Options{Provider: ProviderMock, Dimensions: 8, CacheSize: 2}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	vec, err := e.Embed(context.Background(), "hello")
	if err != nil {
		t.Fatal(err)
	}
	if len(vec) != 8 {
		t.Errorf("len = %d", len(vec))
	}
}

func TestNew_MisconfiguredProviderIsDisabled(t *testing.T) {
	tests := []struct {
		name string
		opts Options
	}{
		{"openai without key", Options{Provider: ProviderOpenAI, Dimensions: 8}},
		{"onnx without model", Options{Provider: ProviderONNX, Dimensions: 8}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := New(tt.opts, zap.NewNop())
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}
			defer e.Close()
			_, err = e.Embed(context.Background(), "hello")
			if !errors.Is(err, ErrUnavailable) {
				t.Errorf("Embed() error = %v, want ErrUnavailable", err)
			}
		})
	}
}
