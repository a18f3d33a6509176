package logging

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"

	"github.com/mickamy/contentorm/internal/config"
)

func TestBuilderFromConfig(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		level   string
		wantErr bool
		want    zerolog.Level
	}{
		{"debug", "debug", false, zerolog.DebugLevel},
		{"upper", "WARN", false, zerolog.WarnLevel},
		{"invalid", "loud", true, zerolog.NoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b, err := New().FromConfig(config.LoggingConfig{Level: tt.level})
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error")
				}
				return
			}
			if err != nil {
				t.Fatalf("FromConfig: %v", err)
			}
			l, err := b.Make()
			if err != nil {
				t.Fatalf("Make: %v", err)
			}
			if got := l.GetLevel(); got != tt.want {
				t.Errorf("level = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMakeWritesFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "contentd.log")
	b, err := New().FromConfig(config.LoggingConfig{Level: "info", File: path})
	if err != nil {
		t.Fatalf("FromConfig: %v", err)
	}
	l, err := b.Make()
	if err != nil {
		t.Fatalf("Make: %v", err)
	}
	l.Info().Msg("hello")
	if err := l.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), `"message":"hello"`) {
		t.Errorf("log file = %s", data)
	}
}

func TestQueryLogger(t *testing.T) {
	t.Parallel()

	var fallback, request bytes.Buffer
	q := QueryLogger{Fallback: zerolog.New(&fallback).Level(zerolog.DebugLevel)}

	q.Log(context.Background(), "SELECT 1", 7)
	if !strings.Contains(fallback.String(), `"query":"SELECT 1"`) {
		t.Errorf("fallback output = %s", fallback.String())
	}

	ctx := zerolog.New(&request).Level(zerolog.DebugLevel).WithContext(context.Background())
	q.Log(ctx, "SELECT 2")
	if !strings.Contains(request.String(), `"query":"SELECT 2"`) {
		t.Errorf("request output = %s", request.String())
	}
	if strings.Contains(fallback.String(), "SELECT 2") {
		t.Error("statement logged to fallback although ctx carries a logger")
	}
}
