package logging

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/rs/zerolog"
)

func TestWithAttachesContextFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	ctx := WithTraceID(context.Background(), "t-1")
	ctx = WithJobID(ctx, "job-9")
	ctx = WithUserID(ctx, "u-3")

	With(ctx, &base).Info().Msg("hello")

	out := buf.String()
	for _, want := range []string{`"trace_id":"t-1"`, `"job_id":"job-9"`, `"user_id":"u-3"`} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %s in %q", want, out)
		}
	}
}

func TestWithSkipsAbsentFields(t *testing.T) {
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	With(context.Background(), &base).Info().Msg("hello")

	out := buf.String()
	for _, field := range []string{"trace_id", "job_id", "user_id"} {
		if strings.Contains(out, field) {
			t.Fatalf("unexpected %s in %q", field, out)
		}
	}
}

func TestTraceDurationLogsStartAndFinish(t *testing.T) {
	zerolog.SetGlobalLevel(zerolog.TraceLevel)
	var buf bytes.Buffer
	base := zerolog.New(&buf)

	TraceDuration(&base, "HistoryUC.Add")()

	out := buf.String()
	if !strings.Contains(out, `"method":"HistoryUC.Add"`) {
		t.Fatalf("method field missing: %q", out)
	}
	if !strings.Contains(out, `"message":"start"`) || !strings.Contains(out, `"message":"finish"`) {
		t.Fatalf("start/finish pair missing: %q", out)
	}
	if !strings.Contains(out, `"duration"`) {
		t.Fatalf("elapsed duration missing: %q", out)
	}
}
