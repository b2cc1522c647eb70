package telemetry

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]logrus.Level{
		"":        logrus.InfoLevel,
		"DEBUG":   logrus.DebugLevel,
		"warning": logrus.WarnLevel,
		"error":   logrus.ErrorLevel,
		"bogus":   logrus.InfoLevel,
	}
	for in, want := range cases {
		if got := ParseLevel(in); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestSetupLoggingJSON(t *testing.T) {
	var buf bytes.Buffer
	SetupLogging("info", "json", &buf)
	defer SetupLogging("info", "text", nil)

	logrus.WithField("adapter", "beets").Info("hello")
	if !strings.Contains(buf.String(), `"adapter":"beets"`) {
		t.Fatalf("expected json log line, got %q", buf.String())
	}
}

func TestInitTracerWithoutEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracer(context.Background(), "")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	shutdown()
}

func TestObserveInvocationIncrementsCounter(t *testing.T) {
	before := testutil.ToFloat64(invocationCounter.WithLabelValues("benqi", "getUserVotesLength", "success"))
	ObserveInvocation("benqi", "getUserVotesLength", "success")
	after := testutil.ToFloat64(invocationCounter.WithLabelValues("benqi", "getUserVotesLength", "success"))
	if after-before != 1 {
		t.Fatalf("expected counter to increase by 1, got %v -> %v", before, after)
	}
	ObserveStage("reading", 10*time.Millisecond)
	ObserveSubmission("dry-run", "success")
}
