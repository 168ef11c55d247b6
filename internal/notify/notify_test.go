package notify

import (
	"bytes"
	"fmt"
	"testing"

	"storysync/internal/story"
	"storysync/internal/testutil"
)

type recordingLogger struct {
	story.NopLogger
	infos, warns []string
}

func (l *recordingLogger) Info(msg string, args ...any) { l.infos = append(l.infos, fmt.Sprint(args...)) }
func (l *recordingLogger) Warn(msg string, args ...any) { l.warns = append(l.warns, fmt.Sprint(args...)) }

func TestWriter(t *testing.T) {
	tests := []struct {
		kind story.Kind
		want string
	}{
		{story.KindInfo, "[info] hello\n"},
		{story.KindSuccess, "[ok] hello\n"},
		{story.KindError, "[error] hello\n"},
		{story.KindSessionExpired, "[session] hello\n"},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			var buf bytes.Buffer
			NewWriter(&buf).Notify(tt.kind, "hello")
			if buf.String() != tt.want {
				t.Errorf("output = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestLog(t *testing.T) {
	logger := &recordingLogger{}
	n := NewLog(logger)

	n.Notify(story.KindInfo, "a")
	n.Notify(story.KindSuccess, "b")
	n.Notify(story.KindError, "c")
	n.Notify(story.KindSessionExpired, "d")

	if len(logger.infos) != 2 || len(logger.warns) != 2 {
		t.Errorf("infos = %v, warns = %v", logger.infos, logger.warns)
	}
}

func TestMulti(t *testing.T) {
	a := testutil.NewRecordingNotifier()
	b := testutil.NewRecordingNotifier()

	Multi{a, b}.Notify(story.KindError, "boom")

	for _, r := range []*testutil.RecordingNotifier{a, b} {
		got := r.All()
		if len(got) != 1 || got[0].Kind != story.KindError || got[0].Message != "boom" {
			t.Errorf("recorded = %+v", got)
		}
	}
}
