package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"slotkeeper/internal/events"
	"slotkeeper/pkg/logger"
	"slotkeeper/pkg/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStream(t *testing.T, ctx context.Context, url string) *http.Response {
	t.Helper()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	return resp
}

func readFrame(t *testing.T, r *bufio.Reader) []string {
	t.Helper()
	var lines []string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		if line == "" {
			if len(lines) == 0 {
				continue
			}
			return lines
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		lines = append(lines, line)
	}
}

func TestStreamHandler_WritesFilteredEvents(t *testing.T) {
	fanout := events.NewFanout(logger.Nop())
	srv := httptest.NewServer(NewStreamHandler(fanout, time.Hour, logger.Nop()))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resp := openStream(t, ctx, srv.URL+"?subject=u1")
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	require.NoError(t, fanout.Deliver(ctx, model.Event{Type: model.EventUnitReleased, SubjectID: "u2", Version: 1}))
	require.NoError(t, fanout.Deliver(ctx, model.Event{Type: model.EventUnitReserved, SubjectID: "u1", Version: 3}))

	frame := readFrame(t, bufio.NewReader(resp.Body))
	require.Len(t, frame, 3)
	assert.Equal(t, "id: u1:3", frame[0])
	assert.Equal(t, "event: UNIT_RESERVED", frame[1])

	var e model.Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(frame[2], "data: ")), &e))
	assert.Equal(t, "u1", e.SubjectID)
	assert.Equal(t, int64(3), e.Version)
}

func TestStreamHandler_CloseEndsStreams(t *testing.T) {
	fanout := events.NewFanout(logger.Nop())
	h := NewStreamHandler(fanout, time.Hour, logger.Nop())
	srv := httptest.NewServer(h)
	defer srv.Close()

	resp := openStream(t, context.Background(), srv.URL)
	defer resp.Body.Close()

	h.Close()

	done := make(chan error, 1)
	go func() {
		_, err := io.ReadAll(resp.Body)
		done <- err
	}()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("stream still open after Close")
	}
}

func TestStreamHandler_RejectsNonGet(t *testing.T) {
	h := NewStreamHandler(events.NewFanout(logger.Nop()), time.Hour, logger.Nop())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, StreamPath, nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}
