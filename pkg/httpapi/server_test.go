package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	shared "github.com/racepulse/server/pkg"
	"github.com/racepulse/server/pkg/apperrors"
	"github.com/racepulse/server/pkg/correction"
	"github.com/racepulse/server/pkg/coursecache"
	"github.com/racepulse/server/pkg/domain/race"
	"github.com/racepulse/server/pkg/eventdetail"
	"github.com/racepulse/server/pkg/leaderboard"
	"github.com/racepulse/server/pkg/livestore"
	"github.com/racepulse/server/pkg/testing/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testGPX() []byte {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><gpx version="1.1" creator="test"><trk><trkseg>`)
	for i := 0; i < 7; i++ {
		fmt.Fprintf(&b, `<trkpt lat="%f" lon="126.977900"></trkpt>`, 37.5663+float64(i)*0.0018)
	}
	b.WriteString(`</trkseg></trk></gpx>`)
	return []byte(b.String())
}

func newTestServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	logger := testLogger()
	store := livestore.NewMemoryStore()
	board := leaderboard.NewMemoryBoard(leaderboard.DefaultScoreWeight)

	readModel := &mocks.MockReadModel{
		GetEventFunc: func(_ context.Context, eventID string) (*race.Event, error) {
			return &race.Event{ID: eventID, Name: "Seoul Night Run"}, nil
		},
		GetEventDetailFunc: func(_ context.Context, eventID, eventDetailID string) (*race.EventDetail, error) {
			return &race.EventDetail{ID: eventDetailID, EventID: eventID, Category: "10K"}, nil
		},
	}

	courses := coursecache.New(&mocks.MockCourseStore{}, readModel, &mocks.MockObjectFetcher{}, nil, logger, coursecache.Config{})
	correctionSvc := correction.NewService(courses, store, board, &mocks.MockPublisher{}, logger, correction.Config{})

	srv := &Server{
		Courses:     courses,
		Correction:  correctionSvc,
		EventDetail: eventdetail.NewService(readModel, store, board, logger),
		Board:       board,
		LiveStore:   store,
		Logger:      logger,
	}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	return srv, ts
}

func postJSON(t *testing.T, url string, body interface{}) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestUploadAndGetCourse(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/courses/evt/det", "application/gpx+xml", bytes.NewReader(testGPX()))
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	var summary coursecache.Summary
	decodeBody(t, resp, &summary)
	assert.Equal(t, "evt", summary.EventID)
	assert.Greater(t, summary.TotalDistance, 1000.0)
	assert.Equal(t, 7, summary.CheckpointCount)

	resp, err = http.Get(ts.URL + "/v1/courses/evt/det")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var c race.Course
	decodeBody(t, resp, &c)
	assert.Equal(t, "det", c.EventDetailID)
	assert.NotEmpty(t, c.Points)
}

func TestUploadCourse_BadGPX(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/courses/evt/det", "application/gpx+xml", strings.NewReader("not gpx"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var body struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "invalid_gpx", body.Kind)
}

func TestCorrectLocationEndToEnd(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/courses/evt/det", "application/gpx+xml", bytes.NewReader(testGPX()))
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/locations", map[string]interface{}{
		"userId":        "u1",
		"eventId":       "evt",
		"eventDetailId": "det",
		"locations": []map[string]interface{}{{
			"latitude":  37.5663,
			"longitude": 126.9779,
			"timestamp": time.Date(2026, 4, 12, 8, 0, 0, 0, time.UTC).Format(time.RFC3339),
		}},
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out correction.Response
	decodeBody(t, resp, &out)
	assert.True(t, out.Matched)
	assert.Equal(t, "u1", out.UserID)
}

func TestCorrectLocation_Invalid(t *testing.T) {
	_, ts := newTestServer(t)

	resp, err := http.Post(ts.URL+"/v1/locations", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()

	resp = postJSON(t, ts.URL+"/v1/locations", map[string]interface{}{"userId": "u1"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	resp.Body.Close()
}

func TestGetEventDetail(t *testing.T) {
	srv, ts := newTestServer(t)
	require.NoError(t, srv.Board.Upsert(context.Background(), "det", "u1", 2, 600))

	resp, err := http.Get(ts.URL + "/v1/events/evt/details/det?userId=u1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out eventdetail.Response
	decodeBody(t, resp, &out)
	assert.Equal(t, "Seoul Night Run", out.Event.Name)
	require.NotNil(t, out.Me)
	assert.Equal(t, int64(1), out.Me.Rank)
}

func TestLeaderboardEndpoints(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, srv.Board.Upsert(ctx, "det", "A", 3, 900))
	require.NoError(t, srv.Board.Upsert(ctx, "det", "B", 2, 800))
	require.NoError(t, srv.Board.Upsert(ctx, "det", "C", 2, 850))

	resp, err := http.Get(ts.URL + "/v1/leaderboards/det?n=2")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var top struct {
		Entries []struct {
			UserID string `json:"userId"`
			Rank   int64  `json:"rank"`
		} `json:"entries"`
	}
	decodeBody(t, resp, &top)
	require.Len(t, top.Entries, 2)
	assert.Equal(t, "A", top.Entries[0].UserID)

	resp, err = http.Get(ts.URL + "/v1/leaderboards/det?userId=C&before=1&after=1")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &top)
	require.Len(t, top.Entries, 2, "C is last, so the window has no entry after it")
	assert.Equal(t, "B", top.Entries[0].UserID)
	assert.Equal(t, "C", top.Entries[1].UserID)

	resp, err = http.Get(ts.URL + "/v1/leaderboards/det?userId=ghost")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	resp.Body.Close()
}

func TestReset(t *testing.T) {
	srv, ts := newTestServer(t)
	ctx := context.Background()
	require.NoError(t, srv.Board.Upsert(ctx, "det", "u1", 1, 100))
	_, err := srv.LiveStore.UpdateLocation(ctx, "u1", "det", func(*race.ParticipantLocation) (*race.ParticipantLocation, error) {
		return &race.ParticipantLocation{UserID: "u1"}, nil
	})
	require.NoError(t, err)

	resp, err := http.Post(ts.URL+"/v1/admin/reset", "application/json", nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var out map[string]int64
	decodeBody(t, resp, &out)
	assert.Equal(t, int64(1), out["recordsDeleted"])
	assert.Equal(t, int64(1), out["leaderboardsDeleted"])

	entries, err := srv.Board.Top(ctx, "det", 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestServerError_Propagates(t *testing.T) {
	board := &mocks.MockLeaderboard{
		TopFunc: func(context.Context, string, int) ([]shared.LeaderboardEntry, error) {
			return nil, apperrors.StoreUnavailable(errors.New("redis down"), "leaderboard top")
		},
	}
	srv := &Server{Board: board, Logger: testLogger()}
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)

	resp, err := http.Get(ts.URL + "/v1/leaderboards/det")
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)

	var body struct {
		Kind string `json:"kind"`
	}
	decodeBody(t, resp, &body)
	assert.Equal(t, "store_unavailable", body.Kind)
}

func TestStatusMapping(t *testing.T) {
	assert.Equal(t, http.StatusBadRequest, statusFor(apperrors.KindInvalidInput))
	assert.Equal(t, http.StatusBadRequest, statusFor(apperrors.KindInvalidGPX))
	assert.Equal(t, http.StatusNotFound, statusFor(apperrors.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusFor(apperrors.KindConflict))
	assert.Equal(t, http.StatusGatewayTimeout, statusFor(apperrors.KindDeadline))
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(apperrors.KindStoreUnavailable))
	assert.Equal(t, http.StatusInternalServerError, statusFor(apperrors.KindUnknown))
}
