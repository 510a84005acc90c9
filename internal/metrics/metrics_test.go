package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/YKarmar/appledger/internal/types"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveCandidates("ats", 3)
	m.ObserveCandidates("ats", 2)
	m.ObserveDecision(types.StageSubject, types.DecisionConfirmed)
	m.ObserveDecision(types.StageBody, types.DecisionRejected)
	m.ObserveDecision(types.StageBody, types.DecisionRejected)
	m.Recorded.Add(4)
	m.MarkRun(time.Unix(1700000000, 0))

	assert.Equal(t, 5.0, testutil.ToFloat64(m.Candidates.WithLabelValues("ats")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Classified.WithLabelValues("subject", "CONFIRMED")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.Classified.WithLabelValues("body", "REJECTED")))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.Recorded))
	assert.Equal(t, 1700000000.0, testutil.ToFloat64(m.LastRun))
}

func TestPush(t *testing.T) {
	var (
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := New()
	m.Recorded.Inc()
	require.NoError(t, m.Push(context.Background(), srv.URL, "appledger"))
	assert.Equal(t, "/metrics/job/appledger", path)
	assert.NotEmpty(t, body)
}

func TestPushDisabled(t *testing.T) {
	assert.NoError(t, New().Push(context.Background(), "", "appledger"))
}

func TestPushFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := New().Push(context.Background(), srv.URL, "appledger")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), srv.URL))
}
