// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0

package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromhttpExposure(t *testing.T) {
	srv := httptest.NewServer(promhttp.Handler())
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetPlaybackState_OneHot(t *testing.T) {
	SetPlaybackState("view-a", "recovering")

	assert.Equal(t, 1.0, testutil.ToFloat64(playbackState.WithLabelValues("view-a", "recovering")))
	assert.Equal(t, 0.0, testutil.ToFloat64(playbackState.WithLabelValues("view-a", "idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(playbackState.WithLabelValues("view-a", "transitioning")))

	SetPlaybackState("view-a", "idle")
	assert.Equal(t, 1.0, testutil.ToFloat64(playbackState.WithLabelValues("view-a", "idle")))
	assert.Equal(t, 0.0, testutil.ToFloat64(playbackState.WithLabelValues("view-a", "recovering")))
}

func TestRecordRecovery_Increments(t *testing.T) {
	before := testutil.ToFloat64(playbackRecoveries.WithLabelValues("no_progress", "soft"))
	RecordRecovery("no_progress", "soft")
	RecordRecovery("no_progress", "soft")
	after := testutil.ToFloat64(playbackRecoveries.WithLabelValues("no_progress", "soft"))
	assert.Equal(t, before+2, after)
}

func TestDeletePlaybackView(t *testing.T) {
	SetPlaybackForeground("view-gone", 1)
	SetConsecutiveRecoveries("view-gone", 3)
	SetPlaybackState("view-gone", "idle")

	DeletePlaybackView("view-gone")

	assert.False(t, playbackForeground.DeleteLabelValues("view-gone"), "foreground series should already be gone")
	assert.False(t, playbackConsecutiveRecoveries.DeleteLabelValues("view-gone"))
	assert.False(t, playbackState.DeleteLabelValues("view-gone", "idle"))
}

func TestRecordSoftResume_Labels(t *testing.T) {
	before := testutil.ToFloat64(playbackSoftResumes.WithLabelValues("pause", "failed"))
	RecordSoftResume("pause", false)
	assert.Equal(t, before+1, testutil.ToFloat64(playbackSoftResumes.WithLabelValues("pause", "failed")))
}
