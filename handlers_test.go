package main

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lie-detector/db"
	"lie-detector/knn"
	"lie-detector/landmarks"
	"lie-detector/models"
	"lie-detector/session"
)

var testColumns = []string{"blink_rate", "lip_pursing_count", "blushing_count"}

func newTestClassifier(t *testing.T) *knn.Classifier {
	t.Helper()
	ds := knn.Dataset{
		Columns:   testColumns,
		LabelName: "label",
		Rows: []knn.Row{
			{Features: []float64{0, 0, 0}, Label: "truth"},
			{Features: []float64{0.2, 1, 1}, Label: "lie"},
		},
	}
	c, err := knn.NewClassifier(ds, 1)
	require.NoError(t, err)
	return c
}

func TestClassifyHandler(t *testing.T) {
	t.Parallel()
	handler := newClassifyHandler(newTestClassifier(t))

	body := `{"features":[[0,0,0],[0.2,1,1]]}`
	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/classify", strings.NewReader(body)))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))

	var resp classifyResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	require.Len(t, resp.Predictions, 2)
	assert.Equal(t, "truth", resp.Predictions[0].Label)
	assert.Equal(t, "lie", resp.Predictions[1].Label)
}

func TestClassifyHandlerRejects(t *testing.T) {
	t.Parallel()
	handler := newClassifyHandler(newTestClassifier(t))

	cases := []struct {
		name   string
		method string
		body   string
		status int
	}{
		{"preflight", http.MethodOptions, "", http.StatusNoContent},
		{"wrong method", http.MethodGet, "", http.StatusMethodNotAllowed},
		{"malformed", http.MethodPost, "{", http.StatusBadRequest},
		{"no vectors", http.MethodPost, `{"features":[]}`, http.StatusBadRequest},
		{"empty vector", http.MethodPost, `{"features":[[]]}`, http.StatusBadRequest},
		{"width mismatch", http.MethodPost, `{"features":[[1,2]]}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			handler(rec, httptest.NewRequest(tc.method, "/api/classify", strings.NewReader(tc.body)))
			assert.Equal(t, tc.status, rec.Code)
		})
	}
}

func TestModelHandlerStatsAndReload(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	csv := "blink_rate,lip_pursing_count,blushing_count,label\n" +
		"0,0,0,truth\n0.2,1,1,lie\n0.3,2,1,lie\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	classifier := newTestClassifier(t)
	handler := newModelHandler(classifier, path)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var stats knn.ModelStats
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 2, stats.RowCount)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/model", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&stats))
	assert.Equal(t, 3, stats.RowCount)
	assert.Equal(t, testColumns, stats.Columns)
}

func TestModelHandlerReloadFailureKeepsModel(t *testing.T) {
	t.Parallel()
	classifier := newTestClassifier(t)
	handler := newModelHandler(classifier, filepath.Join(t.TempDir(), "missing.csv"))

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/model", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, 2, classifier.Stats().RowCount)
}

func TestModelHandlerRejectsChangedColumns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "dataset.csv")
	csv := "blink_rate,lip_pursing_count,label\n0,0,truth\n0.2,1,lie\n"
	require.NoError(t, os.WriteFile(path, []byte(csv), 0o644))

	classifier := newTestClassifier(t)
	handler := newModelHandler(classifier, path)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodPost, "/api/model", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, testColumns, classifier.Columns())
	assert.Equal(t, 2, classifier.Stats().RowCount)
}

func TestReportsHandler(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	store := db.NewJSONFileStore(filepath.Join(t.TempDir(), "reports.json"))
	now := time.Now().UTC()
	for q := 1; q <= 2; q++ {
		report := models.CheckpointReport{SessionID: "s1", Question: q, PredictedLabel: "truth", CreatedAt: now}
		if q == 1 {
			report.Baseline = &models.BaselineReport{EyeRatio: 0.3}
		}
		require.NoError(t, store.StoreCheckpoint(ctx, &report))
	}
	handler := newReportsHandler(store)

	rec := httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/reports?session=s1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var report models.SessionReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.Equal(t, "s1", report.SessionID)
	require.Len(t, report.Checkpoints, 2)
	require.NotNil(t, report.Baseline)
	assert.InDelta(t, 0.3, report.Baseline.EyeRatio, 1e-9)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/reports?session=nope", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/reports?limit=0", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	handler(rec, httptest.NewRequest(http.MethodGet, "/api/reports?limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var recent []models.CheckpointReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&recent))
	assert.Len(t, recent, 1)
}

func pointsPayload(t *testing.T, index int) string {
	t.Helper()
	data, err := json.Marshal(models.RecordData{Index: index, Points: make([][2]float64, landmarks.NumLandmarks)})
	require.NoError(t, err)
	return string(data)
}

func newTestSocketController(t *testing.T) (*socketController, db.ReportStore) {
	t.Helper()
	tuning := session.DefaultTuning()
	tuning.DatasetPath = "unused.csv"
	store := db.NewJSONFileStore(filepath.Join(t.TempDir(), "reports.json"))
	return newSocketController(tuning, newTestClassifier(t), store, nil), store
}

func TestSocketSessionLifecycle(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestSocketController(t)

	progress, err := c.startSession(ctx, "sock-1", `{"sessionId":"interview-7"}`)
	require.NoError(t, err)
	assert.Equal(t, "interview-7", progress.SessionID)

	for i := 1; i <= 3; i++ {
		result, err := c.processFrame(ctx, "sock-1", pointsPayload(t, i))
		require.NoError(t, err)
		assert.False(t, result.Skipped)
		assert.Equal(t, i, result.Progress.Frames)
	}

	report, err := c.checkpoint(ctx, "sock-1")
	require.NoError(t, err)
	assert.Equal(t, 1, report.Question)
	assert.Equal(t, "truth", report.PredictedLabel)

	final, err := c.endSession(ctx, "sock-1")
	require.NoError(t, err)
	assert.True(t, final.Final)
	assert.Equal(t, 2, final.Question)

	stored, err := store.SessionCheckpoints(ctx, "interview-7")
	require.NoError(t, err)
	assert.Len(t, stored, 2)

	_, err = c.checkpoint(ctx, "sock-1")
	assert.Error(t, err)
}

func TestSocketRestartClosesPreviousSession(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, store := newTestSocketController(t)

	_, err := c.startSession(ctx, "sock-1", `{"sessionId":"first"}`)
	require.NoError(t, err)
	progress, err := c.startSession(ctx, "sock-1", "")
	require.NoError(t, err)
	assert.NotEmpty(t, progress.SessionID)
	assert.NotEqual(t, "first", progress.SessionID)

	stored, err := store.SessionCheckpoints(ctx, "first")
	require.NoError(t, err)
	require.Len(t, stored, 1)
	assert.True(t, stored[0].Final)
}

func TestSocketFrameErrors(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	c, _ := newTestSocketController(t)

	_, err := c.processFrame(ctx, "sock-1", pointsPayload(t, 1))
	assert.Error(t, err, "frame without a session")

	_, err = c.startSession(ctx, "sock-1", "")
	require.NoError(t, err)

	_, err = c.processFrame(ctx, "sock-1", "{")
	assert.Error(t, err)
	_, err = c.processFrame(ctx, "sock-1", `{"index":1}`)
	assert.Error(t, err)
	_, err = c.processFrame(ctx, "sock-1", `{"index":1,"image":"%%%"}`)
	assert.Error(t, err)
	_, err = c.processFrame(ctx, "sock-1", `{"index":1,"points":[[1,2]]}`)
	assert.Error(t, err, "incomplete landmark set")

	_, err = c.startSession(ctx, "sock-2", "{bad")
	assert.Error(t, err)
}

func TestStripDataURL(t *testing.T) {
	t.Parallel()
	assert.Equal(t, "QUJD", stripDataURL("data:image/jpeg;base64,QUJD"))
	assert.Equal(t, "QUJD", stripDataURL("QUJD"))
}

func TestWriteJSONError(t *testing.T) {
	t.Parallel()
	rec := httptest.NewRecorder()
	writeJSONError(rec, http.StatusTeapot, "nope")

	assert.Equal(t, http.StatusTeapot, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	var body apiError
	require.NoError(t, json.NewDecoder(bytes.NewReader(rec.Body.Bytes())).Decode(&body))
	assert.Equal(t, "nope", body.Message)
}
