package http

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"winequality/db"
	"winequality/ml"
	"winequality/predictor"
	"winequality/wine"
)

type fakePredictor struct {
	err  error
	seen []wine.Sample
}

func (f *fakePredictor) Predict(s wine.Sample) (predictor.Result, error) {
	f.seen = append(f.seen, s)
	if f.err != nil {
		return predictor.Result{}, f.err
	}
	return predictor.Result{
		Label: wine.Average,
		Index: 1,
		Confidences: []predictor.Confidence{
			{Label: wine.Bad, Percent: 25},
			{Label: wine.Average, Percent: 60},
			{Label: wine.Good, Percent: 15},
		},
		Advice: wine.Advise(s),
	}, nil
}

func (f *fakePredictor) Scheme() wine.Scheme { return wine.Ternary }
func (f *fakePredictor) ModelType() string   { return ml.TypeSoftmax }

type failingStore struct{}

func (failingStore) SavePrediction(db.PredictionRecord) (db.PredictionRecord, error) {
	return db.PredictionRecord{}, errors.New("disk full")
}

func (failingStore) RecentPredictions(int) ([]db.PredictionRecord, error) {
	return nil, errors.New("disk full")
}

func newTestHandler(t *testing.T, pred Predictor, store HistoryStore, allowOutOfRange bool) http.Handler {
	t.Helper()
	return NewHandler(ServerConfig{AllowOutOfRange: allowOutOfRange}, pred, store, nil)
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload), rr.Body.String())
	return payload
}

type panickingPredictor struct{ fakePredictor }

func (panickingPredictor) Predict(wine.Sample) (predictor.Result, error) { panic("boom") }

func TestNewHandlerWithoutLogger(t *testing.T) {
	handler := NewHandler(ServerConfig{}, &fakePredictor{}, nil, nil)

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rr.Code)

	// The recovery path logs too.
	handler = NewHandler(ServerConfig{}, &panickingPredictor{}, nil, nil)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{}`)))
	assert.Equal(t, http.StatusInternalServerError, rr.Code)
}

func TestHealthHandler(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(t, &fakePredictor{}, nil, false).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/health", nil))

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.NotEmpty(t, rr.Header().Get("X-Request-ID"))
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestIndexRendersForm(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(t, &fakePredictor{}, nil, false).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Predict Quality")
	assert.Contains(t, body, `name="volatile_acidity"`)
	assert.Contains(t, body, "Free Sulfur Dioxide")
	assert.Contains(t, body, ">pH<")
	assert.Contains(t, body, "What makes a good wine")
	assert.Equal(t, 11, strings.Count(body, `type="range"`))
}

func TestUnknownPathIsNotFound(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(t, &fakePredictor{}, nil, false).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestFormPredict(t *testing.T) {
	pred := &fakePredictor{}
	form := url.Values{"alcohol": {"12.5"}, "sulphates": {"0.8"}, "volatile_acidity": {"0.3"}}
	req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rr := httptest.NewRecorder()
	newTestHandler(t, pred, nil, false).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code)
	body := rr.Body.String()
	assert.Contains(t, body, "Predicted quality: Average")
	assert.Contains(t, body, "Average: 60.0%")
	assert.Contains(t, body, wine.AdviceLooksGood)

	require.Len(t, pred.seen, 1)
	assert.Equal(t, 12.5, pred.seen[0].Alcohol)
	// Fields left out of the form take slider defaults.
	assert.Equal(t, wine.DefaultSample().FixedAcidity, pred.seen[0].FixedAcidity)
}

func TestFormPredictRejectsBadInput(t *testing.T) {
	for _, form := range []url.Values{
		{"alcohol": {"strong"}},
		{"alcohol": {"40"}},
	} {
		req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rr := httptest.NewRecorder()
		newTestHandler(t, &fakePredictor{}, nil, false).ServeHTTP(rr, req)
		assert.Equal(t, http.StatusBadRequest, rr.Code, form.Encode())
		assert.Contains(t, rr.Body.String(), `class="error"`)
	}
}

func TestFormPredictRejectsNonFinite(t *testing.T) {
	for _, allow := range []bool{false, true} {
		for _, raw := range []string{"NaN", "nan", "Inf", "-Inf", "+Infinity"} {
			form := url.Values{"alcohol": {raw}}
			req := httptest.NewRequest(http.MethodPost, "/predict", strings.NewReader(form.Encode()))
			req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
			rr := httptest.NewRecorder()
			pred := &fakePredictor{}
			newTestHandler(t, pred, nil, allow).ServeHTTP(rr, req)
			assert.Equal(t, http.StatusBadRequest, rr.Code, "allow=%v alcohol=%s", allow, raw)
			assert.Contains(t, rr.Body.String(), "not a finite number")
			assert.Empty(t, pred.seen)
		}
	}
}

func TestAPIPredict(t *testing.T) {
	pred := &fakePredictor{}
	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{"alcohol": 9.0}`))
	rr := httptest.NewRecorder()
	newTestHandler(t, pred, nil, false).ServeHTTP(rr, req)

	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	payload := decodeBody(t, rr)
	assert.Equal(t, "AVERAGE", payload["label"])
	assert.Equal(t, float64(1), payload["index"])
	confidences := payload["confidences"].(map[string]interface{})
	assert.Equal(t, 60.0, confidences["AVERAGE"])
	assert.Len(t, payload["advice"], 3)
	assert.NotContains(t, payload, "id")

	expected := wine.DefaultSample()
	expected.Alcohol = 9.0
	assert.Equal(t, []wine.Sample{expected}, pred.seen)
}

func TestAPIPredictEmptyBodyUsesDefaults(t *testing.T) {
	pred := &fakePredictor{}
	rr := httptest.NewRecorder()
	newTestHandler(t, pred, nil, false).ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/predict", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []wine.Sample{wine.DefaultSample()}, pred.seen)
}

func TestAPIPredictErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		pred   *fakePredictor
		allow  bool
		status int
	}{
		{name: "malformed json", body: `{"alcohol":`, pred: &fakePredictor{}, status: http.StatusBadRequest},
		{name: "unknown field", body: `{"colour": 1}`, pred: &fakePredictor{}, status: http.StatusBadRequest},
		{name: "out of range", body: `{"ph": 7}`, pred: &fakePredictor{}, status: http.StatusBadRequest},
		{name: "out of range allowed", body: `{"ph": 7}`, pred: &fakePredictor{}, allow: true, status: http.StatusOK},
		{name: "nan literal", body: `{"alcohol": NaN}`, pred: &fakePredictor{}, allow: true, status: http.StatusBadRequest},
		{name: "nan string", body: `{"alcohol": "NaN"}`, pred: &fakePredictor{}, allow: true, status: http.StatusBadRequest},
		{name: "overflow", body: `{"alcohol": 1e999}`, pred: &fakePredictor{}, allow: true, status: http.StatusBadRequest},
		{name: "shape mismatch", body: `{}`, pred: &fakePredictor{err: ml.ErrShapeMismatch}, status: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(tt.body))
			newTestHandler(t, tt.pred, nil, tt.allow).ServeHTTP(rr, req)
			assert.Equal(t, tt.status, rr.Code, rr.Body.String())
			if tt.status != http.StatusOK {
				assert.Contains(t, decodeBody(t, rr), "error")
			}
		})
	}
}

func TestModelEndpoint(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(t, &fakePredictor{}, nil, false).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/model", nil))
	require.Equal(t, http.StatusOK, rr.Code)

	var payload modelResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	assert.Equal(t, "softmax", payload.ModelType)
	assert.Equal(t, "minmax", payload.ScalerType)
	assert.Equal(t, "ternary", payload.Scheme)
	assert.Equal(t, []wine.Label{wine.Bad, wine.Average, wine.Good}, payload.Labels)
	assert.Equal(t, wine.Features(), payload.Features)
}

func TestHistoryRecordsPredictions(t *testing.T) {
	store, err := db.Open(":memory:")
	require.NoError(t, err)
	defer store.Close()
	handler := newTestHandler(t, &fakePredictor{}, store, false)

	for i := 0; i < 3; i++ {
		rr := httptest.NewRecorder()
		handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{}`)))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.NotEmpty(t, decodeBody(t, rr)["id"])
	}

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?limit=2", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var payload struct {
		Predictions []db.PredictionRecord `json:"predictions"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &payload))
	require.Len(t, payload.Predictions, 2)
	assert.Equal(t, wine.Average, payload.Predictions[0].Label)
	assert.Equal(t, 60.0, payload.Predictions[0].Confidence)
	assert.Equal(t, "softmax", payload.Predictions[0].ModelType)

	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history?limit=zero", nil))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHistoryDisabled(t *testing.T) {
	rr := httptest.NewRecorder()
	newTestHandler(t, &fakePredictor{}, nil, false).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/history", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestStoreFailureDoesNotFailPrediction(t *testing.T) {
	rr := httptest.NewRecorder()
	handler := newTestHandler(t, &fakePredictor{}, failingStore{}, false)
	handler.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader(`{}`)))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "AVERAGE", decodeBody(t, rr)["label"])
}
