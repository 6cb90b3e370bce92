package http

import (
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"winequality/db"
	"winequality/ml"
	"winequality/predictor"
	"winequality/wine"
)

//go:embed templates/index.html
var templateFS embed.FS

var pageTemplate = template.Must(template.New("index.html").Funcs(template.FuncMap{
	"percent": func(v float64) string { return strconv.FormatFloat(v, 'f', 1, 64) },
}).ParseFS(templateFS, "templates/index.html"))

type handlers struct {
	predictor       Predictor
	store           HistoryStore
	logger          *zap.Logger
	allowOutOfRange bool
}

func newHandlers(pred Predictor, store HistoryStore, logger *zap.Logger, allowOutOfRange bool) *handlers {
	return &handlers{predictor: pred, store: store, logger: logger, allowOutOfRange: allowOutOfRange}
}

func (h *handlers) register(mux *http.ServeMux) {
	mux.HandleFunc("GET /{$}", h.handleIndex)
	mux.HandleFunc("POST /predict", h.handleFormPredict)
	mux.HandleFunc("POST /api/predict", h.handleAPIPredict)
	mux.HandleFunc("GET /api/model", h.handleModel)
	mux.HandleFunc("GET /api/history", h.handleHistory)
	mux.HandleFunc("GET /api/health", handleHealth)
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type formField struct {
	wine.FeatureSpec
	Value float64
}

type pageData struct {
	Fields  []formField
	Profile []wine.ProfileEntry
	Result  *predictor.Result
	Error   string
}

func newPageData(s wine.Sample) pageData {
	values := s.Vector()
	specs := wine.Features()
	fields := make([]formField, len(specs))
	for i, spec := range specs {
		fields[i] = formField{FeatureSpec: spec, Value: values[i]}
	}
	return pageData{Fields: fields, Profile: wine.GoodWineProfile()}
}

func (h *handlers) handleIndex(w http.ResponseWriter, r *http.Request) {
	h.renderPage(w, http.StatusOK, newPageData(wine.DefaultSample()))
}

func (h *handlers) handleFormPredict(w http.ResponseWriter, r *http.Request) {
	sample, err := sampleFromForm(r)
	if err != nil {
		data := newPageData(wine.DefaultSample())
		data.Error = err.Error()
		h.renderPage(w, http.StatusBadRequest, data)
		return
	}
	data := newPageData(sample)
	if err := h.checkRange(sample); err != nil {
		data.Error = err.Error()
		h.renderPage(w, http.StatusBadRequest, data)
		return
	}

	result, err := h.predict(r, sample)
	if err != nil {
		data.Error = "prediction failed"
		h.renderPage(w, http.StatusInternalServerError, data)
		return
	}
	h.record(r, sample, result)
	data.Result = &result
	h.renderPage(w, http.StatusOK, data)
}

func (h *handlers) renderPage(w http.ResponseWriter, status int, data pageData) {
	var buf strings.Builder
	if err := pageTemplate.Execute(&buf, data); err != nil {
		h.logger.Error("render page", zap.Error(err))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	io.WriteString(w, buf.String())
}

// sampleFromForm reads one field per feature key; blank fields take the
// slider default.
func sampleFromForm(r *http.Request) (wine.Sample, error) {
	if err := r.ParseForm(); err != nil {
		return wine.Sample{}, fmt.Errorf("invalid form: %w", err)
	}
	specs := wine.Features()
	values := make([]float64, len(specs))
	for i, spec := range specs {
		raw := strings.TrimSpace(r.PostForm.Get(spec.Key))
		if raw == "" {
			values[i] = spec.Default
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return wine.Sample{}, fmt.Errorf("%s: %q is not a number", spec.Title(), raw)
		}
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return wine.Sample{}, fmt.Errorf("%s: %q is not a finite number", spec.Title(), raw)
		}
		values[i] = v
	}
	return wine.SampleFromVector(values)
}

type predictResponse struct {
	ID          string                 `json:"id,omitempty"`
	Label       wine.Label             `json:"label"`
	Index       int                    `json:"index"`
	Confidences map[wine.Label]float64 `json:"confidences"`
	Advice      []string               `json:"advice"`
}

func (h *handlers) handleAPIPredict(w http.ResponseWriter, r *http.Request) {
	// Fields absent from the body keep their slider defaults.
	sample := wine.DefaultSample()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&sample); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid JSON body: "+err.Error())
		return
	}
	if err := h.checkRange(sample); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.predict(r, sample)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "prediction failed: "+err.Error())
		return
	}
	id := h.record(r, sample, result)
	respondJSON(w, http.StatusOK, predictResponse{
		ID:          id,
		Label:       result.Label,
		Index:       result.Index,
		Confidences: result.Percentages(),
		Advice:      result.Advice,
	})
}

// checkRange always rejects non-finite values; the slider range is only
// enforced when out-of-range input is not allowed.
func (h *handlers) checkRange(s wine.Sample) error {
	if h.allowOutOfRange {
		return s.CheckFinite()
	}
	return s.Validate()
}

func (h *handlers) predict(r *http.Request, s wine.Sample) (predictor.Result, error) {
	result, err := h.predictor.Predict(s)
	if err != nil {
		h.logger.Error("prediction failed",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		return result, err
	}
	h.logger.Debug("prediction",
		zap.String("request_id", GetRequestID(r.Context())),
		zap.String("label", string(result.Label)),
		zap.Float64("confidence", result.Top()),
	)
	return result, nil
}

// record stores the prediction when history is enabled. Failures are logged
// and never fail the request.
func (h *handlers) record(r *http.Request, s wine.Sample, result predictor.Result) string {
	if h.store == nil {
		return ""
	}
	rec, err := h.store.SavePrediction(db.PredictionRecord{
		Sample:     s,
		Label:      result.Label,
		Confidence: result.Top(),
		ModelType:  h.predictor.ModelType(),
	})
	if err != nil {
		h.logger.Warn("record prediction",
			zap.String("request_id", GetRequestID(r.Context())),
			zap.Error(err),
		)
		return ""
	}
	return rec.ID
}

type modelResponse struct {
	ModelType  string             `json:"model_type"`
	ScalerType string             `json:"scaler_type"`
	Scheme     string             `json:"scheme"`
	Labels     []wine.Label       `json:"labels"`
	Features   []wine.FeatureSpec `json:"features"`
}

func (h *handlers) handleModel(w http.ResponseWriter, r *http.Request) {
	scheme := h.predictor.Scheme()
	respondJSON(w, http.StatusOK, modelResponse{
		ModelType:  h.predictor.ModelType(),
		ScalerType: ml.TypeMinMax,
		Scheme:     scheme.Name(),
		Labels:     scheme.Labels(),
		Features:   wine.Features(),
	})
}

func (h *handlers) handleHistory(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		writeError(w, http.StatusNotFound, "prediction history is disabled")
		return
	}
	limit := db.DefaultHistoryLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		l, err := strconv.Atoi(raw)
		if err != nil || l <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = l
	}
	records, err := h.store.RecentPredictions(limit)
	if err != nil {
		h.logger.Error("load history", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"predictions": records})
}

// respondJSON 统一JSON响应
func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, map[string]string{"error": message})
}
