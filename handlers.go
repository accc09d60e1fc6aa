package main

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"image"
	"io"
	"mime"
	"net/http"
	"runtime"
	"time"

	"github.com/Tutortoise/mask-stream/camera"
	"github.com/Tutortoise/mask-stream/classifier"
	"github.com/Tutortoise/mask-stream/logging"
	"github.com/Tutortoise/mask-stream/models"
	"github.com/Tutortoise/mask-stream/stream"
	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"golang.org/x/sys/cpu"
)

const maxUploadSize = 10 << 20

func (s *AppState) handleStart(w http.ResponseWriter, _ *http.Request) {
	writeOutcome(w, s.Controller.Start())
}

func (s *AppState) handleStop(w http.ResponseWriter, _ *http.Request) {
	writeOutcome(w, s.Controller.Stop())
}

func writeOutcome(w http.ResponseWriter, out stream.Outcome) {
	status := http.StatusOK
	if errors.Is(out.Err, camera.ErrDeviceUnavailable) {
		status = http.StatusServiceUnavailable
	}
	writeJSON(w, status, out)
}

func (s *AppState) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.Controller.Status())
}

func handleClassify(state *AppState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		startTotal := time.Now()
		timings := &models.ProcessingTimings{RequestID: uuid.NewString()}

		var imgBytes []byte
		var err error

		mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
		switch mediaType {
		case "application/json":
			imgBytes, err = handleJSONRequest(r)
		case "multipart/form-data":
			imgBytes, err = handleMultipartRequest(r)
		default:
			imgBytes, err = handleRawRequest(r)
		}

		if err != nil {
			sendErrorResponse(w, "invalid_request", err.Error(), http.StatusBadRequest)
			return
		}

		decodeStart := time.Now()
		img, err := decodeImage(imgBytes)
		timings.Read = time.Since(decodeStart)
		if err != nil {
			sendErrorResponse(w, "invalid_image", "Failed to decode image", http.StatusBadRequest)
			return
		}

		ctx, cancel := context.WithTimeout(r.Context(), state.classifyTimeout())
		defer cancel()

		pred, err := classifier.Predict(ctx, state.Classifier, img, timings)
		if err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, errPoolClosed) || ctx.Err() != nil {
				status = http.StatusServiceUnavailable
			}
			sendErrorResponse(w, "processing_error", err.Error(), status)
			return
		}

		timings.Total = time.Since(startTotal)
		logTimings(timings)

		writeJSON(w, http.StatusOK, ClassifyResponse{
			Label:       string(pred.Label),
			Probability: pred.Probability,
			Message:     getClassificationMessage(pred.Label),
		})
	}
}

func (s *AppState) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	status := s.Controller.Status()
	response := map[string]interface{}{
		"uptime_seconds": int64(time.Since(s.StartedAt).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"backend":        s.Config.Model.Backend,
		"stream": map[string]interface{}{
			"state":            status.State,
			"frames":           status.Frames,
			"read_errors":      status.ReadErrors,
			"inference_errors": status.InferenceErrors,
		},
		"hub": s.Hub.Metrics(),
		"cpu": cpuFeatures(),
	}
	if s.Pool != nil {
		response["pool_size"] = s.Pool.Size()
		response["pool"] = s.Pool.GetMetrics()
		if errs := s.Pool.LastErrors(); len(errs) > 0 {
			response["pool_errors"] = errs
		}
	}

	writeJSON(w, http.StatusOK, response)
}

func cpuFeatures() map[string]bool {
	return map[string]bool{
		"avx":     cpu.X86.HasAVX,
		"avx2":    cpu.X86.HasAVX2,
		"avx512f": cpu.X86.HasAVX512F,
		"fma":     cpu.X86.HasFMA,
		"sse41":   cpu.X86.HasSSE41,
		"neon":    cpu.ARM64.HasASIMD,
	}
}

func handleJSONRequest(r *http.Request) ([]byte, error) {
	var req struct {
		Image string `json:"image"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxUploadSize)).Decode(&req); err != nil {
		return nil, err
	}
	if req.Image == "" {
		return nil, errors.New("image is required")
	}
	return base64.StdEncoding.DecodeString(req.Image)
}

func handleMultipartRequest(r *http.Request) ([]byte, error) {
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		return nil, err
	}

	file, _, err := r.FormFile("file")
	if err != nil {
		return nil, err
	}
	defer file.Close()

	return io.ReadAll(file)
}

func handleRawRequest(r *http.Request) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxUploadSize))
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, errors.New("empty request body")
	}
	return data, nil
}

func decodeImage(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

func logTimings(t *models.ProcessingTimings) {
	logging.Debug("classify request processed",
		"request_id", t.RequestID,
		"decode", t.Read,
		"preprocess", t.Preprocess,
		"inference", t.Inference,
		"total", t.Total,
	)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logging.Warn("write response", "error", err)
	}
}

func sendErrorResponse(w http.ResponseWriter, code, message string, status int) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}
