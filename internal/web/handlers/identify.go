package handlers

import (
	"io"
	"net/http"
	"strings"

	"github.com/kozaktomas/facegate/internal/biometric"
	"github.com/kozaktomas/facegate/internal/capture"
	"github.com/kozaktomas/facegate/internal/session"
)

// maxImageBytes caps uploaded capture images.
const maxImageBytes = 10 << 20

// IdentifyHandler turns a capture into an attendance event.
type IdentifyHandler struct {
	orch    *session.Orchestrator
	encoder *capture.EncoderClient
}

// NewIdentifyHandler creates an identify handler. encoder may be nil, in which
// case only pre-computed encodings are accepted.
func NewIdentifyHandler(orch *session.Orchestrator, encoder *capture.EncoderClient) *IdentifyHandler {
	return &IdentifyHandler{orch: orch, encoder: encoder}
}

type identifyRequest struct {
	Encoding []float64 `json:"encoding" validate:"required,min=1"`
}

// Identify accepts either a JSON body {"encoding": [...]} or a multipart image
// upload in field "file", which is sent to the face encoder.
func (h *IdentifyHandler) Identify(w http.ResponseWriter, r *http.Request) {
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/form-data") {
		h.identifyImage(w, r)
		return
	}

	var req identifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	out := h.orch.ProcessCapture(r.Context(), biometric.Encoding(req.Encoding))
	respondOutcome(w, r, out, http.StatusOK, true)
}

func (h *IdentifyHandler) identifyImage(w http.ResponseWriter, r *http.Request) {
	if h.encoder == nil {
		respondError(w, http.StatusServiceUnavailable, "face encoder not configured")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes)
	file, _, err := r.FormFile("file")
	if err != nil {
		respondError(w, http.StatusBadRequest, "missing image file")
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, http.StatusBadRequest, "failed to read image")
		return
	}

	out := h.orch.CaptureAndProcess(r.Context(), h.encoder.Capturer(capture.ImageBytes(data)))
	respondOutcome(w, r, out, http.StatusOK, true)
}
