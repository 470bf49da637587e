package httpapi

import (
	"bytes"
	"io"
	"net/http"

	"github.com/hanmaum-labs/voicekiosk/internal/pipeline"
	"github.com/hanmaum-labs/voicekiosk/internal/security"
)

// headProbe is how many leading bytes are sniffed for content validation.
const headProbe = 512

// handleVoiceProcess is the main entry: multipart WAV upload in, full
// ServerResponse out. Transport misuse (missing or invalid file) is a 4xx
// JSON error; everything past validation answers 200, with pipeline failures
// expressed as success=false on the response schema.
func (s *Server) handleVoiceProcess(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(s.deps.Validator.MaxSize() + 1<<20); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "INVALID_MULTIPART",
			"message": "잘못된 요청 형식입니다.",
		})
		return
	}

	file, header, err := r.FormFile("audio_file")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "MISSING_AUDIO_FILE",
			"message": "audio_file 필드가 필요합니다.",
		})
		return
	}
	defer file.Close()

	head := make([]byte, headProbe)
	n, err := io.ReadFull(file, head)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "UNREADABLE_UPLOAD",
			"message": "업로드를 읽을 수 없습니다.",
		})
		return
	}
	head = head[:n]

	if errs := s.deps.Validator.Validate(header.Filename, header.Size, head); len(errs) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":             "FILE_VALIDATION_FAILED",
			"message":           "업로드한 파일이 올바르지 않습니다.",
			"validation_errors": errs,
		})
		return
	}

	resp := s.deps.Pipeline.Process(r.Context(), pipeline.Request{
		SessionID: r.FormValue("session_id"),
		ClientIP:  security.ClientIP(r, s.cfg.Server.TrustedProxies),
		Audio:     io.MultiReader(bytes.NewReader(head), file),
		Size:      header.Size,
	})
	writeJSON(w, http.StatusOK, resp)
}

// handleTTSFetch streams a cached synthesis result by its cache key.
func (s *Server) handleTTSFetch(w http.ResponseWriter, r *http.Request) {
	fileID := r.PathValue("file_id")
	path, ok := s.deps.Cache.Resolve(fileID)
	if !ok {
		writeJSON(w, http.StatusNotFound, map[string]any{
			"error":   "AUDIO_NOT_FOUND",
			"message": "요청한 음성 파일이 없습니다.",
		})
		return
	}
	w.Header().Set("Content-Type", "audio/wav")
	http.ServeFile(w, r, path)
}
