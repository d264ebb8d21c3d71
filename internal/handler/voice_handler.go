package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/chronos/internal/dto"
	appErrors "github.com/noah-isme/chronos/pkg/errors"
	"github.com/noah-isme/chronos/pkg/response"
)

type speechTranscriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
	MaxUploadBytes() int64
}

// VoiceHandler turns uploaded recordings into command text.
type VoiceHandler struct {
	transcriber speechTranscriber
}

// NewVoiceHandler constructs a VoiceHandler.
func NewVoiceHandler(transcriber speechTranscriber) *VoiceHandler {
	return &VoiceHandler{transcriber: transcriber}
}

// Transcribe godoc
// @Summary Transcribe a recorded command
// @Tags Voice
// @Accept multipart/form-data
// @Produce json
// @Param audio formData file true "Recording (mp4, mp3, wav or webm)"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /voice/transcribe [post]
func (h *VoiceHandler) Transcribe(c *gin.Context) {
	limit := h.transcriber.MaxUploadBytes()
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit+1<<20)

	header, err := c.FormFile("audio")
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "audio file is required"))
		return
	}
	if header.Size > limit {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "recording is too large"))
		return
	}
	file, err := header.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not read audio file"))
		return
	}
	defer file.Close()
	audio, err := io.ReadAll(file)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "could not read audio file"))
		return
	}

	text, err := h.transcriber.Transcribe(c.Request.Context(), audio, header.Header.Get("Content-Type"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.TranscriptionResponse{Text: text})
}
