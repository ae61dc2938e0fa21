package httpapi

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"strconv"

	"minutes-studio/internal/export"
	"minutes-studio/internal/model"
	"minutes-studio/internal/pipeline"
	"minutes-studio/internal/stylecorpus"
	"minutes-studio/internal/transcription"
)

// Multipart field names. The bracketed forms are what browser form
// libraries send for repeated file inputs.
var (
	audioFields  = []string{"audio[]", "audio"}
	styleFields  = []string{"style[]", "style"}
	s3KeyFields  = []string{"s3Keys", "s3Keys[]"}
	errNoStorage = errors.New("ストレージが設定されていません")

	errInvalidBody = errors.New("リクエスト本文を解析できません")
)

func (s *server) handleUploadSign(w http.ResponseWriter, r *http.Request) {
	var req model.UploadSignRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, validationMessage(err), "")
		return
	}
	if s.uploads == nil {
		s.writeError(w, r, http.StatusBadRequest, errNoStorage.Error(), "")
		return
	}

	ticket, err := s.uploads.SignUpload(r.Context(), req.Filename, req.ContentType)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, model.UploadSignResponse{
		URL:       ticket.URL,
		Key:       ticket.Key,
		ExpiresAt: ticket.ExpiresAt.Unix(),
	})
}

func (s *server) handleMinutes(w http.ResponseWriter, r *http.Request) {
	sub, cleanup, err := s.readSubmission(w, r)
	defer cleanup()
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	in, err := sub.Decide()
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	s.logger.Debug("minutes request accepted",
		"request_id", requestIDFromContext(r.Context()),
		"mode", in.Mode.String(),
		"audio_files", len(in.Audio),
		"storage_keys", len(in.StorageKeys),
		"style_files", len(in.Style),
	)

	result, err := s.pipeline.Process(r.Context(), in)
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}
	if s.metrics != nil {
		switch {
		case !result.UsedAI:
			s.metrics.IncMockResponse()
		case !result.MinutesParsed:
			s.metrics.IncMinutesParseFailure()
		}
	}

	writeJSON(w, http.StatusOK, model.MinutesResponse{
		Transcript:      result.Transcript,
		Summary:         result.Summary,
		Minutes:         result.Minutes,
		StyleGuidelines: result.StyleGuidelines,
		UsedAI:          result.UsedAI,
		TimingsMS: model.MinutesTimings{
			Transcription: result.Timings.Transcription.Milliseconds(),
			Style:         result.Timings.Style.Milliseconds(),
			Synthesis:     result.Timings.Synthesis.Milliseconds(),
			Total:         result.Timings.Total.Milliseconds(),
		},
	})
}

// readSubmission reads either body form of POST /minutes. The returned
// cleanup is always safe to call.
func (s *server) readSubmission(w http.ResponseWriter, r *http.Request) (pipeline.Submission, func(), error) {
	noop := func() {}
	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil {
		return pipeline.Submission{}, noop, errUnsupportedContentType
	}

	switch mediaType {
	case "application/json":
		var req model.MinutesJSONRequest
		if err := decodeJSON(w, r, &req); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return pipeline.Submission{}, noop, err
			}
			return pipeline.Submission{}, noop, fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		return pipeline.Submission{StorageKeys: req.S3Keys, Transcript: req.Transcript}, noop, nil
	case "multipart/form-data":
		r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)
		if err := r.ParseMultipartForm(min(s.cfg.MaxUploadBytes, 32<<20)); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				return pipeline.Submission{}, noop, err
			}
			return pipeline.Submission{}, noop, fmt.Errorf("%w: %v", errInvalidBody, err)
		}
		form := r.MultipartForm
		cleanup := func() { _ = form.RemoveAll() }

		sub, err := submissionFromForm(form)
		return sub, cleanup, err
	default:
		return pipeline.Submission{}, noop, errUnsupportedContentType
	}
}

func submissionFromForm(form *multipart.Form) (pipeline.Submission, error) {
	var sub pipeline.Submission

	for _, fh := range formFiles(form, audioFields) {
		data, err := readPart(fh)
		if err != nil {
			return pipeline.Submission{}, err
		}
		sub.Audio = append(sub.Audio, transcription.Audio{
			Name:     fh.Filename,
			Data:     data,
			MIMEType: transcription.DetectMIMEType(fh.Header.Get("Content-Type"), data),
		})
	}

	for _, fh := range formFiles(form, styleFields) {
		data, err := readPart(fh)
		if err != nil {
			return pipeline.Submission{}, err
		}
		sub.Style = append(sub.Style, stylecorpus.Document{Name: fh.Filename, Content: data})
	}

	for _, name := range s3KeyFields {
		sub.StorageKeys = append(sub.StorageKeys, form.Value[name]...)
	}
	if values, ok := form.Value["transcript"]; ok && len(values) > 0 {
		transcript := values[0]
		sub.Transcript = &transcript
	}
	return sub, nil
}

func formFiles(form *multipart.Form, names []string) []*multipart.FileHeader {
	var out []*multipart.FileHeader
	for _, name := range names {
		out = append(out, form.File[name]...)
	}
	return out
}

func readPart(fh *multipart.FileHeader) ([]byte, error) {
	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open part %q: %w", fh.Filename, err)
	}
	defer func() { _ = f.Close() }()
	data, err := io.ReadAll(f)
	if err != nil {
		return nil, fmt.Errorf("read part %q: %w", fh.Filename, err)
	}
	return data, nil
}

func (s *server) handleExport(w http.ResponseWriter, r *http.Request) {
	var req model.ExportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		s.handleJSONDecodeError(w, r, err)
		return
	}
	if err := s.validate.Struct(req); err != nil {
		s.writeError(w, r, http.StatusBadRequest, validationMessage(err), "")
		return
	}

	out, err := export.Render(export.Format(req.Format), export.Document{
		Title:      req.Title,
		Summary:    req.Summary,
		Minutes:    req.Minutes,
		Transcript: req.Transcript,
	})
	if err != nil {
		s.writeMappedError(w, r, err)
		return
	}

	w.Header().Set("Content-Type", out.ContentType)
	w.Header().Set("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": out.Filename}))
	w.Header().Set("Content-Length", strconv.Itoa(len(out.Body)))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(out.Body)
}
