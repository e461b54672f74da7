package server

import (
	"errors"
	"net/http"

	"github.com/maauso/clipstitch/internal/job"
	"github.com/maauso/clipstitch/internal/mediaerr"
	"github.com/maauso/clipstitch/internal/studio"
	"github.com/maauso/clipstitch/internal/timeline"
)

type errorMapping struct {
	err    error
	status int
	code   string
}

// errorMappings is checked in order; the first match wins.
var errorMappings = []errorMapping{
	{studio.ErrCompositionNotFound, http.StatusNotFound, "COMPOSITION_NOT_FOUND"},
	{job.ErrJobNotFound, http.StatusNotFound, "JOB_NOT_FOUND"},
	{studio.ErrTooManyJobs, http.StatusTooManyRequests, "TOO_MANY_JOBS"},
	{studio.ErrJobActive, http.StatusConflict, "JOB_ACTIVE"},
	{studio.ErrJobNotActive, http.StatusConflict, "JOB_NOT_ACTIVE"},
	{studio.ErrOutputUnavailable, http.StatusConflict, "OUTPUT_UNAVAILABLE"},
	{mediaerr.ErrEmptyComposition, http.StatusUnprocessableEntity, "EMPTY_COMPOSITION"},
	{mediaerr.ErrInvalidRange, http.StatusUnprocessableEntity, "INVALID_RANGE"},
	{mediaerr.ErrTrackInsertionFailed, http.StatusUnprocessableEntity, "TRACK_INSERTION_FAILED"},
	{mediaerr.ErrFrameSynthesisFailed, http.StatusUnprocessableEntity, "FRAME_SYNTHESIS_FAILED"},
	{timeline.ErrNoVideoTrack, http.StatusUnprocessableEntity, "NO_VIDEO_TRACK"},
	{mediaerr.ErrEncoderUnavailable, http.StatusServiceUnavailable, "ENCODER_UNAVAILABLE"},
	{mediaerr.ErrEncoderNotReady, http.StatusServiceUnavailable, "ENCODER_NOT_READY"},
	{mediaerr.ErrExportCancelled, http.StatusConflict, "EXPORT_CANCELLED"},
	{mediaerr.ErrExportFailed, http.StatusInternalServerError, "EXPORT_FAILED"},
}

// classify maps a domain error to an HTTP status and error code.
func classify(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.err) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

// writeDomainError writes err in the standard format, naming the offending
// segment or source when the error carries one.
func writeDomainError(w http.ResponseWriter, err error) {
	status, code := classify(err)
	resp := ErrorResponse{Error: err.Error(), Code: code}
	if status == http.StatusInternalServerError && code == "INTERNAL_ERROR" {
		resp.Error = "internal server error"
	}
	if i := mediaerr.IndexOf(err); i != mediaerr.NoIndex {
		resp.Index = &i
	}
	writeJSON(w, status, resp)
}
