package video

import (
	"io"
	"log/slog"
	"math"
	"net/http"

	"github.com/newtube/newtube/internal/httputil"
	"github.com/newtube/newtube/internal/validate"
	"github.com/newtube/newtube/internal/webhook"
)

const maxWebhookBodyBytes = 1 << 20

// TranscoderWebhook applies signed asset status callbacks. Events for
// unknown videos are acknowledged so the sender stops retrying them.
func (h *Handler) TranscoderWebhook(w http.ResponseWriter, r *http.Request) {
	if h.webhookSecret == "" {
		httputil.WriteError(w, http.StatusServiceUnavailable, "webhooks not configured")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "could not read body")
		return
	}
	if err := webhook.Verify(h.webhookSecret, r.Header.Get(webhook.SignatureHeader), body, h.now(), webhook.DefaultTolerance); err != nil {
		slog.Warn("transcoder webhook: rejected", "error", err)
		httputil.WriteError(w, http.StatusUnauthorized, "invalid signature")
		return
	}
	ev, err := webhook.ParseEvent(body)
	if err != nil {
		httputil.WriteError(w, http.StatusBadRequest, "invalid event")
		return
	}

	data := ev.Data
	var sql string
	var args []any
	switch ev.Type {
	case webhook.AssetCreated, webhook.AssetReady, webhook.AssetErrored:
		if !validate.ID(data.VideoID) {
			httputil.WriteError(w, http.StatusBadRequest, "invalid video id")
			return
		}
		switch ev.Type {
		case webhook.AssetCreated:
			sql = `UPDATE videos SET asset_id = $1, status = 'preparing', updated_at = now() WHERE id = $2`
			args = []any{data.AssetID, data.VideoID}
		case webhook.AssetReady:
			sql = `UPDATE videos SET asset_id = $1, status = 'ready', playback_url = $2, default_thumbnail_url = $3,
			       preview_url = $4, duration = $5, updated_at = now() WHERE id = $6`
			args = []any{data.AssetID, nullIfEmpty(data.PlaybackURL), nullIfEmpty(data.ThumbnailURL),
				nullIfEmpty(data.PreviewURL), int(math.Round(data.Duration)), data.VideoID}
		default:
			slog.Warn("transcoder webhook: asset errored", "video_id", data.VideoID, "error", data.Error)
			sql = `UPDATE videos SET status = 'errored', updated_at = now() WHERE id = $1`
			args = []any{data.VideoID}
		}
	case webhook.AssetTrackReady:
		sql = `UPDATE videos SET transcript_url = $1, updated_at = now() WHERE asset_id = $2`
		args = []any{nullIfEmpty(data.TranscriptURL), data.AssetID}
	case webhook.AssetDeleted:
		sql = `DELETE FROM videos WHERE asset_id = $1`
		args = []any{data.AssetID}
	default:
		slog.Debug("transcoder webhook: ignored event", "type", ev.Type)
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if data.AssetID == "" {
		httputil.WriteError(w, http.StatusBadRequest, "missing asset id")
		return
	}

	tag, err := h.db.Exec(r.Context(), sql, args...)
	if err != nil {
		slog.Error("transcoder webhook: apply", "type", ev.Type, "asset_id", data.AssetID, "error", err)
		httputil.WriteError(w, http.StatusInternalServerError, "failed to apply event")
		return
	}
	if tag.RowsAffected() == 0 {
		slog.Warn("transcoder webhook: no matching video", "type", ev.Type, "video_id", data.VideoID, "asset_id", data.AssetID)
	}

	w.WriteHeader(http.StatusNoContent)
}
