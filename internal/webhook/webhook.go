// Package webhook verifies and decodes signed callbacks from the transcoding
// pipeline.
package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SignatureHeader carries "t=<unix seconds>,v1=<hex hmac>".
const SignatureHeader = "X-Transcoder-Signature"

const DefaultTolerance = 5 * time.Minute

var (
	ErrMissingSignature = errors.New("missing signature")
	ErrBadSignature     = errors.New("signature mismatch")
	ErrStaleSignature   = errors.New("signature timestamp outside tolerance")
)

const (
	AssetCreated    = "asset.created"
	AssetReady      = "asset.ready"
	AssetErrored    = "asset.errored"
	AssetTrackReady = "asset.track_ready"
	AssetDeleted    = "asset.deleted"
)

type Event struct {
	Type string    `json:"type"`
	Data AssetData `json:"data"`
}

// AssetData is the asset state reported by the transcoder. VideoID is the
// passthrough value set when the upload was registered.
type AssetData struct {
	AssetID       string  `json:"assetId"`
	VideoID       string  `json:"videoId"`
	PlaybackURL   string  `json:"playbackUrl,omitempty"`
	ThumbnailURL  string  `json:"thumbnailUrl,omitempty"`
	PreviewURL    string  `json:"previewUrl,omitempty"`
	TranscriptURL string  `json:"transcriptUrl,omitempty"`
	Duration      float64 `json:"duration,omitempty"`
	Error         string  `json:"error,omitempty"`
}

// SignPayload returns the hex HMAC-SHA256 of "<timestamp>.<payload>".
func SignPayload(secret string, timestamp int64, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(timestamp, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

// SignatureHeaderValue builds the header a sender attaches to payload.
func SignatureHeaderValue(secret string, at time.Time, payload []byte) string {
	ts := at.Unix()
	return fmt.Sprintf("t=%d,v1=%s", ts, SignPayload(secret, ts, payload))
}

// Verify checks header against payload. Any v1 entry may match, which lets
// the sender rotate secrets.
func Verify(secret, header string, payload []byte, now time.Time, tolerance time.Duration) error {
	if header == "" {
		return ErrMissingSignature
	}

	var ts int64
	var candidates []string
	for _, part := range strings.Split(header, ",") {
		key, value, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch key {
		case "t":
			parsed, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return ErrBadSignature
			}
			ts = parsed
		case "v1":
			candidates = append(candidates, value)
		}
	}
	if ts == 0 || len(candidates) == 0 {
		return ErrMissingSignature
	}
	if now.Sub(time.Unix(ts, 0)).Abs() > tolerance {
		return ErrStaleSignature
	}

	expected := []byte(SignPayload(secret, ts, payload))
	for _, candidate := range candidates {
		if hmac.Equal(expected, []byte(candidate)) {
			return nil
		}
	}
	return ErrBadSignature
}

func ParseEvent(payload []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	if ev.Type == "" {
		return Event{}, errors.New("decode event: missing type")
	}
	return ev, nil
}
