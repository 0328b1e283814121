package workflow

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	maxTranscriptBytes = 4 << 20
	maxTranscriptChars = 30000
)

// fetchTranscript downloads a WebVTT transcript and returns its spoken text.
func fetchTranscript(ctx context.Context, client *http.Client, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create transcript request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch transcript: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("transcript fetch returned status %d", resp.StatusCode)
	}
	return vttText(io.LimitReader(resp.Body, maxTranscriptBytes))
}

// vttText drops the header, cue identifiers, timings and NOTE blocks of a
// WebVTT document and joins the cue text, up to maxTranscriptChars.
func vttText(r io.Reader) (string, error) {
	var sb strings.Builder
	scanner := bufio.NewScanner(r)
	inNote := false
	prevBlank := true
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		blank := line == ""
		switch {
		case blank:
			inNote = false
		case inNote:
		case prevBlank && (strings.HasPrefix(line, "WEBVTT") || strings.HasPrefix(line, "NOTE") ||
			strings.HasPrefix(line, "STYLE") || strings.HasPrefix(line, "REGION")):
			inNote = true
		case strings.Contains(line, "-->"):
		case prevBlank && isCueID(line):
		default:
			if sb.Len()+len(line)+1 > maxTranscriptChars {
				return sb.String(), nil
			}
			if sb.Len() > 0 {
				sb.WriteByte(' ')
			}
			sb.WriteString(line)
		}
		prevBlank = blank
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return sb.String(), nil
}

func isCueID(line string) bool {
	for _, r := range line {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
