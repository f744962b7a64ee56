package retriever

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Descriptor identifies the bytes to retrieve. It is owned by the caller
// for the duration of one call.
type Descriptor struct {
	URL      string            `json:"url"`
	Headers  map[string]string `json:"auth_header,omitempty"`
	FileName string            `json:"file_name,omitempty"`
	// FileSize is an expected byte count; 0 means unknown.
	FileSize int64 `json:"file_size,omitempty"`
	// Expires is the link's stated lifetime; zero means unknown.
	Expires time.Time `json:"expires,omitzero"`
}

// Expired reports whether the descriptor states an expiry at or before now.
func (d Descriptor) Expired(now time.Time) bool {
	return !d.Expires.IsZero() && !d.Expires.After(now)
}

// UnmarshalJSON accepts file_size as a JSON number or a decimal string and
// expires as an RFC 3339 string or Unix seconds.
func (d *Descriptor) UnmarshalJSON(data []byte) error {
	var raw struct {
		URL      string            `json:"url"`
		Headers  map[string]string `json:"auth_header"`
		FileName string            `json:"file_name"`
		FileSize json.RawMessage   `json:"file_size"`
		Expires  json.RawMessage   `json:"expires"`
	}

	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("retriever: decoding descriptor: %w", err)
	}

	size, err := decodeSize(raw.FileSize)
	if err != nil {
		return err
	}

	expires, err := decodeTime(raw.Expires)
	if err != nil {
		return err
	}

	*d = Descriptor{
		URL:      raw.URL,
		Headers:  raw.Headers,
		FileName: raw.FileName,
		FileSize: size,
		Expires:  expires,
	}

	return nil
}

func decodeSize(raw json.RawMessage) (int64, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return 0, nil
	}

	text := string(raw)
	if raw[0] == '"' {
		if err := json.Unmarshal(raw, &text); err != nil {
			return 0, fmt.Errorf("retriever: decoding file_size: %w", err)
		}

		text = strings.TrimSpace(text)
		if text == "" {
			return 0, nil
		}
	}

	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("retriever: invalid file_size %s: %w", raw, err)
	}

	if n < 0 {
		return 0, fmt.Errorf("retriever: invalid file_size %d: must be non-negative", n)
	}

	return n, nil
}

func decodeTime(raw json.RawMessage) (time.Time, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return time.Time{}, nil
	}

	if raw[0] != '"' {
		secs, err := strconv.ParseInt(string(raw), 10, 64)
		if err != nil {
			return time.Time{}, fmt.Errorf("retriever: invalid expires %s: %w", raw, err)
		}

		return time.Unix(secs, 0), nil
	}

	var text string
	if err := json.Unmarshal(raw, &text); err != nil {
		return time.Time{}, fmt.Errorf("retriever: decoding expires: %w", err)
	}

	if text == "" {
		return time.Time{}, nil
	}

	t, err := time.Parse(time.RFC3339, text)
	if err != nil {
		return time.Time{}, fmt.Errorf("retriever: invalid expires %q: %w", text, err)
	}

	return t, nil
}
