package presenter

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"strings"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/webp"

	"github.com/example/larvawatch/internal/channel"
)

// DecodeError is a malformed payload. The channel stays open and the message
// is discarded.
type DecodeError struct {
	Kind channel.Kind
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s payload: %v", e.Kind, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

var (
	ErrEmptyPayload  = errors.New("empty payload")
	ErrMissingField  = errors.New("missing field")
	ErrNegativeValue = errors.New("negative value")
)

// decodedFrame is a validated video payload.
type decodedFrame struct {
	data   []byte
	format string
	width  int
	height int
}

// decodeVideo turns a base64 text frame into image bytes and checks that they
// hold a supported image. A data URL prefix is tolerated.
func decodeVideo(payload []byte) (decodedFrame, error) {
	text := strings.TrimSpace(string(payload))
	if strings.HasPrefix(text, "data:") {
		if i := strings.IndexByte(text, ','); i >= 0 {
			text = text[i+1:]
		}
	}
	if text == "" {
		return decodedFrame{}, ErrEmptyPayload
	}

	data, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return decodedFrame{}, fmt.Errorf("base64: %w", err)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return decodedFrame{}, fmt.Errorf("image: %w", err)
	}
	return decodedFrame{data: data, format: format, width: cfg.Width, height: cfg.Height}, nil
}

type statsWire struct {
	LarvaeCount   *int     `json:"larvae_count"`
	DensityCm2    *float64 `json:"density_cm2"`
	DensityM2     *float64 `json:"density_m2"`
	IsHighDensity *bool    `json:"is_high_density"`
}

func decodeStats(payload []byte) (StatsSnapshot, error) {
	var w statsWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return StatsSnapshot{}, err
	}
	switch {
	case w.LarvaeCount == nil:
		return StatsSnapshot{}, fmt.Errorf("%w: larvae_count", ErrMissingField)
	case w.DensityCm2 == nil:
		return StatsSnapshot{}, fmt.Errorf("%w: density_cm2", ErrMissingField)
	case w.DensityM2 == nil:
		return StatsSnapshot{}, fmt.Errorf("%w: density_m2", ErrMissingField)
	case w.IsHighDensity == nil:
		return StatsSnapshot{}, fmt.Errorf("%w: is_high_density", ErrMissingField)
	}
	if *w.LarvaeCount < 0 || *w.DensityCm2 < 0 || *w.DensityM2 < 0 {
		return StatsSnapshot{}, ErrNegativeValue
	}
	return StatsSnapshot{
		LarvaeCount:   *w.LarvaeCount,
		DensityPerCm2: *w.DensityCm2,
		DensityPerM2:  *w.DensityM2,
		IsHighDensity: *w.IsHighDensity,
	}, nil
}

type notificationWire struct {
	Title   *string `json:"title"`
	Message *string `json:"message"`
}

func decodeNotification(payload []byte) (string, string, error) {
	var w notificationWire
	if err := json.Unmarshal(payload, &w); err != nil {
		return "", "", err
	}
	if w.Title == nil {
		return "", "", fmt.Errorf("%w: title", ErrMissingField)
	}
	if w.Message == nil {
		return "", "", fmt.Errorf("%w: message", ErrMissingField)
	}
	return *w.Title, *w.Message, nil
}
