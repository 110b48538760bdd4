package storage

import (
	"encoding/base64"
	"errors"
	"mime"
	"strings"

	"halcyon.studio/cinema/internal/domain"
)

var extByType = map[string]string{
	"image/png":            "png",
	"image/jpeg":           "jpg",
	"image/webp":           "webp",
	"audio/mpeg":           "mp3",
	"audio/mp3":            "mp3",
	"audio/wav":            "wav",
	"audio/x-wav":          "wav",
	"audio/ogg":            "ogg",
	"video/mp4":            "mp4",
	"video/webm":           "webm",
	"text/vtt":             "vtt",
	"application/x-subrip": "srt",
	"application/json":     "json",
}

var extByKind = map[domain.MediaKind]string{
	domain.MediaImage:     "png",
	domain.MediaMusic:     "mp3",
	domain.MediaVoiceover: "mp3",
	domain.MediaVideo:     "mp4",
	domain.MediaCaptions:  "vtt",
	domain.MediaManifest:  "json",
}

// ExtensionFor picks a file extension from the content type, falling back
// to the usual extension for the media kind.
func ExtensionFor(contentType string, kind domain.MediaKind) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil {
		if ext, ok := extByType[strings.ToLower(mediaType)]; ok {
			return ext
		}
	}
	if ext, ok := extByKind[kind]; ok {
		return ext
	}
	return "bin"
}

// DataURL encodes data as a base64 data: URL.
func DataURL(contentType string, data []byte) string {
	return "data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data)
}

// DecodeDataURL parses a base64 data: URL.
func DecodeDataURL(s string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		return nil, "", errors.New("storage: not a data URL")
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, "", errors.New("storage: malformed data URL")
	}
	contentType, isBase64 := strings.CutSuffix(meta, ";base64")
	if !isBase64 {
		return nil, "", errors.New("storage: only base64 data URLs are supported")
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", errors.New("storage: invalid base64 payload")
	}
	return data, contentType, nil
}
