package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime"
	"path"
	"strconv"
	"strings"

	"careercoach/internal/config"
	"careercoach/internal/models"

	"github.com/google/uuid"
)

var (
	ErrNotFound           = errors.New("media not found")
	ErrUnsupportedType    = errors.New("unsupported media type")
	ErrInvalidKey         = errors.New("invalid media key")
	defaultTypeExtensions = map[string]string{
		"audio/webm":               ".webm",
		"video/webm":               ".webm",
		"audio/mpeg":               ".mp3",
		"audio/wav":                ".wav",
		"audio/x-wav":              ".wav",
		"audio/ogg":                ".ogg",
		"audio/mp4":                ".m4a",
		"video/mp4":                ".mp4",
		"video/quicktime":          ".mov",
		"application/octet-stream": ".bin",
	}
	extensionTypes = map[string]string{
		".webm": "video/webm",
		".mp3":  "audio/mpeg",
		".wav":  "audio/wav",
		".ogg":  "audio/ogg",
		".m4a":  "audio/mp4",
		".mp4":  "video/mp4",
		".mov":  "video/quicktime",
	}
)

// Store keeps uploaded recordings. Keys are "<user id>/<name>".
type Store interface {
	Save(ctx context.Context, userID int64, filename, contentType string, body io.Reader) (*models.MediaObject, error)
	Open(ctx context.Context, key string) (io.ReadCloser, string, error)
}

// New builds the store selected by cfg.Media.Driver.
func New(ctx context.Context, cfg *config.Config) (Store, error) {
	switch cfg.Media.Driver {
	case "", "local":
		return NewLocalStore(cfg.Media.BaseDir, cfg.Media.PublicBaseURL)
	case "s3", "r2":
		return NewS3Store(ctx, cfg.Media)
	default:
		return nil, fmt.Errorf("unknown media driver %q", cfg.Media.Driver)
	}
}

// Allowed reports whether uploads of contentType are accepted.
func Allowed(contentType string) bool {
	base, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return strings.HasPrefix(base, "audio/") || strings.HasPrefix(base, "video/") || base == "application/octet-stream"
}

// OwnedBy reports whether key was stored for userID.
func OwnedBy(key string, userID int64) bool {
	return strings.HasPrefix(key, strconv.FormatInt(userID, 10)+"/")
}

func newKey(userID int64, filename, contentType string) string {
	ext := strings.ToLower(path.Ext(filename))
	if ext == "" || len(ext) > 8 {
		base, _, _ := mime.ParseMediaType(contentType)
		ext = defaultTypeExtensions[base]
	}
	return fmt.Sprintf("%d/%s%s", userID, uuid.NewString(), ext)
}

func validKey(key string) bool {
	if key == "" || strings.Contains(key, "..") || strings.HasPrefix(key, "/") {
		return false
	}
	return path.Clean(key) == key
}

func typeForKey(key string) string {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(key))]; ok {
		return t
	}
	if t := mime.TypeByExtension(path.Ext(key)); t != "" {
		return t
	}
	return "application/octet-stream"
}

func publicURL(base, key string) string {
	if base == "" {
		return "/media/" + key
	}
	return strings.TrimRight(base, "/") + "/" + key
}
