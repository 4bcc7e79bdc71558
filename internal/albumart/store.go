package albumart

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
)

const (
	// FileName is the stored image name inside a device directory.
	FileName = "album.png"

	// DefaultPrefix is the URL path the host serves the media directory under.
	DefaultPrefix = "/media/sonos"

	defaultMaxSize = 8 << 20
	dirPermissions = 0750
)

// ErrUnsupportedImage is returned when fetched art is neither PNG nor JPEG.
var ErrUnsupportedImage = errors.New("albumart: unsupported image type")

// Logger defines the logging interface used by the store.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Store.
type Options struct {
	// Dir is the media directory. Required.
	Dir string

	// Prefix is the URL path Dir is served under. Defaults to DefaultPrefix.
	Prefix string

	// HTTPClient fetches art. Defaults to a client with a 10s timeout.
	HTTPClient *http.Client

	// MaxSize bounds a fetched image in bytes. Defaults to 8 MiB.
	MaxSize int64

	Logger Logger
}

// Store keeps the latest album art per speaker.
//
// Thread Safety: Update calls for different devices may run concurrently.
// Calls for one device are expected to be sequential.
type Store struct {
	dir     string
	prefix  string
	http    *http.Client
	maxSize int64
	logger  Logger
}

// New creates a store rooted at opts.Dir, creating the directory.
func New(opts Options) (*Store, error) {
	if opts.Dir == "" {
		return nil, fmt.Errorf("media directory is required")
	}
	if err := os.MkdirAll(opts.Dir, dirPermissions); err != nil {
		return nil, fmt.Errorf("creating media directory: %w", err)
	}

	s := &Store{
		dir:     opts.Dir,
		prefix:  strings.TrimSuffix(opts.Prefix, "/"),
		http:    opts.HTTPClient,
		maxSize: opts.MaxSize,
		logger:  opts.Logger,
	}
	if s.prefix == "" {
		s.prefix = DefaultPrefix
	}
	if s.http == nil {
		s.http = &http.Client{Timeout: 10 * time.Second}
	}
	if s.maxSize <= 0 {
		s.maxSize = defaultMaxSize
	}
	if s.logger == nil {
		s.logger = noopLogger{}
	}
	return s, nil
}

// Dir returns the media directory.
func (s *Store) Dir() string { return s.dir }

// Prefix returns the URL path prefix of stored images.
func (s *Store) Prefix() string { return s.prefix }

// Path returns the file path of a device's stored art.
func (s *Store) Path(deviceID string) string {
	return filepath.Join(s.dir, safeName(deviceID), FileName)
}

// Update fetches artURI and stores it as the device's art, returning its
// host reference. An empty artURI, a failed fetch or an unsupported type
// removes the stored file and returns "".
func (s *Store) Update(ctx context.Context, deviceID, artURI string) (string, error) {
	if artURI == "" {
		return "", s.Remove(deviceID)
	}

	img, err := s.fetch(ctx, artURI)
	if err == nil {
		err = s.write(deviceID, img)
	}
	if err != nil {
		if rmErr := s.Remove(deviceID); rmErr != nil {
			s.logger.Debug("clearing album art failed", "device_id", deviceID, "error", rmErr)
		}
		return "", err
	}

	s.logger.Debug("album art stored", "device_id", deviceID, "bytes", len(img))
	return s.href(deviceID, artURI), nil
}

// Remove deletes the device's stored art and its directory if empty.
func (s *Store) Remove(deviceID string) error {
	p := s.Path(deviceID)
	if err := os.Remove(p); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("removing %s: %w", p, err)
	}
	_ = os.Remove(filepath.Dir(p)) //nolint:errcheck // only succeeds when empty
	return nil
}

// fetch downloads artURI and returns it as PNG bytes.
func (s *Store) fetch(ctx context.Context, artURI string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, artURI, nil)
	if err != nil {
		return nil, fmt.Errorf("creating art request: %w", err)
	}
	resp, err := s.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching album art: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching album art: HTTP %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, s.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading album art: %w", err)
	}
	if int64(len(data)) > s.maxSize {
		return nil, fmt.Errorf("album art exceeds %d bytes", s.maxSize)
	}
	return toPNG(data)
}

// toPNG passes PNG data through and converts JPEG.
func toPNG(data []byte) ([]byte, error) {
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/png"):
		return data, nil
	case mt.Is("image/jpeg"):
		img, err := jpeg.Decode(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("decoding jpeg: %w", err)
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			return nil, fmt.Errorf("encoding png: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedImage, mt.String())
	}
}

// write replaces the stored file through a temp file and rename.
func (s *Store) write(deviceID string, img []byte) error {
	p := s.Path(deviceID)
	if err := os.MkdirAll(filepath.Dir(p), dirPermissions); err != nil {
		return fmt.Errorf("creating art directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(p), ".album-*.png")
	if err != nil {
		return fmt.Errorf("creating art file: %w", err)
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck // no-op after rename

	if _, err := tmp.Write(img); err != nil {
		tmp.Close() //nolint:errcheck // error path
		return fmt.Errorf("writing art file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("writing art file: %w", err)
	}
	if err := os.Rename(tmp.Name(), p); err != nil {
		return fmt.Errorf("replacing art file: %w", err)
	}
	return nil
}

func (s *Store) href(deviceID, artURI string) string {
	h := fnv.New32a()
	_, _ = h.Write([]byte(artURI))
	return fmt.Sprintf("%s/%s?v=%08x", s.prefix, path.Join(url.PathEscape(deviceID), FileName), h.Sum32())
}

// safeName keeps a device id usable as one path element.
func safeName(id string) string {
	return strings.NewReplacer("/", "_", "\\", "_", "..", "_").Replace(id)
}
