package source

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/MidAtlanticPortal/madrona-manipulators/internal/domain"
	"github.com/MidAtlanticPortal/madrona-manipulators/internal/ports/output"
)

// HTTP implements output.GeometrySource for files served over HTTP(S). The
// files are enumerated by an index file with one key per line.
type HTTP struct {
	client    *http.Client
	baseURL   string
	indexFile string
	username  string
	password  string
}

var _ output.GeometrySource = (*HTTP)(nil)

// HTTPConfig holds HTTP source configuration.
type HTTPConfig struct {
	BaseURL   string
	IndexFile string // default: index.txt
	Timeout   time.Duration
	Username  string
	Password  string
}

// NewHTTP creates a new HTTP source.
func NewHTTP(cfg HTTPConfig) *HTTP {
	if cfg.IndexFile == "" {
		cfg.IndexFile = "index.txt"
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = time.Minute
	}

	return &HTTP{
		client:    &http.Client{Timeout: cfg.Timeout},
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		indexFile: cfg.IndexFile,
		username:  cfg.Username,
		password:  cfg.Password,
	}
}

// List returns the geometry files named in the index file. Blank lines and
// lines starting with # are ignored.
func (s *HTTP) List(ctx context.Context) ([]output.SourceObject, error) {
	resp, err := s.do(ctx, http.MethodGet, s.indexFile)
	if err != nil {
		return nil, &domain.SourceError{Operation: "list", Key: s.indexFile, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, &domain.SourceError{Operation: "list", Key: s.indexFile, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}

	var objects []output.SourceObject
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") || !output.IsInputFile(line) {
			continue
		}
		objects = append(objects, output.SourceObject{Key: line})
	}
	if err := scanner.Err(); err != nil {
		return nil, &domain.SourceError{Operation: "list", Key: s.indexFile, Err: err}
	}

	return objects, nil
}

// GetReader returns the body of the file for key.
func (s *HTTP) GetReader(ctx context.Context, key string) (io.ReadCloser, error) {
	resp, err := s.do(ctx, http.MethodGet, key)
	if err != nil {
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		_ = resp.Body.Close()
		return nil, &domain.SourceError{Operation: "read", Key: key, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
	}
	return resp.Body, nil
}

// Exists checks if a file exists via HTTP HEAD request.
func (s *HTTP) Exists(ctx context.Context, key string) (bool, error) {
	resp, err := s.do(ctx, http.MethodHead, key)
	if err != nil {
		return false, &domain.SourceError{Operation: "stat", Key: key, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return true, nil
	case http.StatusNotFound:
		return false, nil
	}
	return false, &domain.SourceError{Operation: "stat", Key: key, Err: fmt.Errorf("HTTP %d", resp.StatusCode)}
}

func (s *HTTP) do(ctx context.Context, method, key string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+"/"+strings.TrimPrefix(key, "/"), nil)
	if err != nil {
		return nil, err
	}
	if s.username != "" && s.password != "" {
		req.SetBasicAuth(s.username, s.password)
	}
	return s.client.Do(req)
}
