// Package pdfex downloads bulletin attachments and extracts their text.
package pdfex

import (
	"context"
	"crypto/sha1"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
)

const maxDownloadBytes = 32 << 20

// Extractor fetches attachment files into a cache directory and reads
// plain text from PDF documents.
type Extractor struct {
	cacheDir string
	client   *http.Client
}

// NewExtractor prepares the cache directory.
func NewExtractor(cacheDir string) (*Extractor, error) {
	if err := os.MkdirAll(cacheDir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir: %w", err)
	}
	return &Extractor{
		cacheDir: cacheDir,
		client:   &http.Client{Timeout: 60 * time.Second},
	}, nil
}

// ExtractFromURL downloads the attachment (or reuses the cached copy) and
// returns its plain text.
func (e *Extractor) ExtractFromURL(ctx context.Context, url string) (string, error) {
	path, err := e.fetch(ctx, url)
	if err != nil {
		return "", err
	}
	return extractText(path)
}

func (e *Extractor) fetch(ctx context.Context, url string) (string, error) {
	path := filepath.Join(e.cacheDir, fmt.Sprintf("%x.pdf", sha1.Sum([]byte(url))))
	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("create download request: %w", err)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("download attachment: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}

	tmp, err := os.CreateTemp(e.cacheDir, "download-*")
	if err != nil {
		return "", fmt.Errorf("create cache file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, io.LimitReader(resp.Body, maxDownloadBytes)); err != nil {
		_ = tmp.Close()
		return "", fmt.Errorf("write cache file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close cache file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return "", fmt.Errorf("store cache file: %w", err)
	}
	return path, nil
}

func extractText(path string) (string, error) {
	file, reader, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer file.Close()

	var b strings.Builder
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		page := reader.Page(pageNum)
		if page.V.IsNull() {
			continue
		}
		text, err := page.GetPlainText(nil)
		if err != nil {
			continue
		}
		b.WriteString(text)
		b.WriteString("\n")
	}

	return cleanText(b.String()), nil
}

var ligatures = strings.NewReplacer(
	"ﬀ", "ff",
	"ﬁ", "fi",
	"ﬂ", "fl",
	"ﬃ", "ffi",
	"ﬄ", "ffl",
	" ", " ",
)

func cleanText(s string) string {
	s = ligatures.Replace(s)
	lines := strings.Split(s, "\n")
	out := lines[:0]
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
