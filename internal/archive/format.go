// Package archive reads and writes exported runs.
//
// An archive file is one plain-text JSON header line followed by the
// gzip-compressed JSON run bundle. The header carries a SHA-256 checksum of
// the compressed payload so files can be verified without decompressing.
package archive

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/manvincent/aDDM-Toolbox/internal/models"
	"github.com/manvincent/aDDM-Toolbox/internal/store"
)

// FormatVersion is the current archive format.
const FormatVersion = 1

// MaxDecompressedSize is the maximum allowed size of a decompressed bundle (200MB).
const MaxDecompressedSize = 200 * 1024 * 1024

// Header is the plain-text first line of an archive file.
type Header struct {
	Version      int              `json:"version"`
	CreatedAt    time.Time        `json:"created_at"`
	Checksum     string           `json:"checksum"`
	RunID        string           `json:"run_id"`
	Command      string           `json:"command"`
	Model        models.ModelKind `json:"model"`
	GridScores   int              `json:"grid_scores"`
	FixationBins int              `json:"fixation_bins"`
}

// Write stores b at path, creating parent directories as needed.
func Write(path string, b *store.Bundle) error {
	payload, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("marshaling bundle: %w", err)
	}

	var compressed bytes.Buffer
	gzw, err := gzip.NewWriterLevel(&compressed, gzip.DefaultCompression)
	if err != nil {
		return fmt.Errorf("creating gzip writer: %w", err)
	}
	if _, err := gzw.Write(payload); err != nil {
		return fmt.Errorf("compressing bundle: %w", err)
	}
	if err := gzw.Close(); err != nil {
		return fmt.Errorf("closing gzip writer: %w", err)
	}

	header := Header{
		Version:      FormatVersion,
		CreatedAt:    time.Now().UTC(),
		Checksum:     checksum(compressed.Bytes()),
		RunID:        b.Run.ID,
		Command:      b.Run.Command,
		Model:        b.Run.Model,
		GridScores:   len(b.GridScores),
		FixationBins: len(b.FixationBins),
	}
	headerBytes, err := json.Marshal(header)
	if err != nil {
		return fmt.Errorf("marshaling header: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating file: %w", err)
	}
	defer f.Close()

	if _, err := f.Write(append(headerBytes, '\n')); err != nil {
		return fmt.Errorf("writing header: %w", err)
	}
	if _, err := f.Write(compressed.Bytes()); err != nil {
		return fmt.Errorf("writing compressed bundle: %w", err)
	}
	return f.Close()
}

// Read loads an archive, verifies its checksum and decodes the bundle.
func Read(path string) (*Header, *store.Bundle, error) {
	header, compressed, err := readRaw(path)
	if err != nil {
		return nil, nil, err
	}
	if err := verify(header, compressed); err != nil {
		return nil, nil, err
	}

	gzr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, nil, fmt.Errorf("creating gzip reader: %w", err)
	}
	defer gzr.Close()

	decompressed, err := io.ReadAll(io.LimitReader(gzr, MaxDecompressedSize+1))
	if err != nil {
		return nil, nil, fmt.Errorf("decompressing bundle: %w", err)
	}
	if int64(len(decompressed)) > MaxDecompressedSize {
		return nil, nil, fmt.Errorf("decompressed bundle exceeds maximum size of %d bytes", MaxDecompressedSize)
	}

	var b store.Bundle
	if err := json.Unmarshal(decompressed, &b); err != nil {
		return nil, nil, fmt.Errorf("parsing bundle: %w", err)
	}
	return header, &b, nil
}

// ReadHeader reads only the header line.
func ReadHeader(path string) (*Header, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()
	return parseHeader(bufio.NewReader(f))
}

// VerifyChecksum checks the integrity of an archive without decompressing it.
func VerifyChecksum(path string) error {
	header, compressed, err := readRaw(path)
	if err != nil {
		return err
	}
	return verify(header, compressed)
}

func readRaw(path string) (*Header, []byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("opening file: %w", err)
	}
	defer f.Close()

	reader := bufio.NewReader(f)
	header, err := parseHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	compressed, err := io.ReadAll(reader)
	if err != nil {
		return nil, nil, fmt.Errorf("reading compressed bundle: %w", err)
	}
	return header, compressed, nil
}

func parseHeader(r *bufio.Reader) (*Header, error) {
	line, err := r.ReadBytes('\n')
	if err != nil {
		return nil, fmt.Errorf("reading header line: %w", err)
	}
	var header Header
	if err := json.Unmarshal(bytes.TrimSpace(line), &header); err != nil {
		return nil, fmt.Errorf("parsing header: %w", err)
	}
	if header.Version != FormatVersion {
		return nil, fmt.Errorf("unsupported archive version %d", header.Version)
	}
	return &header, nil
}

func verify(header *Header, compressed []byte) error {
	if actual := checksum(compressed); actual != header.Checksum {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", header.Checksum, actual)
	}
	return nil
}

func checksum(data []byte) string {
	hash := sha256.Sum256(data)
	return "sha256:" + hex.EncodeToString(hash[:])
}
