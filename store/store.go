package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/png"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/ericpauley/go-quantize/quantize"
	"github.com/pevans/dailybrief/digest"
)

// ErrRecordExists is returned by SaveData when a record for the date is
// already on disk. Records are never overwritten.
var ErrRecordExists = errors.New("record already exists")

// Store keeps one JSON record and one PNG image per date, each in its own
// directory.
type Store struct {
	dataDir  string
	imageDir string
}

// New creates a store rooted at the given data and image directories,
// creating them if needed.
func New(dataDir, imageDir string) (*Store, error) {
	for _, dir := range []string{dataDir, imageDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create storage directory: %w", err)
		}
	}

	return &Store{
		dataDir:  dataDir,
		imageDir: imageDir,
	}, nil
}

// DataPath returns the record path for date.
func (s *Store) DataPath(date string) string {
	return filepath.Join(s.dataDir, date+".json")
}

// ImagePath returns the image path for date.
func (s *Store) ImagePath(date string) string {
	return filepath.Join(s.imageDir, date+".png")
}

// HasData reports whether a record exists for date. Malformed dates never
// have data.
func (s *Store) HasData(date string) bool {
	return digest.ValidateDate(date) == nil && fileExists(s.DataPath(date))
}

// HasImage reports whether an image exists for date.
func (s *Store) HasImage(date string) bool {
	return digest.ValidateDate(date) == nil && fileExists(s.ImagePath(date))
}

// SaveData writes rec under its date. The write goes through a temporary file
// and is linked into place, so a concurrent writer for the same date gets
// ErrRecordExists instead of a torn file.
func (s *Store) SaveData(rec digest.Record) error {
	if err := digest.ValidateDate(rec.Date); err != nil {
		return err
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal record: %w", err)
	}

	tmp, err := writeTemp(s.dataDir, rec.Date+".json", data)
	if err != nil {
		return fmt.Errorf("failed to write record: %w", err)
	}
	defer os.Remove(tmp)

	if err := os.Link(tmp, s.DataPath(rec.Date)); err != nil {
		if errors.Is(err, os.ErrExist) {
			return fmt.Errorf("%w: %s", ErrRecordExists, rec.Date)
		}
		return fmt.Errorf("failed to write record: %w", err)
	}

	return nil
}

// LoadData reads the record for date. It returns nil and no error when no
// record exists.
func (s *Store) LoadData(date string) (*digest.Record, error) {
	if err := digest.ValidateDate(date); err != nil {
		return nil, err
	}

	data, err := os.ReadFile(s.DataPath(date))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read record: %w", err)
	}

	var rec digest.Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("failed to unmarshal record: %w", err)
	}

	return &rec, nil
}

// SaveImage re-encodes a PNG screenshot as a paletted, maximally compressed
// PNG and writes it under date. An existing image is replaced.
func (s *Store) SaveImage(date string, raw []byte) error {
	if err := digest.ValidateDate(date); err != nil {
		return err
	}

	data, err := Compress(raw)
	if err != nil {
		return err
	}

	tmp, err := writeTemp(s.imageDir, date+".png", data)
	if err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	if err := os.Rename(tmp, s.ImagePath(date)); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to write image: %w", err)
	}

	return nil
}

// Dates returns every date with a stored record, in ascending order. Files
// whose names are not date keys are ignored.
func (s *Store) Dates() ([]string, error) {
	entries, err := os.ReadDir(s.dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to read storage directory: %w", err)
	}

	dates := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		date := strings.TrimSuffix(entry.Name(), ".json")
		if digest.ValidateDate(date) != nil {
			continue
		}
		dates = append(dates, date)
	}

	sort.Strings(dates)
	return dates, nil
}

// MissingImages returns the dates that have a record but no image.
func (s *Store) MissingImages() ([]string, error) {
	dates, err := s.Dates()
	if err != nil {
		return nil, err
	}

	missing := make([]string, 0)
	for _, date := range dates {
		if !s.HasImage(date) {
			missing = append(missing, date)
		}
	}
	return missing, nil
}

// Compress decodes a PNG, reduces it to a 256-color palette with
// Floyd-Steinberg dithering and encodes it again at best compression.
func Compress(raw []byte) ([]byte, error) {
	src, err := png.Decode(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}

	bounds := src.Bounds()
	q := quantize.MedianCutQuantizer{}
	palette := q.Quantize(make(color.Palette, 0, 256), src)

	dst := image.NewPaletted(bounds, palette)
	draw.FloydSteinberg.Draw(dst, bounds, src, bounds.Min)

	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(&buf, dst); err != nil {
		return nil, fmt.Errorf("failed to encode image: %w", err)
	}

	return buf.Bytes(), nil
}

func writeTemp(dir, name string, data []byte) (string, error) {
	f, err := os.CreateTemp(dir, "."+name+".*")
	if err != nil {
		return "", err
	}

	if _, err := f.Write(data); err != nil {
		f.Close()
		os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		os.Remove(f.Name())
		return "", err
	}

	return f.Name(), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
