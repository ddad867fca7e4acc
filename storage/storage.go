// Package storage archives winning product-image bytes, keyed by product
// slug, on the local filesystem or S3-compatible object storage.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Archiver stores and retrieves archived image bytes. SaveImage returns the
// backend-relative path of the stored object.
type Archiver interface {
	SaveImage(imageData []byte, slug, contentType string) (string, error)
	ReadImage(path string) ([]byte, error)
	DeleteImage(path string) error
}

// Config contains filesystem storage configuration
type Config struct {
	BasePath string // Base directory for all archived images
}

// DefaultConfig returns default storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./archive",
	}
}

// Storage archives images on the local filesystem.
type Storage struct {
	config Config
}

// New creates a new Storage instance
func New(config Config) (*Storage, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}

	return &Storage{
		config: config,
	}, nil
}

// SaveImage archives a product image to the filesystem under
// products/YYYY/MM/slug.ext and returns the relative path.
func (s *Storage) SaveImage(imageData []byte, slug, contentType string) (string, error) {
	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = ".jpg" // Default extension
	}

	dirPath := filepath.Join(s.config.BasePath, datedDir())
	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create image directory: %w", err)
	}

	filename := slug + ext
	filePath := filepath.Join(dirPath, filename)

	// Same product archived twice in one month gets a numbered suffix.
	counter := 1
	for fileExists(filePath) {
		filename = fmt.Sprintf("%s-%d%s", slug, counter, ext)
		filePath = filepath.Join(dirPath, filename)
		counter++
	}

	if err := os.WriteFile(filePath, imageData, 0644); err != nil {
		return "", fmt.Errorf("failed to write image file: %w", err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}

	return relPath, nil
}

// ReadImage reads an archived image from the filesystem
func (s *Storage) ReadImage(relPath string) ([]byte, error) {
	fullPath := filepath.Join(s.config.BasePath, relPath)

	data, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read image file: %w", err)
	}

	return data, nil
}

// DeleteImage deletes an archived image from the filesystem
func (s *Storage) DeleteImage(relPath string) error {
	fullPath := filepath.Join(s.config.BasePath, relPath)

	if err := os.Remove(fullPath); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete image file: %w", err)
	}

	return nil
}

// GetFullPath returns the full filesystem path for a relative path
func (s *Storage) GetFullPath(relPath string) string {
	return filepath.Join(s.config.BasePath, relPath)
}

// datedDir returns the products/YYYY/MM directory component.
func datedDir() string {
	now := time.Now()
	return filepath.Join("products", fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// extensionFromContentType returns the file extension for a content type
func extensionFromContentType(contentType string) string {
	contentType = strings.ToLower(strings.Split(contentType, ";")[0])
	contentType = strings.TrimSpace(contentType)

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	default:
		return ""
	}
}
