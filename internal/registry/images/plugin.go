package images

import (
	"context"
	"fmt"
	"io"
)

// StoreResult is the result of storing one image.
type StoreResult struct {
	// URL is the public URL of the stored image, served to clients as-is.
	URL  string
	Key  string
	Size int64
}

// ImageStore defines the interface for product image storage backends.
type ImageStore interface {
	// Store writes image data and returns its public URL and storage key.
	Store(ctx context.Context, data io.Reader, maxSize int64, contentType string) (*StoreResult, error)
	// Delete removes the stored image.
	Delete(ctx context.Context, key string) error
}

// Loader creates an ImageStore from config carried in ctx.
type Loader func(ctx context.Context) (ImageStore, error)

// Plugin represents an image store plugin.
type Plugin struct {
	Name   string
	Loader Loader
}

var plugins []Plugin

// Register adds an image store plugin.
func Register(p Plugin) {
	plugins = append(plugins, p)
}

// Names returns all registered image store plugin names.
func Names() []string {
	names := make([]string, len(plugins))
	for i, p := range plugins {
		names[i] = p.Name
	}
	return names
}

// Select returns the loader for the named image store plugin.
func Select(name string) (Loader, error) {
	for _, p := range plugins {
		if p.Name == name {
			return p.Loader, nil
		}
	}
	return nil, fmt.Errorf("unknown image store %q; valid: %v", name, Names())
}
