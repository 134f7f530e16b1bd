// Package storage holds blob store composition helpers shared by the
// concrete backends in its subpackages.
package storage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/prepcart/brochure-crawler/internal/crawler"
)

// Mirror writes every object to a primary store and a best-effort secondary
// copy. Existence checks and returned locators come from the primary.
type Mirror struct {
	primary   crawler.BlobStore
	secondary crawler.BlobStore
	logger    *zap.Logger
}

// NewMirror wraps primary with a secondary copy.
func NewMirror(primary, secondary crawler.BlobStore, logger *zap.Logger) (*Mirror, error) {
	if primary == nil || secondary == nil {
		return nil, fmt.Errorf("mirror requires a primary and a secondary store")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Mirror{primary: primary, secondary: secondary, logger: logger}, nil
}

// Exists delegates to the primary store.
func (m *Mirror) Exists(ctx context.Context, key string) (string, bool, error) {
	uri, ok, err := m.primary.Exists(ctx, key)
	if err != nil {
		return "", false, fmt.Errorf("primary exists: %w", err)
	}
	return uri, ok, nil
}

// PutObject writes to the primary and then the secondary. A secondary
// failure is logged and does not fail the write.
func (m *Mirror) PutObject(ctx context.Context, key string, contentType string, data []byte) (string, error) {
	uri, err := m.primary.PutObject(ctx, key, contentType, data)
	if err != nil {
		return "", fmt.Errorf("primary put: %w", err)
	}
	if mirrorURI, err := m.secondary.PutObject(ctx, key, contentType, data); err != nil {
		m.logger.Warn("mirror write failed", zap.String("path", key), zap.Error(err))
	} else {
		m.logger.Debug("mirrored", zap.String("path", key), zap.String("uri", mirrorURI))
	}
	return uri, nil
}
