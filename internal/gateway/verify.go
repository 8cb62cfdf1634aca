package gateway

import (
	"context"
	"encoding/base64"
	"hash"
	"io"
	"log/slog"

	"github.com/tonimelisma/onedrive-index/internal/graph"
	"github.com/tonimelisma/onedrive-index/pkg/quickxorhash"
)

// uploadByPath and uploadByID hash the content on its way out and compare
// the digest with the one Graph reports for the stored file. A mismatch is
// logged and counted; the upload still succeeds.
func (s *Service) uploadByPath(ctx context.Context, op, remote string, r io.Reader, size int64) (*graph.Item, error) {
	h := quickxorhash.New()

	item, err := s.remote.UploadByPath(ctx, remote, io.TeeReader(r, h), size)
	if err != nil {
		return nil, err
	}

	s.checkUpload(op, item, h)

	return item, nil
}

func (s *Service) uploadByID(ctx context.Context, op, itemID string, r io.Reader, size int64) (*graph.Item, error) {
	h := quickxorhash.New()

	item, err := s.remote.UploadByID(ctx, itemID, io.TeeReader(r, h), size)
	if err != nil {
		return nil, err
	}

	s.checkUpload(op, item, h)

	return item, nil
}

func (s *Service) checkUpload(op string, item *graph.Item, h hash.Hash) {
	if item == nil || item.QuickXorHash == "" {
		s.metrics.ObserveUploadCheck("skipped")
		return
	}

	local := base64.StdEncoding.EncodeToString(h.Sum(nil))
	if local == item.QuickXorHash {
		s.metrics.ObserveUploadCheck("match")
		return
	}

	s.metrics.ObserveUploadCheck("mismatch")
	s.logger.Warn("uploaded content hash mismatch",
		slog.String("op", op),
		slog.String("item_id", item.ID),
		slog.String("local_hash", local),
		slog.String("remote_hash", item.QuickXorHash),
	)
}
