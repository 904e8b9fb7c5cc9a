package media

import (
	"context"
	"fmt"
	"io"
	"path/filepath"

	"github.com/op/go-logging"

	"chatsync/models"
)

var log = logging.MustGetLogger("media")

// Backend stores a file in a conversation. The backend announces the
// resulting message over the live channel.
type Backend interface {
	UploadMedia(ctx context.Context, token, chatID, filename string, r io.Reader) error
}

// Coordinator submits attachments for the active conversation. It never
// touches the timeline; the pushed message does.
type Coordinator struct {
	backend Backend
}

func NewCoordinator(backend Backend) *Coordinator {
	return &Coordinator{backend: backend}
}

// Upload sends one file. Missing session or conversation fails before any
// network call; backend failures are returned once and not retried.
func (c *Coordinator) Upload(ctx context.Context, session *models.Session, convID, name string, r io.Reader) error {
	if !session.Valid() || convID == "" {
		return models.ErrMissingContext
	}
	if r == nil {
		return fmt.Errorf("%w: no file content", models.ErrUploadFailed)
	}
	name = filepath.Base(name)
	if name == "." || name == string(filepath.Separator) {
		name = "upload"
	}

	if err := c.backend.UploadMedia(ctx, session.Token, convID, name, r); err != nil {
		log.Warningf("upload %s to %s: %v", name, convID, err)
		return fmt.Errorf("%w: %w", models.ErrUploadFailed, err)
	}
	log.Infof("uploaded %s to %s", name, convID)
	return nil
}
