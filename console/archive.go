package console

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	"github.com/timzifer/tsconsole/nodes"
)

const (
	configurationDownloadURL = "/download/configuration.zip"
	configurationUploadURL   = "/upload/configuration.zip"
)

// ErrInvalidArchive is returned for uploads that are not zip archives.
var ErrInvalidArchive = errors.New("configuration archive is not a zip file")

// zip local file header, and end of central directory for empty archives
var zipMagics = [][]byte{[]byte("PK\x03\x04"), []byte("PK\x05\x06")}

// DownloadConfiguration returns the server's settings backup as a zip
// archive.
func (c *Console) DownloadConfiguration(ctx context.Context) ([]byte, error) {
	archive, err := c.api.Download(ctx, configurationDownloadURL)
	if err != nil {
		return nil, err
	}
	c.logger.Info().Int("bytes", len(archive)).Msg("configuration downloaded")
	return archive, nil
}

// UploadConfiguration restores the server settings from archive and
// reloads both main tabs, since every processor may have changed.
func (c *Console) UploadConfiguration(ctx context.Context, archive []byte) error {
	if !isZip(archive) {
		return fmt.Errorf("%w: %w", ErrInvalidValue, ErrInvalidArchive)
	}
	if err := c.api.Upload(ctx, configurationUploadURL, "application/zip", archive); err != nil {
		c.logger.Info().Err(err).Msg("configuration upload failed")
		return err
	}
	c.logger.Info().Int("bytes", len(archive)).Msg("configuration uploaded")
	return c.loop.Do(ctx, func() {
		c.load(KindSystem, systemURL, nodes.RootKey)
		c.load(KindStreamProcs, streamProcsURL, nodes.RootKey)
	})
}

func isZip(data []byte) bool {
	for _, magic := range zipMagics {
		if bytes.HasPrefix(data, magic) {
			return true
		}
	}
	return false
}
