package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"voxmeter/internal/app/errors"
)

// CheckWavHeader verifies the RIFF/WAVE magic of path.
func CheckWavHeader(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.WrapKind(errors.KindConversionFailure, err, "failed to open wav")
	}
	defer f.Close()

	header := make([]byte, 12)
	if _, err := io.ReadFull(f, header); err != nil {
		return errors.Wrap(errors.ErrInvalidWav, fmt.Sprintf("short header: %v", err))
	}
	if !bytes.Equal(header[0:4], []byte("RIFF")) || !bytes.Equal(header[8:12], []byte("WAVE")) {
		return errors.ErrInvalidWav
	}
	return nil
}
