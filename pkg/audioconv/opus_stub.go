//go:build !voice

package audioconv

import (
	"fmt"
	"io"
)

func decodeOggOpus(io.ReadSeeker) ([]float32, error) {
	return nil, fmt.Errorf("%w: opus needs a build with -tags voice", ErrUnsupported)
}
