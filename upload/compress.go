// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package upload

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"path/filepath"
	"strings"

	// registers decoders for the formats phones commonly produce
	_ "image/gif"
	_ "image/png"
)

// DefaultQuality is the JPEG quality used when none is configured
const DefaultQuality = 75

// JPEGCompressor re-encodes images as JPEG
type JPEGCompressor struct {
	Quality int
}

// Compress decodes f and re-encodes it as JPEG. The original is returned when
// re-encoding does not make it smaller.
func (c JPEGCompressor) Compress(ctx context.Context, f File) (File, error) {
	err := ctx.Err()
	if err != nil {
		return File{}, err
	}

	img, _, err := image.Decode(bytes.NewReader(f.Data))
	if err != nil {
		return File{}, fmt.Errorf("cannot decode image %s: %w", f.Name, err)
	}

	q := c.Quality
	if q <= 0 || q > 100 {
		q = DefaultQuality
	}

	buf := &bytes.Buffer{}
	err = jpeg.Encode(buf, img, &jpeg.Options{Quality: q})
	if err != nil {
		return File{}, fmt.Errorf("cannot compress image %s: %w", f.Name, err)
	}

	if buf.Len() >= len(f.Data) {
		return f, nil
	}

	return File{
		Name:        strings.TrimSuffix(f.Name, filepath.Ext(f.Name)) + ".jpg",
		ContentType: "image/jpeg",
		Data:        buf.Bytes(),
	}, nil
}
