// Copyright (c) 2023-2024, R.I. Pienaar and the Choria Project contributors
//
// SPDX-License-Identifier: Apache-2.0

package forms

//go:generate mockgen -source image.go -destination mock_image_test.go -package forms -typed

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/choria-io/formstate/upload"
	"golang.org/x/sync/errgroup"
)

// ImageUploader stores one image and returns its reference URL
type ImageUploader interface {
	Upload(ctx context.Context, kind upload.Kind, f upload.File) (string, error)
}

// Compressor shrinks an image before it is uploaded
type Compressor interface {
	Compress(ctx context.Context, f upload.File) (upload.File, error)
}

// CompressorFunc adapts a function to the Compressor interface
type CompressorFunc func(ctx context.Context, f upload.File) (upload.File, error)

// Compress calls fn
func (fn CompressorFunc) Compress(ctx context.Context, f upload.File) (upload.File, error) {
	return fn(ctx, f)
}

// FileError is a failure to process one file of a batch
type FileError struct {
	Name string
	Err  error
}

func (e FileError) Error() string { return fmt.Sprintf("%s: %v", e.Name, e.Err) }
func (e FileError) Unwrap() error { return e.Err }

// UploadResult is the outcome of one AddFiles batch
type UploadResult struct {
	// URLs are the references of the files uploaded in this batch, in selection order
	URLs []string
	// Errors holds the files that were skipped or failed
	Errors []FileError
	// Committed is true when URLs were written to the answer store
	Committed bool
}

// ImageController uploads images and commits their references. The staged
// list of references is local to the controller and caps the number of
// images, it is seeded from the current answer when mounted.
type ImageController struct {
	base

	max      int
	staged   []string
	reserved int
	mu       sync.Mutex
}

func newImageController(b base) *ImageController {
	c := &ImageController{
		base: b,
		max:  b.s.maxImagesFor(b.field, b.scope),
	}

	cur, _ := c.Value()
	c.staged = imageURLs(cur)

	return c
}

// MaxImages is the number of images this field accepts
func (c *ImageController) MaxImages() int {
	return c.max
}

// Staged is a copy of the references held by the controller
func (c *ImageController) Staged() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	return append([]string{}, c.staged...)
}

// Remove drops the staged reference at idx freeing its slot, the answer store is not changed
func (c *ImageController) Remove(idx int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if idx < 0 || idx >= len(c.staged) {
		return fmt.Errorf("%s: no staged image %d", c.field.Label, idx)
	}

	c.staged = append(c.staged[:idx], c.staged[idx+1:]...)

	return nil
}

// AddFiles compresses, size checks and uploads files then commits the
// resulting references in one store write.
//
// The batch is rejected with ErrImageLimit when no slots are free, files
// beyond the free slots are skipped. Failures of individual files are
// reported in the result and do not affect the others. When the controller
// is unmounted before the uploads finish the references are discarded and
// ErrDetached is returned, unless the session applies late writes.
func (c *ImageController) AddFiles(ctx context.Context, files ...upload.File) (*UploadResult, error) {
	if c.s.uploader == nil {
		return nil, ErrNoUploader
	}

	if !c.attached() {
		return nil, fmt.Errorf("%s: %w", c.field.Label, ErrDetached)
	}

	c.mu.Lock()
	free := c.max - len(c.staged) - c.reserved
	if free <= 0 {
		c.mu.Unlock()
		return nil, fmt.Errorf("%s: %w, at most %d images allowed", c.field.Label, ErrImageLimit, c.max)
	}
	accepted := files[:min(free, len(files))]
	c.reserved += len(accepted)
	c.mu.Unlock()

	res := &UploadResult{}
	for _, f := range files[len(accepted):] {
		res.Errors = append(res.Errors, FileError{Name: f.Name, Err: ErrImageLimit})
	}

	uctx := ctx
	if c.s.lateWrites != ApplyLateWrites {
		var cancel context.CancelFunc
		uctx, cancel = context.WithCancel(ctx)
		stop := context.AfterFunc(c.ctx, cancel)
		defer stop()
		defer cancel()
	}

	urls := make([]string, len(accepted))
	errs := make([]error, len(accepted))

	var g errgroup.Group
	g.SetLimit(c.s.uploadConcurrency)

	for i, f := range accepted {
		g.Go(func() error {
			urls[i], errs[i] = c.uploadOne(uctx, f)
			return nil
		})
	}
	g.Wait()

	for i, f := range accepted {
		if errs[i] != nil {
			c.s.log.Warnf("Could not upload %s for %s: %v", f.Name, c.Key(), errs[i])
			res.Errors = append(res.Errors, FileError{Name: f.Name, Err: errs[i]})
			continue
		}
		res.URLs = append(res.URLs, urls[i])
	}

	c.mu.Lock()
	c.reserved -= len(accepted)

	if !c.attached() && c.s.lateWrites != ApplyLateWrites {
		c.mu.Unlock()
		c.s.log.Warnf("Discarding %d uploaded images for unmounted field %s", len(res.URLs), c.Key())
		return res, fmt.Errorf("%s: %w", c.field.Label, ErrDetached)
	}

	if len(res.URLs) == 0 {
		c.mu.Unlock()
		return res, nil
	}

	c.staged = append(c.staged, res.URLs...)
	staged := append([]string{}, c.staged...)
	c.mu.Unlock()

	switch {
	case c.scope.InMatrix():
		c.commit(staged, false)
	case c.s.isIdentity(c.scope) && c.max == 1:
		c.commit(staged[0], false)
	case c.s.isIdentity(c.scope):
		c.commit(staged, false)
	default:
		c.commit(res.URLs, true)
	}
	res.Committed = true

	return res, nil
}

func (c *ImageController) uploadOne(ctx context.Context, f upload.File) (string, error) {
	var err error

	if c.s.compressor != nil {
		f, err = c.s.compressor.Compress(ctx, f)
		if err != nil {
			return "", err
		}
	}

	if f.Size() > c.s.maxImageBytes {
		return "", fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrFileTooLarge, f.Size(), c.s.maxImageBytes)
	}

	url, err := c.s.uploader.Upload(ctx, c.s.uploadKind(c.scope), f)
	if err != nil {
		if ctx.Err() != nil && !errors.Is(err, context.Canceled) {
			return "", fmt.Errorf("%w: %w", ctx.Err(), err)
		}
		return "", err
	}

	return url, nil
}

// imageURLs extracts references from an image answer, a single string or a list
func imageURLs(v any) []string {
	switch val := v.(type) {
	case string:
		if val == "" {
			return []string{}
		}
		return []string{val}
	case []string:
		return append([]string{}, val...)
	case []any:
		res := []string{}
		for _, e := range val {
			if s, ok := e.(string); ok && s != "" {
				res = append(res, s)
			}
		}
		return res
	default:
		return []string{}
	}
}
