// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package media

import (
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"os"

	"github.com/h2non/filetype"
	_ "golang.org/x/image/webp"
)

// MaxImageBytes is the largest product image accepted.
const MaxImageBytes = 10 * 1024 * 1024

// Errors returned by the image checks.
var (
	ErrImageTooLarge   = errors.New("image exceeds 10MB")
	ErrNotAnImage      = errors.New("file is not an image")
	ErrUnsupportedType = errors.New("unsupported image type, use jpg, png or webp")
	ErrEmptyImage      = errors.New("image has no pixels")
)

var productImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/webp": true,
}

// ImageInfo describes a validated image.
type ImageInfo struct {
	MIME      string
	Extension string
	Width     int
	Height    int
}

// ValidateImage checks a product image upload: at most MaxImageBytes, a jpg,
// png or webp by content, and decodable.
func ValidateImage(path string) (*ImageInfo, error) {
	stat, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if stat.Size() > MaxImageBytes {
		return nil, ErrImageTooLarge
	}
	info, err := inspectImage(path)
	if err != nil {
		return nil, err
	}
	if !productImageTypes[info.MIME] {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, info.MIME)
	}
	return info, nil
}

// inspectImage sniffs the content type and decodes the header of an image file.
func inspectImage(path string) (*ImageInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	// 261 bytes is all filetype needs to match.
	head := make([]byte, 261)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, err
	}
	kind, err := filetype.Match(head[:n])
	if err != nil || !filetype.IsImage(head[:n]) {
		return nil, ErrNotAnImage
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, err
	}
	config, _, err := image.DecodeConfig(f)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAnImage, err)
	}
	if config.Width == 0 || config.Height == 0 {
		return nil, ErrEmptyImage
	}
	return &ImageInfo{MIME: kind.MIME.Value, Extension: kind.Extension, Width: config.Width, Height: config.Height}, nil
}
