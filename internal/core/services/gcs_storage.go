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

package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"time"

	credentials "cloud.google.com/go/iam/credentials/apiv1"
	"cloud.google.com/go/iam/credentials/apiv1/credentialspb"
	"cloud.google.com/go/storage"
	"github.com/h2non/filetype"
	"google.golang.org/api/iterator"
)

// GCSPrefix is the object prefix under which sessions are stored.
const GCSPrefix = "sessions"

// GCSStorage keeps artifacts in a Cloud Storage bucket and hands out V4 signed
// URLs, signed through the IAM Credentials API so no key file is needed.
type GCSStorage struct {
	StorageClient *storage.Client
	IAMClient     *credentials.IamCredentialsClient
	Bucket        string
	SignerEmail   string        // Service account that signs URLs. Empty serves public URLs.
	Expires       time.Duration // Lifetime of signed URLs.
}

func (g *GCSStorage) objectName(sessionID, name string) string {
	return path.Join(GCSPrefix, sessionID, name)
}

// Upload streams localFile to gs://bucket/sessions/<session>/<name>, removes
// the local copy and returns a URL the browser can play.
func (g *GCSStorage) Upload(ctx context.Context, sessionID, localFile, name string) (string, error) {
	in, err := os.Open(localFile)
	if err != nil {
		return "", err
	}
	defer in.Close()

	head := make([]byte, 261)
	n, _ := io.ReadFull(in, head)
	if _, err := in.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	object := g.objectName(sessionID, name)
	w := g.StorageClient.Bucket(g.Bucket).Object(object).NewWriter(ctx)
	w.ContentType = "application/octet-stream"
	if kind, err := filetype.Match(head[:n]); err == nil && kind != filetype.Unknown {
		w.ContentType = kind.MIME.Value
	}
	if _, err := io.Copy(w, in); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("uploading %s: %w", object, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("uploading %s: %w", object, err)
	}
	_ = in.Close()
	if err := os.Remove(localFile); err != nil {
		slog.WarnContext(ctx, "could not remove uploaded file", "file", localFile, "error", err)
	}
	return g.URL(ctx, object)
}

// URL returns a signed URL for object, or its public URL when no signer is set.
func (g *GCSStorage) URL(ctx context.Context, object string) (string, error) {
	if g.SignerEmail == "" || g.IAMClient == nil {
		return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.Bucket, object), nil
	}
	expires := g.Expires
	if expires <= 0 {
		expires = time.Hour
	}
	opts := &storage.SignedURLOptions{
		Scheme:         storage.SigningSchemeV4,
		Method:         "GET",
		Expires:        time.Now().Add(expires),
		GoogleAccessID: g.SignerEmail,
		SignBytes: func(b []byte) ([]byte, error) {
			resp, err := g.IAMClient.SignBlob(ctx, &credentialspb.SignBlobRequest{
				Name:    fmt.Sprintf("projects/-/serviceAccounts/%s", g.SignerEmail),
				Payload: b,
			})
			if err != nil {
				return nil, fmt.Errorf("IAMClient.SignBlob: %w", err)
			}
			return resp.SignedBlob, nil
		},
	}
	u, err := g.StorageClient.Bucket(g.Bucket).SignedURL(object, opts)
	if err != nil {
		return "", fmt.Errorf("Bucket(%q).SignedURL(%q): %w", g.Bucket, object, err)
	}
	return u, nil
}

// DeleteSession deletes every object under the session prefix.
func (g *GCSStorage) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	bucket := g.StorageClient.Bucket(g.Bucket)
	it := bucket.Objects(ctx, &storage.Query{Prefix: path.Join(GCSPrefix, sessionID) + "/"})
	deleted := 0
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return deleted > 0, err
		}
		if err := bucket.Object(attrs.Name).Delete(ctx); err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
			return deleted > 0, err
		}
		deleted++
	}
	return deleted > 0, nil
}
