/*
Copyright © 2019 the spacetime authors.
This file is part of spacetime.

spacetime is free software: you can redistribute it and/or modify
it under the terms of the GNU General Public License as published by
the Free Software Foundation, either version 3 of the License, or
(at your option) any later version.

spacetime is distributed in the hope that it will be useful,
but WITHOUT ANY WARRANTY; without even the implied warranty of
MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
GNU General Public License for more details.

You should have received a copy of the GNU General Public License
along with spacetime.  If not, see <http://www.gnu.org/licenses/>.
*/

package spacetimeutil

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/cenkalti/backoff"
	"github.com/google/go-cloud/blob"
	"github.com/google/go-cloud/blob/fileblob"
	"github.com/google/go-cloud/blob/gcsblob"
	"github.com/google/go-cloud/blob/s3blob"
	"github.com/google/go-cloud/gcp"
	"github.com/sirupsen/logrus"
)

// Transfer moves input and output files between remote storage and
// temporary local files.
type Transfer struct {
	// MaxRetries is the number of times a failed download or upload
	// is retried before giving up.
	MaxRetries uint64

	Log logrus.FieldLogger

	dir string

	// uploads holds pairs of local paths and the blob storage
	// paths they should be uploaded to.
	uploads [][2]string
}

// NewTransfer returns a Transfer that logs to log.
func NewTransfer(log logrus.FieldLogger, maxRetries int) *Transfer {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Transfer{MaxRetries: uint64(maxRetries), Log: log}
}

func (t *Transfer) log() logrus.FieldLogger {
	if t.Log == nil {
		return logrus.StandardLogger()
	}
	return t.Log
}

// Close removes any temporary files.
func (t *Transfer) Close() error {
	if t.dir == "" {
		return nil
	}
	err := os.RemoveAll(t.dir)
	t.dir = ""
	return err
}

// tempDir returns a new directory for one download or upload.
func (t *Transfer) tempDir() (string, error) {
	if t.dir == "" {
		dir, err := ioutil.TempDir("", "spacetime")
		if err != nil {
			return "", fmt.Errorf("spacetimeutil: creating temporary directory: %v", err)
		}
		t.dir = dir
	}
	return ioutil.TempDir(t.dir, "")
}

// retry runs op until it succeeds, ctx is cancelled or MaxRetries
// retries have failed.
func (t *Transfer) retry(ctx context.Context, what string, op backoff.Operation) error {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 200 * time.Millisecond
	return backoff.RetryNotify(op,
		backoff.WithContext(backoff.WithMaxRetries(b, t.MaxRetries), ctx),
		func(err error, d time.Duration) {
			t.log().WithField("retry_in", d).Warnf("%s: %v", what, err)
		},
	)
}

// IsBlob returns whether the given filename represents a blob
// (i.e., if it starts with `gs://`, `s3://`, or `file://`).
func IsBlob(path string) bool {
	return strings.HasPrefix(path, "gs://") || strings.HasPrefix(path, "s3://") || strings.HasPrefix(path, "file://")
}

func isHTTP(path string) bool {
	return strings.HasPrefix(path, "http://") || strings.HasPrefix(path, "https://")
}

// OpenBucket returns the blob storage bucket specified by bucketName,
// where bucketName must be in the format 'provider://name'.
// Accepted providers are "file" for the local filesystem, "gs" for
// Google Cloud Storage, and "s3" for AWS S3.
func OpenBucket(ctx context.Context, bucketName string) (*blob.Bucket, error) {
	u, err := url.Parse(bucketName)
	if err != nil {
		return nil, fmt.Errorf("spacetimeutil: opening bucket: %v", err)
	}
	switch u.Scheme {
	case "file":
		return fileblob.NewBucket(u.Hostname())
	case "gs":
		return gsBucket(ctx, u.Hostname())
	case "s3":
		return s3Bucket(ctx, u.Hostname())
	default:
		return nil, fmt.Errorf("spacetimeutil: invalid storage provider %q", u.Scheme)
	}
}

func gsBucket(ctx context.Context, name string) (*blob.Bucket, error) {
	creds, err := gcp.DefaultCredentials(ctx)
	if err != nil {
		return nil, err
	}
	c, err := gcp.NewHTTPClient(gcp.DefaultTransport(), gcp.CredentialsTokenSource(creds))
	if err != nil {
		return nil, err
	}
	return gcsblob.OpenBucket(ctx, name, c)
}

// s3Bucket opens an s3 storage bucket using the AWS_REGION,
// AWS_ACCESS_KEY_ID, and AWS_SECRET_ACCESS_KEY environment variables.
func s3Bucket(ctx context.Context, name string) (*blob.Bucket, error) {
	region := os.Getenv("AWS_REGION")
	if region == "" {
		region = "us-east-2"
	}
	s, err := session.NewSession(&aws.Config{
		Region:      aws.String(region),
		Credentials: credentials.NewEnvCredentials(),
	})
	if err != nil {
		return nil, err
	}
	return s3blob.OpenBucket(ctx, s, name)
}

// splitBlob splits a blob path into its bucket and key.
func splitBlob(path string) (bucket, key string, err error) {
	u, err := url.Parse(path)
	if err != nil {
		return "", "", fmt.Errorf("spacetimeutil: parsing %s: %v", path, err)
	}
	key = strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("spacetimeutil: %s does not name a file", path)
	}
	return u.Scheme + "://" + u.Host, key, nil
}

// sidecars returns the optional companion files of a raster file:
// world files and projection files for TIFF images.
func sidecars(name string) []string {
	ext := filepath.Ext(name)
	switch strings.ToLower(ext) {
	case ".tif", ".tiff":
	default:
		return nil
	}
	base := name[:len(name)-len(ext)]
	var o []string
	for _, e := range []string{".tfw", ".TFW", ".wld", ".WLD", ".prj", ".PRJ"} {
		o = append(o, base+e)
	}
	return o
}

// Download returns a local path holding the file at path. Local paths
// are returned unchanged. Remote files and their sidecar files are
// downloaded into a temporary directory.
func (t *Transfer) Download(ctx context.Context, path string) (string, error) {
	var get func(name string) (io.ReadCloser, error)
	var key string
	switch {
	case IsBlob(path):
		bucketName, k, err := splitBlob(path)
		if err != nil {
			return "", err
		}
		bucket, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return "", fmt.Errorf("spacetimeutil: opening bucket for %s: %v", path, err)
		}
		key = k
		get = func(name string) (io.ReadCloser, error) { return bucket.NewReader(ctx, name) }
	case isHTTP(path):
		key = path
		get = func(name string) (io.ReadCloser, error) {
			req, err := http.NewRequest(http.MethodGet, name, nil)
			if err != nil {
				return nil, err
			}
			resp, err := http.DefaultClient.Do(req.WithContext(ctx))
			if err != nil {
				return nil, err
			}
			if resp.StatusCode != http.StatusOK {
				resp.Body.Close()
				return nil, fmt.Errorf("%s: %s", name, resp.Status)
			}
			return resp.Body, nil
		}
	default:
		return path, nil
	}

	dir, err := t.tempDir()
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, filepath.Base(key))
	err = t.retry(ctx, "downloading "+path, func() error {
		return fetch(get, key, local)
	})
	if err != nil {
		return "", fmt.Errorf("spacetimeutil: downloading %s: %v", path, err)
	}
	for _, s := range sidecars(key) {
		if err := fetch(get, s, filepath.Join(dir, filepath.Base(s))); err == nil {
			t.log().WithField("file", s).Debug("downloaded sidecar file")
		}
	}
	t.log().WithFields(logrus.Fields{"from": path, "to": local}).Info("downloaded file")
	return local, nil
}

// fetch copies the file named name to the local file dst, removing dst
// if the copy fails.
func fetch(get func(string) (io.ReadCloser, error), name, dst string) error {
	r, err := get(name)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err = io.Copy(w, r); err != nil {
		w.Close()
		os.Remove(dst)
		return err
	}
	if err = w.Close(); err != nil {
		os.Remove(dst)
	}
	return err
}

// Output returns the local path that an output file destined for path
// should be written to. If path is a blob URL, the returned path is a
// temporary file that Upload copies to path.
func (t *Transfer) Output(path string) (string, error) {
	if !IsBlob(path) {
		return path, nil
	}
	if _, _, err := splitBlob(path); err != nil {
		return "", err
	}
	dir, err := t.tempDir()
	if err != nil {
		return "", err
	}
	local := filepath.Join(dir, filepath.Base(path))
	t.uploads = append(t.uploads, [2]string{local, path})
	return local, nil
}

// Upload copies the files returned by Output to blob storage.
func (t *Transfer) Upload(ctx context.Context) error {
	for _, files := range t.uploads {
		bucketName, key, err := splitBlob(files[1])
		if err != nil {
			return err
		}
		bucket, err := OpenBucket(ctx, bucketName)
		if err != nil {
			return fmt.Errorf("spacetimeutil: opening bucket to upload file '%s': %v", files[1], err)
		}
		err = t.retry(ctx, "uploading "+files[1], func() error {
			return upload(ctx, bucket, files[0], key)
		})
		if err != nil {
			return fmt.Errorf("spacetimeutil: uploading file '%s' to '%s': %v", files[0], files[1], err)
		}
		t.log().WithFields(logrus.Fields{"from": files[0], "to": files[1]}).Info("uploaded file")
	}
	t.uploads = nil
	return nil
}

func upload(ctx context.Context, bucket *blob.Bucket, src, key string) error {
	r, err := os.Open(src)
	if err != nil {
		return err
	}
	defer r.Close()
	w, err := bucket.NewWriter(ctx, key, &blob.WriterOptions{})
	if err != nil {
		return err
	}
	if _, err := io.Copy(w, r); err != nil {
		w.Close()
		return err
	}
	return w.Close()
}
