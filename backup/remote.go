package backup

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"

	"github.com/bibip/dealerdb/dlog"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Config identifies an S3-compatible bucket for offsite copies of archives.
type Config struct {
	Access   string
	Secret   string
	Bucket   string
	Endpoint string
	Region   string
}

// Uploader pushes archive files to a bucket.
type Uploader struct {
	Client *minio.Client
	Bucket string
}

func ctx() context.Context {
	return context.Background()
}

// NewUploader validates config and checks the bucket exists.
func NewUploader(config *Config) (*Uploader, error) {
	if config == nil {
		return nil, errors.New("must provide config")
	}
	c := config
	if c.Access == "" || c.Secret == "" || c.Bucket == "" || c.Endpoint == "" {
		return nil, errors.New("must provide all fields in config")
	}

	mc, err := minio.New(c.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Access, c.Secret, ""),
		Region: c.Region,
		Secure: true,
	})
	if err != nil {
		return nil, err
	}
	found, err := mc.BucketExists(ctx(), c.Bucket)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("bucket '%s' doesn't exist", c.Bucket)
	}
	return &Uploader{
		Client: mc,
		Bucket: c.Bucket,
	}, nil
}

// Exists reports whether remotePath is already in the bucket.
func (u *Uploader) Exists(remotePath string) bool {
	_, err := u.Client.StatObject(ctx(), u.Bucket, remotePath, minio.StatObjectOptions{})
	return err == nil
}

// UploadArchive uploads a local archive file to remotePath in the bucket.
func (u *Uploader) UploadArchive(remotePath string, localPath string) (minio.UploadInfo, error) {
	opts := minio.PutObjectOptions{ContentType: "application/zip"}
	info, err := u.Client.FPutObject(ctx(), u.Bucket, remotePath, localPath, opts)
	if err != nil {
		return info, err
	}
	dlog.Verbosef("backup: uploaded %s to %s\n", localPath, remotePath)
	return info, nil
}

// DownloadArchive fetches remotePath into dstPath via a temp file and
// rename, so an interrupted download never leaves a partial archive.
func (u *Uploader) DownloadArchive(dstPath string, remotePath string) error {
	obj, err := u.Client.GetObject(ctx(), u.Bucket, remotePath, minio.GetObjectOptions{})
	if err != nil {
		return err
	}
	defer obj.Close()

	tmp, err := os.CreateTemp(path.Dir(dstPath), path.Base(dstPath))
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	_, err = io.Copy(tmp, obj)
	if err2 := tmp.Close(); err == nil {
		err = err2
	}
	if err == nil {
		err = os.Rename(tmpPath, dstPath)
	}
	if err != nil {
		os.Remove(tmpPath)
	}
	return err
}

// Remove deletes remotePath from the bucket.
func (u *Uploader) Remove(remotePath string) error {
	return u.Client.RemoveObject(ctx(), u.Bucket, remotePath, minio.RemoveObjectOptions{})
}
