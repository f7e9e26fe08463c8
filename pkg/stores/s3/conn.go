package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Conn wraps a MinIO client for one bucket.
type Conn struct {
	client *minio.Client
	bucket string
}

// NewConn connects to an S3-compatible endpoint.
func NewConn(endpoint, accessKey, secretKey, bucket string, secure bool) (*Conn, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: secure,
	})

	if err != nil {
		return nil, err
	}

	return &Conn{client: client, bucket: bucket}, nil
}

// EnsureBucket creates the bucket if it does not exist yet.
func (conn *Conn) EnsureBucket(ctx context.Context) error {
	exists, err := conn.client.BucketExists(ctx, conn.bucket)

	if err != nil {
		return err
	}

	if exists {
		return nil
	}

	return conn.client.MakeBucket(ctx, conn.bucket, minio.MakeBucketOptions{})
}

// Put writes an object.
func (conn *Conn) Put(ctx context.Context, key string, data []byte) error {
	_, err := conn.client.PutObject(
		ctx,
		conn.bucket,
		key,
		bytes.NewReader(data),
		int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/json"},
	)

	return err
}

// Get reads an object fully into memory.
func (conn *Conn) Get(ctx context.Context, key string) ([]byte, error) {
	obj, err := conn.client.GetObject(ctx, conn.bucket, key, minio.GetObjectOptions{})

	if err != nil {
		return nil, err
	}
	defer obj.Close()

	return io.ReadAll(obj)
}

// List returns the object keys under the given prefix.
func (conn *Conn) List(ctx context.Context, prefix string) ([]string, error) {
	var keys []string

	for object := range conn.client.ListObjects(ctx, conn.bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if object.Err != nil {
			return nil, object.Err
		}

		keys = append(keys, object.Key)
	}

	return keys, nil
}
