// Package storage mirrors novel cover images into S3-compatible object
// storage so served covers do not hotlink the source site.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"path"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
)

type CoverStore struct {
	client *s3.S3
	bucket string
	http   *http.Client
}

func NewCoverStore(accessKey, secretKey, endpoint, bucket string) (*CoverStore, error) {
	sess, err := session.NewSession(&aws.Config{
		Credentials: credentials.NewStaticCredentials(accessKey, secretKey, ""),
		Endpoint:    aws.String(endpoint),
		Region:      aws.String("sgp1"),
	})
	if err != nil {
		return nil, fmt.Errorf("initializing s3 session: %w", err)
	}

	return &CoverStore{
		client: s3.New(sess),
		bucket: bucket,
		http:   &http.Client{Timeout: 30 * time.Second},
	}, nil
}

// UploadFromURL downloads the cover and stores it under covers/<slug><ext>,
// returning the public object URL.
func (c *CoverStore) UploadFromURL(ctx context.Context, coverURL, slug string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, coverURL, nil)
	if err != nil {
		return "", fmt.Errorf("creating cover request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("downloading cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("cover download returned %d", resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return "", fmt.Errorf("reading cover body: %w", err)
	}

	ext := path.Ext(coverURL)
	if ext == "" || len(ext) > 5 {
		ext = ".jpg"
	}
	key := "covers/" + slug + ext

	_, err = c.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(resp.Header.Get("Content-Type")),
		ACL:         aws.String("public-read"),
	})
	if err != nil {
		return "", fmt.Errorf("uploading cover %s: %w", key, err)
	}

	return fmt.Sprintf("%s/%s/%s", c.client.Endpoint, c.bucket, key), nil
}
