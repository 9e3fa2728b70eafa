package catalog

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/me/evalzoo/pkg/model"
)

// S3Catalog lists model files under an S3 prefix.
type S3Catalog struct {
	client s3.ListObjectsV2APIClient
	bucket string
	prefix string
}

// NewS3Catalog returns a catalog over s3://bucket/prefix using client.
func NewS3Catalog(client s3.ListObjectsV2APIClient, location string) (*S3Catalog, error) {
	u, err := url.Parse(location)
	if err != nil {
		return nil, fmt.Errorf("parse models location: %w", err)
	}
	if u.Scheme != "s3" || u.Host == "" {
		return nil, fmt.Errorf("models location %q is not s3://bucket/prefix", location)
	}
	prefix := strings.TrimPrefix(u.Path, "/")
	if prefix != "" && !strings.HasSuffix(prefix, "/") {
		prefix += "/"
	}
	return &S3Catalog{client: client, bucket: u.Host, prefix: prefix}, nil
}

// NewS3CatalogFromEnv builds the S3 client from the default AWS config
// chain (environment, shared config, instance role).
func NewS3CatalogFromEnv(ctx context.Context, location string) (*S3Catalog, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	return NewS3Catalog(s3.NewFromConfig(cfg), location)
}

func (c *S3Catalog) scan(ctx context.Context) (*index, error) {
	ix := newIndex()
	p := s3.NewListObjectsV2Paginator(c.client, &s3.ListObjectsV2Input{
		Bucket:    aws.String(c.bucket),
		Prefix:    aws.String(c.prefix),
		Delimiter: aws.String("/"),
	})
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", c.bucket, c.prefix, err)
		}
		for _, obj := range page.Contents {
			ix.add(strings.TrimPrefix(aws.ToString(obj.Key), c.prefix))
		}
	}
	return ix, nil
}

func (c *S3Catalog) Latest(ctx context.Context) (model.VersionID, error) {
	ix, err := c.scan(ctx)
	if err != nil {
		return 0, err
	}
	return ix.latest, nil
}

func (c *S3Catalog) Path(ctx context.Context, v model.VersionID) (string, error) {
	ix, err := c.scan(ctx)
	if err != nil {
		return "", err
	}
	name, err := ix.lookup(v)
	if err != nil {
		return "", err
	}
	return "s3://" + c.bucket + "/" + c.prefix + name, nil
}
