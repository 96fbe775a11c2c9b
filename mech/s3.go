package mech

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/ioutil"
	"strings"
	"unicode/utf8"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

// S3 stores data in an S3 bucket, one object per key under a namespace
// prefix.
type S3 struct {
	bucket    string
	namespace string
	client    *s3.Client
	context   context.Context
}

// S3Args are the arguments for creating a new S3 mechanism.
type S3Args struct {
	Bucket    string          // Required. The name of the S3 bucket to use.
	Namespace string          // Required. The prefix for all keys stored in S3.
	Client    *s3.Client      // Optional. The S3 client to use. If not provided, a client will be automatically configured from your environment.
	Context   context.Context // Optional. The context to use for S3 operations. If not provided, defaults to context.Background().
}

// NewS3 creates a mechanism which stores data in AWS S3.
func NewS3(args S3Args) (*S3, error) {
	if args.Context == nil {
		args.Context = context.Background()
	}
	if args.Client == nil {
		cfg, err := config.LoadDefaultConfig(args.Context)
		if err != nil {
			return nil, err
		}
		args.Client = s3.NewFromConfig(cfg)
	}
	return &S3{
		client:    args.Client,
		context:   args.Context,
		bucket:    args.Bucket,
		namespace: args.Namespace,
	}, nil
}

// Available reports whether the bucket answers a head request.
func (s *S3) Available() bool {
	_, err := s.client.HeadBucket(s.context, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err == nil
}

// ns prepends the namespace prefix to the given key.
func (s *S3) ns(key Key) string {
	return fmt.Sprintf("%s/%s", s.namespace, key)
}

// strip removes the namespace prefix from a raw object key.
func (s *S3) strip(raw string) Key {
	return strings.TrimPrefix(raw, s.namespace+"/")
}

// Set stores value under key.
func (s *S3) Set(key Key, value string) error {
	_, err := s.client.PutObject(s.context, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ns(key)),
		Body:   bytes.NewReader([]byte(value)),
	})
	if err != nil {
		return WrapError(err, StorageDisabled, "s3 write of key %s failed", key)
	}
	return nil
}

// Get returns the stored string for key. Stored bytes that are not valid
// UTF-8 violate the string invariant and return InvalidValue.
func (s *S3) Get(key Key) (string, bool, error) {
	r, err := s.client.GetObject(s.context, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ns(key)),
	})
	if notFound(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	raw, err := ioutil.ReadAll(r.Body)
	if err != nil {
		return "", false, err
	}
	if !utf8.Valid(raw) {
		return "", true, NewError(InvalidValue, "value for key %s is not a string", key)
	}
	return string(raw), true, nil
}

// Remove deletes the key-value pair for the given key. S3 deletes are
// idempotent, so absent keys succeed silently.
func (s *S3) Remove(key Key) error {
	_, err := s.client.DeleteObject(s.context, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.ns(key)),
	})
	return err
}

// Count returns the number of entries under this mechanism's namespace.
// This paginates the whole namespace, so use with caution.
func (s *S3) Count() (int, error) {
	count := 0
	err := s.eachKey(func(Key) bool {
		count++
		return true
	})
	return count, err
}

// Iterate walks the namespace page by page. Values are fetched one request
// at a time, so this is likely a very slow operation on large namespaces.
func (s *S3) Iterate(keysOnly bool, fn func(item string) bool) error {
	var iterErr error
	err := s.eachKey(func(key Key) bool {
		if keysOnly {
			return fn(key)
		}
		value, found, err := s.Get(key)
		if err != nil {
			iterErr = err
			return false
		}
		if !found {
			return true
		}
		return fn(value)
	})
	if err != nil {
		return err
	}
	return iterErr
}

// Clear removes every entry under this mechanism's namespace.
func (s *S3) Clear() error {
	var keys []Key
	if err := s.eachKey(func(key Key) bool {
		keys = append(keys, key)
		return true
	}); err != nil {
		return err
	}
	for _, key := range keys {
		if err := s.Remove(key); err != nil {
			return err
		}
	}
	return nil
}

// eachKey pages through the namespace, calling fn with each stripped key
// until fn returns false.
func (s *S3) eachKey(fn func(key Key) bool) error {
	prefix := s.namespace + "/"
	paginator := s3.NewListObjectsV2Paginator(s.client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.bucket),
		Prefix: aws.String(prefix),
	})
	for paginator.HasMorePages() {
		output, err := paginator.NextPage(s.context)
		if err != nil {
			return err
		}
		for _, c := range output.Contents {
			if !fn(s.strip(*c.Key)) {
				return nil
			}
		}
	}
	return nil
}

// notFound checks if an error is an S3 NoSuchKey error.
func notFound(err error) bool {
	var nsk *types.NoSuchKey
	return errors.As(err, &nsk)
}
