package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	gcs "cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/platform/storage"
	"github.com/emcpteam/Music-Band-Web-App-Development-5962-sub001/internal/repositories"
)

const maxSequenceAttempts = 8

// objectBucket is the subset of bucket operations the stores rely on.
// generation is zero when the object does not exist; writes with a non-negative
// ifGeneration are conditional on it.
type objectBucket interface {
	Read(ctx context.Context, object string) (data []byte, generation int64, err error)
	Write(ctx context.Context, object string, data []byte, ifGeneration int64) error
	Ping(ctx context.Context) error
}

const unconditional = -1

// SlotStore implements repositories.SlotStore with one JSON object per key.
type SlotStore struct {
	bucket objectBucket
	prefix string
}

var _ repositories.SlotStore = (*SlotStore)(nil)

// NewSlotStore constructs a Cloud Storage backed slot store.
func NewSlotStore(client *gcs.Client, bucket, prefix string) (*SlotStore, error) {
	if client == nil {
		return nil, errors.New("slot store requires storage client")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("slot store requires bucket name")
	}
	return newSlotStore(&bucketHandle{handle: client.Bucket(bucket)}, prefix), nil
}

func newSlotStore(bucket objectBucket, prefix string) *SlotStore {
	return &SlotStore{bucket: bucket, prefix: prefix}
}

// Get returns the object contents for key.
func (s *SlotStore) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := storage.BuildObjectPath(s.prefix, key)
	if err != nil {
		return nil, err
	}
	data, _, err := s.bucket.Read(ctx, object)
	if err != nil {
		return nil, wrapError("gcs.slots.get", key, err)
	}
	return data, nil
}

// Set overwrites the object for key.
func (s *SlotStore) Set(ctx context.Context, key string, value []byte) error {
	object, err := storage.BuildObjectPath(s.prefix, key)
	if err != nil {
		return err
	}
	if err := s.bucket.Write(ctx, object, value, unconditional); err != nil {
		return wrapError("gcs.slots.set", key, err)
	}
	return nil
}

// Ping checks that the bucket is reachable.
func (s *SlotStore) Ping(ctx context.Context) error {
	return wrapError("gcs.ping", "", s.bucket.Ping(ctx))
}

// SequenceStore implements repositories.SequenceStore using generation
// preconditions so concurrent writers never hand out the same value.
type SequenceStore struct {
	bucket objectBucket
	prefix string
}

var _ repositories.SequenceStore = (*SequenceStore)(nil)

// NewSequenceStore constructs a Cloud Storage backed sequence store.
func NewSequenceStore(client *gcs.Client, bucket, prefix string) (*SequenceStore, error) {
	if client == nil {
		return nil, errors.New("sequence store requires storage client")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("sequence store requires bucket name")
	}
	return &SequenceStore{bucket: &bucketHandle{handle: client.Bucket(bucket)}, prefix: prefix}, nil
}

// Next increments the counter for scope.
func (s *SequenceStore) Next(ctx context.Context, scope string) (int64, error) {
	scope = strings.TrimSpace(scope)
	if scope == "" {
		return 0, repositories.NewSequenceError(repositories.SequenceErrorInvalidInput, "sequence scope is required", nil)
	}
	object, err := storage.BuildObjectPath(s.prefix, string(storage.KindSequence)+":"+scope)
	if err != nil {
		return 0, err
	}

	for attempt := 0; attempt < maxSequenceAttempts; attempt++ {
		data, generation, err := s.bucket.Read(ctx, object)
		if err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
			return 0, wrapError("gcs.sequences.next", scope, err)
		}
		var current int64
		if len(data) > 0 {
			current, err = strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
			if err != nil {
				return 0, fmt.Errorf("gcs sequences decode %s: %w", scope, err)
			}
		}
		next := current + 1
		err = s.bucket.Write(ctx, object, []byte(strconv.FormatInt(next, 10)), generation)
		if err == nil {
			return next, nil
		}
		if !isPreconditionFailed(err) {
			return 0, wrapError("gcs.sequences.next", scope, err)
		}
	}
	return 0, repositories.NewConflictError("gcs.sequences.next", scope, errors.New("too many concurrent writers"))
}

type bucketHandle struct {
	handle *gcs.BucketHandle
}

func (b *bucketHandle) Read(ctx context.Context, object string) ([]byte, int64, error) {
	reader, err := b.handle.Object(object).NewReader(ctx)
	if err != nil {
		return nil, 0, err
	}
	defer reader.Close()
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, 0, err
	}
	return data, reader.Attrs.Generation, nil
}

func (b *bucketHandle) Write(ctx context.Context, object string, data []byte, ifGeneration int64) error {
	handle := b.handle.Object(object)
	switch {
	case ifGeneration == 0:
		handle = handle.If(gcs.Conditions{DoesNotExist: true})
	case ifGeneration > 0:
		handle = handle.If(gcs.Conditions{GenerationMatch: ifGeneration})
	}
	writer := handle.NewWriter(ctx)
	writer.ContentType = "application/json"
	if _, err := writer.Write(data); err != nil {
		_ = writer.Close()
		return err
	}
	return writer.Close()
}

func (b *bucketHandle) Ping(ctx context.Context) error {
	_, err := b.handle.Attrs(ctx)
	return err
}

func isPreconditionFailed(err error) bool {
	var apiErr *googleapi.Error
	return errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed
}

func wrapError(op, key string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, gcs.ErrObjectNotExist) || errors.Is(err, gcs.ErrBucketNotExist) {
		return repositories.NewNotFoundError(op, key)
	}
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusPreconditionFailed || apiErr.Code == http.StatusConflict:
			return repositories.NewConflictError(op, key, err)
		case apiErr.Code == http.StatusTooManyRequests || apiErr.Code >= http.StatusInternalServerError:
			return repositories.NewUnavailableError(op, key, err)
		}
	}
	return &repositories.StoreError{Op: op, Key: key, Err: err}
}
