package blob

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/require"

	"github.com/waypointhq/waypoint/internal/config"
)

type fakeObjects struct {
	objects map[string][]byte
	puts    []*s3.PutObjectInput
	headErr error
}

func (f *fakeObjects) HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	if f.headErr != nil {
		return nil, f.headErr
	}
	if _, ok := f.objects[aws.ToString(params.Key)]; ok {
		return &s3.HeadObjectOutput{}, nil
	}
	return nil, &types.NotFound{}
}

func (f *fakeObjects) PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	if f.objects == nil {
		f.objects = map[string][]byte{}
	}
	f.objects[aws.ToString(params.Key)] = data
	f.puts = append(f.puts, params)
	return &s3.PutObjectOutput{}, nil
}

func TestBucketPutAndExists(t *testing.T) {
	fake := &fakeObjects{}
	bucket := New(fake, config.BlobConfig{Bucket: "media", Region: "eu-north-1", Prefix: "/waypoint-photos/"})
	ctx := context.Background()

	key := bucket.Key("abc.jpg")
	require.Equal(t, "waypoint-photos/abc.jpg", key)

	exists, err := bucket.Exists(ctx, key)
	require.NoError(t, err)
	require.False(t, exists)

	require.NoError(t, bucket.Put(ctx, Object{
		Key:          key,
		Data:         []byte{1, 2, 3},
		ContentType:  "image/jpeg",
		CacheControl: "public, max-age=31536000",
	}))
	exists, err = bucket.Exists(ctx, key)
	require.NoError(t, err)
	require.True(t, exists)

	require.Len(t, fake.puts, 1)
	require.Equal(t, "media", aws.ToString(fake.puts[0].Bucket))
	require.Equal(t, "public, max-age=31536000", aws.ToString(fake.puts[0].CacheControl))
	require.Equal(t, "https://media.s3.eu-north-1.amazonaws.com/waypoint-photos/abc.jpg", bucket.PublicURL(key))
}

func TestBucketExistsPropagatesErrors(t *testing.T) {
	bucket := New(&fakeObjects{headErr: errors.New("denied")}, config.BlobConfig{Bucket: "media"})
	_, err := bucket.Exists(context.Background(), "k")
	require.Error(t, err)
}

func TestPublicURL(t *testing.T) {
	require.Equal(t, "https://cdn.example.com/p/a.jpg",
		New(nil, config.BlobConfig{Bucket: "b", PublicBaseURL: "https://cdn.example.com/"}).PublicURL("p/a.jpg"))
	require.Equal(t, "http://minio:9000/b/p/a.jpg",
		New(nil, config.BlobConfig{Bucket: "b", Endpoint: "http://minio:9000/"}).PublicURL("p/a.jpg"))
	require.Equal(t, "https://b.s3.amazonaws.com/a.jpg", New(nil, config.BlobConfig{Bucket: "b"}).PublicURL("a.jpg"))
}

func TestOpenRequiresBucket(t *testing.T) {
	_, err := Open(context.Background(), config.BlobConfig{})
	require.Error(t, err)
}
