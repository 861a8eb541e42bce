package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string][]byte
	err     error
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(b))}, nil
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.err != nil {
		return nil, f.err
	}
	b, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)] = b
	return &s3.PutObjectOutput{}, nil
}

func readAll(t *testing.T, s Opener, key string) string {
	t.Helper()
	rc, err := s.Open(context.Background(), key)
	require.NoError(t, err)
	defer rc.Close()
	b, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(b)
}

func TestLocal_PutOpen(t *testing.T) {
	s, err := New(Config{Type: "local", LocalPath: t.TempDir()}, nil)
	require.NoError(t, err)

	key := UploadKey("t1", "list.csv")
	assert.True(t, strings.HasPrefix(key, "uploads/t1/"))
	assert.True(t, strings.HasSuffix(key, "-list.csv"))

	require.NoError(t, s.Put(context.Background(), key, strings.NewReader("email\na@x.com\n")))
	assert.Equal(t, "email\na@x.com\n", readAll(t, s, key))

	_, err = s.Open(context.Background(), "uploads/t1/missing.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.Open(context.Background(), "../etc/passwd")
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestS3_PutOpen(t *testing.T) {
	client := &fakeS3{objects: map[string][]byte{}}
	s, err := New(Config{Type: "s3", Bucket: "uploads", Prefix: "audience/"}, client)
	require.NoError(t, err)

	require.NoError(t, s.Put(context.Background(), "k.csv", strings.NewReader("a,b\n")))
	assert.Contains(t, client.objects, "uploads/audience/k.csv")
	assert.Equal(t, "a,b\n", readAll(t, s, "k.csv"))

	_, err = s.Open(context.Background(), "nope.csv")
	assert.ErrorIs(t, err, ErrNotFound)

	client.err = errors.New("access denied")
	_, err = s.Open(context.Background(), "k.csv")
	assert.ErrorContains(t, err, "access denied")
}

func TestNew_Errors(t *testing.T) {
	_, err := New(Config{Type: "s3"}, nil)
	assert.Error(t, err)
	_, err = New(Config{Type: "gcs"}, nil)
	assert.ErrorContains(t, err, "unknown type")
}

func TestUploadKey_StripsDirectories(t *testing.T) {
	key := UploadKey("t1", "../../x.csv")
	assert.NotContains(t, key, "..")
	assert.True(t, strings.HasSuffix(key, "-x.csv"))
}
