package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"folio/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvatarKeys(t *testing.T) {
	assert.Equal(t, "avatars/12/", AvatarPrefix(12))
	assert.Equal(t, "avatars/12/avatar.webp", AvatarKey(12))
}

func TestLocalStore_PutDeletePrefix(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://localhost:8375/uploads/")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, AvatarKey(1), "image/webp", []byte("one")))
	require.NoError(t, store.Put(ctx, "avatars/1/old.png", "image/png", []byte("old")))
	require.NoError(t, store.Put(ctx, AvatarKey(2), "image/webp", []byte("two")))

	data, err := os.ReadFile(filepath.Join(dir, "avatars", "1", "avatar.webp"))
	require.NoError(t, err)
	assert.Equal(t, "one", string(data))

	require.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(1)))
	_, err = os.Stat(filepath.Join(dir, "avatars", "1"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "avatars", "2", "avatar.webp"))
	assert.NoError(t, err)

	// deleting a missing prefix or key is not an error
	assert.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(99)))
	assert.NoError(t, store.Delete(ctx, "avatars/99/avatar.webp"))

	assert.Equal(t, "http://localhost:8375/uploads/avatars/2/avatar.webp", store.PublicURL(AvatarKey(2)))
}

func TestLocalStore_DeletePrefixKeeps(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStore(dir, "http://x")
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, AvatarKey(1), "image/webp", []byte("new")))
	require.NoError(t, store.Put(ctx, "avatars/1/old.png", "image/png", []byte("old")))
	require.NoError(t, store.Put(ctx, "avatars/1/nested/older.jpg", "image/jpeg", []byte("older")))

	require.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(1), AvatarKey(1)))
	data, err := os.ReadFile(filepath.Join(dir, "avatars", "1", "avatar.webp"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
	_, err = os.Stat(filepath.Join(dir, "avatars", "1", "old.png"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(dir, "avatars", "1", "nested", "older.jpg"))
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, store.DeletePrefix(ctx, AvatarKey(1), AvatarKey(1)))
	_, err = os.Stat(filepath.Join(dir, "avatars", "1", "avatar.webp"))
	assert.NoError(t, err)

	assert.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(99), AvatarKey(99)))
}

func TestLocalStore_RejectsEscapingKeys(t *testing.T) {
	store, err := NewLocalStore(t.TempDir(), "http://x")
	require.NoError(t, err)

	assert.Error(t, store.Put(context.Background(), "../evil", "text/plain", []byte("x")))
	assert.Error(t, store.DeletePrefix(context.Background(), "/"))
}

func TestNew_SelectsDriver(t *testing.T) {
	cfg := &config.Config{StorageDriver: "local", UploadDir: t.TempDir(), PublicBaseURL: "http://api.test/"}
	store, err := New(context.Background(), cfg)
	require.NoError(t, err)
	assert.IsType(t, &LocalStore{}, store)
	assert.Equal(t, "http://api.test/uploads/a.webp", store.PublicURL("a.webp"))

	cfg = &config.Config{
		StorageDriver:  "s3",
		S3Bucket:       "folio",
		S3Region:       "us-east-1",
		S3BaseEndpoint: "http://minio:9000",
		S3AccessKey:    "minioadmin",
		S3SecretKey:    "minioadmin",
	}
	store, err = New(context.Background(), cfg)
	require.NoError(t, err)
	assert.Equal(t, "http://minio:9000/folio/avatars/1/avatar.webp", store.PublicURL(AvatarKey(1)))

	_, err = New(context.Background(), &config.Config{StorageDriver: "ftp"})
	assert.Error(t, err)
}

type fakeS3 struct {
	objects  map[string][]byte
	pageSize int
	putErr   error
	deletes  int
}

func newFakeS3() *fakeS3 {
	return &fakeS3{objects: map[string][]byte{}, pageSize: 2}
}

func (f *fakeS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	buf := make([]byte, aws.ToInt64(in.ContentLength))
	_, _ = in.Body.Read(buf)
	f.objects[aws.ToString(in.Key)] = buf
	return &s3.PutObjectOutput{}, nil
}

func (f *fakeS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(f.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeS3) DeleteObjects(_ context.Context, in *s3.DeleteObjectsInput, _ ...func(*s3.Options)) (*s3.DeleteObjectsOutput, error) {
	f.deletes++
	for _, id := range in.Delete.Objects {
		delete(f.objects, aws.ToString(id.Key))
	}
	return &s3.DeleteObjectsOutput{}, nil
}

// ListObjectsV2 pages through matching keys; the continuation token is the
// last key returned.
func (f *fakeS3) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	prefix := aws.ToString(in.Prefix)
	after := aws.ToString(in.ContinuationToken)
	var keys []string
	for k := range f.objects {
		if len(k) >= len(prefix) && k[:len(prefix)] == prefix && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	out := &s3.ListObjectsV2Output{IsTruncated: aws.Bool(false)}
	if len(keys) > f.pageSize {
		keys = keys[:f.pageSize]
		out.IsTruncated = aws.Bool(true)
		out.NextContinuationToken = aws.String(keys[len(keys)-1])
	}
	for _, k := range keys {
		out.Contents = append(out.Contents, types.Object{Key: aws.String(k)})
	}
	return out, nil
}

func TestS3Store_DeletePrefixPaginates(t *testing.T) {
	fake := newFakeS3()
	store := newS3StoreWithClient(fake, "folio", "https://cdn.example.com")
	ctx := context.Background()

	for _, k := range []string{"avatars/1/a", "avatars/1/b", "avatars/1/c", "avatars/1/d", "avatars/10/a"} {
		require.NoError(t, store.Put(ctx, k, "image/webp", []byte(k)))
	}

	require.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(1)))
	assert.Equal(t, 2, fake.deletes)
	assert.Len(t, fake.objects, 1)
	assert.Contains(t, fake.objects, "avatars/10/a")
	assert.Equal(t, "https://cdn.example.com/avatars/10/a", store.PublicURL("avatars/10/a"))
}

func TestS3Store_DeletePrefixKeeps(t *testing.T) {
	fake := newFakeS3()
	store := newS3StoreWithClient(fake, "folio", "https://cdn.example.com")
	ctx := context.Background()

	for _, k := range []string{"avatars/1/a", AvatarKey(1), "avatars/1/z"} {
		require.NoError(t, store.Put(ctx, k, "image/webp", []byte(k)))
	}

	require.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(1), AvatarKey(1)))
	assert.Equal(t, []string{AvatarKey(1)}, keysOf(fake.objects))

	deletes := fake.deletes
	require.NoError(t, store.DeletePrefix(ctx, AvatarPrefix(1), AvatarKey(1)))
	assert.Equal(t, deletes, fake.deletes, "nothing left to delete")
}

func keysOf(m map[string][]byte) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestS3Store_PutError(t *testing.T) {
	fake := newFakeS3()
	fake.putErr = errors.New("access denied")
	store := newS3StoreWithClient(fake, "folio", "https://cdn.example.com")

	err := store.Put(context.Background(), "k", "image/webp", []byte("x"))
	require.Error(t, err)
	assert.ErrorContains(t, err, "access denied")
}

func TestNewS3Store_RequiresBucket(t *testing.T) {
	_, err := NewS3Store(context.Background(), S3Options{Region: "us-east-1"})
	assert.Error(t, err)
}

func TestNewS3Store_DefaultPublicURL(t *testing.T) {
	store, err := NewS3Store(context.Background(), S3Options{
		Bucket: "folio", Region: "eu-west-1", AccessKey: "k", SecretKey: "s",
	})
	require.NoError(t, err)
	assert.Equal(t, "https://folio.s3.eu-west-1.amazonaws.com/x", store.PublicURL("x"))
}
