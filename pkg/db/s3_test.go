package db

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"

	"voice-dashboard/pkg/domain"
)

type mockS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	types   map[string]string
	headErr error
}

func newMockS3() *mockS3 {
	return &mockS3{objects: make(map[string][]byte), types: make(map[string]string)}
}

func (m *mockS3) GetObject(ctx context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.objects[aws.ToString(in.Key)]
	if !ok {
		return nil, &smithy.GenericAPIError{Code: "NoSuchKey", Message: "The specified key does not exist."}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(data))}, nil
}

func (m *mockS3) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	data, err := io.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[aws.ToString(in.Key)] = data
	m.types[aws.ToString(in.Key)] = aws.ToString(in.ContentType)
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) DeleteObject(ctx context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (m *mockS3) HeadObject(ctx context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.headErr != nil {
		return nil, m.headErr
	}
	if _, ok := m.objects[aws.ToString(in.Key)]; !ok {
		return nil, &smithy.GenericAPIError{Code: "NotFound", Message: "Not Found"}
	}
	return &s3.HeadObjectOutput{}, nil
}

func TestS3BlobStorePutGetRemove(t *testing.T) {
	client := newMockS3()
	store := NewS3BlobStore(client, "voice", "https://cdn.example.com/voice/")
	ctx := context.Background()

	if err := store.Put(ctx, "voice-records/u1/u1-1.wav", bytes.NewReader([]byte("RIFF")), "audio/wav"); err != nil {
		t.Fatalf("Put() error = %v", err)
	}
	if client.types["voice-records/u1/u1-1.wav"] != "audio/wav" {
		t.Errorf("content type = %q", client.types["voice-records/u1/u1-1.wav"])
	}

	err := store.Put(ctx, "voice-records/u1/u1-1.wav", bytes.NewReader([]byte("RIFF")), "audio/wav")
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("Put() existing error = %v, want ErrDuplicate", err)
	}

	data, err := store.Get(ctx, "voice-records/u1/u1-1.wav")
	if err != nil || string(data) != "RIFF" {
		t.Errorf("Get() = %q, %v", data, err)
	}

	if err := store.Remove(ctx, "voice-records/u1/u1-1.wav", "never-existed"); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	if _, err := store.Get(ctx, "voice-records/u1/u1-1.wav"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("Get() after remove error = %v, want ErrNotFound", err)
	}
}

func TestS3BlobStoreHeadFailure(t *testing.T) {
	client := newMockS3()
	client.headErr = &smithy.GenericAPIError{Code: "AccessDenied", Message: "Access Denied"}
	store := NewS3BlobStore(client, "voice", "https://cdn.example.com/voice")

	err := store.Put(context.Background(), "a.wav", bytes.NewReader(nil), "audio/wav")
	if !errors.Is(err, domain.ErrBackendUnavailable) {
		t.Errorf("Put() error = %v, want backend error", err)
	}
	if len(client.objects) != 0 {
		t.Error("object written despite failed existence check")
	}
}

func TestS3PublicURL(t *testing.T) {
	store := NewS3BlobStore(newMockS3(), "voice", "https://cdn.example.com/voice/")
	got := store.PublicURL("voice-records/u1/my take.wav")
	want := "https://cdn.example.com/voice/voice-records/u1/my%20take.wav"
	if got != want {
		t.Errorf("PublicURL() = %q, want %q", got, want)
	}
}

func TestNewS3BlobStoreFromConfig(t *testing.T) {
	if _, err := NewS3BlobStoreFromConfig(S3Config{}); err == nil {
		t.Error("expected error without bucket")
	}
	if _, err := NewS3BlobStoreFromConfig(S3Config{Bucket: "voice"}); err == nil {
		t.Error("expected error without endpoint or public URL")
	}

	store, err := NewS3BlobStoreFromConfig(S3Config{
		Endpoint: "http://localhost:9000/",
		Region:   "us-east-1",
		Bucket:   "voice",
	})
	if err != nil {
		t.Fatalf("NewS3BlobStoreFromConfig() error = %v", err)
	}
	if got := store.PublicURL("a.wav"); got != "http://localhost:9000/voice/a.wav" {
		t.Errorf("PublicURL() = %q", got)
	}
}
