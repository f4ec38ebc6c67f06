package db

import (
	"context"
	"io"
	"strconv"

	storage_go "github.com/supabase-community/storage-go"
)

// DefaultCacheControl is the max-age, in seconds, stored objects are served with.
const DefaultCacheControl = 3600

// SupabaseBlobStore keeps files in one Supabase Storage bucket.
type SupabaseBlobStore struct {
	storageURL string
	key        string
	bucket     string
	token      func() string
}

// NewSupabaseBlobStore creates a blob store on the storage API at storageURL
// (https://<ref>.supabase.co/storage/v1).
func NewSupabaseBlobStore(storageURL, key, bucket string) *SupabaseBlobStore {
	return &SupabaseBlobStore{storageURL: storageURL, key: key, bucket: bucket}
}

// WithToken makes requests carry the access token returned by token, so
// storage policies see the signed-in user. An empty token falls back to the key.
func (s *SupabaseBlobStore) WithToken(token func() string) *SupabaseBlobStore {
	s.token = token
	return s
}

// client returns a fresh storage client. storage-go keeps upload options as
// client-wide headers, so a client must not outlive one operation.
func (s *SupabaseBlobStore) client() *storage_go.Client {
	bearer := s.key
	if s.token != nil {
		if t := s.token(); t != "" {
			bearer = t
		}
	}
	return storage_go.NewClient(s.storageURL, bearer, map[string]string{"apikey": s.key})
}

// Put uploads r to path. Existing objects are never overwritten.
func (s *SupabaseBlobStore) Put(ctx context.Context, path string, r io.Reader, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	cacheControl := strconv.Itoa(DefaultCacheControl)
	upsert := false
	_, err := s.client().UploadFile(s.bucket, path, r, storage_go.FileOptions{
		CacheControl: &cacheControl,
		ContentType:  &contentType,
		Upsert:       &upsert,
	})
	return storageError("upload "+path, err)
}

func (s *SupabaseBlobStore) Get(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := s.client().DownloadFile(s.bucket, path)
	if err != nil {
		return nil, storageError("download "+path, err)
	}
	return data, nil
}

func (s *SupabaseBlobStore) Remove(ctx context.Context, paths ...string) error {
	if len(paths) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := s.client().RemoveFile(s.bucket, paths)
	return storageError("remove", err)
}

func (s *SupabaseBlobStore) PublicURL(path string) string {
	return s.client().GetPublicUrl(s.bucket, path).SignedURL
}
