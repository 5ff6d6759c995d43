package photos

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MarcoPoloResearchLab/pneus/backend/internal/tires"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/afero"
)

func testRef(t *testing.T) tires.TireRef {
	t.Helper()
	ref, err := tires.NewTireRef("mes-1", "pneu-1")
	if err != nil {
		t.Fatalf("invalid ref: %v", err)
	}
	return ref
}

func fileUpload(name, content string) Upload {
	return Upload{
		Filename:    name,
		ContentType: "image/jpeg",
		Size:        int64(len(content)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(strings.NewReader(content)), nil
		},
	}
}

func fixedClock() time.Time {
	return time.UnixMilli(1767225600000)
}

func TestObjectKeyUsesLowercasedExtension(t *testing.T) {
	ref := testRef(t)
	testCases := []struct {
		filename string
		expected string
	}{
		{filename: "IMG_001.JPG", expected: "pneus/mes-1/pneu-1/1767225600000_0.jpg"},
		{filename: "scan.png", expected: "pneus/mes-1/pneu-1/1767225600000_0.png"},
		{filename: "camera", expected: "pneus/mes-1/pneu-1/1767225600000_0.jpg"},
		{filename: "weird.j/g", expected: "pneus/mes-1/pneu-1/1767225600000_0.jpg"},
	}
	for _, testCase := range testCases {
		if got := ObjectKey(ref, fixedClock(), 0, testCase.filename); got != testCase.expected {
			t.Fatalf("ObjectKey(%q) = %q, want %q", testCase.filename, got, testCase.expected)
		}
	}
}

func TestLocalStoreWritesAndServesObjects(t *testing.T) {
	fs := afero.NewMemMapFs()
	store := NewLocalStoreWithFs(fs, "http://localhost:8080/")

	url, err := store.Put(context.Background(), Object{Key: "pneus/m/t/1_0.jpg", Body: strings.NewReader("jpeg-bytes")})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if url != "http://localhost:8080/photos/pneus/m/t/1_0.jpg" {
		t.Fatalf("unexpected url %q", url)
	}

	file, err := store.Open("pneus/m/t/1_0.jpg")
	if err != nil {
		t.Fatalf("open failed: %v", err)
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		t.Fatalf("read failed: %v", err)
	}
	if string(content) != "jpeg-bytes" {
		t.Fatalf("unexpected content %q", content)
	}

	if _, err := store.Open("pneus/m/t/missing.jpg"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected ErrObjectNotFound, got %v", err)
	}
	if _, err := store.Open("pneus/m"); !errors.Is(err, ErrObjectNotFound) {
		t.Fatalf("expected directories to be hidden, got %v", err)
	}
}

func TestLocalStoreRejectsTraversal(t *testing.T) {
	store := NewLocalStoreWithFs(afero.NewMemMapFs(), "")
	for _, key := range []string{"", "../etc/passwd", "pneus/../../x"} {
		if _, err := store.Put(context.Background(), Object{Key: key, Body: strings.NewReader("x")}); !errors.Is(err, ErrInvalidKey) {
			t.Fatalf("expected ErrInvalidKey for %q, got %v", key, err)
		}
	}
}

type recordingStore struct {
	mu      sync.Mutex
	keys    []string
	failKey string
}

func (s *recordingStore) Put(_ context.Context, object Object) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failKey != "" && strings.HasSuffix(object.Key, s.failKey) {
		return "", errors.New("upload rejected")
	}
	s.keys = append(s.keys, object.Key)
	return "https://cdn.example/" + object.Key, nil
}

func TestUploadBatchReturnsURLsInOrder(t *testing.T) {
	store := &recordingStore{}
	uploader, err := NewUploader(UploaderConfig{Store: store, Clock: fixedClock})
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}

	urls, err := uploader.UploadBatch(context.Background(), testRef(t), []Upload{
		fileUpload("a.jpg", "a"),
		fileUpload("b.PNG", "b"),
		fileUpload("c", "c"),
	})
	if err != nil {
		t.Fatalf("upload failed: %v", err)
	}
	expected := []string{
		"https://cdn.example/pneus/mes-1/pneu-1/1767225600000_0.jpg",
		"https://cdn.example/pneus/mes-1/pneu-1/1767225600000_1.png",
		"https://cdn.example/pneus/mes-1/pneu-1/1767225600000_2.jpg",
	}
	for index, url := range urls {
		if url != expected[index] {
			t.Fatalf("url %d = %q, want %q", index, url, expected[index])
		}
	}
}

func TestUploadBatchFailsWholeBatch(t *testing.T) {
	store := &recordingStore{failKey: "_1.jpg"}
	uploader, err := NewUploader(UploaderConfig{Store: store, Clock: fixedClock})
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	urls, err := uploader.UploadBatch(context.Background(), testRef(t), []Upload{
		fileUpload("a.jpg", "a"),
		fileUpload("b.jpg", "b"),
	})
	if err == nil {
		t.Fatalf("expected batch failure")
	}
	if urls != nil {
		t.Fatalf("expected no urls on failure, got %v", urls)
	}
}

func TestUploadBatchRejectsMoreThanFourFiles(t *testing.T) {
	store := &recordingStore{}
	uploader, err := NewUploader(UploaderConfig{Store: store})
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	batch := make([]Upload, tires.MaxPhotos+1)
	for index := range batch {
		batch[index] = fileUpload("x.jpg", "x")
	}
	if _, err := uploader.UploadBatch(context.Background(), testRef(t), batch); !errors.Is(err, ErrTooManyPhotos) {
		t.Fatalf("expected ErrTooManyPhotos, got %v", err)
	}
	if len(store.keys) != 0 {
		t.Fatalf("expected nothing to be uploaded, got %v", store.keys)
	}
}

type fakePutObject struct {
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutObject) PutObject(_ context.Context, params *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.input = params
	content, err := io.ReadAll(params.Body)
	if err != nil {
		return nil, err
	}
	f.body = content
	return &s3.PutObjectOutput{}, nil
}

func TestS3StoreUploadsWithPathStyleURL(t *testing.T) {
	client := &fakePutObject{}
	store, err := NewS3Store(client, S3Config{Bucket: "fotos", Endpoint: "http://minio:9000/", Region: "us-east-1"})
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	url, err := store.Put(context.Background(), Object{
		Key:         "pneus/m/t/1_0.jpg",
		ContentType: "image/jpeg",
		Size:        3,
		Body:        bytes.NewReader([]byte("abc")),
	})
	if err != nil {
		t.Fatalf("put failed: %v", err)
	}
	if url != "http://minio:9000/fotos/pneus/m/t/1_0.jpg" {
		t.Fatalf("unexpected url %q", url)
	}
	if client.input == nil || *client.input.Bucket != "fotos" || *client.input.Key != "pneus/m/t/1_0.jpg" {
		t.Fatalf("unexpected put input %+v", client.input)
	}
	if *client.input.ContentType != "image/jpeg" || string(client.body) != "abc" {
		t.Fatalf("unexpected upload payload")
	}
}

func TestS3StoreDefaultsToRegionalEndpoint(t *testing.T) {
	store, err := NewS3Store(&fakePutObject{}, S3Config{Bucket: "fotos", Region: "sa-east-1"})
	if err != nil {
		t.Fatalf("constructor failed: %v", err)
	}
	if got := store.objectURL("pneus/a.jpg"); got != "https://s3.sa-east-1.amazonaws.com/fotos/pneus/a.jpg" {
		t.Fatalf("unexpected url %q", got)
	}
}
