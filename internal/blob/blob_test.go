package blob

import (
	"context"
	"io"
	"strings"
	"testing"
)

func testStoreRoundTrip(t *testing.T, s Store) {
	t.Helper()
	ctx := context.Background()

	info, err := s.Put(ctx, "alice/ec2-basics/upload/report.pdf", strings.NewReader("hello"), PutOptions{
		ContentType: "application/pdf",
		Metadata:    map[string]string{"step": "upload"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Size != 5 || info.ContentType != "application/pdf" {
		t.Fatalf("put info = %+v", info)
	}

	// Put overwrites, so re-running an upload is safe.
	if _, err := s.Put(ctx, "alice/ec2-basics/upload/report.pdf", strings.NewReader("hello again"), PutOptions{}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}

	got, rc, err := s.Get(ctx, "alice/ec2-basics/upload/report.pdf")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(rc)
	_ = rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != "hello again" {
		t.Fatalf("content = %q", data)
	}
	if got.Size != int64(len("hello again")) {
		t.Fatalf("get info = %+v", got)
	}

	if _, err := s.Put(ctx, "alice/s3-static-site/upload/index.html", strings.NewReader("<html>"), PutOptions{}); err != nil {
		t.Fatalf("put second: %v", err)
	}
	infos, err := s.List(ctx, "alice/ec2-basics/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(infos) != 1 {
		t.Fatalf("prefix list returned %d entries", len(infos))
	}

	if err := DeletePrefix(ctx, s, "alice/ec2-basics/"); err != nil {
		t.Fatalf("delete prefix: %v", err)
	}
	if infos, _ := s.List(ctx, "alice/ec2-basics/"); len(infos) != 0 {
		t.Fatalf("prefix not cleared: %v", infos)
	}
	if infos, _ := s.List(ctx, "alice/"); len(infos) != 1 {
		t.Fatal("delete prefix removed unrelated keys")
	}

	ok, err := s.Delete(ctx, "alice/s3-static-site/upload/index.html")
	if err != nil || !ok {
		t.Fatalf("delete = %v, %v", ok, err)
	}
	ok, err = s.Delete(ctx, "alice/s3-static-site/upload/index.html")
	if err != nil || ok {
		t.Fatalf("repeat delete = %v, %v", ok, err)
	}
	if _, _, err := s.Get(ctx, "alice/s3-static-site/upload/index.html"); err == nil {
		t.Fatal("get after delete succeeded")
	}
}

func TestMemoryStore(t *testing.T) {
	testStoreRoundTrip(t, NewMemory())
}

func TestFilesystemStore(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	testStoreRoundTrip(t, s)
}

func TestFilesystemRejectsTraversal(t *testing.T) {
	s, err := NewFilesystem(t.TempDir())
	if err != nil {
		t.Fatalf("new: %v", err)
	}
	for _, key := range []string{"", "/abs/path", "../escape", "a/../../b"} {
		if _, err := s.Put(context.Background(), key, strings.NewReader("x"), PutOptions{}); err == nil {
			t.Fatalf("key %q accepted", key)
		}
	}
}
