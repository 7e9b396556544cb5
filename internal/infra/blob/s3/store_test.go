package s3

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"

	"colazione/internal/blob/core"
)

func TestMockStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := NewMockForTests()
	if store.Driver() != core.DriverS3 {
		t.Fatalf("unexpected driver %s", store.Driver())
	}
	info, err := store.Put(ctx, "exports/run-1/menu.json", bytes.NewReader([]byte(`{"drinks":[],"foods":[]}`)), core.PutOptions{ContentType: "application/json"})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Key != "exports/run-1/menu.json" {
		t.Fatalf("unexpected key %q", info.Key)
	}
	if _, err := store.Put(ctx, "exports/run-1/menu.json", bytes.NewReader([]byte("x")), core.PutOptions{}); !errors.Is(err, core.ErrExists) {
		t.Fatalf("expected ErrExists, got %v", err)
	}
	_, rc, err := store.Get(ctx, "exports/run-1/menu.json")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != `{"drinks":[],"foods":[]}` {
		t.Fatalf("unexpected body %q", body)
	}
	list, err := store.List(ctx, "exports/")
	if err != nil || len(list) != 1 {
		t.Fatalf("list: %v %+v", err, list)
	}
	ok, err := store.Delete(ctx, "exports/run-1/menu.json")
	if err != nil || !ok {
		t.Fatalf("delete: %v %v", ok, err)
	}
	ok, err = store.Delete(ctx, "exports/run-1/menu.json")
	if err != nil || ok {
		t.Fatalf("second delete should report missing: %v %v", ok, err)
	}
	if _, _, err := store.Get(ctx, "exports/run-1/menu.json"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestPrefixedKeys(t *testing.T) {
	store := NewMockForTests()
	store.prefix = "colazione"
	ctx := context.Background()
	if _, err := store.Put(ctx, "exports/a.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put: %v", err)
	}
	list, err := store.List(ctx, "exports/")
	if err != nil || len(list) != 1 || list[0].Key != "exports/a.json" {
		t.Fatalf("prefix not stripped: %+v %v", list, err)
	}
}

func TestNewRequiresBucket(t *testing.T) {
	if _, err := New(context.Background(), Config{}); err == nil {
		t.Fatalf("expected bucket error")
	}
}

func TestListFollowsContinuationTokens(t *testing.T) {
	bucket := &fakeBucket{objects: make(map[string]fakeObject), pageSize: 2}
	store := newMockStore(bucket)
	ctx := context.Background()
	for _, set := range []string{"users", "groups", "menu", "orders", "payments"} {
		if _, err := store.Put(ctx, "exports/run-1/"+set+".json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
			t.Fatalf("put %s: %v", set, err)
		}
	}
	if _, err := store.Put(ctx, "other/x.json", bytes.NewReader([]byte("{}")), core.PutOptions{}); err != nil {
		t.Fatalf("put other: %v", err)
	}
	list, err := store.List(ctx, "exports/")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 5 || list[0].Key != "exports/run-1/groups.json" || list[4].Key != "exports/run-1/users.json" {
		t.Fatalf("unexpected listing %+v", list)
	}
}

func TestPutKeepsMetadata(t *testing.T) {
	store := NewMockForTests()
	ctx := context.Background()
	info, err := store.Put(ctx, "exports/run-2/users.json", bytes.NewReader([]byte("[]")), core.PutOptions{
		ContentType: "application/json",
		Metadata:    map[string]string{"set": "users"},
	})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if info.Metadata["set"] != "users" || info.ContentType != "application/json" || info.Size != 2 {
		t.Fatalf("unexpected info %+v", info)
	}
}

func TestDecodeAWSChunked(t *testing.T) {
	if got, ok := decodeAWSChunked([]byte("4\r\nabcd\r\n0\r\nx-amz-checksum-crc32:AAAA\r\n\r\n")); !ok || string(got) != "abcd" {
		t.Fatalf("unexpected decode %q %v", got, ok)
	}
	for _, raw := range []string{"abcd", "zz\r\nabcd\r\n0\r\n", "5\r\nabcd\r\n0\r\n"} {
		if _, ok := decodeAWSChunked([]byte(raw)); ok {
			t.Fatalf("%q should not decode", raw)
		}
	}
}
