package s3

import (
	"bytes"
	"context"
	"encoding/xml"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const metaHeaderPrefix = "X-Amz-Meta-"

// NewMockForTests returns a Store backed by an in-process fake bucket that
// answers the Head, Get, Put, Delete and ListObjectsV2 calls the store makes.
func NewMockForTests() *Store {
	return newMockStore(&fakeBucket{objects: make(map[string]fakeObject), pageSize: 1000})
}

func newMockStore(bucket *fakeBucket) *Store {
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: bucket}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket"}
}

type fakeObject struct {
	body        []byte
	contentType string
	metadata    http.Header
	modified    time.Time
}

// fakeBucket is an http.RoundTripper holding objects of one path-style bucket.
type fakeBucket struct {
	mu       sync.Mutex
	objects  map[string]fakeObject
	pageSize int
}

func (b *fakeBucket) RoundTrip(req *http.Request) (*http.Response, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := ""
	if parts := strings.SplitN(strings.TrimPrefix(req.URL.Path, "/"), "/", 2); len(parts) == 2 {
		key = parts[1]
	}
	switch {
	case req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2":
		return b.list(req)
	case req.Method == http.MethodHead:
		return b.head(key, false), nil
	case req.Method == http.MethodGet:
		return b.head(key, true), nil
	case req.Method == http.MethodPut:
		return b.put(key, req)
	case req.Method == http.MethodDelete:
		delete(b.objects, key)
		return respond(http.StatusNoContent, nil, nil), nil
	}
	return respond(http.StatusNotImplemented, nil, nil), nil
}

func (b *fakeBucket) head(key string, withBody bool) *http.Response {
	obj, ok := b.objects[key]
	if !ok {
		return respond(http.StatusNotFound, nil, nil)
	}
	h := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.body))},
		"Content-Type":   {obj.contentType},
		"Etag":           {`"` + strconv.Itoa(len(obj.body)) + `"`},
		"Last-Modified":  {obj.modified.Format(http.TimeFormat)},
	}
	for k, v := range obj.metadata {
		h[k] = v
	}
	if !withBody {
		return respond(http.StatusOK, h, nil)
	}
	return respond(http.StatusOK, h, obj.body)
}

func (b *fakeBucket) put(key string, req *http.Request) (*http.Response, error) {
	body, err := io.ReadAll(req.Body)
	if err != nil {
		return nil, err
	}
	if decoded, ok := decodeAWSChunked(body); ok {
		body = decoded
	}
	meta := http.Header{}
	for k, v := range req.Header {
		if strings.HasPrefix(http.CanonicalHeaderKey(k), metaHeaderPrefix) {
			meta[http.CanonicalHeaderKey(k)] = v
		}
	}
	b.objects[key] = fakeObject{
		body:        body,
		contentType: req.Header.Get("Content-Type"),
		metadata:    meta,
		modified:    time.Date(2024, 5, 2, 8, 30, 0, 0, time.UTC),
	}
	return respond(http.StatusOK, http.Header{"Etag": {`"put"`}}, nil), nil
}

type listResult struct {
	XMLName               xml.Name      `xml:"ListBucketResult"`
	IsTruncated           bool          `xml:"IsTruncated"`
	NextContinuationToken string        `xml:"NextContinuationToken,omitempty"`
	Contents              []listContent `xml:"Contents"`
}

type listContent struct {
	Key          string `xml:"Key"`
	Size         int    `xml:"Size"`
	LastModified string `xml:"LastModified"`
}

// list pages through keys in order; the continuation token is the last key
// of the previous page.
func (b *fakeBucket) list(req *http.Request) (*http.Response, error) {
	q := req.URL.Query()
	prefix, after := q.Get("prefix"), q.Get("continuation-token")
	keys := make([]string, 0, len(b.objects))
	for k := range b.objects {
		if strings.HasPrefix(k, prefix) && k > after {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var out listResult
	if len(keys) > b.pageSize {
		keys = keys[:b.pageSize]
		out.IsTruncated = true
		out.NextContinuationToken = keys[len(keys)-1]
	}
	for _, k := range keys {
		obj := b.objects[k]
		out.Contents = append(out.Contents, listContent{
			Key:          k,
			Size:         len(obj.body),
			LastModified: obj.modified.Format(time.RFC3339),
		})
	}
	doc, err := xml.Marshal(out)
	if err != nil {
		return nil, err
	}
	return respond(http.StatusOK, http.Header{"Content-Type": {"application/xml"}}, doc), nil
}

func respond(status int, h http.Header, body []byte) *http.Response {
	if h == nil {
		h = http.Header{}
	}
	return &http.Response{StatusCode: status, Header: h, Body: io.NopCloser(bytes.NewReader(body))}
}

// decodeAWSChunked unwraps a single-chunk aws-chunked body:
// <hex size>\r\n<data>\r\n0\r\n[trailers].
func decodeAWSChunked(b []byte) ([]byte, bool) {
	parts := strings.Split(string(b), "\r\n")
	if len(parts) < 3 || parts[2] != "0" {
		return nil, false
	}
	size, err := strconv.ParseInt(parts[0], 16, 64)
	if err != nil || int64(len(parts[1])) != size {
		return nil, false
	}
	return []byte(parts[1]), true
}
