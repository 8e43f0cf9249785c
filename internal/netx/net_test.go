package netx

import (
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"strings"
	"testing"
)

func TestMultipartBody(t *testing.T) {
	body, ct := MultipartBody([][2]string{{"id", "a1"}, {"filename", `we"ird.txt`}}, FilePart{
		Field:       "file",
		Filename:    `we"ird.txt`,
		ContentType: "text/plain",
		Body:        strings.NewReader("hello"),
	})
	defer body.Close()

	mediaType, params, err := mime.ParseMediaType(ct)
	if err != nil {
		t.Fatalf("parse content type: %v", err)
	}
	if mediaType != "multipart/form-data" {
		t.Fatalf("media type = %q", mediaType)
	}

	form, err := multipart.NewReader(body, params["boundary"]).ReadForm(1 << 20)
	if err != nil {
		t.Fatalf("read form: %v", err)
	}
	if got := form.Value["id"]; len(got) != 1 || got[0] != "a1" {
		t.Fatalf("id = %v", got)
	}
	files := form.File["file"]
	if len(files) != 1 {
		t.Fatalf("files = %d, want 1", len(files))
	}
	if files[0].Filename != `we"ird.txt` {
		t.Fatalf("filename = %q", files[0].Filename)
	}
	if files[0].Header.Get("Content-Type") != "text/plain" {
		t.Fatalf("content type = %q", files[0].Header.Get("Content-Type"))
	}
	f, err := files[0].Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(f)
	if string(b) != "hello" {
		t.Fatalf("body = %q", b)
	}
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("disk gone") }

func TestMultipartBody_ReadErrorSurfaces(t *testing.T) {
	body, _ := MultipartBody(nil, FilePart{Field: "file", Filename: "x", Body: failingReader{}})
	defer body.Close()

	_, err := io.ReadAll(body)
	if err == nil || !strings.Contains(err.Error(), "disk gone") {
		t.Fatalf("err = %v, want disk gone", err)
	}
}
