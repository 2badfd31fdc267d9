package staging

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"

	"github.com/radif/media/internal/media"
)

// HTTPUploader posts batches to the attachments endpoint as multipart "files" parts.
type HTTPUploader struct {
	Client   *http.Client
	Endpoint string // e.g. "https://api.example.com/api/v1/uploads/attachments"
	Token    string
}

type uploadResponse struct {
	Results []media.UploadResult `json:"results"`
	Error   string               `json:"error"`
}

// Upload implements Uploader.
func (u *HTTPUploader) Upload(ctx context.Context, files []media.File) ([]media.UploadResult, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename="%s"`, escapeQuotes(f.Name)))
		h.Set("Content-Type", f.ContentType)
		fw, err := w.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("create part %q: %w", f.Name, err)
		}
		if _, err := io.Copy(fw, f.Body); err != nil {
			return nil, fmt.Errorf("write part %q: %w", f.Name, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.Endpoint, &b)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", w.FormDataContentType())
	if u.Token != "" {
		req.Header.Set("Authorization", "Bearer "+u.Token)
	}

	client := u.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload attachments: %w", err)
	}
	defer resp.Body.Close()

	var body uploadResponse
	decodeErr := json.NewDecoder(resp.Body).Decode(&body)
	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && body.Error != "" {
			return nil, fmt.Errorf("upload failed: %s", body.Error)
		}
		return nil, fmt.Errorf("upload failed with status %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode upload response: %w", decodeErr)
	}
	return body.Results, nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
