// Package netx uploads attachment bytes to presigned object-storage URLs.
package netx

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/dmitrijs2005/altair/internal/common"
)

// Client is used for uploads; tests may swap it.
var Client = &http.Client{Timeout: 2 * time.Minute}

// UploadToPresignedURL PUTs data to url. The content type must match the one
// the URL was signed for. Transport failures are ConnectionFailed errors and
// non-2xx answers are ServerErrors carrying the status code.
func UploadToPresignedURL(ctx context.Context, url, contentType string, data []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(data))
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(data))

	resp, err := Client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return common.Timeout(err)
		}
		return common.ConnectionFailed(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return common.ServerError(resp.StatusCode, fmt.Sprintf("upload failed: %s; body: %s", resp.Status, string(b)))
	}
	return nil
}
