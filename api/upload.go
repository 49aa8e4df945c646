package api

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"github.com/MrJorjinio/simpchat-go/core"
)

// UploadAttachment uploads a file as a multipart form and returns the stored
// attachment record.
func (c *Client) UploadAttachment(ctx context.Context, fileName string, r io.Reader) (core.Attachment, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", fileName)
	if err != nil {
		return core.Attachment{}, fmt.Errorf("CreateFormFile: %w", err)
	}
	if _, err := io.Copy(fw, r); err != nil {
		return core.Attachment{}, fmt.Errorf("copy file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return core.Attachment{}, fmt.Errorf("close multipart writer: %w", err)
	}

	var attachment core.Attachment
	if err := c.do(ctx, http.MethodPost, "/attachments", mw.FormDataContentType(), &buf, &attachment); err != nil {
		return core.Attachment{}, fmt.Errorf("UploadAttachment: %w", err)
	}
	return attachment, nil
}
