package uploader

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"regexp"
	"strings"
	"time"

	"github.com/heyjunin/HLSdrop/pkg/errors"
	"github.com/heyjunin/HLSdrop/pkg/logger"
)

// DefaultAnonDropEndpoint is the anonymous upload endpoint.
const DefaultAnonDropEndpoint = "https://anondrop.net/upload"

// maxResponseBytes bounds how much of an upload response is read.
const maxResponseBytes = 1 << 20

var hrefRegex = regexp.MustCompile(`href='([^']+)'`)

// ExtractURL returns the first single-quoted href in an HTML body.
func ExtractURL(html string) (string, bool) {
	m := hrefRegex.FindStringSubmatch(html)
	if len(m) < 2 {
		return "", false
	}
	return m[1], true
}

// AnonDropOptions configures the AnonDrop host.
type AnonDropOptions struct {
	Endpoint string
	// Timeout bounds each request. Zero means no timeout.
	Timeout time.Duration
	Client  *http.Client
	Logger  logger.Logger
}

// AnonDrop uploads through a multipart POST and scrapes the hosted URL out of
// the HTML response.
type AnonDrop struct {
	endpoint string
	client   *http.Client
	logger   logger.Logger
}

// NewAnonDrop creates an AnonDrop host.
func NewAnonDrop(opts AnonDropOptions) *AnonDrop {
	if opts.Endpoint == "" {
		opts.Endpoint = DefaultAnonDropEndpoint
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{Timeout: opts.Timeout}
	}
	if opts.Logger == nil {
		opts.Logger = logger.NewLogger()
	}
	return &AnonDrop{endpoint: opts.Endpoint, client: client, logger: opts.Logger}
}

// Name implements Host.
func (a *AnonDrop) Name() string { return "AnonDrop" }

// Upload sends the artifact in the multipart field "file" and returns the
// scraped URL with the kind's hosted name appended.
func (a *AnonDrop) Upload(ctx context.Context, art Artifact) (string, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, art))
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.endpoint, pr)
	if err != nil {
		pr.Close()
		return "", errors.Wrap(err, errors.UploadError, errors.GetErrorMessage(errors.ErrUploadRequestFailed), errors.ErrUploadRequestFailed)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	start := time.Now()
	resp, err := a.client.Do(req)
	if err != nil {
		pr.Close()
		return "", errors.Wrap(err, errors.UploadError, errors.GetErrorMessage(errors.ErrUploadRequestFailed), errors.ErrUploadRequestFailed)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", errors.Wrap(err, errors.UploadError, errors.GetErrorMessage(errors.ErrUploadBodyUnreadable), errors.ErrUploadBodyUnreadable)
	}

	a.logger.Debug("Upload response received", "uploader", map[string]interface{}{
		"name":     art.Name,
		"status":   resp.StatusCode,
		"duration": time.Since(start).String(),
	})

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", errors.New(errors.UploadError, errors.GetErrorMessage(errors.ErrUploadStatus), fmt.Sprintf("Status: %s", resp.Status), errors.ErrUploadStatus)
	}

	url, ok := ExtractURL(string(body))
	if !ok {
		return "", errors.New(errors.UploadError, errors.GetErrorMessage(errors.ErrUploadNoURL), "", errors.ErrUploadNoURL)
	}
	return strings.TrimRight(url, "/") + "/" + art.Kind.HostedName(), nil
}

func writeMultipart(mw *multipart.Writer, art Artifact) error {
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, escapeQuotes(art.Name)))
	h.Set("Content-Type", art.Kind.ContentType())

	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := io.Copy(part, art.Body); err != nil {
		return err
	}
	return mw.Close()
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
