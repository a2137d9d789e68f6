package dataset

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path"
	"strings"
)

var (
	// ErrInvalidInput marks every failure caused by what the caller sent.
	ErrInvalidInput    = errors.New("invalid input")
	ErrNoSource        = fmt.Errorf("%w: no data source provided, send one of file, base64_file or dataframe_url", ErrInvalidInput)
	ErrAmbiguousSource = fmt.Errorf("%w: more than one data source provided, send only one of file, base64_file or dataframe_url", ErrInvalidInput)
)

// maxRemoteBytes caps a fetched dataframe_url body.
const maxRemoteBytes = 64 << 20

type Kind string

const (
	KindNone   Kind = ""
	KindFile   Kind = "file"
	KindBase64 Kind = "base64"
	KindURL    Kind = "url"
)

// Source holds the three optional inputs of an analyze request.
type Source struct {
	File     []byte
	FileName string
	Base64   string
	URL      string
}

// Kinds lists the supplied inputs in precedence order: file, base64, URL.
func (s Source) Kinds() []Kind {
	var kinds []Kind
	if s.File != nil {
		kinds = append(kinds, KindFile)
	}
	if strings.TrimSpace(s.Base64) != "" {
		kinds = append(kinds, KindBase64)
	}
	if strings.TrimSpace(s.URL) != "" {
		kinds = append(kinds, KindURL)
	}
	return kinds
}

// Kind returns the input that wins under the precedence rule.
func (s Source) Kind() Kind {
	kinds := s.Kinds()
	if len(kinds) == 0 {
		return KindNone
	}
	return kinds[0]
}

type Resolver struct {
	client *http.Client
	strict bool
}

// NewResolver builds a Resolver. With strict set, a Source carrying more than
// one input is rejected instead of resolved by precedence.
func NewResolver(client *http.Client, strict bool) *Resolver {
	if client == nil {
		client = http.DefaultClient
	}
	return &Resolver{client: client, strict: strict}
}

func (r *Resolver) Resolve(ctx context.Context, src Source) (*Dataset, error) {
	kinds := src.Kinds()
	if len(kinds) == 0 {
		return nil, ErrNoSource
	}
	if r.strict && len(kinds) > 1 {
		return nil, ErrAmbiguousSource
	}

	switch kinds[0] {
	case KindFile:
		return Decode(src.File, src.FileName)
	case KindBase64:
		data, err := decodeBase64(src.Base64)
		if err != nil {
			return nil, err
		}
		return Decode(data, "")
	default:
		data, name, err := r.fetch(ctx, src.URL)
		if err != nil {
			return nil, err
		}
		return Decode(data, name)
	}
}

func (r *Resolver) fetch(ctx context.Context, rawURL string) ([]byte, string, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, "", fmt.Errorf("%w: dataframe_url must be an absolute http(s) URL", ErrInvalidInput)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to fetch dataframe_url: %v", ErrInvalidInput, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, "", fmt.Errorf("%w: dataframe_url returned status %d", ErrInvalidInput, resp.StatusCode)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxRemoteBytes+1))
	if err != nil {
		return nil, "", fmt.Errorf("%w: failed to read dataframe_url body: %v", ErrInvalidInput, err)
	}
	if len(data) > maxRemoteBytes {
		return nil, "", fmt.Errorf("%w: dataframe_url body exceeds %d bytes", ErrInvalidInput, maxRemoteBytes)
	}
	return data, path.Base(u.Path), nil
}
