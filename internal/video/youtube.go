package video

import (
	"context"
	"fmt"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"google.golang.org/api/option"
	"google.golang.org/api/youtube/v3"
)

const youtubeMaxResults = 3

// YouTubeSearcher queries the YouTube Data API v3 search endpoint.
type YouTubeSearcher struct {
	svc *youtube.Service
}

// YouTubeOption configures a YouTubeSearcher.
type YouTubeOption func(*youtubeSettings)

type youtubeSettings struct {
	endpoint   string
	httpClient *http.Client
}

// WithEndpoint points the client at a different API root (for testing).
func WithEndpoint(url string) YouTubeOption {
	return func(s *youtubeSettings) {
		s.endpoint = url
	}
}

// WithHTTPClient sets the HTTP client used for API calls. The client is
// responsible for authentication when set.
func WithHTTPClient(c *http.Client) YouTubeOption {
	return func(s *youtubeSettings) {
		s.httpClient = c
	}
}

// NewYouTubeSearcher builds a searcher authenticated with an API key.
func NewYouTubeSearcher(ctx context.Context, apiKey string, opts ...YouTubeOption) (*YouTubeSearcher, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("youtube API key is empty")
	}

	var s youtubeSettings
	for _, opt := range opts {
		opt(&s)
	}

	clientOpts := []option.ClientOption{option.WithAPIKey(apiKey)}
	if s.endpoint != "" {
		clientOpts = append(clientOpts, option.WithEndpoint(s.endpoint))
	}
	if s.httpClient != nil {
		clientOpts = append(clientOpts, option.WithHTTPClient(s.httpClient))
	}

	svc, err := youtube.NewService(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("create youtube service: %w", err)
	}
	return &YouTubeSearcher{svc: svc}, nil
}

// Search returns the most relevant video for query.
func (y *YouTubeSearcher) Search(ctx context.Context, query string) (Video, bool, error) {
	ctx, span := otel.Tracer("pai-study/video").Start(ctx, "youtube.search")
	defer span.End()
	span.SetAttributes(attribute.String("query", query))

	resp, err := y.svc.Search.List([]string{"snippet"}).
		Q(query).
		Type("video").
		Order("relevance").
		MaxResults(youtubeMaxResults).
		Context(ctx).
		Do()
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "search failed")
		return Video{}, false, fmt.Errorf("youtube search %q: %w", query, err)
	}

	for _, item := range resp.Items {
		if item.Id == nil || item.Id.VideoId == "" {
			continue
		}
		v := Video{ID: item.Id.VideoId, URL: WatchURL(item.Id.VideoId)}
		if item.Snippet != nil {
			v.Title = item.Snippet.Title
		}
		return v, true, nil
	}
	return Video{}, false, nil
}
