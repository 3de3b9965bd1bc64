package retriever

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"strings"

	"github.com/grafov/m3u8"
	"github.com/therealutkarshpriyadarshi/subsync/internal/metrics"
	"github.com/therealutkarshpriyadarshi/subsync/internal/tracing"
	"github.com/therealutkarshpriyadarshi/subsync/pkg/models"
)

// retrieveManifest walks the media segments of an HLS playlist in order.
// Every segment becomes one file named after the track.
func (r *Retriever) retrieveManifest(ctx context.Context, req TrackRequest, body io.Reader) ([]models.SubtitleFile, error) {
	playlist, listType, err := m3u8.DecodeFrom(body, false)
	if err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}

	media, isMedia := playlist.(*m3u8.MediaPlaylist)
	if listType != m3u8.MEDIA || !isMedia {
		r.logger.WithField("url", req.URL).Warn("manifest is not a media playlist")
		return nil, nil
	}

	segments := mediaSegments(media)
	if len(segments) == 0 {
		return nil, nil
	}

	fileName := req.Name + "." + segmentExtension(segments[0].URI)
	base := basePath(req.URL)

	var parts []*m3u8.MediaSegment
	for _, segment := range segments {
		if !segment.Discontinuity && segment.URI != "" {
			parts = append(parts, segment)
		}
	}

	span := tracing.SpanFromContext(ctx)
	files := make([]models.SubtitleFile, 0, len(parts))

	for i, segment := range parts {
		segmentURL := resolveSegment(base, segment.URI)

		payload, err := r.fetchSegment(ctx, segmentURL)
		if err != nil {
			return nil, err
		}
		metrics.RecordSegmentFetched()

		percent := (i + 1) * 100 / len(parts)
		tracing.LogEvent(span, "segment", "index", i, "percent", percent)
		r.logger.LogRetrievalProgress(fileName, i+1, len(parts), percent)
		if r.progress != nil {
			r.progress.Progress(ctx, fileName, percent)
		}

		files = append(files, models.SubtitleFile{Name: fileName, Payload: payload})
	}

	return files, nil
}

func (r *Retriever) fetchSegment(ctx context.Context, segmentURL string) ([]byte, error) {
	resp, err := r.fetch(ctx, segmentURL, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch segment %s: %w", segmentURL, err)
	}
	defer resp.Body.Close()

	if !ok(resp) {
		return nil, httpError(segmentURL, resp)
	}

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read segment %s: %w", segmentURL, err)
	}
	return payload, nil
}

// mediaSegments returns the populated segments; the playlist keeps nil
// entries past its count
func mediaSegments(media *m3u8.MediaPlaylist) []*m3u8.MediaSegment {
	var segments []*m3u8.MediaSegment
	for _, segment := range media.Segments {
		if segment == nil {
			break
		}
		segments = append(segments, segment)
	}
	return segments
}

func segmentExtension(uri string) string {
	if u, err := url.Parse(uri); err == nil {
		uri = u.Path
	}
	return uri[strings.LastIndex(uri, ".")+1:]
}

func basePath(manifestURL string) string {
	return manifestURL[:strings.LastIndex(manifestURL, "/")+1]
}

func resolveSegment(base, uri string) string {
	if u, err := url.Parse(uri); err == nil && u.IsAbs() {
		return uri
	}
	return base + uri
}
