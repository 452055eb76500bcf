package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"testing"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
)

type stubSearchClient struct {
	responseJSON string
	err          error

	gotIndices []string
	gotBody    map[string]interface{}
}

func (c *stubSearchClient) Search(_ context.Context, req *opensearchapi.SearchReq) (*opensearchapi.SearchResp, error) {
	c.gotIndices = req.Indices
	if req.Body != nil {
		raw, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		if err := json.Unmarshal(raw, &c.gotBody); err != nil {
			return nil, err
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	var resp opensearchapi.SearchResp
	if err := json.Unmarshal([]byte(c.responseJSON), &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func newTestSource(client *stubSearchClient) *Source {
	return NewSourceWithClient(client, config.OpenSearchConfig{
		IndexPrefix: "stratlens-content",
		MaxSnippets: 10,
	}, logging.NewNopLogger())
}

const searchResponse = `{
	"took": 3,
	"hits": {
		"total": {"value": 3},
		"hits": [
			{"_id": "doc-b", "_score": 1.2, "_source": {"session_id": "s1", "segment": "consumer", "title": "Survey", "body": "Buyers cite price first."}},
			{"_id": "doc-a", "_score": 4.5, "_source": {"session_id": "s1", "segment": "consumer", "title": "Interview notes", "body": "Repeat purchase driven by taste.", "metrics": {"brand_affinity": 0.72}}},
			{"_id": "doc-c", "_score": 2.0, "_source": {"session_id": "s1", "segment": "consumer", "title": "Empty doc", "body": ""}}
		]
	}
}`

func TestFetchSegmentContentSortsByRelevance(t *testing.T) {
	client := &stubSearchClient{responseJSON: searchResponse}
	source := newTestSource(client)

	snippets, err := source.FetchSegmentContent(context.Background(), "s1", "cold brew makers", results.SegmentConsumer)
	require.NoError(t, err)

	// The empty-body document is skipped, the rest are score descending.
	require.Len(t, snippets, 2)
	assert.Equal(t, "doc-a", snippets[0].DocID)
	assert.InDelta(t, 4.5, snippets[0].Score, 1e-6)
	assert.Equal(t, map[string]float64{"brand_affinity": 0.72}, snippets[0].Metrics)
	assert.Equal(t, "doc-b", snippets[1].DocID)

	assert.Equal(t, []string{"stratlens-content-consumer"}, client.gotIndices)
}

func TestFetchSegmentContentQueryShape(t *testing.T) {
	client := &stubSearchClient{responseJSON: `{"hits": {"total": {"value": 0}, "hits": []}}`}
	source := newTestSource(client)

	_, err := source.FetchSegmentContent(context.Background(), "s9", "mechanical keyboards", results.SegmentBrand)
	require.NoError(t, err)

	assert.EqualValues(t, 10, client.gotBody["size"])
	boolQuery := client.gotBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	filters := boolQuery["filter"].([]interface{})
	require.Len(t, filters, 2)
	sessionTerm := filters[0].(map[string]interface{})["term"].(map[string]interface{})
	assert.Equal(t, "s9", sessionTerm["session_id"])
	segmentTerm := filters[1].(map[string]interface{})["term"].(map[string]interface{})
	assert.Equal(t, "brand", segmentTerm["segment"])
}

func TestFetchSegmentContentEmptyTopicMatchesAll(t *testing.T) {
	client := &stubSearchClient{responseJSON: `{"hits": {"total": {"value": 0}, "hits": []}}`}
	source := newTestSource(client)

	snippets, err := source.FetchSegmentContent(context.Background(), "s1", "", results.SegmentMarket)
	require.NoError(t, err)
	assert.Empty(t, snippets)

	boolQuery := client.gotBody["query"].(map[string]interface{})["bool"].(map[string]interface{})
	must := boolQuery["must"].(map[string]interface{})
	assert.Contains(t, must, "match_all")
}

func TestFetchSegmentContentClusterError(t *testing.T) {
	client := &stubSearchClient{err: assert.AnError}
	source := newTestSource(client)

	_, err := source.FetchSegmentContent(context.Background(), "s1", "topic", results.SegmentMarket)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeContentSourceUnavailable))
}

func TestFetchSegmentContentCorruptDocument(t *testing.T) {
	client := &stubSearchClient{responseJSON: `{
		"hits": {"total": {"value": 1}, "hits": [
			{"_id": "doc-x", "_score": 1.0, "_source": {"body": 42}}
		]}
	}`}
	source := newTestSource(client)

	_, err := source.FetchSegmentContent(context.Background(), "s1", "topic", results.SegmentMarket)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeContentParseError))
}

func TestFetchSegmentContentRejectsBadInput(t *testing.T) {
	source := newTestSource(&stubSearchClient{})

	_, err := source.FetchSegmentContent(context.Background(), "", "topic", results.SegmentMarket)
	assert.Error(t, err)

	_, err = source.FetchSegmentContent(context.Background(), "s1", "topic", results.Segment("galactic"))
	assert.Error(t, err)
}

func TestTexts(t *testing.T) {
	texts := Texts([]Snippet{
		{Title: "Interview notes", Text: "Repeat purchase driven by taste."},
		{Text: "Untitled fragment."},
	})
	assert.Equal(t, []string{
		"Interview notes: Repeat purchase driven by taste.",
		"Untitled fragment.",
	}, texts)
}
