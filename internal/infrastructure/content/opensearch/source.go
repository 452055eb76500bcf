// Package opensearch retrieves session research content from the
// content cluster.  The pipeline feeds the snippets to the persona
// synthesizer and the rich-content narrative steps.
package opensearch

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"net/http"
	"sort"

	"github.com/opensearch-project/opensearch-go/v3"
	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/stratlens/stratlens/internal/config"
	"github.com/stratlens/stratlens/internal/domain/results"
	"github.com/stratlens/stratlens/internal/infrastructure/monitoring/logging"
	"github.com/stratlens/stratlens/pkg/errors"
	"github.com/stratlens/stratlens/pkg/types/common"
)

// Snippet is one retrieved content fragment.  Metrics carries the
// numeric indicator fields the research ingestion extracted from the
// document; the factor engine consumes them as raw field readings.
type Snippet struct {
	DocID   string
	Title   string
	Text    string
	Score   float64
	Metrics map[string]float64
}

// contentDoc is the indexed document shape.  Research ingestion writes
// these; the pipeline only reads them.
type contentDoc struct {
	SessionID string             `json:"session_id"`
	Segment   string             `json:"segment"`
	Title     string             `json:"title"`
	Body      string             `json:"body"`
	SourceURL string             `json:"source_url"`
	Metrics   map[string]float64 `json:"metrics,omitempty"`
}

// searchClient abstracts the opensearchapi client for testing.
type searchClient interface {
	Search(ctx context.Context, req *opensearchapi.SearchReq) (*opensearchapi.SearchResp, error)
}

// Source reads segment content for a session.
type Source struct {
	client      searchClient
	indexPrefix string
	maxSnippets int
	logger      logging.Logger
}

// NewSource builds a content source over the configured cluster.
func NewSource(cfg config.OpenSearchConfig, log logging.Logger) (*Source, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.NewValidation("opensearch: addresses must not be empty")
	}

	transport := &http.Transport{MaxIdleConnsPerHost: 10}
	if cfg.InsecureSkipVerify {
		transport.TLSClientConfig = &tls.Config{InsecureSkipVerify: true}
	}

	client, err := opensearchapi.NewClient(opensearchapi.Config{
		Client: opensearch.Config{
			Addresses:     cfg.Addresses,
			Username:      cfg.User,
			Password:      cfg.Password,
			Transport:     transport,
			MaxRetries:    3,
			RetryOnStatus: []int{502, 503, 504, 429},
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeContentSourceUnavailable, "failed to create opensearch client")
	}
	return NewSourceWithClient(client, cfg, log), nil
}

// NewSourceWithClient wraps an existing client (for testing).
func NewSourceWithClient(client searchClient, cfg config.OpenSearchConfig, log logging.Logger) *Source {
	if log == nil {
		log = logging.Default()
	}
	indexPrefix := cfg.IndexPrefix
	if indexPrefix == "" {
		indexPrefix = config.DefaultOpenSearchIndexPrefix
	}
	maxSnippets := cfg.MaxSnippets
	if maxSnippets <= 0 {
		maxSnippets = config.DefaultOpenSearchMaxSnippets
	}
	return &Source{
		client:      client,
		indexPrefix: indexPrefix,
		maxSnippets: maxSnippets,
		logger:      log.Named("content_source"),
	}
}

// FetchSegmentContent returns the research snippets indexed for one
// session and segment, most relevant first.  An empty result is not an
// error; the synthesizer has its own fallback for thin content.
func (s *Source) FetchSegmentContent(ctx context.Context, sessionID common.SessionID, topic string, segment results.Segment) ([]Snippet, error) {
	if sessionID == "" {
		return nil, errors.NewValidation("opensearch: session id must not be empty")
	}
	if !segment.Valid() {
		return nil, errors.NewValidation("opensearch: unknown segment " + string(segment))
	}

	dsl := map[string]interface{}{
		"size": s.maxSnippets,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must": s.topicClause(topic),
				"filter": []map[string]interface{}{
					{"term": map[string]interface{}{"session_id": string(sessionID)}},
					{"term": map[string]interface{}{"segment": string(segment)}},
				},
			},
		},
		"_source": map[string]interface{}{
			"includes": []string{"session_id", "segment", "title", "body", "source_url", "metrics"},
		},
	}
	body, err := json.Marshal(dsl)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal content query")
	}

	resp, err := s.client.Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.indexName(segment)},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, errors.New(errors.ErrCodeTimeout, "content search timed out")
		}
		return nil, errors.Wrap(err, errors.ErrCodeContentSourceUnavailable, "content search failed")
	}

	snippets := make([]Snippet, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		var doc contentDoc
		if err := json.Unmarshal(hit.Source, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeContentParseError, "failed to decode content document "+hit.ID)
		}
		if doc.Body == "" {
			continue
		}
		snippets = append(snippets, Snippet{
			DocID:   hit.ID,
			Title:   doc.Title,
			Text:    doc.Body,
			Score:   float64(hit.Score),
			Metrics: doc.Metrics,
		})
	}

	// Relevance order, doc ID as tie-break so reruns read identically.
	sort.SliceStable(snippets, func(i, j int) bool {
		if snippets[i].Score != snippets[j].Score {
			return snippets[i].Score > snippets[j].Score
		}
		return snippets[i].DocID < snippets[j].DocID
	})

	s.logger.Debug("fetched segment content",
		logging.String("session_id", string(sessionID)),
		logging.String("segment", string(segment)),
		logging.Int("snippets", len(snippets)),
	)
	return snippets, nil
}

// Texts flattens snippets into the plain strings the synthesizer takes.
func Texts(snippets []Snippet) []string {
	texts := make([]string, 0, len(snippets))
	for _, sn := range snippets {
		if sn.Title != "" {
			texts = append(texts, sn.Title+": "+sn.Text)
			continue
		}
		texts = append(texts, sn.Text)
	}
	return texts
}

func (s *Source) topicClause(topic string) map[string]interface{} {
	if topic == "" {
		return map[string]interface{}{"match_all": map[string]interface{}{}}
	}
	return map[string]interface{}{
		"multi_match": map[string]interface{}{
			"query":  topic,
			"fields": []string{"title^2", "body"},
		},
	}
}

func (s *Source) indexName(segment results.Segment) string {
	return s.indexPrefix + "-" + string(segment)
}
