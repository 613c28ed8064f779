package search

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/xamero/smartdocs/config"
	"github.com/xamero/smartdocs/internal/models"
)

// ElasticClient indexes documents for full-text lookup. A nil client is a
// valid no-op so search can be switched off.
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// Hit is a single search result
type Hit struct {
	ID             uuid.UUID `json:"id"`
	TrackingNumber string    `json:"tracking_number"`
	Title          string    `json:"title"`
	Status         string    `json:"status"`
	Score          float64   `json:"score"`
}

// Query narrows a document search
type Query struct {
	Text     string
	OfficeID *uuid.UUID
	Status   string
	Limit    int
}

// NewElasticClient creates a new Elasticsearch client. Returns nil when
// search is disabled.
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{client: client, config: cfg}, nil
}

// Enabled reports whether an Elasticsearch cluster is configured
func (c *ElasticClient) Enabled() bool {
	return c != nil
}

func (c *ElasticClient) indexName() string {
	return config.FormatIndex(c.config, c.config.Index)
}

func documentBody(doc *models.Document) map[string]interface{} {
	offices := []string{doc.CurrentOfficeID.String()}
	if doc.ReceivingOfficeID != nil && *doc.ReceivingOfficeID != doc.CurrentOfficeID {
		offices = append(offices, doc.ReceivingOfficeID.String())
	}

	body := map[string]interface{}{
		"id":                doc.ID.String(),
		"tracking_number":   doc.TrackingNumber,
		"title":             doc.Title,
		"description":       doc.Description,
		"source":            doc.Source,
		"document_type":     string(doc.DocumentType),
		"priority":          string(doc.Priority),
		"confidentiality":   string(doc.Confidentiality),
		"status":            string(doc.Status),
		"current_office_id": doc.CurrentOfficeID.String(),
		"office_ids":        offices,
		"is_copy":           doc.IsCopy,
		"is_archived":       doc.IsArchived,
		"updated_at":        doc.UpdatedAt.Format(time.RFC3339),
	}
	if doc.ParentDocumentID != nil {
		body["parent_document_id"] = doc.ParentDocumentID.String()
	}
	if doc.DateReceived != nil {
		body["date_received"] = doc.DateReceived.Format(time.RFC3339)
	}
	return body
}

// IndexDocument upserts a document into the index
func (c *ElasticClient) IndexDocument(ctx context.Context, doc *models.Document) error {
	if c == nil {
		return nil
	}

	data, err := json.Marshal(documentBody(doc))
	if err != nil {
		return errors.Wrap(err, "failed to marshal document for indexing")
	}

	req := esapi.IndexRequest{
		Index:      c.indexName(),
		DocumentID: doc.ID.String(),
		Body:       bytes.NewReader(data),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch index request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return responseError(res, "index")
	}

	log.Debug().Str("document_id", doc.ID.String()).Msg("Document indexed")
	return nil
}

// DeleteDocument removes a document from the index
func (c *ElasticClient) DeleteDocument(ctx context.Context, id uuid.UUID) error {
	if c == nil {
		return nil
	}

	req := esapi.DeleteRequest{
		Index:      c.indexName(),
		DocumentID: id.String(),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete request")
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != 404 {
		return responseError(res, "delete")
	}
	return nil
}

func buildQuery(q Query) map[string]interface{} {
	limit := q.Limit
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	must := []interface{}{}
	if q.Text != "" {
		must = append(must, map[string]interface{}{
			"multi_match": map[string]interface{}{
				"query":  q.Text,
				"fields": []string{"tracking_number^3", "title^2", "description", "source"},
			},
		})
	} else {
		must = append(must, map[string]interface{}{"match_all": map[string]interface{}{}})
	}

	filter := []interface{}{}
	if q.OfficeID != nil {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"office_ids": q.OfficeID.String()},
		})
	}
	if q.Status != "" {
		filter = append(filter, map[string]interface{}{
			"term": map[string]interface{}{"status": q.Status},
		})
	}

	return map[string]interface{}{
		"size": limit,
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"must":   must,
				"filter": filter,
			},
		},
	}
}

type searchResponse struct {
	Hits struct {
		Hits []struct {
			Score  float64 `json:"_score"`
			Source Hit     `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
}

// SearchDocuments runs a full-text query. Results are candidates only;
// callers still apply access checks.
func (c *ElasticClient) SearchDocuments(ctx context.Context, q Query) ([]Hit, error) {
	if c == nil {
		return nil, nil
	}

	body, err := json.Marshal(buildQuery(q))
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.indexName()},
		Body:  bytes.NewReader(body),
	}

	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, responseError(res, "search")
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	hits := make([]Hit, 0, len(parsed.Hits.Hits))
	for _, h := range parsed.Hits.Hits {
		hit := h.Source
		hit.Score = h.Score
		hits = append(hits, hit)
	}
	return hits, nil
}

func responseError(res *esapi.Response, op string) error {
	var e map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		return errors.Wrapf(err, "failed to parse Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error [%d]: %v", op, res.StatusCode, e)
}
