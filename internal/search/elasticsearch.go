package search

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"time"

	"example.com/backstage/services/procurement/config"
	"example.com/backstage/services/procurement/internal/procurement"

	"github.com/elastic/go-elasticsearch/v7"
	"github.com/elastic/go-elasticsearch/v7/esapi"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// ElasticClient indexes requirement snapshots in Elasticsearch
type ElasticClient struct {
	client *elasticsearch.Client
	config config.ElasticConfig
}

// NewElasticClient creates a new Elasticsearch client
func NewElasticClient(cfg config.ElasticConfig) (*ElasticClient, error) {
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: []string{cfg.URL},
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to create Elasticsearch client")
	}

	return &ElasticClient{
		client: client,
		config: cfg,
	}, nil
}

// RequirementDocument is the indexed form of one view row
type RequirementDocument struct {
	EntryID      string    `json:"entry_id"`
	Bucket       string    `json:"bucket"`
	Supplier     string    `json:"supplier"`
	Code         string    `json:"code"`
	Unit         string    `json:"unit,omitempty"`
	OrderID      string    `json:"order_id,omitempty"`
	Position     *int      `json:"position,omitempty"`
	OrderNumber  string    `json:"order_number,omitempty"`
	Customer     string    `json:"customer,omitempty"`
	ExpenseID    string    `json:"expense_id,omitempty"`
	Quantity     float64   `json:"quantity"`
	Required     float64   `json:"required_quantity"`
	Ordered      float64   `json:"ordered_quantity"`
	IsAdditional bool      `json:"is_additional"`
	IsExpense    bool      `json:"is_general_expense"`
	SnapshotAt   time.Time `json:"snapshot_at"`
}

// NewRequirementDocument converts a view row for indexing
func NewRequirementDocument(row procurement.Requirement, snapshotAt time.Time) RequirementDocument {
	doc := RequirementDocument{
		EntryID:      row.ID,
		Bucket:       row.Bucket.String(),
		Supplier:     row.Supplier,
		Code:         row.Code,
		Unit:         row.Unit,
		OrderNumber:  row.OrderNumber,
		Customer:     row.Customer,
		ExpenseID:    row.ExpenseID,
		Quantity:     row.DisplayQuantity().InexactFloat64(),
		Required:     row.RequiredQuantity.InexactFloat64(),
		Ordered:      row.OrderedQuantity.InexactFloat64(),
		IsAdditional: row.IsAdditional,
		IsExpense:    row.IsGeneralExpense,
		SnapshotAt:   snapshotAt,
	}
	if row.Ref != nil {
		position := row.Ref.Position
		doc.OrderID = row.Ref.OrderID
		doc.Position = &position
	}
	return doc
}

func (c *ElasticClient) indexName() string {
	return config.FormatIndex(c.config, c.config.Index)
}

// IndexSnapshot replaces the indexed requirement snapshot with rows.
// Documents from earlier snapshots are deleted once the bulk write succeeds.
func (c *ElasticClient) IndexSnapshot(ctx context.Context, rows []procurement.Requirement, snapshotAt time.Time) error {
	index := c.indexName()

	var body bytes.Buffer
	enc := json.NewEncoder(&body)
	for _, row := range rows {
		meta := map[string]interface{}{
			"index": map[string]interface{}{"_index": index, "_id": row.Bucket.String() + ":" + row.ID},
		}
		if err := enc.Encode(meta); err != nil {
			return errors.Wrap(err, "failed to encode bulk metadata")
		}
		if err := enc.Encode(NewRequirementDocument(row, snapshotAt)); err != nil {
			return errors.Wrap(err, "failed to encode requirement document")
		}
	}

	if body.Len() > 0 {
		req := esapi.BulkRequest{Body: &body, Refresh: "true"}
		res, err := req.Do(ctx, c.client)
		if err != nil {
			return errors.Wrap(err, "failed to execute Elasticsearch bulk request")
		}
		defer res.Body.Close()

		if err := responseError(res, "bulk"); err != nil {
			return err
		}

		var result struct {
			Errors bool `json:"errors"`
		}
		if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
			return errors.Wrap(err, "failed to parse Elasticsearch bulk response")
		}
		if result.Errors {
			return errors.New("Elasticsearch bulk request reported item errors")
		}
	}

	if err := c.deleteBefore(ctx, snapshotAt); err != nil {
		return err
	}

	log.Info().Int("documents", len(rows)).Str("index", index).Msg("requirement snapshot indexed")
	return nil
}

func (c *ElasticClient) deleteBefore(ctx context.Context, snapshotAt time.Time) error {
	query := map[string]interface{}{
		"query": map[string]interface{}{
			"range": map[string]interface{}{
				"snapshot_at": map[string]interface{}{"lt": snapshotAt.Format(time.RFC3339Nano)},
			},
		},
	}
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return errors.Wrap(err, "failed to marshal delete query")
	}

	req := esapi.DeleteByQueryRequest{
		Index: []string{c.indexName()},
		Body:  bytes.NewReader(queryJSON),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return errors.Wrap(err, "failed to execute Elasticsearch delete-by-query request")
	}
	defer res.Body.Close()

	// a missing index just means nothing was indexed before
	if res.StatusCode == 404 {
		return nil
	}
	return responseError(res, "delete-by-query")
}

// SearchRequirements runs a query against the snapshot index and returns the matched documents
func (c *ElasticClient) SearchRequirements(ctx context.Context, query map[string]interface{}) ([]RequirementDocument, error) {
	queryJSON, err := json.Marshal(query)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal search query")
	}

	req := esapi.SearchRequest{
		Index: []string{c.indexName()},
		Body:  bytes.NewReader(queryJSON),
	}
	res, err := req.Do(ctx, c.client)
	if err != nil {
		return nil, errors.Wrap(err, "failed to execute Elasticsearch search request")
	}
	defer res.Body.Close()

	if err := responseError(res, "search"); err != nil {
		return nil, err
	}

	var result struct {
		Hits struct {
			Hits []struct {
				Source RequirementDocument `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, errors.Wrap(err, "failed to parse Elasticsearch search response")
	}

	docs := make([]RequirementDocument, 0, len(result.Hits.Hits))
	for _, hit := range result.Hits.Hits {
		docs = append(docs, hit.Source)
	}
	return docs, nil
}

// SearchByCode finds indexed rows whose material code matches code
func (c *ElasticClient) SearchByCode(ctx context.Context, code string) ([]RequirementDocument, error) {
	return c.SearchRequirements(ctx, CodeQuery(code))
}

// CodeQuery builds the query used by SearchByCode
func CodeQuery(code string) map[string]interface{} {
	return map[string]interface{}{
		"size": 500,
		"query": map[string]interface{}{
			"match": map[string]interface{}{
				"code": strings.TrimSpace(code),
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"supplier.keyword": "asc"},
		},
	}
}

func responseError(res *esapi.Response, op string) error {
	if !res.IsError() {
		return nil
	}
	var e map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&e); err != nil {
		return errors.Wrapf(err, "failed to parse Elasticsearch %s error response", op)
	}
	return errors.Errorf("Elasticsearch %s error: %v", op, e)
}
