package ledger

import (
	"context"
	"fmt"

	"github.com/tidwall/gjson"
	"golang.org/x/sync/errgroup"
)

const (
	methodQueryTransactions = "queryTransactionsByProgram"
	methodGetObjects        = "getObjectsByIds"
)

// CreatedObject is an object a transaction created.
type CreatedObject struct {
	ID   string `json:"objectId"`
	Type string `json:"objectType"`
}

// Transaction is one claim call.
type Transaction struct {
	Digest  string          `json:"digest"`
	Created []CreatedObject `json:"created"`
}

// Page is one page of transactions.
type Page struct {
	Transactions []Transaction
	NextCursor   string
	HasNextPage  bool
}

// Object is a looked-up object with the claim fields extracted.
type Object struct {
	ID     string `json:"objectId"`
	Status string `json:"status"`
	Name   string `json:"name"`
	URL    string `json:"url"`
}

type moveFunctionFilter struct {
	MoveFunction Program `json:"MoveFunction"`
}

// QueryClaimTransactions fetches the page after cursor. An empty cursor
// starts at the beginning.
func (c *Client) QueryClaimTransactions(ctx context.Context, cursor string) (Page, error) {
	var cur any
	if cursor != "" {
		cur = cursor
	}
	res, err := c.Call(ctx, methodQueryTransactions,
		moveFunctionFilter{MoveFunction: c.program},
		cur,
		c.PageSize,
		false,
	)
	if err != nil {
		return Page{}, fmt.Errorf("query transactions: %w", err)
	}
	return parsePage(res), nil
}

func parsePage(res gjson.Result) Page {
	page := Page{
		NextCursor:  res.Get("nextCursor").String(),
		HasNextPage: res.Get("hasNextPage").Bool(),
	}
	res.Get("data").ForEach(func(_, tx gjson.Result) bool {
		t := Transaction{Digest: tx.Get("digest").String()}
		tx.Get("objectChanges").ForEach(func(_, ch gjson.Result) bool {
			if ch.Get("type").String() == "created" {
				t.Created = append(t.Created, CreatedObject{
					ID:   ch.Get("objectId").String(),
					Type: ch.Get("objectType").String(),
				})
			}
			return true
		})
		page.Transactions = append(page.Transactions, t)
		return true
	})
	return page
}

// GetObjects looks up ids in batches of BatchSize. Any failed batch fails
// the whole lookup.
func (c *Client) GetObjects(ctx context.Context, ids []string) ([]Object, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var batches [][]string
	for start := 0; start < len(ids); start += c.BatchSize {
		end := min(start+c.BatchSize, len(ids))
		batches = append(batches, ids[start:end])
	}

	results := make([][]Object, len(batches))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(4)
	for i, batch := range batches {
		g.Go(func() error {
			res, err := c.Call(ctx, methodGetObjects, batch, map[string]bool{"showContent": true})
			if err != nil {
				return fmt.Errorf("get objects: %w", err)
			}
			results[i] = parseObjects(res)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []Object
	for _, r := range results {
		out = append(out, r...)
	}
	return out, nil
}

func parseObjects(res gjson.Result) []Object {
	var out []Object
	res.ForEach(func(_, item gjson.Result) bool {
		details := item.Get("details")
		out = append(out, Object{
			ID:     details.Get("objectId").String(),
			Status: item.Get("status").String(),
			Name:   details.Get("content.fields.name").String(),
			URL:    details.Get("content.fields.url").String(),
		})
		return true
	})
	return out
}
