package models

import "encoding/json"

type ErrorResponse struct {
	Detail string `json:"detail"`
}

type HealthResponse struct {
	Status string `json:"status"`
}

// AnalyzeRequest carries the non-file form fields of an analyze call. The same
// struct binds a JSON body for clients that only send a dataframe URL.
type AnalyzeRequest struct {
	Queries      []string `json:"queries" form:"queries"`
	DataframeURL string   `json:"dataframe_url" form:"dataframe_url"`
	Base64File   string   `json:"base64_file" form:"base64_file"`
}

type ResultType string

const (
	ResultTypeText         ResultType = "text"
	ResultTypeGraph        ResultType = "graph"
	ResultTypeUploadFailed ResultType = "upload_failed"
	ResultTypeError        ResultType = "error"
)

// QueryResult is one entry of the analyze response. Which of Content, URL and
// Error is meaningful depends on Type.
type QueryResult struct {
	Type    ResultType
	Content string
	URL     string
	Error   string
	Query   string
	Cost    string
}

func TextResult(query, content, cost string) QueryResult {
	return QueryResult{Type: ResultTypeText, Content: content, Query: query, Cost: cost}
}

func GraphResult(query, url, cost string) QueryResult {
	return QueryResult{Type: ResultTypeGraph, URL: url, Query: query, Cost: cost}
}

func UploadFailedResult(query, errMsg, cost string) QueryResult {
	return QueryResult{Type: ResultTypeUploadFailed, Error: errMsg, Query: query, Cost: cost}
}

func ErrorResult(query, errMsg, cost string) QueryResult {
	return QueryResult{Type: ResultTypeError, Error: errMsg, Query: query, Cost: cost}
}

func (r QueryResult) MarshalJSON() ([]byte, error) {
	out := map[string]string{
		"type":  string(r.Type),
		"query": r.Query,
		"cost":  r.Cost,
	}
	switch r.Type {
	case ResultTypeText:
		out["content"] = r.Content
	case ResultTypeGraph:
		out["url"] = r.URL
	default:
		out["error"] = r.Error
	}
	return json.Marshal(out)
}

func (r *QueryResult) UnmarshalJSON(data []byte) error {
	var raw map[string]string
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*r = QueryResult{
		Type:    ResultType(raw["type"]),
		Content: raw["content"],
		URL:     raw["url"],
		Error:   raw["error"],
		Query:   raw["query"],
		Cost:    raw["cost"],
	}
	return nil
}
