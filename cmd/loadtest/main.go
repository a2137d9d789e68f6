package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/sanity-io/litter"
	"github.com/urfave/cli/v2"

	"github.com/jorgeLDmesa/pandas-ai-api/internal/models"
)

type outcome struct {
	id       int
	status   int
	duration time.Duration
	results  []models.QueryResult
	err      error
}

func main() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()

	app := &cli.App{
		Name:  "loadtest",
		Usage: "Fire concurrent analyze requests at a running server",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "server", Value: "http://localhost:8000", EnvVars: []string{"SERVER_URL"}},
			&cli.StringFlag{Name: "api-key", EnvVars: []string{"API_KEY"}},
			&cli.StringFlag{Name: "file", Usage: "Spreadsheet to upload (xlsx or csv)", Required: true},
			&cli.StringSliceFlag{Name: "query", Usage: "Query to ask, repeatable", Required: true},
			&cli.IntFlag{Name: "requests", Value: 10},
			&cli.BoolFlag{Name: "dump", Usage: "Dump every decoded response"},
		},
		Action: func(c *cli.Context) error {
			data, err := os.ReadFile(c.String("file"))
			if err != nil {
				return fmt.Errorf("failed to read file: %w", err)
			}
			return loadTest(c, data, logger)
		},
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("Load test failed")
	}
}

func loadTest(c *cli.Context, data []byte, logger zerolog.Logger) error {
	numRequests := c.Int("requests")
	serverURL := c.String("server")
	fileName := filepath.Base(c.String("file"))
	queries := c.StringSlice("query")

	var wg sync.WaitGroup
	outcomes := make(chan outcome, numRequests)
	start := time.Now()

	for i := 0; i < numRequests; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			outcomes <- send(id, serverURL, c.String("api-key"), fileName, data, queries)
		}(i)
	}

	wg.Wait()
	close(outcomes)

	failed := 0
	for o := range outcomes {
		event := logger.Info()
		if o.err != nil || o.status != http.StatusOK {
			failed++
			event = logger.Error().Err(o.err)
		}
		event.Int("request", o.id).Int("status", o.status).Int("results", len(o.results)).Dur("duration", o.duration).Msg("response")
		if c.Bool("dump") && o.results != nil {
			fmt.Println(litter.Sdump(o.results))
		}
	}

	logger.Info().Int("requests", numRequests).Int("failed", failed).Dur("total", time.Since(start)).Msg("Load test completed")
	return nil
}

func send(id int, serverURL, apiKey, fileName string, data []byte, queries []string) outcome {
	started := time.Now()
	o := outcome{id: id}

	body, contentType, err := buildForm(fileName, data, queries)
	if err != nil {
		o.err = err
		return o
	}

	req, err := http.NewRequest(http.MethodPost, serverURL+"/analyze", body)
	if err != nil {
		o.err = err
		return o
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("X-API-Key", apiKey)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		o.err = err
		return o
	}
	defer resp.Body.Close()

	o.status = resp.StatusCode
	o.duration = time.Since(started)

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		o.err = err
		return o
	}
	if resp.StatusCode != http.StatusOK {
		var e models.ErrorResponse
		if err := json.Unmarshal(payload, &e); err != nil || e.Detail == "" {
			o.err = fmt.Errorf("status %d: %.200s", resp.StatusCode, payload)
			return o
		}
		o.err = errors.New(e.Detail)
		return o
	}
	if err := json.Unmarshal(payload, &o.results); err != nil {
		o.err = fmt.Errorf("failed to decode response: %w", err)
	}
	return o
}

func buildForm(fileName string, data []byte, queries []string) (*bytes.Buffer, string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	for _, q := range queries {
		if err := writer.WriteField("queries", q); err != nil {
			return nil, "", fmt.Errorf("failed to write query field: %w", err)
		}
	}
	part, err := writer.CreateFormFile("file", fileName)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := part.Write(data); err != nil {
		return nil, "", fmt.Errorf("failed to write file part: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to close form: %w", err)
	}
	return &buf, writer.FormDataContentType(), nil
}
