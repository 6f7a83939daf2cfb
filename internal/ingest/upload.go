package ingest

import (
	"bufio"
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"

	"github.com/wisbric/feedbackapi/internal/queue"
	"github.com/wisbric/feedbackapi/internal/store"
)

// UploadOutcome is returned once a streamed upload completes.
type UploadOutcome struct {
	BatchID uuid.UUID
	JobID   uuid.UUID
	Outcome store.BatchOutcome
}

// rawRow is one row read off the wire before normalisation/dedup.
type rawRow struct {
	Body       string
	CustomerID *string
}

// UploadCSV streams a CSV file of feedback rows. Columns: body, customer_id
// (optional). It never buffers the whole file — rows are read and flushed
// in chunks of uploadChunkSize.
func (s *Service) UploadCSV(ctx context.Context, source string, r io.Reader) (*UploadOutcome, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("csv upload is empty")
		}
		return nil, fmt.Errorf("reading csv header: %w", err)
	}
	bodyCol, custCol := columnIndices(header)

	return s.processUpload(ctx, source, func() (rawRow, bool, error) {
		record, err := cr.Read()
		if err == io.EOF {
			return rawRow{}, false, nil
		}
		if err != nil {
			return rawRow{}, false, err
		}
		row := rawRow{}
		if bodyCol >= 0 && bodyCol < len(record) {
			row.Body = record[bodyCol]
		}
		if custCol >= 0 && custCol < len(record) && record[custCol] != "" {
			cust := record[custCol]
			row.CustomerID = &cust
		}
		return row, true, nil
	})
}

func columnIndices(header []string) (bodyCol, custCol int) {
	bodyCol, custCol = -1, -1
	for i, h := range header {
		switch h {
		case "body", "text", "feedback":
			bodyCol = i
		case "customer_id", "customer":
			custCol = i
		}
	}
	if bodyCol < 0 && len(header) > 0 {
		bodyCol = 0
	}
	return bodyCol, custCol
}

// jsonlRow is one line of a JSONL upload.
type jsonlRow struct {
	Body       string  `json:"body"`
	CustomerID *string `json:"customer_id"`
}

// UploadJSONL streams a newline-delimited JSON file of feedback rows. A
// line that fails to parse is counted as an error row rather than aborting
// the upload.
func (s *Service) UploadJSONL(ctx context.Context, source string, r io.Reader) (*UploadOutcome, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 10*1024*1024)

	var parseErrors int
	outcome, err := s.processUpload(ctx, source, func() (rawRow, bool, error) {
		for scanner.Scan() {
			line := scanner.Bytes()
			if len(line) == 0 {
				continue
			}
			var jr jsonlRow
			if err := json.Unmarshal(line, &jr); err != nil {
				parseErrors++
				continue
			}
			return rawRow{Body: jr.Body, CustomerID: jr.CustomerID}, true, nil
		}
		return rawRow{}, false, scanner.Err()
	})
	if err != nil {
		return nil, err
	}
	if outcome != nil {
		outcome.Outcome.Error += parseErrors
	}
	return outcome, nil
}

// nextRowFunc yields the next row; ok is false once the source is exhausted.
type nextRowFunc func() (rawRow, bool, error)

// processUpload drives the shared chunked-insert/dedup/language-filter
// pipeline used by both upload formats.
func (s *Service) processUpload(ctx context.Context, source string, next nextRowFunc) (*UploadOutcome, error) {
	batch, err := s.store.CreateBatch(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("creating batch: %w", err)
	}

	seen := make(map[string]struct{})
	var outcome store.BatchOutcome
	var pending []store.CreateFeedbackParams

	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		if _, err := s.store.CreateFeedbackBatched(ctx, &batch.ID, pending); err != nil {
			return fmt.Errorf("persisting chunk: %w", err)
		}
		pending = pending[:0]
		return nil
	}

	for {
		row, ok, err := next()
		if err != nil {
			return nil, fmt.Errorf("reading upload row: %w", err)
		}
		if !ok {
			break
		}

		normalized := store.Normalize(row.Body)
		if normalized == "" {
			outcome.Error++
			continue
		}

		if s.englishOnly && !detectEnglish(row.Body) {
			outcome.SkippedNonEnglish++
			continue
		}

		dedupKey := dedupKey(normalized, source, row.CustomerID)
		if _, dup := seen[dedupKey]; dup {
			outcome.Duplicate++
			continue
		}
		seen[dedupKey] = struct{}{}

		pending = append(pending, store.CreateFeedbackParams{
			Source:     source,
			CustomerID: row.CustomerID,
			Body:       row.Body,
		})
		outcome.Created++

		if len(pending) >= uploadChunkSize {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	jobID := uuid.New()
	if err := s.store.UpdateBatchOutcome(ctx, batch.ID, outcome, &jobID); err != nil {
		return nil, fmt.Errorf("recording batch outcome: %w", err)
	}

	payload, err := json.Marshal(queue.IngestPayload{BatchID: batch.ID})
	if err != nil {
		return nil, err
	}
	if _, err := s.queue.Enqueue(ctx, queue.Ingest, payload); err != nil {
		return nil, fmt.Errorf("enqueuing ingest job: %w", err)
	}

	return &UploadOutcome{BatchID: batch.ID, JobID: jobID, Outcome: outcome}, nil
}

func dedupKey(normalizedText, source string, customerID *string) string {
	if customerID == nil {
		return normalizedText + "\x00" + source + "\x00"
	}
	return normalizedText + "\x00" + source + "\x00" + *customerID
}
