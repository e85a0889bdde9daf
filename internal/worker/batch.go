package worker

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/courtcrawl/internal/discover"
	"github.com/ppiankov/courtcrawl/internal/model"
)

// Looker defines the interface for looking up one case number
type Looker interface {
	LookupCase(ctx context.Context, key discover.CaseKey) ([]model.CaseRecord, error)
}

// LookupJob represents a case lookup job
type LookupJob struct {
	Key    discover.CaseKey
	Looker Looker
}

// Execute executes the lookup job
func (j *LookupJob) Execute(ctx context.Context) Result {
	records, err := j.Looker.LookupCase(ctx, j.Key)
	return &LookupResult{
		Key:     j.Key,
		Records: records,
		Error:   err,
	}
}

// LookupResult represents the result of a lookup job. One case number can
// match several defendants, so Records may hold more than one entry.
type LookupResult struct {
	Key     discover.CaseKey
	Records []model.CaseRecord
	Error   error
}

// GetError returns the error from the lookup result
func (r *LookupResult) GetError() error {
	return r.Error
}

// Summary counts the outcome of a batch
type Summary struct {
	Keys    int `json:"keys"`
	Found   int `json:"found"`
	Empty   int `json:"empty"`
	Failed  int `json:"failed"`
	Records int `json:"records"`
}

func (s *Summary) add(r *LookupResult) {
	s.Keys++
	switch {
	case r.Error != nil:
		s.Failed++
	case len(r.Records) == 0:
		s.Empty++
	default:
		s.Found++
		s.Records += len(r.Records)
	}
}

// BatchProcessor processes many case numbers concurrently
type BatchProcessor struct {
	looker      Looker
	concurrency int
	logger      *zap.Logger
}

// NewBatchProcessor creates a new batch processor
func NewBatchProcessor(looker Looker, concurrency int, logger *zap.Logger) *BatchProcessor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &BatchProcessor{
		looker:      looker,
		concurrency: concurrency,
		logger:      logger,
	}
}

// ProcessStream looks up every key received on keys until the channel is
// closed. emit is called once per result, never concurrently. A failed
// lookup is logged and counted; an emit error stops the batch.
func (b *BatchProcessor) ProcessStream(ctx context.Context, keys <-chan discover.CaseKey, emit func(*LookupResult) error) (Summary, error) {
	poolCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		summary Summary
		emitErr error
	)

	pool := NewPool(poolCtx, b.concurrency).OnResult(func(r Result) {
		res := r.(*LookupResult)
		summary.add(res)
		if res.Error != nil {
			b.logger.Warn("lookup failed", zap.String("case", res.Key.String()), zap.Error(res.Error))
		} else {
			b.logger.Debug("lookup done", zap.String("case", res.Key.String()), zap.Int("records", len(res.Records)))
		}
		if emitErr != nil || emit == nil {
			return
		}
		if err := emit(res); err != nil {
			emitErr = err
			cancel()
		}
	})
	pool.Start()

submit:
	for {
		select {
		case <-poolCtx.Done():
			break submit
		case key, ok := <-keys:
			if !ok {
				break submit
			}
			if !pool.Submit(&LookupJob{Key: key, Looker: b.looker}) {
				break submit
			}
		}
	}

	pool.Wait()

	if emitErr != nil {
		return summary, fmt.Errorf("emit: %w", emitErr)
	}
	return summary, ctx.Err()
}

// ProcessKeys looks up a fixed list of keys
func (b *BatchProcessor) ProcessKeys(ctx context.Context, keys []discover.CaseKey, emit func(*LookupResult) error) (Summary, error) {
	ch := make(chan discover.CaseKey, len(keys))
	for _, k := range keys {
		ch <- k
	}
	close(ch)

	return b.ProcessStream(ctx, ch, emit)
}

// ProcessFile reads case numbers from a file and looks them up concurrently
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string, emit func(*LookupResult) error) (Summary, error) {
	keys, err := ReadCaseKeysFromFile(filePath)
	if err != nil {
		return Summary{}, fmt.Errorf("read case numbers: %w", err)
	}

	return b.ProcessKeys(ctx, keys, emit)
}

// ReadCaseKeysFromFile reads case numbers from a file (one per line).
// Blank lines and # comments are skipped, duplicates are dropped.
func ReadCaseKeysFromFile(filePath string) ([]discover.CaseKey, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	var keys []discover.CaseKey
	seen := make(map[discover.CaseKey]bool)

	scanner := bufio.NewScanner(file)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		key, err := discover.ParseCaseKey(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}

		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan file: %w", err)
	}

	return keys, nil
}
