// Package ingest splits bulk content into chunks and loads them as
// entries, synchronously for small inputs and in resumable batches for
// large ones.
package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/untoldecay/MnemoLog/internal/storage"
	"github.com/untoldecay/MnemoLog/internal/types"
)

const (
	// Inputs under both thresholds are ingested synchronously.
	syncMaxChars  = 5000
	syncMaxChunks = 20

	// Async inputs are stored inline in the task row; larger payloads must
	// be pre-chunked by the caller.
	maxInlineBytes = 900_000

	chunkMaxChars = 500
	batchSize     = 10

	topicMaxChars = 100
	defaultTopic  = "ingested"
	ingestedTag   = "ingested"

	inlinePrefix = "inline:"
)

var paragraphSplit = regexp.MustCompile(`\n{2,}`)

// Chunk splits content into paragraphs on blank lines, then greedily
// packs consecutive paragraphs into chunks of at most 500 characters.
// A single paragraph longer than the cap becomes its own chunk; it is
// never split.
func Chunk(content string) []string {
	paragraphs := paragraphSplit.Split(content, -1)
	var chunks []string
	var current strings.Builder
	for _, p := range paragraphs {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if current.Len() > 0 && current.Len()+2+len(p) > chunkMaxChars {
			chunks = append(chunks, current.String())
			current.Reset()
		}
		if current.Len() > 0 {
			current.WriteString("\n\n")
		}
		current.WriteString(p)
	}
	if current.Len() > 0 {
		chunks = append(chunks, current.String())
	}
	return chunks
}

// Result summarizes one ingestion call.
type Result struct {
	TaskID            string `json:"task_id"`
	Async             bool   `json:"async"`
	EntriesCreated    int    `json:"entries_created"`
	DuplicatesSkipped int    `json:"duplicates_skipped"`
	TotalChunks       int    `json:"total_chunks"`
}

// inlineBlob is the async task payload stored behind the inline: URI.
type inlineBlob struct {
	Content string  `json:"content"`
	Source  *string `json:"source,omitempty"`
}

// Batcher owns ingestion tasks. It assumes single-writer execution: no
// two batches for the same store run concurrently.
type Batcher struct {
	store  storage.Storage
	notify func(uris ...string)
}

// NewBatcher wires a batcher over the store. notify may be nil.
func NewBatcher(store storage.Storage, notify func(uris ...string)) *Batcher {
	if notify == nil {
		notify = func(...string) {}
	}
	return &Batcher{store: store, notify: notify}
}

// Ingest routes content to the sync or async path by size. Small inputs
// complete before returning; large ones return a pending task that
// ProcessBatch drains.
func (b *Batcher) Ingest(ctx context.Context, content string, source *string) (*Result, error) {
	if strings.TrimSpace(content) == "" {
		return nil, types.Validationf("content must not be empty")
	}

	chunks := Chunk(content)
	if len(content) <= syncMaxChars && len(chunks) <= syncMaxChunks {
		return b.ingestSync(ctx, chunks, source)
	}
	return b.enqueueAsync(ctx, content, source, len(chunks))
}

func (b *Batcher) ingestSync(ctx context.Context, chunks []string, source *string) (*Result, error) {
	task := &types.IngestionTask{
		Status:     types.TaskProcessing,
		InputURI:   "sync",
		TotalItems: len(chunks),
	}
	if err := b.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}

	res := &Result{TaskID: task.ID, TotalChunks: len(chunks)}
	for i, chunk := range chunks {
		created, err := b.ingestChunk(ctx, chunk, source, task.ID)
		if err != nil {
			msg := err.Error()
			_ = b.store.UpdateTask(ctx, task.ID, i, types.TaskFailed, &msg)
			return nil, err
		}
		if created {
			res.EntriesCreated++
		} else {
			res.DuplicatesSkipped++
		}
		if err := b.store.UpdateTask(ctx, task.ID, i+1, types.TaskProcessing, nil); err != nil {
			return nil, err
		}
	}
	if err := b.store.UpdateTask(ctx, task.ID, len(chunks), types.TaskCompleted, nil); err != nil {
		return nil, err
	}
	if len(chunks) > 0 {
		b.notify("tasks/" + task.ID)
	}
	return res, nil
}

func (b *Batcher) enqueueAsync(ctx context.Context, content string, source *string, totalChunks int) (*Result, error) {
	blob, err := json.Marshal(inlineBlob{Content: content, Source: source})
	if err != nil {
		return nil, fmt.Errorf("failed to encode ingestion payload: %w", err)
	}
	if len(blob) > maxInlineBytes {
		return nil, types.Validationf("content exceeds the %d byte inline limit; pre-chunk the input", maxInlineBytes)
	}

	task := &types.IngestionTask{
		Status:     types.TaskPending,
		InputURI:   inlinePrefix + string(blob),
		TotalItems: totalChunks,
	}
	if err := b.store.CreateTask(ctx, task); err != nil {
		return nil, err
	}
	return &Result{TaskID: task.ID, Async: true, TotalChunks: totalChunks}, nil
}

// ProcessBatch runs one batch of up to 10 chunks for an async task and
// reports how many chunks remain. Each chunk's counter advance commits
// before the next chunk starts, so a crashed batch resumes exactly where
// it stopped.
func (b *Batcher) ProcessBatch(ctx context.Context, taskID string) (remaining int, err error) {
	task, err := b.store.GetTask(ctx, taskID)
	if err != nil {
		return 0, err
	}
	if task.Status == types.TaskCompleted || task.Status == types.TaskFailed {
		return 0, nil
	}

	chunks, source, err := b.decodeTask(task)
	if err != nil {
		msg := err.Error()
		_ = b.store.UpdateTask(ctx, taskID, task.ProcessedItems, types.TaskFailed, &msg)
		return 0, err
	}

	start := task.ProcessedItems
	end := start + batchSize
	if end > len(chunks) {
		end = len(chunks)
	}

	processed := start
	for _, chunk := range chunks[start:end] {
		if _, err := b.ingestChunk(ctx, chunk, source, taskID); err != nil {
			msg := err.Error()
			_ = b.store.UpdateTask(ctx, taskID, processed, types.TaskFailed, &msg)
			return 0, err
		}
		processed++
		if err := b.store.UpdateTask(ctx, taskID, processed, types.TaskProcessing, nil); err != nil {
			return 0, err
		}
	}

	remaining = len(chunks) - processed
	if remaining == 0 {
		if err := b.store.UpdateTask(ctx, taskID, processed, types.TaskCompleted, nil); err != nil {
			return 0, err
		}
	}
	if processed > start {
		b.notify("tasks/" + taskID)
	}
	return remaining, nil
}

func (b *Batcher) decodeTask(task *types.IngestionTask) ([]string, *string, error) {
	if !strings.HasPrefix(task.InputURI, inlinePrefix) {
		return nil, nil, types.Internalf("task %s has unsupported input %q", task.ID, task.InputURI)
	}
	var blob inlineBlob
	if err := json.Unmarshal([]byte(strings.TrimPrefix(task.InputURI, inlinePrefix)), &blob); err != nil {
		return nil, nil, types.Internalf("task %s payload is unreadable: %v", task.ID, err)
	}
	return Chunk(blob.Content), blob.Source, nil
}

// ingestChunk writes one chunk as an entry unless an active entry already
// holds the exact content. Returns whether an entry was created.
func (b *Batcher) ingestChunk(ctx context.Context, chunk string, source *string, taskID string) (bool, error) {
	existing, err := b.store.FindEntryByContent(ctx, chunk)
	if err != nil {
		return false, err
	}
	if existing != nil {
		return false, nil
	}

	src := source
	if src == nil {
		src = types.StrPtr("ingestion:" + taskID)
	}
	entry := &types.Entry{
		Topic:   chunkTopic(chunk),
		Content: chunk,
		Tags:    []string{ingestedTag},
		Source:  src,
	}
	if err := b.store.CreateEntry(ctx, entry); err != nil {
		return false, err
	}
	return true, nil
}

// chunkTopic derives a topic from the chunk's first line, truncated to
// 100 characters.
func chunkTopic(chunk string) string {
	line := chunk
	if i := strings.IndexByte(chunk, '\n'); i >= 0 {
		line = chunk[:i]
	}
	line = strings.TrimSpace(line)
	if line == "" {
		return defaultTopic
	}
	if len(line) > topicMaxChars {
		line = line[:topicMaxChars]
	}
	return line
}
