// Package probe empirically determines model capabilities with synthetic
// API calls.
package probe

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/quarterwave/parley/internal/catalog"
	"github.com/quarterwave/parley/internal/llm"
	"github.com/quarterwave/parley/internal/models"
	openai "github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"
)

// DefaultProbeConcurrency caps how many models are probed at once per
// provider. Four probe calls run per model, so the effective request
// fan-out is four times this.
const DefaultProbeConcurrency = 8

// probeTimeout bounds a single capability probe call.
const probeTimeout = 90 * time.Second

// Prober runs capability probes and writes results back to the catalog.
type Prober struct {
	db          *gorm.DB
	concurrency int

	mu sync.Mutex // serializes incremental cache writes
}

// ProberOpts holds parameters for creating a Prober.
type ProberOpts struct {
	DB          *gorm.DB
	Concurrency int // defaults to DefaultProbeConcurrency
}

// NewProber creates a Prober.
func NewProber(opts ProberOpts) (*Prober, error) {
	if opts.DB == nil {
		return nil, fmt.Errorf("probe: db is required")
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultProbeConcurrency
	}
	return &Prober{db: opts.DB, concurrency: concurrency}, nil
}

// ProbeProvider probes every curated model of the provider. Each model's
// row is written back as soon as its four probes finish so polling clients
// see incremental progress; a final bulk write lands after all models.
func (p *Prober) ProbeProvider(ctx context.Context, client llm.Client, providerID string) error {
	entry, err := catalog.Get(p.db, providerID)
	if err != nil {
		return err
	}
	list, err := entry.Models()
	if err != nil {
		return err
	}

	probed := make([]models.ModelData, len(list))
	copy(probed, list)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.concurrency)
	for i := range probed {
		if probed[i].Source != models.SourceCurated {
			continue
		}
		i := i
		g.Go(func() error {
			p.probeModel(gctx, client, &probed[i])

			// Incremental visibility: write this model's row immediately.
			p.mu.Lock()
			err := catalog.UpdateModelCapabilities(p.db, providerID, probed[i])
			p.mu.Unlock()
			if err != nil {
				log.Printf("probe: incremental write %s/%s: %v", providerID, probed[i].ID, err)
			}
			return nil
		})
	}
	g.Wait()

	// Admin edits (blacklist toggles, manual adds) may land while a slow
	// batch runs. Re-read the cache and carry over only the probed
	// capability flags so the bulk write cannot revert them.
	p.mu.Lock()
	defer p.mu.Unlock()
	fresh, err := catalog.Get(p.db, providerID)
	if err != nil {
		return err
	}
	current, err := fresh.Models()
	if err != nil {
		return err
	}
	caps := make(map[string]models.ModelData, len(probed))
	for _, md := range probed {
		if md.Source == models.SourceCurated {
			caps[md.ID] = md
		}
	}
	for i := range current {
		md, ok := caps[current[i].ID]
		if !ok {
			continue
		}
		current[i].SupportsImageGeneration = md.SupportsImageGeneration
		current[i].SupportsTTS = md.SupportsTTS
		current[i].SupportsTranscription = md.SupportsTranscription
		current[i].SupportsFileUpload = md.SupportsFileUpload
	}
	if err := catalog.ReplaceModels(p.db, providerID, current); err != nil {
		return fmt.Errorf("probe: bulk write for %s: %w", providerID, err)
	}
	return nil
}

// probeModel runs the four capability probes concurrently and
// independently. A probe can only produce yes, no or unknown; no probe
// error or panic ever escapes.
func (p *Prober) probeModel(ctx context.Context, client llm.Client, md *models.ModelData) {
	var wg sync.WaitGroup
	run := func(target *models.Capability, probe func(context.Context) error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			*target = runProbe(ctx, probe)
		}()
	}

	run(&md.SupportsImageGeneration, func(ctx context.Context) error {
		_, err := client.GenerateImage(ctx, md.ID, "A plain blue circle on white.", "256x256")
		return err
	})
	run(&md.SupportsTTS, func(ctx context.Context) error {
		_, err := client.CreateSpeech(ctx, md.ID, "capability check")
		return err
	})
	run(&md.SupportsTranscription, func(ctx context.Context) error {
		_, err := client.Transcribe(ctx, md.ID, TinyWAV())
		return err
	})
	run(&md.SupportsFileUpload, func(ctx context.Context) error {
		return probeMultimodal(ctx, client, md.ID)
	})

	wg.Wait()
}

// runProbe executes one probe under a timeout and maps its outcome to a
// capability flag. Panics inside a probe degrade to unknown.
func runProbe(ctx context.Context, probe func(context.Context) error) (flag models.Capability) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("probe: recovered: %v", r)
			flag = models.CapUnknown
		}
	}()
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()
	return classify(probe(ctx))
}

// classify maps a probe call outcome to a tri-state flag: success means the
// model has the capability, a provider rejection means it does not, and
// anything else (transport faults, timeouts) stays unknown.
func classify(err error) models.Capability {
	if err == nil {
		return models.CapYes
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode >= 400 && apiErr.HTTPStatusCode < 500 {
		return models.CapNo
	}
	return models.CapUnknown
}

// probeMultimodal checks file/image input with a synthetic minimal image.
// The primary shape is an image URL part; when the provider reports that
// shape as structurally unsupported (distinct from the model lacking the
// capability), it retries once with the image inlined as a file part.
func probeMultimodal(ctx context.Context, client llm.Client, model string) error {
	png := TinyPNG()
	msg := llm.Message{
		Role: llm.RoleUser,
		Parts: []llm.Part{
			{Type: llm.PartText, Text: "Reply with the word: ok"},
			{Type: llm.PartImage, MimeType: "image/png", Data: png},
		},
	}
	err := drainProbeMessage(ctx, client, model, msg)
	if err == nil || !isStructuralRejection(err) {
		return err
	}

	// Alternate call surface: inline the bytes as a file part.
	msg.Parts[1] = llm.Part{
		Type:     llm.PartFile,
		FileName: "sample.png",
		MimeType: "image/png",
		Data:     png,
	}
	return drainProbeMessage(ctx, client, model, msg)
}

// drainProbeMessage sends one message and drains the stream to completion.
func drainProbeMessage(ctx context.Context, client llm.Client, model string, msg llm.Message) error {
	stream, err := client.SendMessage(ctx, model, []llm.Message{msg})
	if err != nil {
		return err
	}
	for range stream.Deltas() {
	}
	_, err = stream.FinalResult()
	return err
}

// isStructuralRejection distinguishes "this request shape is not accepted"
// from "this model lacks the capability".
func isStructuralRejection(err error) bool {
	var apiErr *openai.APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	msg := strings.ToLower(apiErr.Message)
	return strings.Contains(msg, "content type") ||
		strings.Contains(msg, "invalid content") ||
		strings.Contains(msg, "multi_content") ||
		strings.Contains(msg, "image_url")
}
