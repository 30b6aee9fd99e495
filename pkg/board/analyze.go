package board

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/ha1tch/moodcanvas/pkg/analysis"
	"github.com/ha1tch/moodcanvas/pkg/graph"
)

// ErrNotAnalyzable is returned when an image is analyzed for a node that
// is not a concept.
var ErrNotAnalyzable = errors.New("node is not an analysis concept")

// AnalyzeImage analyzes an image for one concept node and stores the
// result, or the failure, on the image. The result is attached by the ids
// given here even if connections change meanwhile; if the image has been
// removed the result is dropped.
func (b *Board) AnalyzeImage(ctx context.Context, imageID, nodeID string) error {
	if b.analyzer == nil {
		return analysis.ErrNoAnalyzer
	}

	b.mu.Lock()
	img, ok := b.g.Image(imageID)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: image %s", graph.ErrNotFound, imageID)
	}
	n, ok := b.g.Node(nodeID)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: node %s", graph.ErrNotFound, nodeID)
	}
	if !n.IsConcept() {
		b.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotAnalyzable, n.Name)
	}
	payload := analysis.Image{Base64: img.Base64, MimeType: img.MimeType}
	concept := n.Name
	b.g.SetImageLoading(imageID, nodeID)
	b.mu.Unlock()
	b.changed()

	log := b.log.With(zap.String("image_id", imageID), zap.String("node_id", nodeID), zap.String("concept", concept))
	log.Debug("image analysis started")
	start := time.Now()
	raw, err := b.analyzer.AnalyzeImage(ctx, payload, concept)

	b.mu.Lock()
	var stored bool
	if err != nil {
		stored = b.g.SetImageResult(imageID, nodeID, nil, err.Error())
	} else {
		stored = b.g.SetImageResult(imageID, nodeID, raw, "")
	}
	b.mu.Unlock()

	switch {
	case !stored:
		log.Info("image removed during analysis; result dropped")
	case err != nil:
		log.Warn("image analysis failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
	default:
		log.Info("image analysis finished", zap.Duration("duration", time.Since(start)))
	}
	b.changed()
	if err != nil {
		return fmt.Errorf("analyzing image %s for %s: %w", imageID, concept, err)
	}
	return nil
}

// AnalyzeItem extracts keywords for an item.
func (b *Board) AnalyzeItem(ctx context.Context, itemID string) error {
	if b.analyzer == nil {
		return analysis.ErrNoAnalyzer
	}

	b.mu.Lock()
	it, ok := b.g.Item(itemID)
	if !ok {
		b.mu.Unlock()
		return fmt.Errorf("%w: item %s", graph.ErrNotFound, itemID)
	}
	row := it.Clone().RawData
	b.g.SetItemAnalyzing(itemID)
	b.mu.Unlock()
	b.changed()

	log := b.log.With(zap.String("item_id", itemID))
	log.Debug("item analysis started")
	start := time.Now()
	res, err := b.analyzer.AnalyzeRow(ctx, row)

	b.mu.Lock()
	var stored bool
	if err != nil {
		stored = b.g.SetItemResult(itemID, nil, err.Error())
	} else {
		stored = b.g.SetItemResult(itemID, res, "")
	}
	b.mu.Unlock()

	switch {
	case !stored:
		log.Info("item removed during analysis; result dropped")
	case err != nil:
		log.Warn("item analysis failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
	default:
		log.Info("item analysis finished", zap.Duration("duration", time.Since(start)))
	}
	b.changed()
	if err != nil {
		return fmt.Errorf("analyzing item %s: %w", itemID, err)
	}
	return nil
}

type task struct {
	imageID, nodeID string // image analysis when imageID is set
	itemID          string
}

// Pending lists the analyses a board still needs: every image→concept
// edge with no stored result and no request in flight, and every item
// that has never been analyzed. Failed analyses are retried.
func (b *Board) pending() []task {
	b.mu.Lock()
	defer b.mu.Unlock()
	var tasks []task
	for _, e := range b.g.Edges.All() {
		if e.Source.Kind != graph.EntityImage {
			continue
		}
		img, ok := b.g.Image(e.Source.ID)
		if !ok {
			continue
		}
		n, ok := b.g.Node(e.Target.ID)
		if !ok || !n.IsConcept() {
			continue
		}
		r := img.Result(n.ID)
		if r != nil && (r.IsLoading || r.Analysis != nil) {
			continue
		}
		tasks = append(tasks, task{imageID: img.ID, nodeID: n.ID})
	}
	for _, it := range b.g.Items {
		if it.IsAnalyzing || it.Analyzed != nil {
			continue
		}
		tasks = append(tasks, task{itemID: it.ID})
	}
	return tasks
}

// PendingCount reports how many analyses AnalyzePending would run.
func (b *Board) PendingCount() int {
	return len(b.pending())
}

// AnalyzePending runs every pending analysis with bounded parallelism and
// waits for all of them. Each failure is stored on its entity; the
// returned error joins them all.
func (b *Board) AnalyzePending(ctx context.Context) error {
	if b.analyzer == nil {
		return analysis.ErrNoAnalyzer
	}
	tasks := b.pending()
	if len(tasks) == 0 {
		return nil
	}

	var (
		mu   sync.Mutex
		errs []error
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.concurrency)
	for _, t := range tasks {
		t := t
		g.Go(func() error {
			var err error
			if t.imageID != "" {
				err = b.AnalyzeImage(gctx, t.imageID, t.nodeID)
			} else {
				err = b.AnalyzeItem(gctx, t.itemID)
			}
			if err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			// failures are stored on the entity; the group keeps going
			return nil
		})
	}
	_ = g.Wait()
	return errors.Join(errs...)
}
