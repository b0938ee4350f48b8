// Package integrity scans the durable store for invariant violations —
// orphaned context links, dangling project references, corrupted metadata,
// near-identical duplicate rows, constraint violations, and future-dated
// timestamps — and optionally repairs them in place.
package integrity

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/memoryd/memoryd/internal/model"
)

// store is the Record Repository surface the checker scans and repairs
// through. All repairs go through the Repository's public operations; the
// checker never touches the database directly.
type store interface {
	OrphanedContextLinks(ctx context.Context) ([]model.ContextLink, error)
	DeleteContextLink(ctx context.Context, id string) error
	DanglingProjectConversationIDs(ctx context.Context) ([]string, error)
	ClearProjectID(ctx context.Context, id string) error
	CorruptMetadataConversationIDs(ctx context.Context) ([]string, error)
	ResetMetadata(ctx context.Context, id string) error
	FutureTimestampConversationIDs(ctx context.Context, skew time.Duration) ([]string, error)
	ClampTimestamp(ctx context.Context, id string) error
	ConstraintViolationConversationIDs(ctx context.Context) ([]string, error)
	DeleteConversation(ctx context.Context, id string) error
	RecentConversations(ctx context.Context, limit int) ([]model.Conversation, error)
	Vacuum() error
}

// DuplicatePair names two rows whose contents are near-identical.
type DuplicatePair struct {
	KeptID     string  `json:"kept_id"`
	RemovedID  string  `json:"removed_id"` // removed only when auto-fix ran
	Similarity float64 `json:"similarity"`
}

// Report summarizes one integrity pass. Each Found count is what the scan
// detected; the matching Fixed count is what a repair pass corrected.
type Report struct {
	OrphanedLinksFound   int             `json:"orphaned_links_found"`
	OrphanedLinksFixed   int             `json:"orphaned_links_fixed"`
	DanglingProjectsFound int            `json:"dangling_projects_found"`
	DanglingProjectsFixed int            `json:"dangling_projects_fixed"`
	CorruptMetadataFound int             `json:"corrupt_metadata_found"`
	CorruptMetadataFixed int             `json:"corrupt_metadata_fixed"`
	FutureTimestampsFound int            `json:"future_timestamps_found"`
	FutureTimestampsFixed int            `json:"future_timestamps_fixed"`
	ConstraintViolationsFound int        `json:"constraint_violations_found"`
	ConstraintViolationsFixed int        `json:"constraint_violations_fixed"`
	DuplicatePairs       []DuplicatePair `json:"duplicate_pairs,omitempty"`
	DuplicatesFixed      int             `json:"duplicates_fixed"`
	CheckedAt            time.Time       `json:"checked_at"`
}

// Config bounds the checker.
type Config struct {
	// ClockSkew is the future-timestamp tolerance.
	ClockSkew time.Duration
	// DuplicateScanLimit caps how many recent rows the pairwise duplicate
	// scan covers.
	DuplicateScanLimit int
	// DuplicateThreshold is the token-Jaccard floor for flagging a pair.
	DuplicateThreshold float64
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	if c.ClockSkew == 0 {
		c.ClockSkew = 5 * time.Minute
	}
	if c.DuplicateScanLimit == 0 {
		c.DuplicateScanLimit = 500
	}
	if c.DuplicateThreshold == 0 {
		c.DuplicateThreshold = 0.95
	}
}

// Checker runs integrity passes over the durable store.
type Checker struct {
	store  store
	cfg    Config
	logger *zap.Logger
}

// New constructs a Checker.
func New(s store, cfg Config, logger *zap.Logger) *Checker {
	cfg.ApplyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Checker{store: s, cfg: cfg, logger: logger}
}

// Check scans every invariant. With autoFix, each violation is repaired as
// it is found; a repair failure is logged and counted as unfixed rather than
// aborting the pass.
func (c *Checker) Check(ctx context.Context, autoFix bool) (*Report, error) {
	report := &Report{CheckedAt: time.Now().UTC()}

	links, err := c.store.OrphanedContextLinks(ctx)
	if err != nil {
		return nil, err
	}
	report.OrphanedLinksFound = len(links)
	if autoFix {
		for _, link := range links {
			if err := c.store.DeleteContextLink(ctx, link.ID); err != nil {
				c.logger.Warn("removing orphaned link failed", zap.String("link_id", link.ID), zap.Error(err))
				continue
			}
			report.OrphanedLinksFixed++
		}
	}

	dangling, err := c.store.DanglingProjectConversationIDs(ctx)
	if err != nil {
		return nil, err
	}
	report.DanglingProjectsFound = len(dangling)
	if autoFix {
		for _, id := range dangling {
			if err := c.store.ClearProjectID(ctx, id); err != nil {
				c.logger.Warn("clearing dangling project reference failed", zap.String("conversation_id", id), zap.Error(err))
				continue
			}
			report.DanglingProjectsFixed++
		}
	}

	corrupt, err := c.store.CorruptMetadataConversationIDs(ctx)
	if err != nil {
		return nil, err
	}
	report.CorruptMetadataFound = len(corrupt)
	if autoFix {
		for _, id := range corrupt {
			if err := c.store.ResetMetadata(ctx, id); err != nil {
				c.logger.Warn("resetting corrupt metadata failed", zap.String("conversation_id", id), zap.Error(err))
				continue
			}
			report.CorruptMetadataFixed++
		}
	}

	future, err := c.store.FutureTimestampConversationIDs(ctx, c.cfg.ClockSkew)
	if err != nil {
		return nil, err
	}
	report.FutureTimestampsFound = len(future)
	if autoFix {
		for _, id := range future {
			if err := c.store.ClampTimestamp(ctx, id); err != nil {
				c.logger.Warn("clamping future timestamp failed", zap.String("conversation_id", id), zap.Error(err))
				continue
			}
			report.FutureTimestampsFixed++
		}
	}

	violations, err := c.store.ConstraintViolationConversationIDs(ctx)
	if err != nil {
		return nil, err
	}
	report.ConstraintViolationsFound = len(violations)
	if autoFix {
		for _, id := range violations {
			if err := c.store.DeleteConversation(ctx, id); err != nil {
				c.logger.Warn("removing constraint-violating row failed", zap.String("conversation_id", id), zap.Error(err))
				continue
			}
			report.ConstraintViolationsFixed++
		}
	}

	if err := c.scanDuplicates(ctx, report, autoFix); err != nil {
		return nil, err
	}

	return report, nil
}

// scanDuplicates flags near-identical row pairs by token-set Jaccard over a
// bounded window of recent rows. When fixing, the newer row of each pair is
// removed; its links are repaired by the delete itself.
func (c *Checker) scanDuplicates(ctx context.Context, report *Report, autoFix bool) error {
	convs, err := c.store.RecentConversations(ctx, c.cfg.DuplicateScanLimit)
	if err != nil {
		return err
	}

	tokens := make([]map[string]struct{}, len(convs))
	for i, conv := range convs {
		tokens[i] = tokenSet(conv.Content)
	}

	removed := make(map[string]bool)
	for i := 0; i < len(convs); i++ {
		if removed[convs[i].ID] {
			continue
		}
		for j := i + 1; j < len(convs); j++ {
			if removed[convs[j].ID] {
				continue
			}
			sim := jaccard(tokens[i], tokens[j])
			if sim < c.cfg.DuplicateThreshold {
				continue
			}
			// convs is newest-first: keep the older row, drop the newer.
			pair := DuplicatePair{KeptID: convs[j].ID, Similarity: sim}
			if autoFix {
				if err := c.store.DeleteConversation(ctx, convs[i].ID); err != nil {
					c.logger.Warn("removing duplicate row failed", zap.String("conversation_id", convs[i].ID), zap.Error(err))
				} else {
					pair.RemovedID = convs[i].ID
					removed[convs[i].ID] = true
					report.DuplicatesFixed++
				}
			} else {
				pair.RemovedID = convs[i].ID
			}
			report.DuplicatePairs = append(report.DuplicatePairs, pair)
			break
		}
	}
	return nil
}

// Vacuum compacts the underlying store.
func (c *Checker) Vacuum() error { return c.store.Vacuum() }

func tokenSet(content string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(content), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(f) >= 2 {
			set[f] = struct{}{}
		}
	}
	return set
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	inter := 0
	for t := range a {
		if _, ok := b[t]; ok {
			inter++
		}
	}
	union := len(a) + len(b) - inter
	if union == 0 {
		return 0
	}
	return float64(inter) / float64(union)
}
