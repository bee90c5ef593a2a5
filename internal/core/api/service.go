// Package api provides the gRPC PolicyEngine service for policysmith.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/solatis/policysmith/internal/assembler"
	"github.com/solatis/policysmith/internal/clauses"
	"github.com/solatis/policysmith/internal/core/config"
	"github.com/solatis/policysmith/internal/core/db"
	"github.com/solatis/policysmith/internal/core/metrics"
	"github.com/solatis/policysmith/internal/rules"
	"github.com/solatis/policysmith/internal/types"
)

// Store is the persistence the service reads inputs from and records
// documents to. *db.Store satisfies it.
type Store interface {
	Rules(ctx context.Context, policyID string) ([]types.Rule, error)
	Clauses(ctx context.Context, policyKey string) ([]types.Clause, error)
	Template(ctx context.Context, policyKey string) (types.Template, error)
	SaveDocument(ctx context.Context, rec db.DocumentRecord) error
}

// PolicyEngineService implements PolicyEngineServer.
// Thin orchestration layer delegating to the engine packages and the store.
type PolicyEngineService struct {
	store        Store
	rulesEngine  *rules.Engine
	registry     *assembler.Registry
	extractor    clauses.Extractor
	metrics      *metrics.Collector
	logger       *slog.Logger
	cfg          *config.Config
	now          func() time.Time
	jsonlMutexes map[string]*sync.Mutex
	mutexLock    sync.Mutex
}

// NewPolicyEngineService creates the service. store and collector may be
// nil: without a store every request must carry its own inputs.
// Auto-creates the documents log directory if not exists.
func NewPolicyEngineService(store Store, cfg *config.Config, collector *metrics.Collector, logger *slog.Logger) (*PolicyEngineService, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}

	if err := os.MkdirAll(filepath.Join(cfg.DataDir, "documents"), 0755); err != nil {
		return nil, err
	}

	return &PolicyEngineService{
		store:        store,
		rulesEngine:  rules.NewEngine(),
		registry:     assembler.NewRegistry(),
		extractor:    clauses.Extractor{FirmAliases: cfg.Engine.FirmAliases},
		metrics:      collector,
		logger:       logger,
		cfg:          cfg,
		now:          time.Now,
		jsonlMutexes: make(map[string]*sync.Mutex),
	}, nil
}

// getJSONLMutex returns mutex for given filename, creating if not exists.
// Per-file mutex protects concurrent appends to the same daily JSONL file.
func (s *PolicyEngineService) getJSONLMutex(filename string) *sync.Mutex {
	s.mutexLock.Lock()
	defer s.mutexLock.Unlock()

	if _, ok := s.jsonlMutexes[filename]; !ok {
		s.jsonlMutexes[filename] = &sync.Mutex{}
	}
	return s.jsonlMutexes[filename]
}

// loadRules returns supplied when non-nil, otherwise the stored rules.
func (s *PolicyEngineService) loadRules(ctx context.Context, policyID string, supplied []types.Rule) ([]types.Rule, error) {
	rules := supplied
	if rules == nil && s.store != nil {
		stored, err := s.store.Rules(ctx, policyID)
		if err != nil {
			return nil, fmt.Errorf("failed to load rules for %s: %w", policyID, err)
		}
		rules = stored
	}
	if len(rules) > s.cfg.Engine.MaxRules {
		return nil, fmt.Errorf("%w: %d rules (max %d)", types.ErrTooManyRules, len(rules), s.cfg.Engine.MaxRules)
	}
	return rules, nil
}

// loadTemplate returns supplied when set, otherwise the stored template,
// otherwise the built-in template for policyKey.
func (s *PolicyEngineService) loadTemplate(ctx context.Context, policyKey string, supplied *types.Template) (types.Template, error) {
	if supplied != nil {
		return *supplied, nil
	}
	if s.store != nil {
		t, err := s.store.Template(ctx, policyKey)
		if err == nil {
			return t, nil
		}
		if !errors.Is(err, types.ErrTemplateNotFound) {
			return types.Template{}, fmt.Errorf("failed to load template for %s: %w", policyKey, err)
		}
	}
	if policyKey == assembler.ComplaintsPolicyKey {
		return assembler.ComplaintsTemplate(), nil
	}
	return types.Template{}, fmt.Errorf("%w: %s", types.ErrTemplateNotFound, policyKey)
}

// loadClauses returns supplied when non-nil, otherwise the stored library.
func (s *PolicyEngineService) loadClauses(ctx context.Context, policyKey string, supplied []types.Clause) ([]types.Clause, error) {
	if supplied != nil || s.store == nil {
		return supplied, nil
	}
	cs, err := s.store.Clauses(ctx, policyKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load clauses for %s: %w", policyKey, err)
	}
	return cs, nil
}
