package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/wonny/tradable-universe/internal/contracts"
	"github.com/wonny/tradable-universe/internal/pipeline"
	"github.com/wonny/tradable-universe/internal/universe"
	"github.com/wonny/tradable-universe/pkg/logger"
	"github.com/wonny/tradable-universe/pkg/redis"
)

const dateLayout = "2006-01-02"

// UniverseHandler handles universe endpoints
type UniverseHandler struct {
	builders map[bool]*universe.Builder // market cap filter on/off
	criteria universe.Criteria
	repo     contracts.UniverseRepository
	cache    *redis.Cache
	timeout  time.Duration
	logger   *logger.Logger
}

// NewUniverseHandler creates a new universe handler.
// repo and cache may be nil; read endpoints then answer 503 and caching is skipped.
func NewUniverseHandler(
	loader pipeline.Loader,
	criteria universe.Criteria,
	repo contracts.UniverseRepository,
	cache *redis.Cache,
	timeout time.Duration,
	log *logger.Logger,
) (*UniverseHandler, error) {
	builders := make(map[bool]*universe.Builder, 2)
	for _, on := range []bool{false, true} {
		b, err := universe.NewBuilder(loader, criteria.WithMarketCapFilter(on), log)
		if err != nil {
			return nil, err
		}
		builders[on] = b
	}

	return &UniverseHandler{
		builders: builders,
		criteria: criteria,
		repo:     repo,
		cache:    cache,
		timeout:  timeout,
		logger:   log,
	}, nil
}

// GetLatest returns the most recent saved universe
// GET /api/universe
func (h *UniverseHandler) GetLatest(w http.ResponseWriter, r *http.Request) {
	if h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "Universe storage not configured")
		return
	}

	u, err := h.repo.GetLatestUniverse(r.Context())
	if err != nil {
		h.respondRepoError(w, err, "Failed to retrieve universe")
		return
	}

	respondJSON(w, http.StatusOK, u)
}

// GetByDate returns the saved universe for a session
// GET /api/universe/{date}
func (h *UniverseHandler) GetByDate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	date, err := time.Parse(dateLayout, mux.Vars(r)["date"])
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (YYYY-MM-DD)")
		return
	}
	if h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "Universe storage not configured")
		return
	}

	key := redis.UniverseKey(date.Format(dateLayout))
	if h.cache != nil {
		var cached contracts.Universe
		if found, err := h.cache.Get(ctx, key, &cached); err == nil && found {
			respondJSON(w, http.StatusOK, &cached)
			return
		}
	}

	u, err := h.repo.GetUniverseByDate(ctx, date)
	if err != nil {
		h.respondRepoError(w, err, "Failed to retrieve universe")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, u, redis.TTLMedium); err != nil {
			h.logger.WithError(err).Warn("Failed to cache universe")
		}
	}

	respondJSON(w, http.StatusOK, u)
}

// BuildRequest represents a universe build request
type BuildRequest struct {
	Date            string `json:"date"`                        // YYYY-MM-DD
	MarketCapFilter *bool  `json:"market_cap_filter,omitempty"` // nil: 설정값 사용
	Save            bool   `json:"save"`
}

// Build evaluates the universe for a session
// POST /api/universe/build
func (h *UniverseHandler) Build(w http.ResponseWriter, r *http.Request) {
	var req BuildRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid date format (YYYY-MM-DD)")
		return
	}
	if req.Save && h.repo == nil {
		respondError(w, http.StatusServiceUnavailable, "Universe storage not configured")
		return
	}

	marketCap := h.criteria.MarketCapFilter
	if req.MarketCapFilter != nil {
		marketCap = *req.MarketCapFilter
	}

	ctx := r.Context()
	if h.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.timeout)
		defer cancel()
	}

	u, err := h.builders[marketCap].Build(ctx, date)
	if err != nil {
		if errors.Is(err, pipeline.ErrNoSessions) {
			respondError(w, http.StatusUnprocessableEntity, "Not a trading session: "+req.Date)
			return
		}
		h.logger.WithError(err).WithField("date", req.Date).Error("Failed to build universe")
		respondError(w, http.StatusInternalServerError, "Failed to build universe")
		return
	}

	if req.Save {
		if err := h.repo.SaveUniverse(ctx, u); err != nil {
			h.logger.WithError(err).WithField("date", req.Date).Error("Failed to save universe")
			respondError(w, http.StatusInternalServerError, "Failed to save universe")
			return
		}
		if h.cache != nil {
			if err := h.cache.Delete(ctx, redis.UniverseKey(req.Date)); err != nil {
				h.logger.WithError(err).Warn("Failed to invalidate cached universe")
			}
		}
	}

	respondJSON(w, http.StatusOK, u)
}

// ExpressionResponse describes the composed filter
type ExpressionResponse struct {
	MarketCapFilter bool           `json:"market_cap_filter"`
	CriteriaHash    string         `json:"criteria_hash"`
	Stages          []string       `json:"stages"`
	Expression      *pipeline.Node `json:"expression"`
	Text            string         `json:"text"`
}

// GetExpression returns the filter expression tree
// GET /api/universe/expression?market_cap_filter=true
func (h *UniverseHandler) GetExpression(w http.ResponseWriter, r *http.Request) {
	marketCap := h.criteria.MarketCapFilter
	if v := r.URL.Query().Get("market_cap_filter"); v != "" {
		parsed, err := strconv.ParseBool(v)
		if err != nil {
			respondError(w, http.StatusBadRequest, "market_cap_filter must be a boolean")
			return
		}
		marketCap = parsed
	}

	b := h.builders[marketCap]
	hash, err := b.Criteria().Hash()
	if err != nil {
		respondError(w, http.StatusInternalServerError, "Failed to hash criteria")
		return
	}

	respondJSON(w, http.StatusOK, ExpressionResponse{
		MarketCapFilter: marketCap,
		CriteriaHash:    hash,
		Stages:          b.Criteria().Stages(),
		Expression:      pipeline.Describe(b.Filter()),
		Text:            pipeline.Render(b.Filter()),
	})
}

func (h *UniverseHandler) respondRepoError(w http.ResponseWriter, err error, message string) {
	if errors.Is(err, universe.ErrNotFound) {
		respondError(w, http.StatusNotFound, "Universe snapshot not found")
		return
	}
	h.logger.WithError(err).Error(message)
	respondError(w, http.StatusInternalServerError, message)
}
