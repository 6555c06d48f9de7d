package rest

import (
	"cian-monitor-service/internal/contextkeys"
	"cian-monitor-service/internal/core/domain"
	"cian-monitor-service/internal/core/port"
	"cian-monitor-service/internal/core/port/usecases_port"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
)

const maxRequestBody = 1 << 16

type Handlers struct {
	runFetchUC   usecases_port.RunFetchUseCase
	gateUC       usecases_port.AdmissionGateUseCase
	listingsUC   usecases_port.GetListingsUseCase
	cleanupUC    usecases_port.CleanupListingsUseCase
	statisticsUC usecases_port.GetStatisticsUseCase
}

func NewHandlers(
	runFetchUC usecases_port.RunFetchUseCase,
	gateUC usecases_port.AdmissionGateUseCase,
	listingsUC usecases_port.GetListingsUseCase,
	cleanupUC usecases_port.CleanupListingsUseCase,
	statisticsUC usecases_port.GetStatisticsUseCase,
) *Handlers {
	return &Handlers{
		runFetchUC:   runFetchUC,
		gateUC:       gateUC,
		listingsUC:   listingsUC,
		cleanupUC:    cleanupUC,
		statisticsUC: statisticsUC,
	}
}

func (h *Handlers) HandleHealth(w http.ResponseWriter, _ *http.Request) {
	RespondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// HandleRunFetch запускает цикл поиска. Отказ гейта - 429 с Retry-After.
func (h *Handlers) HandleRunFetch(w http.ResponseWriter, r *http.Request) {
	logger := contextkeys.LoggerFromContext(r.Context()).WithFields(port.Fields{"component": "HandleRunFetch"})

	var req RunFetchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&req); err != nil {
		WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode, err := domain.ParseFetchMode(req.Mode)
	if err != nil {
		WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.runFetchUC.Execute(r.Context(), req.UserID, mode)
	if err != nil {
		switch {
		case errors.Is(err, domain.ErrInvalidUserID), errors.Is(err, domain.ErrInvalidMode):
			WriteJSONError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, domain.ErrProviderUnavailable):
			logger.Warn("Fetch failed on provider side", port.Fields{"error": err.Error()})
			WriteJSONError(w, http.StatusBadGateway, "offers provider unavailable, try again later")
		default:
			logger.Error("Fetch failed", err, nil)
			WriteJSONError(w, http.StatusInternalServerError, "internal error")
		}
		return
	}

	if result.Blocked {
		if secs := retryAfterSeconds(result.Admission); secs > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(secs))
		}
		RespondWithJSON(w, http.StatusTooManyRequests, toRunFetchResponse(result))
		return
	}

	RespondWithJSON(w, http.StatusOK, toRunFetchResponse(result))
}

func retryAfterSeconds(info domain.AdmissionInfo) int {
	wait := time.Duration(info.WaitHours)*time.Hour + time.Duration(info.WaitMinutes)*time.Minute
	return int(wait.Seconds())
}

func (h *Handlers) HandleUserAdmission(w http.ResponseWriter, r *http.Request) {
	userID := strings.TrimSpace(chi.URLParam(r, "userID"))

	stats, err := h.gateUC.UserStats(r.Context(), userID)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidUserID) {
			WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to read admission stats", err, port.Fields{"user_id": userID})
		WriteJSONError(w, http.StatusInternalServerError, "failed to read admission stats")
		return
	}

	RespondWithJSON(w, http.StatusOK, toUserAdmissionResponse(userID, stats))
}

func (h *Handlers) HandleGlobalAdmission(w http.ResponseWriter, r *http.Request) {
	stats, err := h.gateUC.GlobalStats(r.Context())
	if err != nil {
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to read global admission stats", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "failed to read admission stats")
		return
	}

	RespondWithJSON(w, http.StatusOK, GlobalAdmissionResponse{
		Enabled:       stats.Enabled,
		IntervalHours: stats.Interval.Hours(),
		TotalUsers:    stats.TotalUsers,
		TotalFetches:  stats.TotalFetches,
		FetchesToday:  stats.FetchesToday,
		LastFetchAt:   stats.LastFetchAt,
	})
}

func (h *Handlers) HandleResetAdmission(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")

	if err := h.gateUC.ResetUser(r.Context(), userID); err != nil {
		if errors.Is(err, domain.ErrInvalidUserID) {
			WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to reset admission", err, port.Fields{"user_id": userID})
		WriteJSONError(w, http.StatusInternalServerError, "failed to reset admission")
		return
	}

	contextkeys.LoggerFromContext(r.Context()).Info("Admission reset by admin", port.Fields{"user_id": userID})
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handlers) HandleCleanupListings(w http.ResponseWriter, r *http.Request) {
	days, err := queryInt(r, "older_than_days", 0)
	if err != nil || days <= 0 {
		WriteJSONError(w, http.StatusBadRequest, "older_than_days must be a positive integer")
		return
	}

	deleted, err := h.cleanupUC.Execute(r.Context(), days)
	if err != nil {
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to clean up listings", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "failed to clean up listings")
		return
	}

	RespondWithJSON(w, http.StatusOK, CleanupResponse{Deleted: deleted, OlderThanDays: days})
}

func (h *Handlers) HandleListListings(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil || limit < 0 {
		WriteJSONError(w, http.StatusBadRequest, "invalid limit value")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil || offset < 0 {
		WriteJSONError(w, http.StatusBadRequest, "invalid offset value")
		return
	}

	filter := domain.ListingsFilter{Limit: limit, Offset: offset, Source: r.URL.Query().Get("source")}
	listings, err := h.listingsUC.List(r.Context(), filter)
	if err != nil {
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to list listings", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "failed to list listings")
		return
	}

	items := make([]ListingResponse, 0, len(listings))
	for _, l := range listings {
		items = append(items, toListingResponse(l))
	}
	RespondWithJSON(w, http.StatusOK, ListingsResponse{Items: items, Limit: limit, Offset: offset})
}

func (h *Handlers) HandleGetListing(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	listing, err := h.listingsUC.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, domain.ErrListingNotFound) {
			WriteJSONError(w, http.StatusNotFound, "listing not found")
			return
		}
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to get listing", err, port.Fields{"listing_id": id})
		WriteJSONError(w, http.StatusInternalServerError, "failed to get listing")
		return
	}

	RespondWithJSON(w, http.StatusOK, toListingResponse(*listing))
}

func (h *Handlers) HandleStatistics(w http.ResponseWriter, r *http.Request) {
	stats, err := h.statisticsUC.Execute(r.Context())
	if err != nil {
		contextkeys.LoggerFromContext(r.Context()).Error("Failed to read statistics", err, nil)
		WriteJSONError(w, http.StatusInternalServerError, "failed to read statistics")
		return
	}

	bySource := stats.BySource
	if bySource == nil {
		bySource = map[string]int64{}
	}
	RespondWithJSON(w, http.StatusOK, StatisticsResponse{
		TotalListings:     stats.TotalListings,
		AvgPrice:          stats.AvgPrice,
		MinPrice:          stats.MinPrice,
		MaxPrice:          stats.MaxPrice,
		BySource:          bySource,
		SessionsTotal:     stats.SessionsTotal,
		SessionsCompleted: stats.SessionsCompleted,
	})
}
