package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gorilla/mux"

	"github.com/smartdevs17/token-recycle/internal/models"
	"github.com/smartdevs17/token-recycle/internal/recycle"
	"github.com/smartdevs17/token-recycle/internal/reward"
	"github.com/smartdevs17/token-recycle/pkg/utils"
)

const maxRequestBody = 1 << 16

type createStationRequest struct {
	ID          string  `json:"id,omitempty"`
	Owner       string  `json:"owner"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
}

type disposeRequest struct {
	User              string      `json:"user"`
	SourceTokenType   string      `json:"source_token_type"`
	SourceAccount     string      `json:"source_account"`
	RewardTokenType   string      `json:"reward_token_type,omitempty"`
	UserRewardAccount string      `json:"user_reward_account"`
	ReserveAccount    string      `json:"reserve_account,omitempty"`
	Amount            json.Number `json:"amount"`
	Severity          json.Number `json:"severity"`
}

// Station Handlers

func (s *HTTPServer) createStationHandler(w http.ResponseWriter, r *http.Request) {
	var req createStationRequest
	if !s.decodeBody(w, r, &req) {
		return
	}

	owner, err := utils.ParseAddress("owner", req.Owner)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	params := recycle.StationParams{
		Owner:       owner,
		Name:        req.Name,
		Description: req.Description,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
	}
	if req.ID != "" {
		id, err := utils.ParseAddress("id", req.ID)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		params.ID = &id
	}

	station, err := s.registry.CreateStation(r.Context(), params)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, station)
}

func (s *HTTPServer) listStationsHandler(w http.ResponseWriter, r *http.Request) {
	filter := models.StationFilter{}
	var ok bool
	if filter.Limit, filter.Offset, ok = s.pagination(w, r); !ok {
		return
	}

	query := r.URL.Query()
	if raw := query.Get("owner"); raw != "" {
		owner, err := utils.ParseAddress("owner", raw)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		filter.Owner = &owner
	}
	if raw := query.Get("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid active flag", raw)
			return
		}
		filter.Active = &active
	}

	stations, err := s.registry.ListStations(r.Context(), filter)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stations": stations,
		"count":    len(stations),
	})
}

func (s *HTTPServer) getStationHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathAddress(w, r, "id")
	if !ok {
		return
	}

	station, err := s.registry.GetStation(r.Context(), id)
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	if wantsBinary(r) {
		data, err := models.EncodeStation(station)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, utils.ErrCodeInternal, "Failed to encode station", err.Error())
			return
		}
		s.writeBinary(w, data)
		return
	}
	s.writeJSON(w, http.StatusOK, station)
}

func (s *HTTPServer) nearbyStationsHandler(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	values := make(map[string]float64, 3)
	for _, key := range []string{"lat", "lon", "radius_km"} {
		v, err := strconv.ParseFloat(query.Get(key), 64)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid or missing query parameter", key)
			return
		}
		values[key] = v
	}
	limit, _, ok := s.pagination(w, r)
	if !ok {
		return
	}

	nearby, err := s.registry.NearbyStations(r.Context(), values["lat"], values["lon"], values["radius_km"], limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"stations": nearby,
		"count":    len(nearby),
	})
}

func (s *HTTPServer) stationActivityHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := s.pathAddress(w, r, "id")
	if !ok {
		return
	}
	limit, _, ok := s.pagination(w, r)
	if !ok {
		return
	}

	records, err := s.ledger.StationActivity(r.Context(), id, limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

// Disposal Handlers

func (s *HTTPServer) disposeHandler(w http.ResponseWriter, r *http.Request) {
	station, ok := s.pathAddress(w, r, "id")
	if !ok {
		return
	}

	var body disposeRequest
	if !s.decodeBody(w, r, &body) {
		return
	}

	// amount and severity are checked before any address, in ledger order
	amount, err := parseAmount(body.Amount)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	severity, err := parseSeverity(body.Severity)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	req := recycle.DisposeRequest{Station: station, Amount: amount, Severity: severity}

	required := []struct {
		field string
		value string
		dst   *common.Address
	}{
		{"user", body.User, &req.User},
		{"source_token_type", body.SourceTokenType, &req.SourceTokenType},
		{"source_account", body.SourceAccount, &req.SourceAccount},
		{"user_reward_account", body.UserRewardAccount, &req.UserRewardAccount},
	}
	for _, f := range required {
		addr, err := utils.ParseAddress(f.field, f.value)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		*f.dst = addr
	}

	optional := []struct {
		field string
		value string
		dst   *common.Address
	}{
		{"reward_token_type", body.RewardTokenType, &req.RewardTokenType},
		{"reserve_account", body.ReserveAccount, &req.ReserveAccount},
	}
	for _, f := range optional {
		if f.value == "" {
			continue
		}
		addr, err := utils.ParseAddress(f.field, f.value)
		if err != nil {
			s.writeAppError(w, err)
			return
		}
		*f.dst = addr
	}

	record, err := s.ledger.DisposeDeadCoin(r.Context(), req)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusCreated, record)
}

// Record Handlers

func (s *HTTPServer) getRecordHandler(w http.ResponseWriter, r *http.Request) {
	record, err := s.ledger.GetRecord(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}

	if wantsBinary(r) {
		s.writeBinary(w, models.EncodeRecord(record))
		return
	}
	s.writeJSON(w, http.StatusOK, record)
}

// User Handlers

func (s *HTTPServer) userRecordsHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}
	limit, offset, ok := s.pagination(w, r)
	if !ok {
		return
	}

	records, err := s.ledger.UserRecords(r.Context(), user, limit, offset)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"records": records,
		"count":   len(records),
	})
}

func (s *HTTPServer) userSummaryHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}

	summary, err := s.ledger.UserSummary(r.Context(), user)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, summary)
}

func (s *HTTPServer) claimXPHandler(w http.ResponseWriter, r *http.Request) {
	user, ok := s.pathAddress(w, r, "address")
	if !ok {
		return
	}

	if err := s.ledger.ClaimXP(r.Context(), user); err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message": "Experience redemption is not available yet; nothing was changed",
	})
}

// Operations Handlers

func (s *HTTPServer) listJournalsHandler(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := s.pagination(w, r)
	if !ok {
		return
	}

	var status *models.JournalStatus
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := models.JournalStatus(raw)
		status = &st
	}

	journals, err := s.ledger.Journals(r.Context(), status, limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"journals": journals,
		"count":    len(journals),
	})
}

func (s *HTTPServer) getJournalHandler(w http.ResponseWriter, r *http.Request) {
	detail, err := s.ledger.Journal(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, detail)
}

func (s *HTTPServer) reconciliationHandler(w http.ResponseWriter, r *http.Request) {
	limit, _, ok := s.pagination(w, r)
	if !ok {
		return
	}

	notes, err := s.ledger.ReconciliationNotes(r.Context(), limit)
	if err != nil {
		s.writeAppError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"entries": notes,
		"count":   len(notes),
	})
}

// Request helpers

func (s *HTTPServer) decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		s.writeError(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request body", err.Error())
		return false
	}
	return true
}

// parseAmount accepts a positive integer number of base units
func parseAmount(n json.Number) (uint64, error) {
	v, err := strconv.ParseUint(n.String(), 10, 64)
	if err != nil || v == 0 {
		return 0, utils.NewAppError(utils.ErrCodeInvalidAmount, "Amount must be a positive integer", "amount: "+n.String())
	}
	return v, nil
}

func parseSeverity(n json.Number) (uint8, error) {
	v, err := strconv.ParseInt(n.String(), 10, 64)
	if err != nil || v < int64(reward.MinSeverity) || v > int64(reward.MaxSeverity) {
		return 0, utils.NewAppError(utils.ErrCodeInvalidSeverity, "Severity must be between 1 and 100", "severity: "+n.String())
	}
	return uint8(v), nil
}

func (s *HTTPServer) pathAddress(w http.ResponseWriter, r *http.Request, name string) (common.Address, bool) {
	raw := mux.Vars(r)[name]
	if !common.IsHexAddress(raw) {
		s.writeError(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid address", name+": "+raw)
		return common.Address{}, false
	}
	return common.HexToAddress(raw), true
}

func (s *HTTPServer) pagination(w http.ResponseWriter, r *http.Request) (limit, offset int, ok bool) {
	query := r.URL.Query()
	for _, p := range []struct {
		name string
		dst  *int
	}{{"limit", &limit}, {"offset", &offset}} {
		raw := query.Get(p.name)
		if raw == "" {
			continue
		}
		v, err := strconv.Atoi(raw)
		if err != nil || v < 0 {
			s.writeError(w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid "+p.name, raw)
			return 0, 0, false
		}
		*p.dst = v
	}
	return limit, offset, true
}

func wantsBinary(r *http.Request) bool {
	return r.URL.Query().Get("format") == "binary"
}
