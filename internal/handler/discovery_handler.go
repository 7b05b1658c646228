/*
 * Copyright (c) 2026 Francesco Biribo'
 *
 * Permission to use, copy, modify, and distribute this software for any purpose with or without fee is hereby granted, provided that the above copyright notice and this permission notice appear in all copies.
 *
 * THE SOFTWARE IS PROVIDED "AS IS" AND THE AUTHOR DISCLAIMS ALL WARRANTIES WITH REGARD TO THIS SOFTWARE INCLUDING ALL IMPLIED WARRANTIES OF MERCHANTABILITY AND FITNESS. IN NO EVENT SHALL THE AUTHOR BE LIABLE FOR ANY SPECIAL, DIRECT, INDIRECT, OR CONSEQUENTIAL DAMAGES OR ANY DAMAGES WHATSOEVER RESULTING FROM LOSS OF USE, DATA OR PROFITS, WHETHER IN AN ACTION OF CONTRACT, NEGLIGENCE OR OTHER TORTIOUS ACTION, ARISING OUT OF OR IN CONNECTION WITH THE USE OR PERFORMANCE OF THIS SOFTWARE.
 */

package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/InfamousVague/umbra/cluster/nlog"
	"github.com/InfamousVague/umbra/internal/apperr"
	"github.com/InfamousVague/umbra/internal/service"
	"github.com/gorilla/mux"
)

// DiscoveryHandler exposes the relay directory under /discovery
type DiscoveryHandler struct {
	discovery service.DiscoveryService
	logger    nlog.Logger
}

func NewDiscoveryHandler(discovery service.DiscoveryService, logger nlog.Logger) *DiscoveryHandler {
	return &DiscoveryHandler{discovery, logger}
}

// Routes mounts every discovery route on r
func (d *DiscoveryHandler) Routes(r *mux.Router) {
	r.HandleFunc("/status/{did}", d.Status).Methods("GET")
	r.HandleFunc("/settings", d.Settings).Methods("PUT", "POST")
	r.HandleFunc("/lookup", d.Lookup).Methods("POST")
	r.HandleFunc("/link", d.Link).Methods("POST")
	r.HandleFunc("/unlink", d.Unlink).Methods("POST")
	r.HandleFunc("/stats", d.Stats).Methods("GET")
	r.HandleFunc("/hash", d.Hash).Methods("POST")
	r.HandleFunc("/search", d.Search).Methods("GET")

	r.HandleFunc("/username/register", d.RegisterUsername).Methods("POST")
	r.HandleFunc("/username/change", d.RegisterUsername).Methods("POST")
	r.HandleFunc("/username/release", d.ReleaseUsername).Methods("POST")
	r.HandleFunc("/username/lookup", d.LookupUsername).Methods("GET")
	r.HandleFunc("/username/search", d.SearchUsernames).Methods("GET")
	r.HandleFunc("/username/{did}", d.Username).Methods("GET")

	r.HandleFunc("/oauth/state", d.CreateOAuthState).Methods("POST")
	r.HandleFunc("/oauth/callback", d.OAuthCallback).Methods("POST")
	r.HandleFunc("/profile/{state}", d.TakeProfile).Methods("GET")
}

func (d *DiscoveryHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := d.discovery.Status(mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type settingsRequest struct {
	Did          string `json:"did"`
	Discoverable bool   `json:"discoverable"`
}

func (d *DiscoveryHandler) Settings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := requireField("did", req.Did); err != nil {
		writeError(w, err)
		return
	}
	if err := d.discovery.SetDiscoverable(req.Did, req.Discoverable); err != nil {
		writeError(w, err)
		return
	}
	d.logf("Discoverability of %s set to %v", req.Did, req.Discoverable)
	writeJSON(w, http.StatusOK, req)
}

// lookupEntry carries either a raw platform id, hashed here, or a hash computed by the client
type lookupEntry struct {
	Platform string `json:"platform"`
	Id       string `json:"id,omitempty"`
	IdHash   string `json:"id_hash,omitempty"`
}

type lookupRequest struct {
	Lookups []lookupEntry `json:"lookups"`
}

func (d *DiscoveryHandler) Lookup(w http.ResponseWriter, r *http.Request) {
	var req lookupRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	hashed := make([]service.HashedLookup, 0, len(req.Lookups))
	for _, entry := range req.Lookups {
		hash := entry.IdHash
		if hash == "" {
			h, err := d.discovery.Hash(entry.Platform, entry.Id)
			if err != nil {
				writeError(w, err)
				return
			}
			hash = h
		}
		hashed = append(hashed, service.HashedLookup{Platform: entry.Platform, IdHash: hash})
	}

	results, err := d.discovery.Lookup(hashed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (d *DiscoveryHandler) Link(w http.ResponseWriter, r *http.Request) {
	var req service.AccountLink
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	account, err := d.discovery.Link(req)
	if err != nil {
		writeError(w, err)
		return
	}
	d.logf("Linked a %s account to %s", req.Platform, req.Did)
	writeJSON(w, http.StatusOK, account)
}

type unlinkRequest struct {
	Did      string `json:"did"`
	Platform string `json:"platform"`
}

func (d *DiscoveryHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	var req unlinkRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	removed, err := d.discovery.Unlink(req.Did, req.Platform)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"removed": removed})
}

func (d *DiscoveryHandler) Stats(w http.ResponseWriter, r *http.Request) {
	stats, err := d.discovery.Stats()
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

type hashRequest struct {
	Platform   string `json:"platform"`
	PlatformId string `json:"platform_id"`
}

func (d *DiscoveryHandler) Hash(w http.ResponseWriter, r *http.Request) {
	var req hashRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	hash, err := d.discovery.Hash(req.Platform, req.PlatformId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"platform": req.Platform, "id_hash": hash})
}

func (d *DiscoveryHandler) Search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := parseLimit(w, query.Get("limit"))
	if !ok {
		return
	}
	results, err := d.discovery.Search(query.Get("platform"), query.Get("q"), limit)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type usernameRequest struct {
	Did  string `json:"did"`
	Name string `json:"name,omitempty"`
}

func (d *DiscoveryHandler) RegisterUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if err := requireField("did", req.Did); err != nil {
		writeError(w, err)
		return
	}
	username, err := d.discovery.RegisterUsername(req.Did, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}
	d.logf("Username %s assigned to %s", username.Full(), req.Did)
	writeJSON(w, http.StatusOK, usernameBody(username.Did, username.Full()))
}

func (d *DiscoveryHandler) ReleaseUsername(w http.ResponseWriter, r *http.Request) {
	var req usernameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	released, err := d.discovery.ReleaseUsername(req.Did)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"released": released})
}

func (d *DiscoveryHandler) Username(w http.ResponseWriter, r *http.Request) {
	username, err := d.discovery.Username(mux.Vars(r)["did"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usernameBody(username.Did, username.Full()))
}

func (d *DiscoveryHandler) LookupUsername(w http.ResponseWriter, r *http.Request) {
	username, err := d.discovery.LookupUsername(r.URL.Query().Get("username"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usernameBody(username.Did, username.Full()))
}

func (d *DiscoveryHandler) SearchUsernames(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	limit, ok := parseLimit(w, query.Get("limit"))
	if !ok {
		return
	}
	found, err := d.discovery.SearchUsernames(query.Get("name"), limit)
	if err != nil {
		writeError(w, err)
		return
	}

	results := make([]map[string]string, 0, len(found))
	for _, u := range found {
		results = append(results, usernameBody(u.Did, u.Full()))
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

type oauthStateRequest struct {
	Platform        string `json:"platform"`
	Did             string `json:"did,omitempty"`
	ProfileImport   bool   `json:"profile_import,omitempty"`
	CommunityImport bool   `json:"community_import,omitempty"`
}

func (d *DiscoveryHandler) CreateOAuthState(w http.ResponseWriter, r *http.Request) {
	var req oauthStateRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, err := d.discovery.CreateOAuthState(req.Platform, req.Did, req.ProfileImport, req.CommunityImport)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type oauthCallbackRequest struct {
	State   string          `json:"state"`
	Profile json.RawMessage `json:"profile"`
}

// OAuthCallback is called by the collector that finished the platform flow.
// The state is consumed, the collected profile waits for the client to pick it up
func (d *DiscoveryHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	var req oauthCallbackRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	state, ok := d.discovery.ConsumeOAuthState(req.State)
	if !ok {
		writeError(w, apperr.New(apperr.EntityNotFound, "unknown or expired state"))
		return
	}
	d.discovery.StoreProfileResult(state.Nonce, req.Profile)
	writeJSON(w, http.StatusOK, state)
}

func (d *DiscoveryHandler) TakeProfile(w http.ResponseWriter, r *http.Request) {
	profile, ok := d.discovery.TakeProfileResult(mux.Vars(r)["state"])
	if !ok {
		writeError(w, apperr.New(apperr.EntityNotFound, "no profile for this state"))
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(profile)
}

func usernameBody(did, full string) map[string]string {
	return map[string]string{"did": did, "username": full}
}

// parseLimit reads an optional limit query parameter. On failure the response is already written
func parseLimit(w http.ResponseWriter, raw string) (int, bool) {
	if raw == "" {
		return 0, true
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		badRequest(w, "limit must be a non negative integer")
		return 0, false
	}
	return limit, true
}

func (d *DiscoveryHandler) logf(format string, v ...any) {
	if d.logger != nil {
		d.logger.Logf(format, v...)
	}
}
