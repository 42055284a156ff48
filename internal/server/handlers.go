package server

import (
	"math"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"github.com/wolfeidau/orgd/internal/auth"
	"github.com/wolfeidau/orgd/internal/models"
	"github.com/wolfeidau/orgd/internal/tenant"
)

// LoginResponse is the body returned by POST /admin/login.
type LoginResponse struct {
	AccessToken      string    `json:"access_token"`
	TokenType        string    `json:"token_type"`
	AdminID          models.ID `json:"admin_id"`
	OrganizationName string    `json:"organization_name"`
	Email            string    `json:"email"`
	ExpiresIn        int64     `json:"expires_in"`
}

// MessageResponse is the body returned by update and delete.
type MessageResponse struct {
	Message string `json:"message"`
	Details any    `json:"details"`
}

// UpdateDetails describes what an update changed.
type UpdateDetails struct {
	OrganizationName string `json:"organization_name"`
	CollectionName   string `json:"collection_name"`
	NameChanged      bool   `json:"name_changed"`
	EmailUpdated     bool   `json:"email_updated"`
	PasswordUpdated  bool   `json:"password_updated"`
}

// DeleteDetails names what a delete removed.
type DeleteDetails struct {
	OrganizationName  string `json:"organization_name"`
	CollectionDeleted string `json:"collection_deleted"`
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req tenant.CreateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.service.Create(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	var req tenant.GetRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := s.service.Get(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, view)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req tenant.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.service.Login(r.Context(), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponse{
		AccessToken:      result.AccessToken,
		TokenType:        result.TokenType,
		AdminID:          result.AdminID,
		OrganizationName: result.OrganizationName,
		Email:            result.Email,
		ExpiresIn:        int64(math.Round(time.Until(result.ExpiresAt).Seconds())),
	})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req tenant.UpdateRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.service.Update(r.Context(), auth.IdentityFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	zerolog.Ctx(r.Context()).Info().
		Str("organization_name", result.OrganizationName).
		Bool("name_changed", result.NameChanged).
		Msg("Organization updated")

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: result.Message,
		Details: UpdateDetails{
			OrganizationName: result.OrganizationName,
			CollectionName:   result.CollectionName,
			NameChanged:      result.NameChanged,
			EmailUpdated:     result.EmailUpdated,
			PasswordUpdated:  result.PasswordUpdated,
		},
	})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	var req tenant.DeleteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	result, err := s.service.Delete(r.Context(), auth.IdentityFromContext(r.Context()), req)
	if err != nil {
		writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, MessageResponse{
		Message: result.Message,
		Details: DeleteDetails{
			OrganizationName:  result.OrganizationName,
			CollectionDeleted: result.CollectionDeleted,
		},
	})
}
