package server

import (
	"encoding/json"
	"io"
	"net/http"

	"openhowl/core/apperr"
	"openhowl/core/auth"
	"openhowl/logger"
)

// LoginRequest represents the login request body
type LoginRequest struct {
	Password string `json:"password"`
}

// LoginResponse carries the shared token unlocked by the password.
type LoginResponse struct {
	Token string    `json:"token"`
	Role  auth.Role `json:"role"`
}

// LoginHandler handles POST /auth/login
func (s *Server) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, 4096)).Decode(&req); err != nil {
		writeError(w, r, apperr.Wrap(apperr.BadRequest, err, "invalid request body"))
		return
	}

	token, role, ok := s.creds.Login(req.Password)
	if !ok {
		logger.Warn("[Login] 密码验证失败", logger.String("remote", r.RemoteAddr))
		writeError(w, r, apperr.New(apperr.Unauthorized, "invalid password"))
		return
	}

	logger.Info("[Login] 登录成功", logger.String("role", string(role)))
	writeJSON(w, http.StatusOK, LoginResponse{Token: token, Role: role})
}
