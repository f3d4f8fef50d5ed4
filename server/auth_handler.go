package server

import (
	"net/http"
	"strings"

	"RapLab/logger"
	"RapLab/model"
)

// handleRegister creates a password account and signs it in.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("[Register] 解析请求体失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	resp, err := s.auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("[Register] 注册失败", logger.String("email", req.Email), logger.ErrorField(err))
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req model.CredentialsRequest
	if err := decodeJSON(w, r, &req); err != nil {
		logger.Warn("[Login] 解析请求体失败", logger.ErrorField(err))
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "email and password are required")
		return
	}

	resp, err := s.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		logger.Warn("[Login] 登录失败", logger.String("email", req.Email), logger.ErrorField(err))
		writeDomainError(w, r, err)
		return
	}
	logger.Info("[Login] 用户登录成功", logger.UserID(resp.User.ID))
	writeJSON(w, http.StatusOK, resp)
}

// handleGuest 匿名会话，每次调用创建一个新的访客账号
func (s *Server) handleGuest(w http.ResponseWriter, r *http.Request) {
	resp, err := s.auth.Guest(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, resp)
}
