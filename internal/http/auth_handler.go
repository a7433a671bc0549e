package httpapi

import (
	"errors"
	"net/http"

	"github.com/Kaiettt/iot-fall-detection/internal/account"

	"go.uber.org/zap"
)

// AuthHandler 注册 / 登录（非安全契约，仅维护用户名索引）
type AuthHandler struct {
	accounts *account.Service
	logger   *zap.Logger
}

func NewAuthHandler(accounts *account.Service, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, logger: logger}
}

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// POST /api/v1/auth/signup
func (h *AuthHandler) SignUp(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	user, err := h.accounts.SignUp(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrMissingFields) || errors.Is(err, account.ErrUserExists) {
			writeJSON(w, http.StatusOK, Fail(err.Error()))
			return
		}
		h.logger.Error("Sign-up failed", zap.Error(err))
		writeJSON(w, http.StatusOK, Fail("sign-up failed"))
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"userId":   user.UserID,
		"username": user.Username,
	}))
}

// POST /api/v1/auth/signin
func (h *AuthHandler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := readBodyJSON(r, maxBodyBytes, &req); err != nil {
		writeJSON(w, http.StatusOK, Fail("invalid body"))
		return
	}

	userID, err := h.accounts.SignIn(r.Context(), req.Email, req.Password)
	if err != nil {
		switch {
		case errors.Is(err, account.ErrMissingFields):
			writeJSON(w, http.StatusOK, Fail(err.Error()))
		case errors.Is(err, account.ErrUnknownUsername), errors.Is(err, account.ErrInvalidCredential):
			writeJSON(w, http.StatusOK, Fail("invalid email or password"))
		default:
			h.logger.Error("Sign-in failed", zap.Error(err))
			writeJSON(w, http.StatusOK, Fail("sign-in failed"))
		}
		return
	}

	writeJSON(w, http.StatusOK, Ok(map[string]any{
		"userId":   userID,
		"username": req.Email,
	}))
}
