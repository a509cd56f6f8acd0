package httpapi

import (
	"errors"
	"net/http"

	"github.com/clinicore/clinicauth"
	"github.com/gin-gonic/gin"
)

type handlers struct {
	engine *clinicauth.Engine
}

type loginRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Password   string `json:"password" binding:"required"`
}

type otpRequest struct {
	Identifier string `json:"identifier" binding:"required"`
	Channel    string `json:"channel"`
}

type otpVerifyRequest struct {
	Identifier        string                 `json:"identifier" binding:"required"`
	OTP               string                 `json:"otp" binding:"required"`
	MobileAppSettings *mobileAppSettingsBody `json:"mobileAppSettings"`
}

type mobileAppSettingsBody struct {
	Platform   string            `json:"platform"`
	FCMID      string            `json:"fcmId"`
	Version    string            `json:"version"`
	DeviceInfo map[string]string `json:"deviceInfo"`
	MetaData   map[string]string `json:"metaData"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken" binding:"required"`
}

type logoutRequest struct {
	UserID      string `json:"userId" binding:"required"`
	AccessToken string `json:"accessToken" binding:"required"`
}

type resetPasswordRequest struct {
	Identifier  string `json:"identifier" binding:"required"`
	OTP         string `json:"otp" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required"`
}

type changePasswordRequest struct {
	UserID          string `json:"userId" binding:"required"`
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword" binding:"required"`
}

type loginResponse struct {
	AccessToken   string    `json:"accessToken"`
	RefreshToken  string    `json:"refreshToken"`
	ExpiresIn     int64     `json:"expiresIn"`
	AppInstanceID string    `json:"appInstanceId,omitempty"`
	User          *userBody `json:"user"`
}

type userBody struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId,omitempty"`
	Username string   `json:"username,omitempty"`
	Email    string   `json:"email,omitempty"`
	Mobile   string   `json:"mobile,omitempty"`
	RoleIDs  []string `json:"roleIds,omitempty"`
}

func toLoginResponse(result *clinicauth.LoginResult) loginResponse {
	resp := loginResponse{
		AccessToken:   result.AccessToken,
		RefreshToken:  result.RefreshToken,
		ExpiresIn:     result.ExpiresIn,
		AppInstanceID: result.AppInstanceID,
	}
	if result.User != nil {
		resp.User = &userBody{
			ID:       result.User.ID,
			TenantID: result.User.TenantID,
			Username: result.User.Username,
			Email:    result.User.Email,
			Mobile:   result.User.Mobile,
			RoleIDs:  result.User.RoleIDs(),
		}
	}
	return resp
}

func (h *handlers) login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier and password are required"})
		return
	}

	result, err := h.engine.Login(c.Request.Context(), req.Identifier, req.Password)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLoginResponse(result))
}

func (h *handlers) generateOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}

	issue, err := h.engine.GenerateOTP(c.Request.Context(), req.Identifier, req.Channel)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "otpExpiry": issue.ExpiresIn})
}

func (h *handlers) resendOTP(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}

	issue, err := h.engine.ResendOTP(c.Request.Context(), req.Identifier, req.Channel)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "otpExpiry": issue.ExpiresIn})
}

func (h *handlers) verifyOTPAndLogin(c *gin.Context) {
	var req otpVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier and otp are required"})
		return
	}

	var settings *clinicauth.MobileAppSettings
	if req.MobileAppSettings != nil {
		settings = &clinicauth.MobileAppSettings{
			Platform:   req.MobileAppSettings.Platform,
			FCMID:      req.MobileAppSettings.FCMID,
			Version:    req.MobileAppSettings.Version,
			DeviceInfo: req.MobileAppSettings.DeviceInfo,
			MetaData:   req.MobileAppSettings.MetaData,
		}
	}

	result, err := h.engine.VerifyOTPAndLogin(c.Request.Context(), req.Identifier, req.OTP, settings)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, toLoginResponse(result))
}

func (h *handlers) refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "refreshToken is required"})
		return
	}

	result, err := h.engine.Refresh(c.Request.Context(), req.RefreshToken)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"accessToken":  result.AccessToken,
		"refreshToken": result.RefreshToken,
		"expiresIn":    result.ExpiresIn,
	})
}

func (h *handlers) logout(c *gin.Context) {
	var req logoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and accessToken are required"})
		return
	}

	if err := h.engine.Logout(c.Request.Context(), req.UserID, req.AccessToken); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

func (h *handlers) forgotPassword(c *gin.Context) {
	var req otpRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier is required"})
		return
	}

	issue, err := h.engine.ForgotPassword(c.Request.Context(), req.Identifier, req.Channel)
	if err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "otpExpiry": issue.ExpiresIn})
}

func (h *handlers) resetPassword(c *gin.Context) {
	var req resetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "identifier, otp, and newPassword are required"})
		return
	}

	if err := h.engine.ResetPassword(c.Request.Context(), req.Identifier, req.OTP, req.NewPassword); err != nil {
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password reset"})
}

func (h *handlers) changePassword(c *gin.Context) {
	var req changePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "userId and newPassword are required"})
		return
	}

	err := h.engine.ChangePassword(c.Request.Context(), req.UserID, req.CurrentPassword, req.NewPassword)
	if err != nil {
		// A wrong current password here is a user mistake, not an auth
		// failure; 400 keeps clients from auto-logging-out on it.
		if errors.Is(err, clinicauth.ErrInvalidCredentials) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		abortWithError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "password changed"})
}
