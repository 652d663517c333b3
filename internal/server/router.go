package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/pulsemarkets/pulse/backend/internal/auth"
	"github.com/pulsemarkets/pulse/backend/internal/profile"
	"github.com/pulsemarkets/pulse/backend/internal/sessions"
	"go.uber.org/zap"
)

const subjectContextKey = "pulse_subject"

const maxAvatarUploadBytes = 5 << 20

var (
	errMissingVerifier        = errors.New("provider verifier dependency required")
	errMissingTokenManager    = errors.New("token manager dependency required")
	errMissingIdentityService = errors.New("identity service dependency required")
	errMissingProfileService  = errors.New("profile service dependency required")
	errInvalidAuthorization   = errors.New("authorization header missing or invalid")
)

// ProviderVerifier validates login ID tokens from the auth provider.
type ProviderVerifier interface {
	Verify(ctx context.Context, token string) (auth.ProviderClaims, error)
}

// BackendTokenManager issues and validates backend session tokens.
type BackendTokenManager interface {
	IssueToken(ctx context.Context, subject string) (string, int64, error)
	ValidateToken(token string) (string, error)
}

// IdentityResolver maps provider subjects to internal account ids.
type IdentityResolver interface {
	ResolveOrCreate(ctx context.Context, externalID string) (string, error)
}

// Dependencies wires the HTTP layer to the core services.
type Dependencies struct {
	Verifier        ProviderVerifier
	TokenManager    BackendTokenManager
	Identity        IdentityResolver
	Profiles        *profile.Service
	LoginRecorder   *sessions.Recorder
	OnboardingRules profile.OnboardingRules
	MediaDir        string
	Logger          *zap.Logger
}

// NewHTTPHandler assembles the gin router for the API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Verifier == nil {
		return nil, errMissingVerifier
	}
	if deps.TokenManager == nil {
		return nil, errMissingTokenManager
	}
	if deps.Identity == nil {
		return nil, errMissingIdentityService
	}
	if deps.Profiles == nil {
		return nil, errMissingProfileService
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	rules := deps.OnboardingRules
	if len(rules.RequiredFields) == 0 {
		rules = profile.DefaultOnboardingRules()
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	handler := &httpHandler{
		verifier: deps.Verifier,
		tokens:   deps.TokenManager,
		identity: deps.Identity,
		profiles: deps.Profiles,
		logins:   deps.LoginRecorder,
		rules:    rules,
		logger:   logger,
	}

	router.POST("/auth/login", handler.handleLogin)

	if deps.MediaDir != "" {
		router.Static("/media", deps.MediaDir)
	}

	protected := router.Group("/")
	protected.Use(handler.authorizeRequest)
	protected.GET("/profile", handler.handleGetProfile)
	protected.POST("/profile", handler.handleCreateProfile)
	protected.PATCH("/profile", handler.handleUpdateProfile)
	protected.POST("/profile/avatar", handler.handleUploadAvatar)

	return router, nil
}

type httpHandler struct {
	verifier ProviderVerifier
	tokens   BackendTokenManager
	identity IdentityResolver
	profiles *profile.Service
	logins   *sessions.Recorder
	rules    profile.OnboardingRules
	logger   *zap.Logger
}

type loginRequestPayload struct {
	IDToken string `json:"id_token"`
}

type loginResponsePayload struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int64  `json:"expires_in"`
	TokenType   string `json:"token_type"`
	Onboarded   bool   `json:"onboarded"`
}

func (h *httpHandler) handleLogin(c *gin.Context) {
	var request loginRequestPayload
	if err := c.ShouldBindJSON(&request); err != nil || strings.TrimSpace(request.IDToken) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	claims, err := h.verifier.Verify(c.Request.Context(), request.IDToken)
	if err != nil {
		h.logger.Warn("provider token verification failed", zap.Error(err))
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	internalID, err := h.identity.ResolveOrCreate(c.Request.Context(), claims.Subject)
	if err != nil {
		h.logger.Error("identity resolution failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
		return
	}

	onboarded := true
	if _, err := h.profiles.Get(c.Request.Context(), claims.Subject); err != nil {
		if errors.Is(err, profile.ErrProfileNotFound) {
			onboarded = false
		} else {
			h.logger.Error("profile lookup failed during login", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "login_failed"})
			return
		}
	}

	token, expiresIn, err := h.tokens.IssueToken(c.Request.Context(), claims.Subject)
	if err != nil {
		h.logger.Error("failed to issue backend token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "token_issue_failed"})
		return
	}

	if h.logins != nil {
		h.logins.RecordLogin(c.Request.Context(), internalID, c.ClientIP(), c.Request.UserAgent())
	}

	c.JSON(http.StatusOK, loginResponsePayload{
		AccessToken: token,
		ExpiresIn:   expiresIn,
		TokenType:   "Bearer",
		Onboarded:   onboarded,
	})
}

type profilePayload struct {
	ID                string            `json:"id"`
	Username          string            `json:"username"`
	DisplayName       string            `json:"display_name,omitempty"`
	Bio               string            `json:"bio,omitempty"`
	Location          string            `json:"location,omitempty"`
	AvatarURL         string            `json:"avatar_url,omitempty"`
	LinkedWallet      string            `json:"linked_wallet,omitempty"`
	SocialLinks       map[string]string `json:"social_links,omitempty"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
	UsernameChangedAt *time.Time        `json:"username_changed_at,omitempty"`
}

func toProfilePayload(record profile.Profile) profilePayload {
	return profilePayload{
		ID:                record.ID,
		Username:          record.Username,
		DisplayName:       record.DisplayName,
		Bio:               record.Bio,
		Location:          record.Location,
		AvatarURL:         record.AvatarURL,
		LinkedWallet:      record.LinkedWallet,
		SocialLinks:       record.SocialLinks,
		CreatedAt:         record.CreatedAt,
		UpdatedAt:         record.UpdatedAt,
		UsernameChangedAt: record.UsernameChangedAt,
	}
}

func (h *httpHandler) handleGetProfile(c *gin.Context) {
	subject := c.GetString(subjectContextKey)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	record, err := h.profiles.Get(c.Request.Context(), subject)
	if errors.Is(err, profile.ErrProfileNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
		return
	}
	if err != nil {
		h.logger.Error("profile fetch failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_fetch_failed"})
		return
	}

	c.JSON(http.StatusOK, toProfilePayload(record))
}

type createProfilePayload struct {
	Username     string `json:"username"`
	DisplayName  string `json:"display_name"`
	Bio          string `json:"bio"`
	Location     string `json:"location"`
	LinkedWallet string `json:"linked_wallet"`
}

func (h *httpHandler) handleCreateProfile(c *gin.Context) {
	subject := c.GetString(subjectContextKey)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request createProfilePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	fields := map[string]string{
		profile.FieldUsername:     request.Username,
		profile.FieldDisplayName:  request.DisplayName,
		profile.FieldBio:          request.Bio,
		profile.FieldLocation:     request.Location,
		profile.FieldLinkedWallet: request.LinkedWallet,
	}
	if fieldErrors := h.rules.ValidateOnboarding(fields); len(fieldErrors) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"errors": fieldErrorMap(fieldErrors)})
		return
	}

	record, err := h.profiles.Create(c.Request.Context(), subject, request.Username)
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	extras := profile.Update{}
	if request.DisplayName != "" {
		extras.DisplayName = &request.DisplayName
	}
	if request.Bio != "" {
		extras.Bio = &request.Bio
	}
	if request.Location != "" {
		extras.Location = &request.Location
	}
	if request.LinkedWallet != "" {
		extras.LinkedWallet = &request.LinkedWallet
	}
	if !extras.Empty() {
		record, err = h.profiles.Update(c.Request.Context(), subject, extras)
		if err != nil {
			h.writeProfileError(c, err)
			return
		}
	}

	c.JSON(http.StatusCreated, toProfilePayload(record))
}

type updateProfilePayload struct {
	Username     *string           `json:"username"`
	DisplayName  *string           `json:"display_name"`
	Bio          *string           `json:"bio"`
	Location     *string           `json:"location"`
	AvatarURL    *string           `json:"avatar_url"`
	LinkedWallet *string           `json:"linked_wallet"`
	SocialLinks  map[string]string `json:"social_links"`
}

func (h *httpHandler) handleUpdateProfile(c *gin.Context) {
	subject := c.GetString(subjectContextKey)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	var request updateProfilePayload
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}

	update := profile.Update{
		Username:     request.Username,
		DisplayName:  request.DisplayName,
		Bio:          request.Bio,
		Location:     request.Location,
		AvatarURL:    request.AvatarURL,
		LinkedWallet: request.LinkedWallet,
		SocialLinks:  request.SocialLinks,
	}

	record, err := h.profiles.Update(c.Request.Context(), subject, update)
	if err != nil {
		h.writeProfileError(c, err)
		return
	}

	c.JSON(http.StatusOK, toProfilePayload(record))
}

func (h *httpHandler) handleUploadAvatar(c *gin.Context) {
	subject := c.GetString(subjectContextKey)
	if subject == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if fileHeader.Size > maxAvatarUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar_too_large"})
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	defer file.Close()

	data, err := io.ReadAll(io.LimitReader(file, maxAvatarUploadBytes+1))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid_request"})
		return
	}
	if len(data) > maxAvatarUploadBytes {
		c.JSON(http.StatusBadRequest, gin.H{"error": "avatar_too_large"})
		return
	}

	extension := strings.TrimPrefix(filepath.Ext(fileHeader.Filename), ".")
	url, err := h.profiles.UploadAvatar(c.Request.Context(), subject, data, extension)
	if err != nil {
		switch {
		case errors.Is(err, profile.ErrUnsupportedAvatarType):
			c.JSON(http.StatusBadRequest, gin.H{"error": "unsupported_file_type"})
		case errors.Is(err, profile.ErrAvatarTooLarge):
			c.JSON(http.StatusBadRequest, gin.H{"error": "avatar_too_large"})
		default:
			h.logger.Error("avatar upload failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "upload_failed"})
		}
		return
	}

	c.JSON(http.StatusOK, gin.H{"url": url})
}

func (h *httpHandler) writeProfileError(c *gin.Context, err error) {
	var fieldError *profile.FieldError
	switch {
	case errors.Is(err, profile.ErrUsernameTaken):
		c.JSON(http.StatusConflict, gin.H{
			"error":  "username_taken",
			"errors": gin.H{profile.FieldUsername: "Username is already taken"},
		})
	case errors.Is(err, profile.ErrProfileExists):
		c.JSON(http.StatusConflict, gin.H{"error": "profile_exists"})
	case errors.Is(err, profile.ErrProfileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "profile_not_found"})
	case errors.As(err, &fieldError):
		c.JSON(http.StatusBadRequest, gin.H{
			"errors": gin.H{fieldError.Field: fieldError.Message},
		})
	default:
		h.logger.Error("profile operation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "profile_operation_failed"})
	}
}

func fieldErrorMap(fieldErrors []*profile.FieldError) map[string]string {
	messages := make(map[string]string, len(fieldErrors))
	for _, fieldError := range fieldErrors {
		if _, seen := messages[fieldError.Field]; !seen {
			messages[fieldError.Field] = fieldError.Message
		}
	}
	return messages
}

func (h *httpHandler) authorizeRequest(c *gin.Context) {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	if token == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": errInvalidAuthorization.Error()})
		return
	}
	subject, err := h.tokens.ValidateToken(token)
	if err != nil {
		h.logger.Warn("token validation failed", zap.Error(err))
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	c.Set(subjectContextKey, subject)
	c.Next()
}
