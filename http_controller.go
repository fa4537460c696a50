package identity

import (
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
)

// API acknowledgement messages
const (
	MsgRegistered       = "User registered successfully. Please check your email for verification."
	MsgLoggedOut        = "Successfully logged out"
	MsgResetSent        = "If an account with that email exists, you will receive password reset instructions."
	MsgVerificationSent = "If an account with that email exists and is unverified, a verification email has been sent."
	MsgPasswordReset    = "Password reset successfully"
	MsgEmailVerified    = "Email verified successfully"
	MsgAccountGone      = "Account deleted successfully"
)

// RegisterAuthRoutes mounts the full account surface on the router
func RegisterAuthRoutes[T any](app router.Router[T], opts ...AuthControllerOption) {
	c := NewAuthController(opts...)

	authLimit := c.HTTP.RateLimit(c.authLimiter, "auth")
	resetLimit := c.HTTP.RateLimit(c.resetLimiter, "password-reset")
	defLimit := c.HTTP.RateLimit(c.defaultLimiter, "default")

	protected := c.HTTP.ProtectedRoute(nil)
	verified := c.HTTP.RequireVerified()
	admin := c.HTTP.RequireRole(RoleAdmin)

	app.Post("/auth/register", c.Register, authLimit).SetName("auth.register")
	app.Post("/auth/login", c.Login, authLimit).SetName("auth.login")
	app.Post("/auth/refresh", c.Refresh, authLimit).SetName("auth.refresh")
	app.Post("/auth/logout", c.Logout, defLimit).SetName("auth.logout")

	app.Post("/auth/verify-email", c.VerifyEmail, defLimit).SetName("auth.verify-email")
	app.Post("/auth/resend-verification", c.ResendVerification, resetLimit).SetName("auth.resend-verification")
	app.Post("/auth/forgot-password", c.ForgotPassword, resetLimit).SetName("auth.forgot-password")
	app.Post("/auth/reset-password", c.ResetPassword, resetLimit).SetName("auth.reset-password")

	app.Get("/users/me", c.ProfileShow, defLimit, protected).SetName("users.me.get")
	app.Patch("/users/me", c.ProfileUpdate, defLimit, protected).SetName("users.me.patch")
	app.Post("/users/me/change-password", c.ChangePassword, defLimit, protected).SetName("users.me.change-password")
	app.Delete("/users/me", c.DeleteAccount, defLimit, protected).SetName("users.me.delete")

	app.Get("/admin/users", c.AdminListUsers, defLimit, protected, verified, admin).SetName("admin.users.list")
	app.Get("/admin/users/stats", c.AdminUserStats, defLimit, protected, verified, admin).SetName("admin.users.stats")
	app.Get("/admin/users/:id", c.AdminShowUser, defLimit, protected, verified, admin).SetName("admin.users.get")
	app.Patch("/admin/users/:id", c.AdminUpdateUser, defLimit, protected, verified, admin).SetName("admin.users.patch")
	app.Delete("/admin/users/:id", c.AdminDeleteUser, defLimit, protected, verified, admin).SetName("admin.users.delete")
}

// AuthController serves the JSON account API
type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auther   Authenticator
	HTTP     *RouteAuthenticator
	Notifier Notifier
	Hasher   PasswordAuthenticator

	authLimiter    *RateLimiter
	resetLimiter   *RateLimiter
	defaultLimiter *RateLimiter
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:         defLogger{},
		Notifier:       PrintNotifier{},
		Hasher:         NewHasher(DefaultBcryptCost),
		authLimiter:    NewRateLimiter(RateLimitAuth),
		resetLimiter:   NewRateLimiter(RateLimitPasswordReset),
		defaultLimiter: NewRateLimiter(RateLimitDefault),
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.HTTP == nil {
		panic("Missing HTTP middleware in auth controller...")
	}

	return c
}

func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

func WithControllerRepo(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

func WithControllerAuthenticator(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

func WithControllerHTTP(http *RouteAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.HTTP = http
		return c
	}
}

func WithControllerNotifier(n Notifier) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if n != nil {
			c.Notifier = n
		}
		return c
	}
}

func WithControllerHasher(h PasswordAuthenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if h != nil {
			c.Hasher = h
		}
		return c
	}
}

func WithControllerDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// RegistrationPayload is the register request body
type RegistrationPayload struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
	Password  string `json:"password"`
}

// Validate will run validation rules
func (r RegistrationPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, validation.Length(3, 100), is.Email),
		validation.Field(&r.Username, UsernameRules()...),
		validation.Field(&r.Password, PasswordRules()...),
		validation.Field(&r.FirstName, validation.Length(0, 200)),
		validation.Field(&r.LastName, validation.Length(0, 200)),
		validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)),
	)
}

func (a *AuthController) Register(ctx router.Context) error {
	payload := new(RegistrationPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	if a.Debug {
		a.Logger.Debug("register payload", "payload", print.MaybePrettyJSON(payload))
	}

	var user *User
	msg := RegisterUserMessage{
		FirstName:  payload.FirstName,
		LastName:   payload.LastName,
		Username:   payload.Username,
		Email:      payload.Email,
		Phone:      payload.Phone,
		Password:   payload.Password,
		OnResponse: func(u *User) { user = u },
	}

	handler := NewRegisterUserHandler(a.Repo, a.Hasher, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		a.Logger.Error("register user failed", "error", err)
		return RenderError(ctx, err)
	}

	body := map[string]any{
		"message": MsgRegistered,
	}
	if user != nil {
		body["user"] = user
	}

	return ctx.JSON(router.StatusCreated, body)
}

// LoginPayload is the login request body
type LoginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
		validation.Field(&r.Password, validation.Required),
	)
}

func (a *AuthController) Login(ctx router.Context) error {
	payload := new(LoginPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	pair, err := a.Auther.Login(ctx.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Info("login rejected", "email", payload.Email)
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// RefreshPayload is the refresh request body
type RefreshPayload struct {
	RefreshToken string `json:"refresh_token"`
}

// Validate will run validation rules
func (r RefreshPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.RefreshToken, validation.Required),
	)
}

func (a *AuthController) Refresh(ctx router.Context) error {
	payload := new(RefreshPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	pair, err := a.Auther.Refresh(ctx.Context(), payload.RefreshToken)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, pair)
}

// Logout never fails. A garbage token is already unusable, which is all
// the endpoint promises.
func (a *AuthController) Logout(ctx router.Context) error {
	raw, err := ExtractRawToken(ctx, "")
	if err == nil {
		a.Auther.Logout(ctx.Context(), raw)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgLoggedOut,
	})
}

// VerifyEmailPayload carries the opaque verification token
type VerifyEmailPayload struct {
	Token string `json:"token"`
}

// Validate will run validation rules
func (r VerifyEmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
	)
}

func (a *AuthController) VerifyEmail(ctx router.Context) error {
	payload := new(VerifyEmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	handler := NewVerifyEmailHandler(a.Repo).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), VerifyEmailMessage{Token: payload.Token}); err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgEmailVerified,
	})
}

// EmailPayload carries a bare email address
type EmailPayload struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r EmailPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Email, validation.Required, is.Email),
	)
}

func (a *AuthController) ResendVerification(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	handler := NewResendVerificationHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), ResendVerificationMessage{Email: payload.Email}); err != nil {
		// the ack never betrays whether the account exists or is
		// already verified
		a.Logger.Debug("resend verification skipped", "error", err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgVerificationSent,
	})
}

// ForgotPassword acknowledges identically whether or not the email
// matches an account.
func (a *AuthController) ForgotPassword(ctx router.Context) error {
	payload := new(EmailPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	handler := NewInitializePasswordResetHandler(a.Repo, a.Notifier).WithLogger(a.Logger)
	if err := handler.Execute(ctx.Context(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		// internal failures are logged but the response shape never
		// betrays whether the account exists
		a.Logger.Error("password reset initialization failed", "error", err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgResetSent,
	})
}

// ResetPasswordPayload finalizes a password reset
type ResetPasswordPayload struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Token, validation.Required),
		validation.Field(&r.Password, PasswordRules()...),
	)
}

func (a *AuthController) ResetPassword(ctx router.Context) error {
	payload := new(ResetPasswordPayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	handler := NewFinalizePasswordResetHandler(a.Repo, a.Hasher).WithLogger(a.Logger)
	msg := FinalizePasswordResetMessage{Token: payload.Token, Password: payload.Password}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgPasswordReset,
	})
}

func (a *AuthController) ProfileShow(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// ProfileUpdatePayload is the self-service subset of UserPatch, role and
// verification state are admin-only.
type ProfileUpdatePayload struct {
	Email     *string `json:"email,omitempty"`
	Username  *string `json:"username,omitempty"`
	FirstName *string `json:"first_name,omitempty"`
	LastName  *string `json:"last_name,omitempty"`
	Phone     *string `json:"phone,omitempty"`
	AvatarURL *string `json:"avatar_url,omitempty"`
}

// Validate will run validation rules
func (r ProfileUpdatePayload) Validate() error {
	fields := []*validation.FieldRules{}

	if r.Email != nil {
		fields = append(fields, validation.Field(&r.Email, is.Email))
	}
	if r.Username != nil {
		fields = append(fields, validation.Field(&r.Username, UsernameRules()...))
	}
	if r.Phone != nil {
		fields = append(fields, validation.Field(&r.Phone, validation.By(ValidatePhoneNumber)))
	}

	return validation.ValidateStruct(&r, fields...)
}

func (r ProfileUpdatePayload) patch() UserPatch {
	return UserPatch{
		Email:     r.Email,
		Username:  r.Username,
		FirstName: r.FirstName,
		LastName:  r.LastName,
		Phone:     r.Phone,
		AvatarURL: r.AvatarURL,
	}
}

func (a *AuthController) ProfileUpdate(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.HTTP.contextKey())
	if !ok {
		return RenderError(ctx, ErrUnableToMapClaims)
	}

	payload := new(ProfileUpdatePayload)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	user, err := PatchUser(ctx.Context(), a.Repo, claims.UserID(), payload.patch())
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// ChangePasswordPayload verifies the current password before applying
// the new one
type ChangePasswordPayload struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

// Validate will run validation rules
func (r ChangePasswordPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CurrentPassword, validation.Required),
		validation.Field(&r.NewPassword, PasswordRules()...),
	)
}

func (a *AuthController) ChangePassword(ctx router.Context) error {
	claims, ok := GetRouterClaims(ctx, a.HTTP.contextKey())
	if !ok {
		return RenderError(ctx, ErrUnableToMapClaims)
	}

	userID, err := uuid.Parse(claims.UserID())
	if err != nil {
		return RenderError(ctx, ErrUnableToMapClaims)
	}

	payload := new(ChangePasswordPayload)
	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	handler := NewChangePasswordHandler(a.Repo, a.Hasher).WithLogger(a.Logger)
	msg := ChangePasswordMessage{
		UserID:          userID,
		CurrentPassword: payload.CurrentPassword,
		NewPassword:     payload.NewPassword,
	}
	if err := handler.Execute(ctx.Context(), msg); err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": "Password changed successfully",
	})
}

func (a *AuthController) DeleteAccount(ctx router.Context) error {
	user, err := a.currentUser(ctx)
	if err != nil {
		return RenderError(ctx, err)
	}

	if err := a.Repo.Users().Remove(ctx.Context(), user.ID); err != nil {
		return RenderError(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to delete account"))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgAccountGone,
	})
}

func (a *AuthController) AdminListUsers(ctx router.Context) error {
	filter := UserFilter{
		Search: ctx.Query("search", ""),
		Role:   UserRole(ctx.Query("role", "")),
	}

	if v := ctx.Query("verified", ""); v != "" {
		verified := v == "true" || v == "1"
		filter.Verified = &verified
	}

	page, _ := strconv.Atoi(ctx.Query("page", "1"))
	if page < 1 {
		page = 1
	}
	pageSize, _ := strconv.Atoi(ctx.Query("page_size", "20"))
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	filter.Offset = (page - 1) * pageSize
	filter.Limit = pageSize

	users, total, err := a.Repo.Users().List(ctx.Context(), filter)
	if err != nil {
		return RenderError(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to list users"))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"users":     users,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func (a *AuthController) AdminUserStats(ctx router.Context) error {
	stats, err := a.Repo.Users().Stats(ctx.Context())
	if err != nil {
		return RenderError(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to compute user stats"))
	}

	return ctx.JSON(router.StatusOK, stats)
}

func (a *AuthController) AdminShowUser(ctx router.Context) error {
	user, err := a.userByParam(ctx)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

// AdminUpdatePayload exposes the full patch surface including role and
// verification state
type AdminUpdatePayload struct {
	ProfileUpdatePayload
	Role       *UserRole `json:"role,omitempty"`
	IsVerified *bool     `json:"is_verified,omitempty"`
}

// Validate will run validation rules
func (r AdminUpdatePayload) Validate() error {
	if err := r.ProfileUpdatePayload.Validate(); err != nil {
		return err
	}

	if r.Role != nil && !r.Role.IsValid() {
		return validation.Errors{
			"role": errors.New("must be one of: user, admin", errors.CategoryValidation),
		}
	}

	return nil
}

func (a *AuthController) AdminUpdateUser(ctx router.Context) error {
	payload := new(AdminUpdatePayload)

	if err := ctx.Bind(payload); err != nil {
		return a.badPayload(ctx, err)
	}

	if err := payload.Validate(); err != nil {
		return a.invalidPayload(ctx, err)
	}

	patch := payload.patch()
	patch.Role = payload.Role
	patch.IsVerified = payload.IsVerified

	user, err := PatchUser(ctx.Context(), a.Repo, strings.TrimSpace(ctx.Param("id")), patch)
	if err != nil {
		return RenderError(ctx, err)
	}

	return ctx.JSON(router.StatusOK, user)
}

func (a *AuthController) AdminDeleteUser(ctx router.Context) error {
	user, err := a.userByParam(ctx)
	if err != nil {
		return RenderError(ctx, err)
	}

	if err := a.Repo.Users().Remove(ctx.Context(), user.ID); err != nil {
		return RenderError(ctx, errors.Wrap(err, errors.CategoryInternal, "failed to delete user"))
	}

	return ctx.JSON(router.StatusOK, map[string]any{
		"message": MsgAccountGone,
	})
}

func (a *AuthController) currentUser(ctx router.Context) (*User, error) {
	claims, ok := GetRouterClaims(ctx, a.HTTP.contextKey())
	if !ok {
		return nil, ErrUnableToMapClaims
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), claims.UserID())
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load account")
	}

	return user, nil
}

func (a *AuthController) userByParam(ctx router.Context) (*User, error) {
	id := strings.TrimSpace(ctx.Param("id"))
	if id == "" {
		return nil, ErrIdentityNotFound
	}

	user, err := a.Repo.Users().GetByIdentifier(ctx.Context(), id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to load user")
	}

	return user, nil
}

func (a *AuthController) badPayload(ctx router.Context, err error) error {
	a.Logger.Error("failed to parse payload", "error", err)
	return RenderError(ctx, errors.Wrap(err, ErrUnableToParseData.Category, ErrUnableToParseData.Message).
		WithTextCode(ErrUnableToParseData.TextCode))
}

func (a *AuthController) invalidPayload(ctx router.Context, err error) error {
	a.Logger.Debug("payload validation failed", "error", err)
	return ctx.JSON(router.StatusBadRequest, map[string]any{
		"detail": "Validation failed",
		"errors": FormatValidationErrorToMap(err),
	})
}
