// Package echo exposes the connection service over HTTP: the OAuth
// callback route, the token exchange/refresh endpoints the dashboard
// calls, and connection status reads. The token grants live here, server
// side, so the client secret never needs to reach the browser.
package echo

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"github.com/brandpulse-io/adconnect"
	"github.com/brandpulse-io/adconnect/cache"
	"github.com/brandpulse-io/adconnect/domain"
	autherrors "github.com/brandpulse-io/adconnect/errors"
	"github.com/brandpulse-io/adconnect/log"
	"github.com/brandpulse-io/adconnect/tiktok"
)

// ConnectAPI holds the handler dependencies.
type ConnectAPI struct {
	flow        *adconnect.FlowService
	exchanger   adconnect.Exchanger
	refresher   tiktok.Refresher
	connections cache.ConnectionStore
	factory     *tiktok.ClientFactory
	logger      log.Logger

	// defaultRedirectURI fills exchange requests that omit redirectUri,
	// matching the dashboard's configured callback.
	defaultRedirectURI string
}

func NewConnectAPI(
	flow *adconnect.FlowService,
	exchanger adconnect.Exchanger,
	refresher tiktok.Refresher,
	connections cache.ConnectionStore,
	factory *tiktok.ClientFactory,
	logger log.Logger,
) *ConnectAPI {
	if logger == nil {
		logger = log.NewNop()
	}
	return &ConnectAPI{
		flow:        flow,
		exchanger:   exchanger,
		refresher:   refresher,
		connections: connections,
		factory:     factory,
		logger:      logger,
	}
}

// WithDefaultRedirectURI sets the redirect URI substituted into exchange
// requests that omit one.
func (a *ConnectAPI) WithDefaultRedirectURI(uri string) *ConnectAPI {
	a.defaultRedirectURI = uri
	return a
}

// RegisterRoutes registers all routes on e, including permissive CORS
// with preflight answered 204. Methods outside each route's set get 405
// from echo's router.
func (a *ConnectAPI) RegisterRoutes(e *echo.Echo) {
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{echo.HeaderContentType, echo.HeaderAuthorization},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		MaxAge:       86400,
	}))

	e.GET("/tiktok/callback", a.CallbackHandler)
	e.POST("/api/tiktok-connect", a.ConnectHandler)
	e.POST("/api/tiktok-exchange", a.ExchangeHandler)
	e.POST("/api/tiktok-auth", a.ExchangeHandler)
	e.POST("/api/tiktok-refresh", a.RefreshHandler)
	e.POST("/api/tiktok-retry", a.RetryHandler)
	e.POST("/api/tiktok-cancel", a.CancelHandler)
	e.GET("/api/connections/:platform", a.ConnectionHandler)
	e.GET("/api/campaigns", a.CampaignsHandler)
}

// envelope is the response wrapper: {success, data, timestamp} on
// success, {success:false, error:{message, details}, timestamp} on
// failure.
type envelope struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     *apiError   `json:"error,omitempty"`
	Timestamp string      `json:"timestamp"`
}

type apiError struct {
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

func respond(c echo.Context, status int, data interface{}) error {
	return c.JSON(status, envelope{
		Success:   true,
		Data:      data,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

func respondError(c echo.Context, err error) error {
	status := http.StatusInternalServerError
	message := "internal server error"
	var details interface{}

	if ae, ok := err.(*autherrors.AuthError); ok {
		message = ae.Description
		details = ae
		switch ae.Kind {
		case autherrors.KindValidation, autherrors.KindMissingParameters, autherrors.KindInvalidState:
			status = http.StatusBadRequest
		case autherrors.KindNotConfigured:
			status = http.StatusNotFound
		case autherrors.KindNetwork, autherrors.KindTokenRefresh:
			status = http.StatusBadGateway
		case autherrors.KindProvider:
			status = http.StatusBadGateway
			if ae.Status >= 400 {
				status = ae.Status
			}
		}
	}

	return c.JSON(status, envelope{
		Success:   false,
		Error:     &apiError{Message: message, Details: details},
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// connectRequest starts an authorization flow.
type connectRequest struct {
	AppID        string `json:"appId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
}

// ConnectHandler begins the OAuth flow and returns the authorization URL
// the browser should navigate to.
func (a *ConnectAPI) ConnectHandler(c echo.Context) error {
	var req connectRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, autherrors.NewValidation("malformed request body", nil))
	}

	authURL, err := a.flow.BeginAuthorization(c.Request().Context(), domain.Credentials{
		AppID:        req.AppID,
		ClientSecret: req.ClientSecret,
		RedirectURI:  req.RedirectURI,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, map[string]string{"auth_url": authURL})
}

// CallbackHandler is the redirect target of the provider consent page.
func (a *ConnectAPI) CallbackHandler(c echo.Context) error {
	authCode := c.QueryParam("auth_code")
	state := c.QueryParam("state")

	record, err := a.flow.HandleCallback(c.Request().Context(), authCode, state)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, record.Redacted())
}

// RetryHandler re-attempts a failed exchange, operator triggered.
func (a *ConnectAPI) RetryHandler(c echo.Context) error {
	record, err := a.flow.Retry(c.Request().Context())
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, record.Redacted())
}

// CancelHandler aborts the in-flight flow; closing the consent popup is
// not an error.
func (a *ConnectAPI) CancelHandler(c echo.Context) error {
	a.flow.Cancel(c.Request().Context())
	return respond(c, http.StatusOK, map[string]string{"state": string(a.flow.State())})
}

// exchangeRequest is the passthrough exchange body the dashboard sends.
type exchangeRequest struct {
	Code         string `json:"code"`
	AppID        string `json:"appId"`
	ClientSecret string `json:"clientSecret"`
	RedirectURI  string `json:"redirectUri"`
}

// tokenPayload mirrors the provider token fields, enriched with the
// computed expiry date.
type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	ExpiresIn    int64  `json:"expires_in"`
	ExpiryDate   string `json:"expiry_date"`
}

func toTokenPayload(bundle domain.TokenBundle) map[string]tokenPayload {
	return map[string]tokenPayload{
		"data": {
			AccessToken:  bundle.AccessToken,
			RefreshToken: bundle.RefreshToken,
			ExpiresIn:    int64(time.Until(bundle.TokenExpiry).Seconds()),
			ExpiryDate:   bundle.TokenExpiry.Format(time.RFC3339),
		},
	}
}

// ExchangeHandler performs the authorization-code grant on behalf of the
// dashboard.
func (a *ConnectAPI) ExchangeHandler(c echo.Context) error {
	var req exchangeRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, autherrors.NewValidation("malformed request body", nil))
	}

	redirectURI := req.RedirectURI
	if redirectURI == "" {
		redirectURI = a.defaultRedirectURI
	}

	bundle, err := a.exchanger.Exchange(c.Request().Context(), tiktok.ExchangeParams{
		Code:         req.Code,
		AppID:        req.AppID,
		ClientSecret: req.ClientSecret,
		RedirectURI:  redirectURI,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, toTokenPayload(bundle))
}

// refreshRequest is the passthrough refresh body.
type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
	AppID        string `json:"appId"`
	ClientSecret string `json:"clientSecret"`
}

// RefreshHandler performs the refresh grant on behalf of the dashboard.
func (a *ConnectAPI) RefreshHandler(c echo.Context) error {
	var req refreshRequest
	if err := c.Bind(&req); err != nil {
		return respondError(c, autherrors.NewValidation("malformed request body", nil))
	}

	bundle, err := a.refresher.Refresh(c.Request().Context(), tiktok.RefreshParams{
		RefreshToken: req.RefreshToken,
		AppID:        req.AppID,
		ClientSecret: req.ClientSecret,
	})
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, toTokenPayload(bundle))
}

// ConnectionHandler returns the stored connection record for a platform,
// token fields redacted.
func (a *ConnectAPI) ConnectionHandler(c echo.Context) error {
	platform := domain.Platform(c.Param("platform"))

	record, err := a.connections.Get(c.Request().Context(), platform)
	if err != nil {
		return respondError(c, autherrors.NewNotConfigured(string(platform)))
	}
	return respond(c, http.StatusOK, record.Redacted())
}

// CampaignsHandler lists the advertiser's campaigns through the
// authenticated client. Not-configured and token-refresh failures
// propagate in the error envelope so the dashboard can distinguish
// "no connection" from "no campaigns".
func (a *ConnectAPI) CampaignsHandler(c echo.Context) error {
	advertiserID := c.QueryParam("advertiser_id")
	if advertiserID == "" {
		return respondError(c, autherrors.NewValidation(
			"advertiser_id is required", map[string]bool{"advertiser_id": true}))
	}

	ctx := c.Request().Context()
	client, err := a.factory.Client(ctx)
	if err != nil {
		return respondError(c, err)
	}

	campaigns, err := client.ListCampaigns(ctx, advertiserID)
	if err != nil {
		return respondError(c, err)
	}
	return respond(c, http.StatusOK, map[string]interface{}{"list": campaigns})
}
