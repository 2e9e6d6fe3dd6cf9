package api

import (
	"context"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/privata-io/consent-service/domain"
	"github.com/privata-io/consent-service/domain/consent"
	"github.com/privata-io/consent-service/pkg"
	"github.com/privata-io/consent-service/pkg/verification"
)

// EchoRouter is the subset of the echo server the handlers are mounted on.
type EchoRouter interface {
	GET(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
	POST(path string, h echo.HandlerFunc, m ...echo.MiddlewareFunc) *echo.Route
}

// Wrapper exposes the consent core over HTTP.
type Wrapper struct {
	Cl *pkg.ConsentService
}

// RegisterHandlers mounts all routes on the router.
func RegisterHandlers(router EchoRouter, wrapper Wrapper) {
	router.POST("/consent", wrapper.CreateConsent)
	router.GET("/consent/:id", wrapper.GetConsent)
	router.GET("/consent", wrapper.ListConsent)
	router.POST("/consent/:id/approve", wrapper.ApproveConsent)
	router.POST("/consent/:id/deny", wrapper.DenyConsent)
	router.POST("/consent/:id/revoke", wrapper.RevokeConsent)
	router.POST("/verification", wrapper.RunVerification)
	router.POST("/content", wrapper.StoreContent)
	router.GET("/content", wrapper.RetrieveContent)
	router.POST("/anomaly/sweep", wrapper.SweepAnomalies)
}

// CreateConsent validates the request body and opens a new pending consent
// request.
func (wrapper Wrapper) CreateConsent(ctx echo.Context) error {
	apiRequest := &CreateConsentRequest{}
	if err := ctx.Bind(apiRequest); err != nil {
		ctx.Logger().Error("Could not unmarshal json body:", err)
		return err
	}

	if apiRequest.RequesterID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "the consent request requires a requesterId")
	}
	if apiRequest.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "the consent request requires an ownerId")
	}
	if apiRequest.Purpose == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "the consent request requires a purpose")
	}
	if len(apiRequest.Scope.Fields) < 1 {
		return echo.NewHTTPError(http.StatusBadRequest, "the consent request requires at least one scope field")
	}

	nullTime := time.Time{}
	if apiRequest.Scope.From == nullTime {
		return echo.NewHTTPError(http.StatusBadRequest, "the consent request requires a scope.from")
	}
	if apiRequest.ExpiresAt == nullTime {
		return echo.NewHTTPError(http.StatusBadRequest, "the consent request requires an expiresAt")
	}

	model, err := wrapper.Cl.CreateConsentRequest(ctx.Request().Context(), apiRequest2Internal(*apiRequest))
	if err != nil {
		return kindError(err)
	}
	return ctx.JSON(http.StatusCreated, internal2ApiResponse(model))
}

// GetConsent reads a single consent request.
func (wrapper Wrapper) GetConsent(ctx echo.Context) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "the id must be a valid uuid")
	}
	model, err := wrapper.Cl.GetConsentRequest(ctx.Request().Context(), id)
	if err != nil {
		return kindError(err)
	}
	return ctx.JSON(http.StatusOK, internal2ApiResponse(model))
}

// ListConsent lists a data owner's consent requests.
func (wrapper Wrapper) ListConsent(ctx echo.Context) error {
	owner := ctx.QueryParam("owner")
	if owner == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "an owner query parameter is required")
	}
	models, err := wrapper.Cl.ListConsentRequestsByOwner(ctx.Request().Context(), owner)
	if err != nil {
		return kindError(err)
	}
	response := make([]ConsentRequestResponse, 0, len(models))
	for _, m := range models {
		response = append(response, internal2ApiResponse(m))
	}
	return ctx.JSON(http.StatusOK, response)
}

// ApproveConsent records the owner's approval of a pending request.
func (wrapper Wrapper) ApproveConsent(ctx echo.Context) error {
	return wrapper.respond(ctx, wrapper.Cl.ApproveConsentRequest)
}

// DenyConsent records the owner's denial of a pending request.
func (wrapper Wrapper) DenyConsent(ctx echo.Context) error {
	return wrapper.respond(ctx, wrapper.Cl.DenyConsentRequest)
}

// RevokeConsent withdraws a previously approved request.
func (wrapper Wrapper) RevokeConsent(ctx echo.Context) error {
	return wrapper.respond(ctx, wrapper.Cl.RevokeConsentRequest)
}

type respondFunc func(ctx context.Context, id uuid.UUID, actor, reason string) (*consent.ConsentRequest, error)

func (wrapper Wrapper) respond(ctx echo.Context, op respondFunc) error {
	id, err := uuid.Parse(ctx.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "the id must be a valid uuid")
	}
	apiRequest := &RespondRequest{}
	if err := ctx.Bind(apiRequest); err != nil {
		ctx.Logger().Error("Could not unmarshal json body:", err)
		return err
	}
	if apiRequest.ActorID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "the response requires an actorId")
	}

	model, err := op(ctx.Request().Context(), id, apiRequest.ActorID, apiRequest.Reason)
	if err != nil {
		return kindError(err)
	}
	return ctx.JSON(http.StatusOK, internal2ApiResponse(model))
}

// RunVerification executes one multi-factor verification run. The composite
// result is returned with status 200 whether it passed or not; only malformed
// input is an HTTP error.
func (wrapper Wrapper) RunVerification(ctx echo.Context) error {
	apiRequest := &VerificationRequest{}
	if err := ctx.Bind(apiRequest); err != nil {
		ctx.Logger().Error("Could not unmarshal json body:", err)
		return err
	}
	if apiRequest.IdentityName == "" || apiRequest.IdentityAddress == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "the verification requires an identityName and an identityAddress")
	}

	internal, err := wrapper.verificationRequest2Internal(*apiRequest)
	if err != nil {
		return kindError(err)
	}
	result := wrapper.Cl.RunMultiFactorVerification(ctx.Request().Context(), *internal)

	response := VerificationResponse{
		ID:         result.ID.String(),
		Passed:     result.Passed,
		FailedGate: string(result.FailedGate),
		Reason:     result.Reason,
		VerifiedAt: result.VerifiedAt,
	}
	for _, c := range result.Checks {
		response.Checks = append(response.Checks, VerificationCheck{
			Gate:   string(c.Gate),
			Passed: c.Passed,
			Reason: c.Reason,
		})
	}
	return ctx.JSON(http.StatusOK, response)
}

// StoreContent encrypts and stores a payload for an owner and category.
func (wrapper Wrapper) StoreContent(ctx echo.Context) error {
	apiRequest := &StoreContentRequest{}
	if err := ctx.Bind(apiRequest); err != nil {
		ctx.Logger().Error("Could not unmarshal json body:", err)
		return err
	}
	if len(apiRequest.Payload) == 0 {
		return echo.NewHTTPError(http.StatusBadRequest, "the content requires a payload")
	}
	if apiRequest.OwnerID == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "the content requires an ownerId")
	}

	stored, err := wrapper.Cl.StoreEncrypted(ctx.Request().Context(), apiRequest.Payload, apiRequest.OwnerID, apiRequest.Category)
	if err != nil {
		return kindError(err)
	}
	return ctx.JSON(http.StatusCreated, StoreContentResponse{
		DataAddress:     stored.DataAddress,
		MetadataAddress: stored.MetadataAddress,
	})
}

// RetrieveContent decrypts previously stored content.
func (wrapper Wrapper) RetrieveContent(ctx echo.Context) error {
	dataAddress := ctx.QueryParam("data")
	metadataAddress := ctx.QueryParam("metadata")
	owner := ctx.QueryParam("owner")
	category := ctx.QueryParam("category")
	if dataAddress == "" || metadataAddress == "" || owner == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "data, metadata and owner query parameters are required")
	}

	payload, meta, err := wrapper.Cl.RetrieveEncrypted(ctx.Request().Context(), dataAddress, metadataAddress, owner, category)
	if err != nil {
		return kindError(err)
	}
	return ctx.JSON(http.StatusOK, RetrieveContentResponse{
		Payload:   payload,
		Algorithm: meta.Algorithm,
		Category:  meta.Category,
		CreatedAt: meta.CreatedAt,
	})
}

// SweepAnomalies triggers one anomaly sweep outside the regular schedule.
func (wrapper Wrapper) SweepAnomalies(ctx echo.Context) error {
	if err := wrapper.Cl.MonitorTick(ctx.Request().Context()); err != nil {
		return kindError(err)
	}
	return ctx.NoContent(http.StatusAccepted)
}

// Convert the public data type to the internal type. This abstraction makes
// the app more robust to api changes.
func apiRequest2Internal(apiRequest CreateConsentRequest) pkg.CreateConsentRequest {
	return pkg.CreateConsentRequest{
		RequesterID: apiRequest.RequesterID,
		OwnerID:     apiRequest.OwnerID,
		Category:    apiRequest.Category,
		Purpose:     apiRequest.Purpose,
		Scope: pkg.ScopeParams{
			Fields: apiRequest.Scope.Fields,
			From:   apiRequest.Scope.From,
			To:     apiRequest.Scope.To,
			Level:  apiRequest.Scope.Level,
		},
		ExpiresAt:       apiRequest.ExpiresAt,
		ProofID:         apiRequest.ProofID,
		CredentialID:    apiRequest.CredentialID,
		ContentAddress:  apiRequest.ContentAddress,
		MetadataAddress: apiRequest.MetadataAddress,
	}
}

func (wrapper Wrapper) verificationRequest2Internal(apiRequest VerificationRequest) (*verification.Request, error) {
	internal := &verification.Request{
		Identity: verification.IdentityClaim{
			Name:    apiRequest.IdentityName,
			Address: apiRequest.IdentityAddress,
		},
		Challenge:      apiRequest.Challenge,
		ContentAddress: apiRequest.ContentAddress,
	}
	if apiRequest.ProofID != "" {
		id, err := uuid.Parse(apiRequest.ProofID)
		if err != nil {
			return nil, domain.Validationf("the proofId must be a valid uuid")
		}
		p, err := wrapper.Cl.Proofs.Proof(id)
		if err != nil {
			return nil, err
		}
		internal.Proof = p
	}
	if apiRequest.AccessUserID != "" {
		internal.Access = &verification.AccessContext{
			UserID:      apiRequest.AccessUserID,
			DataType:    apiRequest.AccessDataType,
			AccessLevel: apiRequest.AccessLevel,
		}
	}
	if apiRequest.PresentationID != "" {
		p, err := wrapper.Cl.Credentials.Presentation(apiRequest.PresentationID)
		if err != nil {
			return nil, err
		}
		internal.Presentation = p
	}
	return internal, nil
}

func internal2ApiResponse(model *consent.ConsentRequest) ConsentRequestResponse {
	return ConsentRequestResponse{
		ID:          model.ID.String(),
		RequesterID: model.RequesterID,
		OwnerID:     model.OwnerID,
		Category:    string(model.Category),
		Purpose:     model.Purpose,
		Scope: AccessScope{
			Fields: model.Scope.Fields,
			From:   model.Scope.From,
			To:     model.Scope.To,
			Level:  string(model.Scope.Level),
		},
		Status:         string(model.Status),
		CreatedAt:      model.CreatedAt,
		ExpiresAt:      model.ExpiresAt,
		RespondedAt:    model.RespondedAt,
		RespondedBy:    model.RespondedBy,
		ResponseReason: model.ResponseReason,
		SettlementRef:  model.SettlementRef,
	}
}

// kindError maps domain error kinds onto HTTP statuses.
func kindError(err error) error {
	status := http.StatusInternalServerError
	switch domain.KindOf(err) {
	case domain.KindValidation:
		status = http.StatusBadRequest
	case domain.KindForbidden, domain.KindIdentityNotOwned:
		status = http.StatusForbidden
	case domain.KindInvalidState:
		status = http.StatusConflict
	case domain.KindProfileNotFound, domain.KindContentNotFound:
		status = http.StatusNotFound
	case domain.KindProofInvalid, domain.KindCredentialInvalid:
		status = http.StatusUnprocessableEntity
	case domain.KindDecryptionFailed:
		status = http.StatusForbidden
	case domain.KindTransient:
		status = http.StatusServiceUnavailable
	}
	return echo.NewHTTPError(status, ErrorResponse{Kind: string(domain.KindOf(err)), Error: err.Error()})
}
