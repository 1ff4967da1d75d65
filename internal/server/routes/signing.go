package routes

import (
	"errors"
	"log"
	"net/http"
	"sort"

	"github.com/gin-gonic/gin"

	"glrssign/internal/agreement"
	"glrssign/internal/query"
)

// SigningRoutes serve external signers. They are authorized by the bearer
// token from their signing link, which always travels in the request body.
type SigningRoutes struct {
	server ServerInterface
}

func NewSigningRoutes(server ServerInterface) *SigningRoutes {
	return &SigningRoutes{server: server}
}

func (sr *SigningRoutes) RegisterRoutes(r *gin.Engine) {
	sign := r.Group("/sign")
	{
		sign.POST("/resolve", sr.resolveHandler)
		sign.POST("/fields", sr.submitFieldsHandler)
		sign.POST("/submit", sr.submitHandler)
		sign.POST("/decline", sr.declineHandler)
	}
}

type TokenRequest struct {
	Token string `json:"token" binding:"required"`
}

type SignerFieldsRequest struct {
	Token       string         `json:"token" binding:"required"`
	OperationID string         `json:"operationId"`
	Values      map[string]any `json:"values"`
}

type SignerSubmitRequest struct {
	Token        string         `json:"token" binding:"required"`
	OperationID  string         `json:"operationId"`
	Values       map[string]any `json:"values"`
	SignedFields []string       `json:"signedFields"`
}

type DeclineRequest struct {
	Token       string `json:"token" binding:"required"`
	OperationID string `json:"operationId"`
	Reason      string `json:"reason"`
}

// SigningView is what a signer sees: the document, their own identity and
// the blocks they own. Other signers' contact details are left out.
type SigningView struct {
	Agreement   query.Detail     `json:"agreement"`
	Signer      query.SignerView `json:"signer"`
	IsTheirTurn bool             `json:"isTheirTurn"`
	Fields      []string         `json:"fields"`
}

func (sr *SigningRoutes) signingView(a *agreement.Agreement, signer *agreement.Signer) SigningView {
	now := sr.server.Agreements().Now()
	v := SigningView{Agreement: query.NewDetail(a, now)}
	for i := range v.Agreement.Signers {
		s := &v.Agreement.Signers[i]
		if s.Role == signer.Role {
			v.Signer = *s
			continue
		}
		s.Email = ""
	}
	v.IsTheirTurn = v.Signer.IsTheirTurn

	owned := a.Content.Blocks.FieldsFor(signer.Role)
	v.Fields = make([]string, 0, len(owned))
	for id := range owned {
		v.Fields = append(v.Fields, id)
	}
	sort.Strings(v.Fields)
	return v
}

// act resolves the token and runs apply for its signer. A retried submission
// whose first attempt already redeemed the link gets the recorded outcome back.
func (sr *SigningRoutes) act(c *gin.Context, token, opID string, apply func(a *agreement.Agreement, s *agreement.Signer) (agreement.Outcome, error)) {
	a, signer, err := sr.server.Agreements().ResolveToken(c.Request.Context(), token)
	if err != nil {
		if errors.Is(err, agreement.ErrTokenRedeemed) && opID != "" {
			if out, rerr := apply(a, signer); rerr == nil && out.Replayed {
				sr.respondOutcome(c, out, signer)
				return
			}
		}
		respondError(c, err)
		return
	}

	out, err := apply(a, signer)
	if err != nil {
		respondError(c, err)
		return
	}
	sr.respondOutcome(c, out, signer)
}

func (sr *SigningRoutes) resolveHandler(c *gin.Context) {
	var req TokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	a, signer, err := sr.server.Agreements().ResolveToken(c.Request.Context(), req.Token)
	if err != nil {
		respondError(c, err)
		return
	}

	if out, err := sr.server.Agreements().RecordView(c.Request.Context(), a.ID, signer.Role); err != nil {
		log.Printf("agreement %s: view by %s not recorded: %v", a.ID, signer.Role, err)
	} else {
		a = out.Agreement
	}
	c.JSON(http.StatusOK, sr.signingView(a, signer))
}

func (sr *SigningRoutes) submitFieldsHandler(c *gin.Context) {
	var req SignerFieldsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	sr.act(c, req.Token, req.OperationID, func(a *agreement.Agreement, s *agreement.Signer) (agreement.Outcome, error) {
		return sr.server.Agreements().SubmitFields(c.Request.Context(), a.ID, req.OperationID, s.Role, req.Values)
	})
}

func (sr *SigningRoutes) submitHandler(c *gin.Context) {
	var req SignerSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	sr.act(c, req.Token, req.OperationID, func(a *agreement.Agreement, s *agreement.Signer) (agreement.Outcome, error) {
		return sr.server.Agreements().Sign(c.Request.Context(), a.ID, req.OperationID, s.Role, agreement.SignInput{
			Values:       req.Values,
			SignedFields: req.SignedFields,
		})
	})
}

func (sr *SigningRoutes) declineHandler(c *gin.Context) {
	var req DeclineRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "token is required"})
		return
	}
	sr.act(c, req.Token, req.OperationID, func(a *agreement.Agreement, s *agreement.Signer) (agreement.Outcome, error) {
		return sr.server.Agreements().Decline(c.Request.Context(), a.ID, req.OperationID, s.Role, req.Reason)
	})
}

// respondOutcome never reports follow-up failures to external signers; the
// signature itself is committed and staff see the warning in the portal logs.
func (sr *SigningRoutes) respondOutcome(c *gin.Context, out agreement.Outcome, signer *agreement.Signer) {
	c.JSON(http.StatusOK, gin.H{
		"view":     sr.signingView(out.Agreement, signer),
		"replayed": out.Replayed,
	})
}
